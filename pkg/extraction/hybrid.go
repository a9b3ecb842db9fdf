package extraction

import (
	"context"
	"log"

	"streamworks-assistant-be/pkg/dialog/schema"
)

// HybridExtractor combines the deterministic rule extractor with the LLM
// extractor. Candidates are merged per parameter name by max confidence,
// with the winning strategy recorded as provenance in Method.
type HybridExtractor struct {
	rules  *RuleExtractor
	llm    *LLMExtractor
	logger *log.Logger
}

// NewHybridExtractor creates a hybrid extractor.
func NewHybridExtractor(rules *RuleExtractor, llm *LLMExtractor, logger *log.Logger) *HybridExtractor {
	return &HybridExtractor{rules: rules, llm: llm, logger: logger}
}

var _ Extractor = &HybridExtractor{}

// Extract runs both strategies. A timeout or provider failure of the LLM
// leg aborts the whole call so the turn stays untouched; the rule leg never
// fails short of context cancellation.
func (h *HybridExtractor) Extract(ctx context.Context, text, jobType string, sch schema.JobSchema) (*Result, error) {
	ruleRes, err := h.rules.Extract(ctx, text, jobType, sch)
	if err != nil {
		return nil, err
	}
	llmRes, err := h.llm.Extract(ctx, text, jobType, sch)
	if err != nil {
		return nil, err
	}

	merged := &Result{
		Warnings: append(append([]string(nil), ruleRes.Warnings...), llmRes.Warnings...),
	}
	byName := map[string]int{}
	for _, c := range append(append([]Candidate(nil), ruleRes.Candidates...), llmRes.Candidates...) {
		if idx, ok := byName[c.Name]; ok {
			if c.Confidence > merged.Candidates[idx].Confidence {
				merged.Candidates[idx] = c
			}
			continue
		}
		byName[c.Name] = len(merged.Candidates)
		merged.Candidates = append(merged.Candidates, c)
	}
	h.logger.Printf("[EXTRACT] hybrid: %d rule + %d llm -> %d merged candidate(s)",
		len(ruleRes.Candidates), len(llmRes.Candidates), len(merged.Candidates))
	return merged, nil
}
