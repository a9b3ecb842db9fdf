package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"streamworks-assistant-be/pkg/dialog/schema"
	"streamworks-assistant-be/pkg/llm"
)

// LLMExtractor asks an LLM for source-grounded candidates. The model is
// told to answer with a bare JSON array; offsets it reports are
// double-checked against the text and repaired by substring search before a
// candidate is accepted.
type LLMExtractor struct {
	provider llm.LLMProvider
	logger   *log.Logger
}

// NewLLMExtractor creates an LLM-backed extractor on top of any provider.
func NewLLMExtractor(provider llm.LLMProvider, logger *log.Logger) *LLMExtractor {
	return &LLMExtractor{provider: provider, logger: logger}
}

var _ Extractor = &LLMExtractor{}

type llmCandidate struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	SourceText string  `json:"source_text"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

func (e *LLMExtractor) Extract(ctx context.Context, text, jobType string, sch schema.JobSchema) (*Result, error) {
	prompt := e.buildPrompt(text, jobType, sch)

	// Temperature 0 for deterministic, parseable output.
	response, err := e.provider.Generate(ctx, prompt, llm.WithTemperature(0.0), llm.WithJSONOutput())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, NewError(KindTimeout, err)
		}
		return nil, NewError(KindUnavailable, err)
	}

	raw, err := parseCandidateJSON(response)
	if err != nil {
		return nil, NewError(KindMalformed, err)
	}

	res := &Result{}
	for _, c := range raw {
		spec, ok := sch.Spec(c.Name)
		if !ok {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("extractor proposed unknown parameter %q, dropped", c.Name))
			continue
		}
		cand, warn := e.ground(text, c, spec)
		if warn != "" {
			res.Warnings = append(res.Warnings, warn)
		}
		if cand != nil {
			res.Candidates = append(res.Candidates, *cand)
		}
	}
	e.logger.Printf("[EXTRACT] llm extractor: %d candidate(s), %d warning(s)", len(res.Candidates), len(res.Warnings))
	return res, nil
}

// ground verifies the model's span against the text. When the claimed span
// does not reproduce source_text the span is recovered by substring search;
// a candidate whose source text cannot be located at all is dropped.
func (e *LLMExtractor) ground(text string, c llmCandidate, spec schema.ParameterSpec) (*Candidate, string) {
	warn := ""
	start, end := c.Start, c.End
	spanOK := start >= 0 && start < end && end <= len(text) && text[start:end] == c.SourceText

	if !spanOK && c.SourceText != "" {
		if idx := strings.Index(text, c.SourceText); idx >= 0 {
			start, end = idx, idx+len(c.SourceText)
			spanOK = true
			warn = fmt.Sprintf("parameter %s: reported offsets [%d,%d) were wrong, recovered by substring match",
				c.Name, c.Start, c.End)
		}
	}
	if !spanOK {
		return nil, fmt.Sprintf("parameter %s: source text %q not found in message, candidate dropped",
			c.Name, c.SourceText)
	}

	conf := c.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return &Candidate{
		Name:       c.Name,
		Value:      canonicalValue(spec, c.Value),
		SourceText: text[start:end],
		Start:      start,
		End:        end,
		Confidence: conf,
		Scope:      spec.Scope,
		Method:     "llm",
	}, warn
}

func (e *LLMExtractor) buildPrompt(text, jobType string, sch schema.JobSchema) string {
	var b strings.Builder
	b.WriteString("You extract StreamWorks job parameters from a user message.\n")
	b.WriteString("Answer with a JSON array only, no prose, no markdown fences.\n")
	b.WriteString("Each element: {\"name\",\"value\",\"source_text\",\"start\",\"end\",\"confidence\"}.\n")
	b.WriteString("source_text must be copied verbatim from the message; start/end are its byte offsets.\n")
	b.WriteString("Only report parameters actually present. Confidence is 0..1.\n\n")
	if jobType != "" {
		fmt.Fprintf(&b, "Job type: %s\n", jobType)
	}
	b.WriteString("Known parameters:\n")
	for _, p := range sch.Parameters {
		fmt.Fprintf(&b, "- %s (%s scope, %s", p.Name, p.Scope, p.Kind)
		if len(p.Enum) > 0 {
			fmt.Fprintf(&b, ", one of %s", strings.Join(p.Enum, "/"))
		}
		b.WriteString(")\n")
	}
	fmt.Fprintf(&b, "\nMessage:\n%s\n", text)
	return b.String()
}

// parseCandidateJSON tolerates markdown fences and leading prose around the
// JSON array.
func parseCandidateJSON(response string) ([]llmCandidate, error) {
	s := strings.TrimSpace(response)
	if i := strings.Index(s, "["); i >= 0 {
		if j := strings.LastIndex(s, "]"); j > i {
			s = s[i : j+1]
		}
	}
	var out []llmCandidate
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}
	return out, nil
}
