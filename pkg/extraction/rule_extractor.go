package extraction

import (
	"context"
	"log"
	"regexp"
	"strings"

	"streamworks-assistant-be/pkg/dialog/schema"
)

// rule binds one regex to the schema parameter it extracts. The first
// capture group carries the value; its submatch offsets become the
// grounding span, so rule-extracted offsets are exact by construction.
type rule struct {
	param      string
	re         *regexp.Regexp
	confidence float64
}

var genericRules = []rule{
	{"stream_name", regexp.MustCompile(`(?i)\bstream\s+(?:named?\s+|namens\s+)?"?([A-Za-z0-9][A-Za-z0-9_-]{2,})"?`), 0.85},
	{"schedule", regexp.MustCompile(`(?i)\b(täglich|daily|stündlich|hourly|wöchentlich|weekly|monatlich|monthly)\b`), 0.85},
	{"schedule", regexp.MustCompile(`\b([\d*/,-]+ [\d*/,-]+ [\d*/,-]+ [\d*/,-]+ [\d*/,-]+)\b`), 0.8},
}

var ruleSets = map[string][]rule{
	schema.JobTypeSAP: {
		{"system", regexp.MustCompile(`(?i)\bsystem\s+([A-Za-z][A-Za-z0-9]{1,2}_[0-9]{2,3})\b`), 0.95},
		{"system", regexp.MustCompile(`\b([A-Z][A-Z0-9]{1,2}_[0-9]{2,3})\b`), 0.7},
		{"report", regexp.MustCompile(`(?i)\breport\s+([A-Za-z][A-Za-z0-9_]{2,})\b`), 0.95},
		{"report", regexp.MustCompile(`\b(Z[A-Z0-9_]{2,})\b`), 0.7},
		{"variant", regexp.MustCompile(`(?i)\bvariante?\s+([A-Za-z0-9_-]+)\b`), 0.9},
		{"batch_user", regexp.MustCompile(`(?i)\bbatch[- ]?user\s+([A-Za-z0-9_-]+)\b`), 0.9},
	},
	schema.JobTypeFileTransfer: {
		{"source_system", regexp.MustCompile(`(?i)\b(?:from|von)\s+(?:server\s+|host\s+|system\s+)?([A-Za-z0-9][A-Za-z0-9_.-]*[A-Za-z0-9])`), 0.9},
		{"source_system", regexp.MustCompile(`(?i)\bquelle\s+([A-Za-z0-9][A-Za-z0-9_.-]*[A-Za-z0-9])`), 0.9},
		{"target_system", regexp.MustCompile(`(?i)\b(?:to|nach)\s+(?:server\s+|host\s+|system\s+)?([A-Za-z0-9][A-Za-z0-9_.-]*[A-Za-z0-9])`), 0.9},
		{"target_system", regexp.MustCompile(`(?i)\bziel\s+([A-Za-z0-9][A-Za-z0-9_.-]*[A-Za-z0-9])`), 0.9},
		{"protocol", regexp.MustCompile(`(?i)\b(sftp|ftps|ftp|scp|https|http)\b`), 0.95},
		{"file_pattern", regexp.MustCompile(`(\*\.[A-Za-z0-9]+)`), 0.9},
	},
	schema.JobTypeCustomScript: {
		{"script_path", regexp.MustCompile(`((?:/[A-Za-z0-9_.-]+){2,}|[A-Za-z]:\\[^\s"]+)`), 0.9},
		{"interpreter", regexp.MustCompile(`(?i)\b(bash|sh|powershell|python|perl)\b`), 0.9},
	},
	schema.JobTypeStandard: {
		{"command", regexp.MustCompile(`(?i)\b(?:command|befehl)\s+"([^"]+)"`), 0.95},
		{"command", regexp.MustCompile(`(?i)\b(?:run|execute|ausführen?)\s+([^\s,.]{2,})`), 0.75},
		{"agent", regexp.MustCompile(`(?i)\b(?:agent|host)\s+([A-Za-z0-9][A-Za-z0-9_.-]*)`), 0.9},
	},
}

// RuleExtractor extracts parameters with per-job-type regex rules. It needs
// no network and is the deterministic fallback behind the LLM extractor.
type RuleExtractor struct {
	logger *log.Logger
}

// NewRuleExtractor creates a rule-backed extractor.
func NewRuleExtractor(logger *log.Logger) *RuleExtractor {
	return &RuleExtractor{logger: logger}
}

var _ Extractor = &RuleExtractor{}

// Extract runs every rule of the job type (plus the generic stream rules)
// over the text. For each parameter the highest-confidence match wins;
// rules whose parameter the schema does not declare are skipped.
func (r *RuleExtractor) Extract(ctx context.Context, text, jobType string, sch schema.JobSchema) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rules := append(append([]rule(nil), ruleSets[jobType]...), genericRules...)
	found := map[string]Candidate{}
	var order []string

	for _, rl := range rules {
		spec, ok := sch.Spec(rl.param)
		if !ok {
			continue
		}
		if prev, dup := found[rl.param]; dup && prev.Confidence >= rl.confidence {
			continue
		}
		loc := rl.re.FindStringSubmatchIndex(text)
		if loc == nil || loc[2] < 0 {
			continue
		}
		start, end := loc[2], loc[3]
		matched := text[start:end]
		cand := Candidate{
			Name:       rl.param,
			Value:      canonicalValue(spec, matched),
			SourceText: matched,
			Start:      start,
			End:        end,
			Confidence: rl.confidence,
			Scope:      spec.Scope,
			Method:     "rule",
		}
		if _, dup := found[rl.param]; !dup {
			order = append(order, rl.param)
		}
		found[rl.param] = cand
	}

	res := &Result{}
	for _, name := range order {
		res.Candidates = append(res.Candidates, found[name])
	}
	r.logger.Printf("[EXTRACT] rule extractor: %d candidate(s) for job type %q", len(res.Candidates), jobType)
	return res, nil
}

// canonicalValue maps enum matches onto their declared spelling; the
// grounding span keeps the literal text.
func canonicalValue(spec schema.ParameterSpec, matched string) string {
	if len(spec.Enum) == 0 {
		return matched
	}
	for _, allowed := range spec.Enum {
		if strings.EqualFold(allowed, matched) {
			return allowed
		}
	}
	return matched
}
