package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"streamworks-assistant-be/pkg/dialog/schema"
	"streamworks-assistant-be/pkg/llm"
)

// fakeProvider replays a canned response or error.
type fakeProvider struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	if len(history) > 0 {
		f.prompts = append(f.prompts, history[len(history)-1].Content)
	}
	return f.response, f.err
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func TestLLMExtractParsesCandidates(t *testing.T) {
	text := "SAP Export aus System PA1_100"
	provider := &fakeProvider{
		response: `[{"name":"system","value":"PA1_100","source_text":"PA1_100","start":22,"end":29,"confidence":0.92}]`,
	}
	e := NewLLMExtractor(provider, testLogger())

	res, err := e.Extract(context.Background(), text, schema.JobTypeSAP, schemaFor(t, schema.JobTypeSAP))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("len(Candidates) = %d, want 1", len(res.Candidates))
	}
	c := res.Candidates[0]
	if c.Name != "system" || c.Value != "PA1_100" || c.Confidence != 0.92 {
		t.Errorf("candidate = %+v", c)
	}
	if text[c.Start:c.End] != c.SourceText {
		t.Errorf("span [%d,%d) does not reproduce %q", c.Start, c.End, c.SourceText)
	}
	if c.Method != "llm" {
		t.Errorf("Method = %q, want llm", c.Method)
	}
}

func TestLLMExtractToleratesFencesAndProse(t *testing.T) {
	provider := &fakeProvider{
		response: "Here you go:\n```json\n[{\"name\":\"system\",\"value\":\"PA1_100\",\"source_text\":\"PA1_100\",\"start\":22,\"end\":29,\"confidence\":0.9}]\n```",
	}
	e := NewLLMExtractor(provider, testLogger())

	res, err := e.Extract(context.Background(), "SAP Export aus System PA1_100", schema.JobTypeSAP, schemaFor(t, schema.JobTypeSAP))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(res.Candidates) != 1 {
		t.Errorf("len(Candidates) = %d, want 1", len(res.Candidates))
	}
}

func TestLLMExtractRepairsWrongOffsets(t *testing.T) {
	text := "SAP Export aus System PA1_100"
	provider := &fakeProvider{
		response: `[{"name":"system","value":"PA1_100","source_text":"PA1_100","start":0,"end":7,"confidence":0.9}]`,
	}
	e := NewLLMExtractor(provider, testLogger())

	res, err := e.Extract(context.Background(), text, schema.JobTypeSAP, schemaFor(t, schema.JobTypeSAP))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("len(Candidates) = %d, want 1", len(res.Candidates))
	}
	c := res.Candidates[0]
	if c.Start != 22 || c.End != 29 {
		t.Errorf("repaired span = [%d,%d), want [22,29)", c.Start, c.End)
	}
	if len(res.Warnings) == 0 {
		t.Error("Warnings empty, want a repair warning")
	}
}

func TestLLMExtractDropsUnlocatableSourceText(t *testing.T) {
	provider := &fakeProvider{
		response: `[{"name":"system","value":"XX9_999","source_text":"XX9_999","start":0,"end":7,"confidence":0.9}]`,
	}
	e := NewLLMExtractor(provider, testLogger())

	res, err := e.Extract(context.Background(), "SAP Export aus System PA1_100", schema.JobTypeSAP, schemaFor(t, schema.JobTypeSAP))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Errorf("Candidates = %+v, want the hallucinated span dropped", res.Candidates)
	}
	if len(res.Warnings) == 0 {
		t.Error("Warnings empty, want a drop warning")
	}
}

func TestLLMExtractDropsUnknownParameter(t *testing.T) {
	provider := &fakeProvider{
		response: `[{"name":"no_such_param","value":"x","source_text":"SAP","start":0,"end":3,"confidence":0.9}]`,
	}
	e := NewLLMExtractor(provider, testLogger())

	res, err := e.Extract(context.Background(), "SAP Export", schema.JobTypeSAP, schemaFor(t, schema.JobTypeSAP))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Errorf("Candidates = %+v, want none", res.Candidates)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("Warnings = %v, want exactly the unknown-parameter warning", res.Warnings)
	}
}

func TestLLMExtractMalformedResponse(t *testing.T) {
	provider := &fakeProvider{response: "I could not find any parameters, sorry!"}
	e := NewLLMExtractor(provider, testLogger())

	_, err := e.Extract(context.Background(), "SAP Export", schema.JobTypeSAP, schemaFor(t, schema.JobTypeSAP))
	kind, ok := KindOf(err)
	if !ok || kind != KindMalformed {
		t.Errorf("KindOf(err) = %v/%v, want malformed", kind, ok)
	}
	if IsRecoverable(err) {
		t.Error("malformed responses are not recoverable by plain retry")
	}
}

func TestLLMExtractTimeout(t *testing.T) {
	provider := &fakeProvider{err: context.DeadlineExceeded}
	e := NewLLMExtractor(provider, testLogger())

	_, err := e.Extract(context.Background(), "SAP Export", schema.JobTypeSAP, schemaFor(t, schema.JobTypeSAP))
	kind, ok := KindOf(err)
	if !ok || kind != KindTimeout {
		t.Errorf("KindOf(err) = %v/%v, want timeout", kind, ok)
	}
	if !IsRecoverable(err) {
		t.Error("timeouts must be recoverable")
	}
}

func TestLLMExtractProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection refused")}
	e := NewLLMExtractor(provider, testLogger())

	_, err := e.Extract(context.Background(), "SAP Export", schema.JobTypeSAP, schemaFor(t, schema.JobTypeSAP))
	kind, ok := KindOf(err)
	if !ok || kind != KindUnavailable {
		t.Errorf("KindOf(err) = %v/%v, want unavailable", kind, ok)
	}
}

func TestLLMExtractPromptNamesSchemaParameters(t *testing.T) {
	provider := &fakeProvider{response: "[]"}
	e := NewLLMExtractor(provider, testLogger())

	_, err := e.Extract(context.Background(), "egal", schema.JobTypeFileTransfer, schemaFor(t, schema.JobTypeFileTransfer))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(provider.prompts) != 1 {
		t.Fatalf("provider called %d times, want 1", len(provider.prompts))
	}
	prompt := provider.prompts[0]
	for _, name := range []string{"source_system", "target_system", "protocol"} {
		if !strings.Contains(prompt, name) {
			t.Errorf("prompt does not mention %s", name)
		}
	}
}

func TestHybridExtractMergesByMaxConfidence(t *testing.T) {
	text := "Copy files from server PROD-DB01 to STAGING-ENV using SFTP protocol"
	// The fake model re-reports source_system weakly and adds file_pattern
	// knowledge the rules missed.
	provider := &fakeProvider{
		response: `[
			{"name":"source_system","value":"PROD-DB01","source_text":"PROD-DB01","start":23,"end":32,"confidence":0.5},
			{"name":"file_pattern","value":"*.csv","source_text":"files","start":5,"end":10,"confidence":0.6}
		]`,
	}
	h := NewHybridExtractor(NewRuleExtractor(testLogger()), NewLLMExtractor(provider, testLogger()), testLogger())

	res, err := h.Extract(context.Background(), text, schema.JobTypeFileTransfer, schemaFor(t, schema.JobTypeFileTransfer))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	src, ok := candidateByName(res, "source_system")
	if !ok {
		t.Fatal("source_system missing")
	}
	if src.Method != "rule" || src.Confidence != 0.9 {
		t.Errorf("source_system = %s/%.2f, want the stronger rule candidate", src.Method, src.Confidence)
	}

	fp, ok := candidateByName(res, "file_pattern")
	if !ok {
		t.Fatal("file_pattern missing")
	}
	if fp.Method != "llm" {
		t.Errorf("file_pattern Method = %q, want llm provenance", fp.Method)
	}
}

func TestHybridExtractPropagatesLLMFailure(t *testing.T) {
	provider := &fakeProvider{err: context.DeadlineExceeded}
	h := NewHybridExtractor(NewRuleExtractor(testLogger()), NewLLMExtractor(provider, testLogger()), testLogger())

	_, err := h.Extract(context.Background(), "System PA1_100", schema.JobTypeSAP, schemaFor(t, schema.JobTypeSAP))
	if kind, ok := KindOf(err); !ok || kind != KindTimeout {
		t.Errorf("KindOf(err) = %v/%v, want the timeout to abort the whole call", kind, ok)
	}
}
