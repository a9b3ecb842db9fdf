package extraction

import (
	"context"
	"io"
	"log"
	"testing"

	"streamworks-assistant-be/pkg/dialog/schema"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func schemaFor(t *testing.T, jobType string) schema.JobSchema {
	t.Helper()
	sch, ok := schema.NewRegistry().Get(jobType)
	if !ok {
		t.Fatalf("no schema for %q", jobType)
	}
	return sch
}

func candidateByName(res *Result, name string) (Candidate, bool) {
	for _, c := range res.Candidates {
		if c.Name == name {
			return c, true
		}
	}
	return Candidate{}, false
}

func TestRuleExtractFileTransfer(t *testing.T) {
	r := NewRuleExtractor(testLogger())
	text := "Copy files from server PROD-DB01 to STAGING-ENV using SFTP protocol for *.csv files"

	res, err := r.Extract(context.Background(), text, schema.JobTypeFileTransfer, schemaFor(t, schema.JobTypeFileTransfer))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	want := map[string]string{
		"source_system": "PROD-DB01",
		"target_system": "STAGING-ENV",
		"protocol":      "SFTP",
		"file_pattern":  "*.csv",
	}
	for name, value := range want {
		c, ok := candidateByName(res, name)
		if !ok {
			t.Errorf("candidate %s missing", name)
			continue
		}
		if c.Value != value {
			t.Errorf("%s = %q, want %q", name, c.Value, value)
		}
		if got := text[c.Start:c.End]; got != c.SourceText {
			t.Errorf("%s: span [%d,%d) reproduces %q, not SourceText %q",
				name, c.Start, c.End, got, c.SourceText)
		}
		if c.Method != "rule" {
			t.Errorf("%s: Method = %q, want rule", name, c.Method)
		}
	}
}

func TestRuleExtractSAP(t *testing.T) {
	r := NewRuleExtractor(testLogger())
	text := "SAP Export aus System PA1_100 mit Report ZTV_001"

	res, err := r.Extract(context.Background(), text, schema.JobTypeSAP, schemaFor(t, schema.JobTypeSAP))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	system, ok := candidateByName(res, "system")
	if !ok {
		t.Fatal("candidate system missing")
	}
	if system.Value != "PA1_100" {
		t.Errorf("system = %q, want PA1_100", system.Value)
	}
	// The labeled form ("System PA1_100") outranks the bare pattern.
	if system.Confidence != 0.95 {
		t.Errorf("system confidence = %v, want 0.95 from the labeled rule", system.Confidence)
	}

	report, ok := candidateByName(res, "report")
	if !ok {
		t.Fatal("candidate report missing")
	}
	if report.Value != "ZTV_001" {
		t.Errorf("report = %q, want ZTV_001", report.Value)
	}
}

func TestRuleExtractCanonicalizesEnum(t *testing.T) {
	r := NewRuleExtractor(testLogger())
	text := "Dateien per sftp nach TARGET01 kopieren"

	res, err := r.Extract(context.Background(), text, schema.JobTypeFileTransfer, schemaFor(t, schema.JobTypeFileTransfer))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	proto, ok := candidateByName(res, "protocol")
	if !ok {
		t.Fatal("candidate protocol missing")
	}
	if proto.Value != "SFTP" {
		t.Errorf("protocol = %q, want the declared spelling SFTP", proto.Value)
	}
	if proto.SourceText != "sftp" {
		t.Errorf("SourceText = %q, want the literal match sftp", proto.SourceText)
	}
}

func TestRuleExtractSkipsUndeclaredParameters(t *testing.T) {
	r := NewRuleExtractor(testLogger())
	// SAP rules over a schema that only declares "system".
	sch := schema.JobSchema{
		JobType: schema.JobTypeSAP,
		Parameters: []schema.ParameterSpec{
			{Name: "system", Scope: "job", Kind: "string"},
		},
	}

	res, err := r.Extract(context.Background(), "System PA1_100 Report ZTV_001", schema.JobTypeSAP, sch)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if _, ok := candidateByName(res, "report"); ok {
		t.Error("report extracted although the schema does not declare it")
	}
	if _, ok := candidateByName(res, "system"); !ok {
		t.Error("system missing")
	}
}

func TestRuleExtractNoMatches(t *testing.T) {
	r := NewRuleExtractor(testLogger())

	res, err := r.Extract(context.Background(), "hallo welt", schema.JobTypeSAP, schemaFor(t, schema.JobTypeSAP))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Errorf("Candidates = %+v, want none", res.Candidates)
	}
}

func TestRuleExtractHonorsCancelledContext(t *testing.T) {
	r := NewRuleExtractor(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Extract(ctx, "System PA1_100", schema.JobTypeSAP, schemaFor(t, schema.JobTypeSAP))
	if err == nil {
		t.Error("Extract() with cancelled context succeeded, want error")
	}
}
