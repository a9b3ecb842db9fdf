package classify

import (
	"io"
	"log"
	"testing"

	"streamworks-assistant-be/internal/entity"
	"streamworks-assistant-be/pkg/dialog/schema"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestClassifySAPUtterance(t *testing.T) {
	c := NewClassifier(testLogger())
	text := "SAP Export aus System PA1_100 mit Report ZTV_001"

	got := c.Classify(text)

	if got.JobType != schema.JobTypeSAP {
		t.Fatalf("JobType = %q, want %q", got.JobType, schema.JobTypeSAP)
	}
	if got.Confidence < HighConfidence {
		t.Errorf("Confidence = %.2f, want >= %.2f", got.Confidence, HighConfidence)
	}
	if got.Method != StrategyExact {
		t.Errorf("Method = %q, want %q", got.Method, StrategyExact)
	}
	if got.Offsets == nil {
		t.Fatal("Offsets = nil, want the evidence span")
	}
	if got.SourceText != text[got.Offsets.Start:got.Offsets.End] {
		t.Errorf("SourceText %q does not reproduce span [%d,%d)",
			got.SourceText, got.Offsets.Start, got.Offsets.End)
	}
	if got.SourceText != "SAP" {
		t.Errorf("SourceText = %q, want %q", got.SourceText, "SAP")
	}
}

func TestClassifyFileTransferUtterance(t *testing.T) {
	c := NewClassifier(testLogger())
	text := "Copy files from server PROD-DB01 to STAGING-ENV using SFTP protocol for *.csv files"

	got := c.Classify(text)

	if got.JobType != schema.JobTypeFileTransfer {
		t.Fatalf("JobType = %q, want %q", got.JobType, schema.JobTypeFileTransfer)
	}
	if got.Confidence < HighConfidence {
		t.Errorf("Confidence = %.2f, want >= %.2f", got.Confidence, HighConfidence)
	}
}

func TestClassifyUncertainUtterance(t *testing.T) {
	c := NewClassifier(testLogger())

	got := c.Classify("stream für datenverarbeitung")

	if got.JobType != "" {
		t.Fatalf("JobType = %q, want unresolved", got.JobType)
	}
	if got.Confidence >= MediumConfidence {
		t.Errorf("Confidence = %.2f, want < %.2f", got.Confidence, MediumConfidence)
	}
}

func TestClassifySpansStayValidWithMultibyteRunes(t *testing.T) {
	c := NewClassifier(testLogger())
	// U+023A lowercases to a rune with a longer UTF-8 encoding; evidence
	// spans must still index the original text, not its lowercase form.
	text := "Ⱥ Export: SAP System PA1_100"

	got := c.Classify(text)

	if got.JobType != schema.JobTypeSAP {
		t.Fatalf("JobType = %q, want %q", got.JobType, schema.JobTypeSAP)
	}
	if got.Offsets == nil {
		t.Fatal("Offsets = nil, want the evidence span")
	}
	if got.Offsets.Start < 0 || got.Offsets.End > len(text) || got.Offsets.Start >= got.Offsets.End {
		t.Fatalf("Offsets [%d,%d) do not validate against text of length %d",
			got.Offsets.Start, got.Offsets.End, len(text))
	}
	if got.SourceText != text[got.Offsets.Start:got.Offsets.End] {
		t.Errorf("SourceText %q does not reproduce span [%d,%d)",
			got.SourceText, got.Offsets.Start, got.Offsets.End)
	}
	if got.SourceText != "SAP" {
		t.Errorf("SourceText = %q, want %q", got.SourceText, "SAP")
	}
}

func TestFoldLowerKeepsByteOffsets(t *testing.T) {
	cases := []string{
		"SAP Export",
		"Ⱥ sap",        // lowercase form is longer
		"K sftp",       // Kelvin sign: lowercase form is shorter
		"Übertragung nach Ziel",
	}
	for _, text := range cases {
		if folded := foldLower(text); len(folded) != len(text) {
			t.Errorf("foldLower(%q) changed byte length: %d != %d", text, len(folded), len(text))
		}
	}
}

func TestClassifyWithoutProfiles(t *testing.T) {
	c := NewClassifierWith(nil, testLogger())

	got := c.Classify("SAP Export aus System PA1_100")

	if got == nil {
		t.Fatal("Classify() = nil, want an uncertain detection")
	}
	if got.JobType != "" || got.Confidence != 0 {
		t.Errorf("Classify() = %q/%.2f, want unresolved with zero confidence",
			got.JobType, got.Confidence)
	}
}

func TestClassifyAlternativesCapped(t *testing.T) {
	c := NewClassifier(testLogger())

	// Touches material from several profiles at once.
	got := c.Classify("sap script sftp batchlauf export execute files schedule")

	if len(got.Alternatives) > MaxAlternatives {
		t.Errorf("len(Alternatives) = %d, want <= %d", len(got.Alternatives), MaxAlternatives)
	}
	for i := 1; i < len(got.Alternatives); i++ {
		if got.Alternatives[i].Confidence > got.Alternatives[i-1].Confidence {
			t.Errorf("alternatives not ranked: %.2f before %.2f",
				got.Alternatives[i-1].Confidence, got.Alternatives[i].Confidence)
		}
	}
}

func TestClassifyStableOrderOnEqualConfidence(t *testing.T) {
	profiles := []Profile{
		{JobType: "FIRST", Keywords: []string{"foo"}, ContextTerms: []string{"baz"}},
		{JobType: "SECOND", Keywords: []string{"bar"}, ContextTerms: []string{"baz"}},
	}
	c := NewClassifierWith(profiles, testLogger())

	got := c.Classify("foo bar baz")

	// Identical evidence on both profiles: the earlier profile wins.
	if got.JobType != "FIRST" {
		t.Errorf("JobType = %q, want FIRST", got.JobType)
	}
}

func TestClassifyFuzzyToleratesTypo(t *testing.T) {
	c := NewClassifier(testLogger())

	// "transfr" is one edit from "transfer"; too weak on its own to
	// commit, but the transfer profile must lead the alternatives.
	got := c.Classify("bitte die datei übertragen via transfr")

	found := false
	if got.JobType == schema.JobTypeFileTransfer {
		found = true
	}
	for _, alt := range got.Alternatives {
		if alt.JobType == schema.JobTypeFileTransfer && alt.Confidence > 0 {
			found = true
		}
	}
	if !found {
		t.Errorf("file transfer evidence not picked up, got %+v", got)
	}
}

func TestReconcile(t *testing.T) {
	det := func(jobType string, conf float64) *entity.JobTypeDetection {
		return &entity.JobTypeDetection{JobType: jobType, Confidence: conf}
	}

	tests := []struct {
		name     string
		prior    *entity.JobTypeDetection
		fresh    *entity.JobTypeDetection
		wantType string
		wantConf float64
	}{
		{
			name:     "no prior takes fresh",
			prior:    nil,
			fresh:    det("SAP", 0.9),
			wantType: "SAP",
			wantConf: 0.9,
		},
		{
			name:     "unresolved prior takes fresh",
			prior:    det("", 0.3),
			fresh:    det("SAP", 0.7),
			wantType: "SAP",
			wantConf: 0.7,
		},
		{
			name:     "unresolved fresh keeps prior",
			prior:    det("SAP", 0.9),
			fresh:    det("", 0.2),
			wantType: "SAP",
			wantConf: 0.9,
		},
		{
			name:     "same type keeps higher confidence",
			prior:    det("SAP", 0.7),
			fresh:    det("SAP", 0.95),
			wantType: "SAP",
			wantConf: 0.95,
		},
		{
			name:     "same type never drops confidence",
			prior:    det("SAP", 0.95),
			fresh:    det("SAP", 0.7),
			wantType: "SAP",
			wantConf: 0.95,
		},
		{
			name:     "high prior beats different fresh",
			prior:    det("SAP", 0.9),
			fresh:    det("FILE_TRANSFER", 0.95),
			wantType: "SAP",
			wantConf: 0.9,
		},
		{
			name:     "medium prior yields to high fresh",
			prior:    det("SAP", 0.7),
			fresh:    det("FILE_TRANSFER", 0.9),
			wantType: "FILE_TRANSFER",
			wantConf: 0.9,
		},
		{
			name:     "medium prior beats weaker fresh",
			prior:    det("SAP", 0.7),
			fresh:    det("FILE_TRANSFER", 0.66),
			wantType: "SAP",
			wantConf: 0.7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.prior, tt.fresh)
			if got == nil {
				t.Fatal("Reconcile() = nil")
			}
			if got.JobType != tt.wantType || got.Confidence != tt.wantConf {
				t.Errorf("Reconcile() = %q/%.2f, want %q/%.2f",
					got.JobType, got.Confidence, tt.wantType, tt.wantConf)
			}
		})
	}
}

func TestEditBudget(t *testing.T) {
	tests := []struct {
		length int
		want   int
	}{
		{2, 0}, {3, 0}, {4, 1}, {6, 1}, {7, 2}, {12, 2},
	}
	for _, tt := range tests {
		if got := editBudget(tt.length); got != tt.want {
			t.Errorf("editBudget(%d) = %d, want %d", tt.length, got, tt.want)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"sap", "sap", 0},
		{"sap", "sab", 1},
		{"transfer", "transfr", 1},
		{"kopieren", "kopiren", 1},
		{"sftp", "ftp", 1},
		{"abc", "xyz", 3},
		{"über", "uber", 1},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestFindWordBoundaries(t *testing.T) {
	tests := []struct {
		name     string
		haystack string
		needle   string
		wantOk   bool
		wantFrom int
	}{
		{"standalone word", "run the sap export", "sap", true, 8},
		{"word at start", "sap export", "sap", true, 0},
		{"word at end", "export sap", "sap", true, 7},
		{"embedded in word", "saphire export", "sap", false, 0},
		{"embedded suffix", "the-resap job", "sap", false, 0},
		{"punctuation boundary", "export (sap) now", "sap", true, 8},
		{"second occurrence valid", "sapx sap", "sap", true, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, _, ok := findWord(tt.haystack, tt.needle)
			if ok != tt.wantOk {
				t.Fatalf("findWord ok = %v, want %v", ok, tt.wantOk)
			}
			if ok && start != tt.wantFrom {
				t.Errorf("findWord start = %d, want %d", start, tt.wantFrom)
			}
		})
	}
}
