package entity

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle phase of a dialog session.
type SessionState string

const (
	StateStreamConfiguration SessionState = "STREAM_CONFIGURATION"
	StateParameterCollection SessionState = "PARAMETER_COLLECTION"
	StateValidation          SessionState = "VALIDATION"
	StateReadyForXML         SessionState = "READY_FOR_XML"
	StateCompleted           SessionState = "COMPLETED"
)

// ParameterScope distinguishes stream-level from job-level parameters.
type ParameterScope string

const (
	ScopeStream ParameterScope = "stream"
	ScopeJob    ParameterScope = "job"
)

// ValueKind tags the variant held by a ParameterValue.
type ValueKind string

const (
	KindString  ValueKind = "string"
	KindNumber  ValueKind = "number"
	KindBoolean ValueKind = "boolean"
	KindEnum    ValueKind = "enum"
)

// ParameterValue is a tagged variant. Exactly one of the payload fields is
// meaningful, selected by Kind.
type ParameterValue struct {
	Kind    ValueKind `json:"kind"`
	Str     string    `json:"str,omitempty"`
	Num     float64   `json:"num,omitempty"`
	Boolean bool      `json:"bool,omitempty"`
}

// Offsets is a half-open character span [Start, End) into the utterance
// that produced an extraction.
type Offsets struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// SourceGroundedParameter is one extracted parameter together with the
// evidence span that produced it.
type SourceGroundedParameter struct {
	Name              string         `json:"name"`
	Value             ParameterValue `json:"value"`
	Confidence        float64        `json:"confidence"`
	SourceText        string         `json:"source_text,omitempty"`
	Offsets           *Offsets       `json:"offsets,omitempty"`
	Scope             ParameterScope `json:"scope"`
	UserConfirmed     bool           `json:"user_confirmed"`
	NeedsRevalidation bool           `json:"needs_revalidation,omitempty"`
	NeedsReview       bool           `json:"needs_review,omitempty"`
	ExtractionMethod  string         `json:"extraction_method,omitempty"`
}

// JobTypeCandidate is one ranked alternative from a classification attempt.
type JobTypeCandidate struct {
	JobType    string  `json:"job_type"`
	Confidence float64 `json:"confidence"`
}

// JobTypeDetection is the outcome of one classification attempt.
// JobType is empty while the classifier is uncertain.
type JobTypeDetection struct {
	JobType         string             `json:"job_type,omitempty"`
	Confidence      float64            `json:"confidence"`
	SourceText      string             `json:"source_text,omitempty"`
	Offsets         *Offsets           `json:"offsets,omitempty"`
	Alternatives    []JobTypeCandidate `json:"alternatives,omitempty"`
	MatchedKeywords []string           `json:"matched_keywords,omitempty"`
	MatchedPatterns []string           `json:"matched_patterns,omitempty"`
	Method          string             `json:"method,omitempty"`
}

// DialogMessage is one entry of the ordered session transcript.
type DialogMessage struct {
	Role      string    `json:"role"` // "user" | "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// StreamWorksSession is the dialog session aggregate. It is owned by the
// dialog service; one turn mutates a deep copy and the store persists the
// copy only after the whole turn succeeded.
type StreamWorksSession struct {
	Id                   uuid.UUID
	JobType              string
	Detection            *JobTypeDetection
	State                SessionState
	StreamParameters     map[string]*SourceGroundedParameter
	JobParameters        map[string]*SourceGroundedParameter
	CriticalMissing      []string
	CompletionPercentage float64
	ValidationErrors     []string
	Messages             []DialogMessage
	CreatedAt            time.Time
	LastActivityAt       time.Time
}

// NewStreamWorksSession creates a fresh session in the initial state.
func NewStreamWorksSession(id uuid.UUID) *StreamWorksSession {
	now := time.Now()
	return &StreamWorksSession{
		Id:               id,
		State:            StateStreamConfiguration,
		StreamParameters: map[string]*SourceGroundedParameter{},
		JobParameters:    map[string]*SourceGroundedParameter{},
		CreatedAt:        now,
		LastActivityAt:   now,
	}
}

// Parameter returns the parameter with the given name from either scope.
func (s *StreamWorksSession) Parameter(name string) (*SourceGroundedParameter, bool) {
	if p, ok := s.StreamParameters[name]; ok {
		return p, true
	}
	if p, ok := s.JobParameters[name]; ok {
		return p, true
	}
	return nil, false
}

// Upsert stores the parameter in the map matching its scope, replacing any
// previous entry with the same name.
func (s *StreamWorksSession) Upsert(p *SourceGroundedParameter) {
	if p.Scope == ScopeStream {
		delete(s.JobParameters, p.Name)
		s.StreamParameters[p.Name] = p
		return
	}
	delete(s.StreamParameters, p.Name)
	s.JobParameters[p.Name] = p
}

// MergedParameters returns stream and job parameters as a single map.
// Job-scope entries win on a name collision.
func (s *StreamWorksSession) MergedParameters() map[string]*SourceGroundedParameter {
	merged := make(map[string]*SourceGroundedParameter, len(s.StreamParameters)+len(s.JobParameters))
	for k, v := range s.StreamParameters {
		merged[k] = v
	}
	for k, v := range s.JobParameters {
		merged[k] = v
	}
	return merged
}

// Clone produces a deep copy so a dialog turn can mutate freely and commit
// atomically.
func (s *StreamWorksSession) Clone() *StreamWorksSession {
	c := *s
	c.StreamParameters = cloneParameters(s.StreamParameters)
	c.JobParameters = cloneParameters(s.JobParameters)
	c.CriticalMissing = append([]string(nil), s.CriticalMissing...)
	c.ValidationErrors = append([]string(nil), s.ValidationErrors...)
	c.Messages = append([]DialogMessage(nil), s.Messages...)
	if s.Detection != nil {
		d := *s.Detection
		d.Alternatives = append([]JobTypeCandidate(nil), s.Detection.Alternatives...)
		d.MatchedKeywords = append([]string(nil), s.Detection.MatchedKeywords...)
		d.MatchedPatterns = append([]string(nil), s.Detection.MatchedPatterns...)
		if s.Detection.Offsets != nil {
			o := *s.Detection.Offsets
			d.Offsets = &o
		}
		c.Detection = &d
	}
	return &c
}

func cloneParameters(in map[string]*SourceGroundedParameter) map[string]*SourceGroundedParameter {
	out := make(map[string]*SourceGroundedParameter, len(in))
	for k, v := range in {
		p := *v
		if v.Offsets != nil {
			o := *v.Offsets
			p.Offsets = &o
		}
		out[k] = &p
	}
	return out
}

// StringValue builds a string-kind parameter value.
func StringValue(s string) ParameterValue {
	return ParameterValue{Kind: KindString, Str: s}
}

// NumberValue builds a number-kind parameter value.
func NumberValue(n float64) ParameterValue {
	return ParameterValue{Kind: KindNumber, Num: n}
}

// BoolValue builds a boolean-kind parameter value.
func BoolValue(b bool) ParameterValue {
	return ParameterValue{Kind: KindBoolean, Boolean: b}
}

// EnumValue builds an enum-kind parameter value.
func EnumValue(s string) ParameterValue {
	return ParameterValue{Kind: KindEnum, Str: s}
}

// Raw returns the value rendered as a plain string, independent of kind.
func (v ParameterValue) Raw() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.Boolean)
	default:
		return v.Str
	}
}
