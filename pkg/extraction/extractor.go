// Package extraction defines the contract to the parameter-extraction
// collaborator and its rule-backed, LLM-backed and hybrid implementations.
// The engine treats the collaborator as replaceable: it only consumes raw
// candidates (value, source text, offsets, confidence).
package extraction

import (
	"context"
	"errors"
	"fmt"

	"streamworks-assistant-be/internal/entity"
	"streamworks-assistant-be/pkg/dialog/schema"
)

// Candidate is one raw extraction before grounding validation.
type Candidate struct {
	Name       string
	Value      string
	SourceText string
	Start      int
	End        int
	Confidence float64
	Scope      entity.ParameterScope
	Method     string
}

// Result carries the candidates of one extraction call plus the non-fatal
// issues encountered while producing them.
type Result struct {
	Candidates []Candidate
	Warnings   []string
}

// Extractor is the outbound collaborator contract. Implementations must
// honor ctx cancellation; the caller bounds every call with a timeout.
type Extractor interface {
	Extract(ctx context.Context, text, jobType string, sch schema.JobSchema) (*Result, error)
}

// ErrorKind tags extraction failures with the handling they require.
type ErrorKind string

const (
	// KindTimeout: the collaborator did not answer in time. Recoverable;
	// the turn aborts with the session unchanged and the caller may retry.
	KindTimeout ErrorKind = "timeout"
	// KindUnavailable: the collaborator failed outright. Handled like a
	// timeout: the turn aborts cleanly.
	KindUnavailable ErrorKind = "unavailable"
	// KindMalformed: the collaborator answered but the payload could not
	// be interpreted at all.
	KindMalformed ErrorKind = "malformed"
)

// Error is a tagged extraction failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with an extraction error kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the error kind, mapping context deadline expiry to
// KindTimeout. Returns false for non-extraction errors.
func KindOf(err error) (ErrorKind, bool) {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, true
	}
	return "", false
}

// IsRecoverable reports whether the turn may simply be retried by the
// caller after this error.
func IsRecoverable(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == KindTimeout || kind == KindUnavailable)
}
