// Package correction applies user edits to extracted parameters. A
// correction is authoritative: it pins confidence to 1.0 and marks the
// parameter user-confirmed, and it must either restore grounding from the
// original utterance or explicitly invalidate it.
package correction

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"streamworks-assistant-be/internal/entity"
	"streamworks-assistant-be/pkg/dialog/schema"
)

// ErrUnknownParameter is returned when a correction names a parameter the
// session has never seen and the active schema does not declare.
var ErrUnknownParameter = errors.New("unknown parameter")

func parseNumber(raw string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(raw), 64)
}

// Result reports the outcome of one correction.
type Result struct {
	Parameter *entity.SourceGroundedParameter
	// AffectedParameters names other parameters the caller should
	// re-examine; "job_type" signals that classification should be rerun.
	AffectedParameters []string
	Warnings           []string
}

// Handler applies corrections against a session.
type Handler struct {
	registry *schema.Registry
	logger   *log.Logger
}

// NewHandler creates a correction handler.
func NewHandler(registry *schema.Registry, logger *log.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// Apply replaces a parameter value on the session. The parameter is created
// when the schema knows the name but no extraction produced it yet.
// Grounding is recomputed from the most recent user message that contains
// the new value verbatim; otherwise offsets are cleared and the parameter is
// flagged for revalidation rather than given a fabricated span.
func (h *Handler) Apply(sess *entity.StreamWorksSession, name, oldValue, newValue string) (*Result, error) {
	sch, ok := h.registry.Get(sess.JobType)
	if !ok {
		sch, _ = h.registry.Get("")
	}
	spec, hasSpec := sch.Spec(name)

	param, exists := sess.Parameter(name)
	if !exists {
		if !hasSpec {
			return nil, fmt.Errorf("parameter %s: %w", name, ErrUnknownParameter)
		}
		param = &entity.SourceGroundedParameter{
			Name:  name,
			Scope: spec.Scope,
		}
	}

	res := &Result{Parameter: param}
	if exists && oldValue != "" && param.Value.Raw() != oldValue {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("correction for %s: stored value %q differs from reported old value %q",
				name, param.Value.Raw(), oldValue))
	}

	param.Value = coerceValue(spec, hasSpec, newValue)
	param.Confidence = 1.0
	param.UserConfirmed = true
	param.ExtractionMethod = "correction"
	param.NeedsReview = false

	if start, end, found := h.reground(sess, newValue); found {
		param.SourceText = newValue
		param.Offsets = &entity.Offsets{Start: start, End: end}
		param.NeedsRevalidation = false
	} else {
		param.SourceText = ""
		param.Offsets = nil
		param.NeedsRevalidation = true
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("correction for %s: value %q does not occur in the conversation, grounding cleared", name, newValue))
	}

	if hasSpec {
		if err := spec.Validate(param.Value); err != nil {
			param.NeedsReview = true
			res.Warnings = append(res.Warnings, err.Error())
		}
		if spec.ClassificationRelevant {
			res.AffectedParameters = append(res.AffectedParameters, "job_type")
		}
	}

	sess.Upsert(param)
	h.logger.Printf("[CORRECTION] %s: %q -> %q (regrounded=%t, affected=%v)",
		name, oldValue, newValue, !param.NeedsRevalidation, res.AffectedParameters)
	return res, nil
}

// reground searches the transcript, newest user message first, for a
// verbatim occurrence of the value.
func (h *Handler) reground(sess *entity.StreamWorksSession, value string) (int, int, bool) {
	if value == "" {
		return 0, 0, false
	}
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		msg := sess.Messages[i]
		if msg.Role != "user" {
			continue
		}
		if idx := strings.Index(msg.Content, value); idx >= 0 {
			return idx, idx + len(value), true
		}
	}
	return 0, 0, false
}

func coerceValue(spec schema.ParameterSpec, hasSpec bool, raw string) entity.ParameterValue {
	if !hasSpec {
		return entity.StringValue(raw)
	}
	switch spec.Kind {
	case entity.KindNumber:
		if n, err := parseNumber(raw); err == nil {
			return entity.NumberValue(n)
		}
	case entity.KindBoolean:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true", "yes", "ja", "1":
			return entity.BoolValue(true)
		case "false", "no", "nein", "0":
			return entity.BoolValue(false)
		}
	case entity.KindEnum:
		return entity.EnumValue(raw)
	}
	return entity.StringValue(raw)
}
