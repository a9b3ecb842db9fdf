// Package completion derives the progress metrics that drive the dialog:
// completion percentage, missing required parameters and the next question
// to ask.
package completion

import (
	"streamworks-assistant-be/internal/entity"
	"streamworks-assistant-be/pkg/dialog/schema"
)

// MinConfidence is the floor below which an automatic extraction does not
// count as "present" for completion purposes. User-confirmed values always
// count.
const MinConfidence = 0.3

// Status is the completion snapshot for one session at one point in time.
type Status struct {
	CompletionPercentage float64
	Missing              []string // schema priority order
	CriticalMissing      []string
	NextParameter        string
	Questions            []string
}

// Tracker evaluates sessions against the job-type schema registry.
type Tracker struct {
	registry *schema.Registry
}

// NewTracker creates a tracker over the given registry.
func NewTracker(registry *schema.Registry) *Tracker {
	return &Tracker{registry: registry}
}

// Evaluate computes the completion status of a session. With no required
// parameters (unknown job type included) completion is 100 by definition.
func (t *Tracker) Evaluate(sess *entity.StreamWorksSession) Status {
	sch, ok := t.registry.Get(sess.JobType)
	if !ok {
		sch, _ = t.registry.Get("")
	}
	required := sch.Required()
	if len(required) == 0 {
		return Status{CompletionPercentage: 100}
	}

	st := Status{}
	for _, spec := range required {
		if t.present(sess, spec) {
			continue
		}
		st.Missing = append(st.Missing, spec.Name)
		if spec.Critical {
			st.CriticalMissing = append(st.CriticalMissing, spec.Name)
		}
		if len(st.Questions) < 3 {
			st.Questions = append(st.Questions, spec.QuestionText())
		}
	}
	st.CompletionPercentage = 100 * float64(len(required)-len(st.Missing)) / float64(len(required))
	if len(st.Missing) > 0 {
		st.NextParameter = st.Missing[0]
	}
	return st
}

func (t *Tracker) present(sess *entity.StreamWorksSession, spec schema.ParameterSpec) bool {
	var p *entity.SourceGroundedParameter
	var ok bool
	if spec.Scope == entity.ScopeStream {
		p, ok = sess.StreamParameters[spec.Name]
	} else {
		p, ok = sess.JobParameters[spec.Name]
	}
	if !ok {
		return false
	}
	return p.UserConfirmed || p.Confidence >= MinConfidence
}
