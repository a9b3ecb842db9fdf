// Package state owns the session lifecycle:
//
//	STREAM_CONFIGURATION -> PARAMETER_COLLECTION -> VALIDATION -> READY_FOR_XML -> COMPLETED
//
// Transitions are forward-only and guard-driven; the only way back is an
// explicit reset.
package state

import (
	"fmt"
	"log"

	"streamworks-assistant-be/internal/entity"
	"streamworks-assistant-be/pkg/dialog/classify"
	"streamworks-assistant-be/pkg/dialog/completion"
)

var order = map[entity.SessionState]int{
	entity.StateStreamConfiguration: 0,
	entity.StateParameterCollection: 1,
	entity.StateValidation:          2,
	entity.StateReadyForXML:         3,
	entity.StateCompleted:           4,
}

// Machine applies lifecycle transitions to sessions.
type Machine struct {
	logger *log.Logger
}

// NewMachine creates a state machine.
func NewMachine(logger *log.Logger) *Machine {
	return &Machine{logger: logger}
}

// Advance evaluates the transition guards against the current session and
// completion status and applies at most one forward step. It returns the
// resulting state and whether a transition happened. The final step to
// COMPLETED is driven by MarkGenerated, never by Advance.
func (m *Machine) Advance(sess *entity.StreamWorksSession, st completion.Status) (entity.SessionState, bool) {
	switch sess.State {
	case entity.StateStreamConfiguration:
		if sess.Detection != nil && sess.Detection.JobType != "" &&
			sess.Detection.Confidence >= classify.MediumConfidence {
			return m.apply(sess, entity.StateParameterCollection), true
		}
	case entity.StateParameterCollection:
		if st.CompletionPercentage >= 100 && len(st.CriticalMissing) == 0 {
			return m.apply(sess, entity.StateValidation), true
		}
	case entity.StateValidation:
		if len(sess.ValidationErrors) == 0 {
			return m.apply(sess, entity.StateReadyForXML), true
		}
	}
	return sess.State, false
}

// MarkGenerated records that the external generation collaborator reported
// success, completing the session. Only valid from READY_FOR_XML.
func (m *Machine) MarkGenerated(sess *entity.StreamWorksSession) error {
	if sess.State != entity.StateReadyForXML {
		return fmt.Errorf("cannot complete session in state %s: generation result is only accepted in %s",
			sess.State, entity.StateReadyForXML)
	}
	m.apply(sess, entity.StateCompleted)
	return nil
}

// ForceGeneration skips the remaining collection and validation guards and
// jumps straight to READY_FOR_XML. The skip is never silent.
func (m *Machine) ForceGeneration(sess *entity.StreamWorksSession) (entity.SessionState, bool) {
	if order[sess.State] >= order[entity.StateReadyForXML] {
		return sess.State, false
	}
	m.logger.Printf("[STATE] WARN force_generation override: %s -> %s for session %s",
		sess.State, entity.StateReadyForXML, sess.Id)
	sess.State = entity.StateReadyForXML
	return sess.State, true
}

// Reset returns the session to the initial state. This is the only backward
// transition and is always caller-triggered.
func (m *Machine) Reset(sess *entity.StreamWorksSession) {
	m.logger.Printf("[STATE] reset: %s -> %s for session %s",
		sess.State, entity.StateStreamConfiguration, sess.Id)
	sess.State = entity.StateStreamConfiguration
	sess.Detection = nil
	sess.JobType = ""
	sess.ValidationErrors = nil
	sess.CriticalMissing = nil
	sess.CompletionPercentage = 0
}

// apply performs a single forward step; backward or skipping moves are
// programming errors and are refused.
func (m *Machine) apply(sess *entity.StreamWorksSession, target entity.SessionState) entity.SessionState {
	if order[target] != order[sess.State]+1 {
		m.logger.Printf("[STATE] WARN refused transition %s -> %s for session %s",
			sess.State, target, sess.Id)
		return sess.State
	}
	m.logger.Printf("[STATE] %s -> %s for session %s", sess.State, target, sess.Id)
	sess.State = target
	return target
}
