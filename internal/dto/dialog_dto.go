package dto

import (
	"time"

	"github.com/google/uuid"

	"streamworks-assistant-be/internal/entity"
	"streamworks-assistant-be/pkg/dialog/grounding"
)

type ProcessMessageRequest struct {
	// SessionId is optional; a new session is created when absent.
	SessionId   uuid.UUID `json:"session_id,omitempty"`
	Message     string    `json:"message" validate:"required,min=1,max=4000"`
	JobTypeHint string    `json:"job_type_hint,omitempty"`
	// ForceGeneration skips the remaining collection/validation guards.
	// The skip is logged as a warning, never silent.
	ForceGeneration bool `json:"force_generation,omitempty"`
}

type ParameterDTO struct {
	Name              string          `json:"name"`
	Value             string          `json:"value"`
	Kind              string          `json:"kind"`
	Confidence        float64         `json:"confidence"`
	SourceText        string          `json:"source_text,omitempty"`
	Offsets           *entity.Offsets `json:"offsets,omitempty"`
	Scope             string          `json:"scope"`
	UserConfirmed     bool            `json:"user_confirmed"`
	NeedsRevalidation bool            `json:"needs_revalidation,omitempty"`
	NeedsReview       bool            `json:"needs_review,omitempty"`
	ExtractionMethod  string          `json:"extraction_method,omitempty"`
}

type JobTypeDetectionDTO struct {
	JobType      string                    `json:"job_type,omitempty"`
	Confidence   float64                   `json:"confidence"`
	SourceText   string                    `json:"source_text,omitempty"`
	Offsets      *entity.Offsets           `json:"offsets,omitempty"`
	Alternatives []entity.JobTypeCandidate `json:"alternatives,omitempty"`
	Method       string                    `json:"method,omitempty"`
}

type TurnResponse struct {
	SessionId            uuid.UUID            `json:"session_id"`
	Message              string               `json:"message"`
	State                string               `json:"state"`
	JobType              *JobTypeDetectionDTO `json:"job_type,omitempty"`
	Parameters           []ParameterDTO       `json:"parameters"`
	Missing              []string             `json:"missing"`
	CriticalMissing      []string             `json:"critical_missing,omitempty"`
	SuggestedQuestions   []string             `json:"suggested_questions,omitempty"`
	CompletionPercentage float64              `json:"completion_percentage"`
	HighlightedRanges    []grounding.Range    `json:"highlighted_ranges,omitempty"`
	Coverage             float64              `json:"coverage"`
	ExtractionQuality    string               `json:"extraction_quality"`
	Warnings             []string             `json:"warnings,omitempty"`
}

type CorrectionRequest struct {
	SessionId     uuid.UUID `json:"session_id" validate:"required"`
	ParameterName string    `json:"parameter_name" validate:"required"`
	OldValue      string    `json:"old_value,omitempty"`
	NewValue      string    `json:"new_value" validate:"required"`
}

type CorrectionResult struct {
	SessionId          uuid.UUID `json:"session_id"`
	ParameterName      string    `json:"parameter_name"`
	UpdatedValue       string    `json:"updated_value"`
	Confidence         float64   `json:"confidence"`
	NeedsRevalidation  bool      `json:"needs_revalidation"`
	AffectedParameters []string  `json:"affected_parameters,omitempty"`
	Warnings           []string  `json:"warnings,omitempty"`
}

type SessionResponse struct {
	SessionId            uuid.UUID            `json:"session_id"`
	State                string               `json:"state"`
	JobType              *JobTypeDetectionDTO `json:"job_type,omitempty"`
	Parameters           []ParameterDTO       `json:"parameters"`
	Missing              []string             `json:"missing"`
	CompletionPercentage float64              `json:"completion_percentage"`
	ValidationErrors     []string             `json:"validation_errors,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
	LastActivityAt       time.Time            `json:"last_activity_at"`
}

type GenerationParametersResponse struct {
	SessionId uuid.UUID         `json:"session_id"`
	JobType   string            `json:"job_type"`
	Stream    map[string]string `json:"stream"`
	Job       map[string]string `json:"job"`
}

type GenerationResultRequest struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`
}
