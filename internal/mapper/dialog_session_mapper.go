package mapper

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"streamworks-assistant-be/internal/entity"
	"streamworks-assistant-be/internal/model"
)

type DialogSessionMapper struct{}

func NewDialogSessionMapper() *DialogSessionMapper {
	return &DialogSessionMapper{}
}

func (m *DialogSessionMapper) ToModel(s *entity.StreamWorksSession) (*model.DialogSession, error) {
	if s == nil {
		return nil, nil
	}
	detection, err := toJSON(s.Detection)
	if err != nil {
		return nil, fmt.Errorf("encode detection: %w", err)
	}
	streamParams, err := toJSON(s.StreamParameters)
	if err != nil {
		return nil, fmt.Errorf("encode stream parameters: %w", err)
	}
	jobParams, err := toJSON(s.JobParameters)
	if err != nil {
		return nil, fmt.Errorf("encode job parameters: %w", err)
	}
	criticalMissing, err := toJSON(s.CriticalMissing)
	if err != nil {
		return nil, fmt.Errorf("encode critical missing: %w", err)
	}
	validationErrors, err := toJSON(s.ValidationErrors)
	if err != nil {
		return nil, fmt.Errorf("encode validation errors: %w", err)
	}
	messages, err := toJSON(s.Messages)
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}
	return &model.DialogSession{
		Id:                   s.Id,
		JobType:              s.JobType,
		State:                string(s.State),
		CompletionPercentage: s.CompletionPercentage,
		Detection:            detection,
		StreamParameters:     streamParams,
		JobParameters:        jobParams,
		CriticalMissing:      criticalMissing,
		ValidationErrors:     validationErrors,
		Messages:             messages,
		CreatedAt:            s.CreatedAt,
		LastActivityAt:       s.LastActivityAt,
	}, nil
}

func (m *DialogSessionMapper) ToEntity(row *model.DialogSession) (*entity.StreamWorksSession, error) {
	if row == nil {
		return nil, nil
	}
	s := &entity.StreamWorksSession{
		Id:                   row.Id,
		JobType:              row.JobType,
		State:                entity.SessionState(row.State),
		CompletionPercentage: row.CompletionPercentage,
		StreamParameters:     map[string]*entity.SourceGroundedParameter{},
		JobParameters:        map[string]*entity.SourceGroundedParameter{},
		CreatedAt:            row.CreatedAt,
		LastActivityAt:       row.LastActivityAt,
	}
	if err := fromJSON(row.Detection, &s.Detection); err != nil {
		return nil, fmt.Errorf("decode detection: %w", err)
	}
	if err := fromJSON(row.StreamParameters, &s.StreamParameters); err != nil {
		return nil, fmt.Errorf("decode stream parameters: %w", err)
	}
	if err := fromJSON(row.JobParameters, &s.JobParameters); err != nil {
		return nil, fmt.Errorf("decode job parameters: %w", err)
	}
	if err := fromJSON(row.CriticalMissing, &s.CriticalMissing); err != nil {
		return nil, fmt.Errorf("decode critical missing: %w", err)
	}
	if err := fromJSON(row.ValidationErrors, &s.ValidationErrors); err != nil {
		return nil, fmt.Errorf("decode validation errors: %w", err)
	}
	if err := fromJSON(row.Messages, &s.Messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	if s.StreamParameters == nil {
		s.StreamParameters = map[string]*entity.SourceGroundedParameter{}
	}
	if s.JobParameters == nil {
		s.JobParameters = map[string]*entity.SourceGroundedParameter{}
	}
	return s, nil
}

func toJSON(v interface{}) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func fromJSON(raw datatypes.JSON, target interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, target)
}
