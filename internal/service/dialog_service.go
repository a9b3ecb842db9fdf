package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"streamworks-assistant-be/internal/dto"
	"streamworks-assistant-be/internal/entity"
	"streamworks-assistant-be/internal/pkg/logger"
	"streamworks-assistant-be/internal/repository/contract"
	"streamworks-assistant-be/pkg/dialog/classify"
	"streamworks-assistant-be/pkg/dialog/completion"
	"streamworks-assistant-be/pkg/dialog/correction"
	"streamworks-assistant-be/pkg/dialog/grounding"
	"streamworks-assistant-be/pkg/dialog/schema"
	"streamworks-assistant-be/pkg/dialog/state"
	"streamworks-assistant-be/pkg/events"
	"streamworks-assistant-be/pkg/extraction"
)

// Topics published on the in-process event bus and bridged to NATS.
const (
	TopicSessionReadyForXML = "dialog.session.ready_for_xml"
	TopicSessionCompleted   = "dialog.session.completed"
)

// IDialogService is the dialog engine facade. One ProcessMessage call is
// one dialog turn and is atomic: either the whole turn commits or the
// session is left exactly as it was.
//
// Turns for the same session id must be serialized by the caller; turns for
// different sessions may run in parallel.
type IDialogService interface {
	ProcessMessage(ctx context.Context, request *dto.ProcessMessageRequest) (*dto.TurnResponse, error)
	CorrectParameter(ctx context.Context, request *dto.CorrectionRequest) (*dto.CorrectionResult, error)
	GetSession(ctx context.Context, sessionId uuid.UUID) (*dto.SessionResponse, error)
	GetParametersForGeneration(ctx context.Context, sessionId uuid.UUID) (*dto.GenerationParametersResponse, error)
	SignalGenerationResult(ctx context.Context, sessionId uuid.UUID, request *dto.GenerationResultRequest) (*dto.SessionResponse, error)
	ResetSession(ctx context.Context, sessionId uuid.UUID) (*dto.SessionResponse, error)
}

// dialogService coordinates the domain components for one turn.
type dialogService struct {
	store      contract.SessionStore
	extractor  extraction.Extractor
	classifier *classify.Classifier
	registry   *schema.Registry
	tracker    *completion.Tracker
	corrector  *correction.Handler
	machine    *state.Machine
	publisher  message.Publisher
	logger     logger.ILogger

	extractTimeout time.Duration
}

// NewDialogService creates a dialog service with all domain components.
func NewDialogService(
	store contract.SessionStore,
	extractor extraction.Extractor,
	registry *schema.Registry,
	publisher message.Publisher,
	extractTimeout time.Duration,
	appLogger logger.ILogger,
) IDialogService {
	if extractTimeout <= 0 {
		extractTimeout = 30 * time.Second
	}
	// The reusable dialog packages log through the standard logger so they
	// stay free of the application logging wrapper.
	coreLog := log.New(os.Stdout, "", log.LstdFlags)
	return &dialogService{
		store:          store,
		extractor:      extractor,
		classifier:     classify.NewClassifier(coreLog),
		registry:       registry,
		tracker:        completion.NewTracker(registry),
		corrector:      correction.NewHandler(registry, coreLog),
		machine:        state.NewMachine(coreLog),
		publisher:      publisher,
		logger:         appLogger,
		extractTimeout: extractTimeout,
	}
}

// ProcessMessage runs one dialog turn: classify -> extract -> ground ->
// upsert -> validate -> recompute completion -> advance state. All
// mutations happen on a deep copy; the store sees the copy only after every
// step succeeded.
func (s *dialogService) ProcessMessage(ctx context.Context, request *dto.ProcessMessageRequest) (*dto.TurnResponse, error) {
	text := strings.TrimSpace(request.Message)
	if text == "" {
		return nil, fmt.Errorf("message must not be empty")
	}

	sess, created, err := s.loadOrCreate(ctx, request.SessionId)
	if err != nil {
		return nil, err
	}
	work := sess.Clone()
	work.LastActivityAt = time.Now()
	work.Messages = append(work.Messages, entity.DialogMessage{
		Role: "user", Content: text, CreatedAt: time.Now(),
	})

	var warnings []string

	// 1. Job type. A caller hint is an explicit override; otherwise the
	// classifier runs while the type is unset or below the high tier, and
	// a committed type is never downgraded.
	if request.JobTypeHint != "" {
		warnings = append(warnings, s.applyHint(work, request.JobTypeHint)...)
	} else if work.Detection == nil || work.Detection.Confidence < classify.HighConfidence {
		fresh := s.classifier.Classify(text)
		work.Detection = classify.Reconcile(work.Detection, fresh)
	}
	if work.Detection != nil {
		work.JobType = work.Detection.JobType
	}

	// 2. Extraction, bounded by the configured timeout. A timeout or
	// provider failure aborts the turn; the stored session is untouched.
	extractCtx, cancel := context.WithTimeout(ctx, s.extractTimeout)
	defer cancel()
	sch, ok := s.registry.Get(work.JobType)
	if !ok {
		sch, _ = s.registry.Get("")
	}
	extRes, err := s.extractor.Extract(extractCtx, text, work.JobType, sch)
	if err != nil {
		if extraction.IsRecoverable(err) {
			s.logger.Warn("DialogService", "Extraction failed, turn aborted", map[string]interface{}{
				"session_id": work.Id.String(),
				"error":      err.Error(),
			})
		}
		return nil, fmt.Errorf("extract parameters: %w", err)
	}
	warnings = append(warnings, extRes.Warnings...)

	// 3. Grounding validation and highlight merge.
	valid, ranges, groundWarnings := s.ground(text, extRes.Candidates)
	warnings = append(warnings, groundWarnings...)

	// 4. Upsert into the session. A user-confirmed parameter is never
	// overwritten by an equal-or-lower-confidence automatic extraction.
	for _, cand := range valid {
		warnings = append(warnings, s.upsert(work, sch, cand)...)
	}

	// 5. Schema validation of everything present.
	work.ValidationErrors = s.validate(work, sch)
	for _, ve := range work.ValidationErrors {
		warnings = append(warnings, ve)
	}

	// 6. Completion metrics and at most one state transition.
	status := s.tracker.Evaluate(work)
	work.CompletionPercentage = status.CompletionPercentage
	work.CriticalMissing = status.CriticalMissing

	if request.ForceGeneration {
		if _, forced := s.machine.ForceGeneration(work); forced {
			warnings = append(warnings, "force_generation override: collection and validation guards were skipped")
		}
	} else {
		s.machine.Advance(work, status)
	}

	reply := s.composeReply(work, status, len(valid))
	work.Messages = append(work.Messages, entity.DialogMessage{
		Role: "assistant", Content: reply, CreatedAt: time.Now(),
	})

	// 7. Commit.
	if err := s.store.Save(ctx, work); err != nil {
		return nil, fmt.Errorf("save session %s: %w", work.Id, err)
	}
	if created {
		s.logger.Info("DialogService", "Created session", map[string]interface{}{
			"session_id": work.Id.String(),
		})
	}
	if work.State == entity.StateReadyForXML && sess.State != entity.StateReadyForXML {
		s.publish(TopicSessionReadyForXML, events.NewSessionReadyForXML(work.Id, work.JobType))
	}

	resp := &dto.TurnResponse{
		SessionId:            work.Id,
		Message:              reply,
		State:                string(work.State),
		JobType:              detectionDTO(work.Detection),
		Parameters:           parameterDTOs(work),
		Missing:              emptyIfNil(status.Missing),
		CriticalMissing:      status.CriticalMissing,
		SuggestedQuestions:   status.Questions,
		CompletionPercentage: status.CompletionPercentage,
		HighlightedRanges:    ranges,
		Coverage:             grounding.Coverage(ranges, len(text)),
		ExtractionQuality:    qualityTier(work),
		Warnings:             warnings,
	}
	return resp, nil
}

// CorrectParameter applies a user edit. Corrections are authoritative:
// confidence is pinned to 1.0 and the parameter is marked user-confirmed.
func (s *dialogService) CorrectParameter(ctx context.Context, request *dto.CorrectionRequest) (*dto.CorrectionResult, error) {
	sess, err := s.store.Load(ctx, request.SessionId)
	if err != nil {
		return nil, err
	}
	work := sess.Clone()
	work.LastActivityAt = time.Now()

	res, err := s.corrector.Apply(work, request.ParameterName, request.OldValue, request.NewValue)
	if err != nil {
		return nil, err
	}

	// A corrected classification-relevant field may change the job type,
	// but only upward: Reconcile keeps a committed type unless the new
	// evidence is stronger.
	for _, affected := range res.AffectedParameters {
		if affected != "job_type" {
			continue
		}
		fresh := s.classifier.Classify(request.NewValue)
		work.Detection = classify.Reconcile(work.Detection, fresh)
		if work.Detection != nil && work.Detection.JobType != "" {
			work.JobType = work.Detection.JobType
		}
	}

	sch, ok := s.registry.Get(work.JobType)
	if !ok {
		sch, _ = s.registry.Get("")
	}
	work.ValidationErrors = s.validate(work, sch)
	status := s.tracker.Evaluate(work)
	work.CompletionPercentage = status.CompletionPercentage
	work.CriticalMissing = status.CriticalMissing
	s.machine.Advance(work, status)

	if err := s.store.Save(ctx, work); err != nil {
		return nil, fmt.Errorf("save session %s: %w", work.Id, err)
	}
	if work.State == entity.StateReadyForXML && sess.State != entity.StateReadyForXML {
		s.publish(TopicSessionReadyForXML, events.NewSessionReadyForXML(work.Id, work.JobType))
	}

	return &dto.CorrectionResult{
		SessionId:          work.Id,
		ParameterName:      res.Parameter.Name,
		UpdatedValue:       res.Parameter.Value.Raw(),
		Confidence:         res.Parameter.Confidence,
		NeedsRevalidation:  res.Parameter.NeedsRevalidation,
		AffectedParameters: res.AffectedParameters,
		Warnings:           res.Warnings,
	}, nil
}

func (s *dialogService) GetSession(ctx context.Context, sessionId uuid.UUID) (*dto.SessionResponse, error) {
	sess, err := s.store.Load(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	return s.sessionDTO(sess), nil
}

// GetParametersForGeneration exposes the merged parameter map to the
// downstream template renderer. Only meaningful once the session reached
// READY_FOR_XML.
func (s *dialogService) GetParametersForGeneration(ctx context.Context, sessionId uuid.UUID) (*dto.GenerationParametersResponse, error) {
	sess, err := s.store.Load(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if sess.State != entity.StateReadyForXML && sess.State != entity.StateCompleted {
		return nil, fmt.Errorf("session %s is in state %s, generation parameters are available from %s",
			sessionId, sess.State, entity.StateReadyForXML)
	}
	resp := &dto.GenerationParametersResponse{
		SessionId: sess.Id,
		JobType:   sess.JobType,
		Stream:    map[string]string{},
		Job:       map[string]string{},
	}
	for name, p := range sess.StreamParameters {
		resp.Stream[name] = p.Value.Raw()
	}
	for name, p := range sess.JobParameters {
		resp.Job[name] = p.Value.Raw()
	}
	return resp, nil
}

// SignalGenerationResult records the outcome reported by the external
// generation collaborator. Success completes the session.
func (s *dialogService) SignalGenerationResult(ctx context.Context, sessionId uuid.UUID, request *dto.GenerationResultRequest) (*dto.SessionResponse, error) {
	sess, err := s.store.Load(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	work := sess.Clone()
	work.LastActivityAt = time.Now()

	if request.Success {
		if err := s.machine.MarkGenerated(work); err != nil {
			return nil, err
		}
	} else {
		work.ValidationErrors = append(work.ValidationErrors, request.Errors...)
		s.logger.Error("DialogService", "Generation failed", map[string]interface{}{
			"session_id": work.Id.String(),
			"errors":     request.Errors,
		})
	}

	if err := s.store.Save(ctx, work); err != nil {
		return nil, fmt.Errorf("save session %s: %w", work.Id, err)
	}
	if work.State == entity.StateCompleted {
		s.publish(TopicSessionCompleted, events.NewSessionCompleted(work.Id, work.JobType))
	}
	return s.sessionDTO(work), nil
}

// ResetSession is the only backward transition: back to the initial state
// with classification cleared. The transcript is kept.
func (s *dialogService) ResetSession(ctx context.Context, sessionId uuid.UUID) (*dto.SessionResponse, error) {
	sess, err := s.store.Load(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	work := sess.Clone()
	work.LastActivityAt = time.Now()
	s.machine.Reset(work)
	if err := s.store.Save(ctx, work); err != nil {
		return nil, fmt.Errorf("save session %s: %w", work.Id, err)
	}
	return s.sessionDTO(work), nil
}

// --- turn internals ---

func (s *dialogService) loadOrCreate(ctx context.Context, id uuid.UUID) (*entity.StreamWorksSession, bool, error) {
	if id == uuid.Nil {
		return entity.NewStreamWorksSession(uuid.New()), true, nil
	}
	sess, err := s.store.Load(ctx, id)
	if err == contract.ErrSessionNotFound {
		// First message for a caller-chosen session id creates the session.
		return entity.NewStreamWorksSession(id), true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return sess, false, nil
}

func (s *dialogService) applyHint(work *entity.StreamWorksSession, hint string) []string {
	if _, known := s.registry.Get(hint); !known || hint == "" {
		return []string{fmt.Sprintf("ignoring unknown job type hint %q", hint)}
	}
	work.Detection = &entity.JobTypeDetection{
		JobType:    hint,
		Confidence: 1.0,
		Method:     "hint",
	}
	s.logger.Info("DialogService", "Job type set by caller hint", map[string]interface{}{
		"session_id": work.Id.String(),
		"job_type":   hint,
	})
	return nil
}

// ground validates candidate spans against the utterance and produces the
// merged highlight set. Invalid candidates are dropped, each with a
// warning; nothing disappears silently.
func (s *dialogService) ground(text string, cands []extraction.Candidate) ([]extraction.Candidate, []grounding.Range, []string) {
	var valid []extraction.Candidate
	var ranges []grounding.Range
	var warnings []string
	for _, c := range cands {
		if err := grounding.ValidateOffsets(c.Start, c.End, len(text)); err != nil {
			warnings = append(warnings, fmt.Sprintf("parameter %s dropped: %v", c.Name, err))
			continue
		}
		if text[c.Start:c.End] != c.SourceText {
			warnings = append(warnings, fmt.Sprintf(
				"parameter %s dropped: span [%d,%d) does not reproduce its source text", c.Name, c.Start, c.End))
			continue
		}
		valid = append(valid, c)
		ranges = append(ranges, grounding.Range{Start: c.Start, End: c.End, ParameterNames: []string{c.Name}})
	}
	return valid, grounding.MergeRanges(ranges), warnings
}

func (s *dialogService) upsert(work *entity.StreamWorksSession, sch schema.JobSchema, cand extraction.Candidate) []string {
	existing, ok := work.Parameter(cand.Name)
	if ok {
		if existing.UserConfirmed && cand.Confidence <= existing.Confidence {
			return []string{fmt.Sprintf(
				"parameter %s: automatic extraction (%.2f) does not override the confirmed value", cand.Name, cand.Confidence)}
		}
		if !existing.UserConfirmed && cand.Confidence <= existing.Confidence {
			return nil
		}
	}
	spec, hasSpec := sch.Spec(cand.Name)
	value := entity.StringValue(cand.Value)
	if hasSpec {
		value = coerce(spec, cand.Value)
	}
	work.Upsert(&entity.SourceGroundedParameter{
		Name:             cand.Name,
		Value:            value,
		Confidence:       cand.Confidence,
		SourceText:       cand.SourceText,
		Offsets:          &entity.Offsets{Start: cand.Start, End: cand.End},
		Scope:            cand.Scope,
		ExtractionMethod: cand.Method,
	})
	return nil
}

func (s *dialogService) validate(work *entity.StreamWorksSession, sch schema.JobSchema) []string {
	var errs []string
	for _, p := range work.MergedParameters() {
		spec, ok := sch.Spec(p.Name)
		if !ok {
			continue
		}
		if err := spec.Validate(p.Value); err != nil {
			p.NeedsReview = true
			errs = append(errs, err.Error())
			continue
		}
		if !p.UserConfirmed {
			p.NeedsReview = false
		}
	}
	sort.Strings(errs)
	return errs
}

func (s *dialogService) composeReply(work *entity.StreamWorksSession, status completion.Status, extracted int) string {
	var b strings.Builder
	if work.JobType == "" {
		b.WriteString("I couldn't determine the job type from your description yet. ")
		if work.Detection != nil && len(work.Detection.Alternatives) > 0 {
			var names []string
			for _, alt := range work.Detection.Alternatives {
				names = append(names, alt.JobType)
			}
			fmt.Fprintf(&b, "It could be one of: %s. ", strings.Join(names, ", "))
		}
		b.WriteString("Could you describe the automation task in more detail, e.g. whether it runs an SAP report, transfers files or executes a script?")
		return b.String()
	}

	fmt.Fprintf(&b, "Understood this as a %s job", work.JobType)
	if work.Detection != nil {
		fmt.Fprintf(&b, " (confidence %.0f%%)", work.Detection.Confidence*100)
	}
	if extracted > 0 {
		fmt.Fprintf(&b, " and captured %d parameter(s) from your message", extracted)
	}
	b.WriteString(". ")

	switch {
	case work.State == entity.StateReadyForXML:
		b.WriteString("All required parameters are present. The stream configuration can be generated now.")
	case work.State == entity.StateValidation && len(work.ValidationErrors) > 0:
		fmt.Fprintf(&b, "Please review: %s", strings.Join(work.ValidationErrors, "; "))
	case len(status.Questions) > 0:
		b.WriteString(status.Questions[0])
	default:
		fmt.Fprintf(&b, "Completion is at %.0f%%.", status.CompletionPercentage)
	}
	return b.String()
}

func (s *dialogService) publish(topic string, ev events.Event) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"type":        ev.EventType(),
		"payload":     ev.Payload(),
		"occurred_at": ev.Timestamp(),
	})
	if err != nil {
		s.logger.Warn("DialogService", "Failed to encode event", map[string]interface{}{
			"event_type": ev.EventType(),
			"error":      err.Error(),
		})
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := s.publisher.Publish(topic, msg); err != nil {
		s.logger.Warn("DialogService", "Failed to publish event", map[string]interface{}{
			"topic": topic,
			"error": err.Error(),
		})
	}
}

func (s *dialogService) sessionDTO(sess *entity.StreamWorksSession) *dto.SessionResponse {
	status := s.tracker.Evaluate(sess)
	return &dto.SessionResponse{
		SessionId:            sess.Id,
		State:                string(sess.State),
		JobType:              detectionDTO(sess.Detection),
		Parameters:           parameterDTOs(sess),
		Missing:              emptyIfNil(status.Missing),
		CompletionPercentage: sess.CompletionPercentage,
		ValidationErrors:     sess.ValidationErrors,
		CreatedAt:            sess.CreatedAt,
		LastActivityAt:       sess.LastActivityAt,
	}
}

// --- mapping helpers ---

func coerce(spec schema.ParameterSpec, raw string) entity.ParameterValue {
	switch spec.Kind {
	case entity.KindNumber:
		var n float64
		if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%g", &n); err == nil {
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

func detectionDTO(d *entity.JobTypeDetection) *dto.JobTypeDetectionDTO {
	if d == nil {
		return nil
	}
	return &dto.JobTypeDetectionDTO{
		JobType:      d.JobType,
		Confidence:   d.Confidence,
		SourceText:   d.SourceText,
		Offsets:      d.Offsets,
		Alternatives: d.Alternatives,
		Method:       d.Method,
	}
}

func parameterDTOs(sess *entity.StreamWorksSession) []dto.ParameterDTO {
	merged := sess.MergedParameters()
	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]dto.ParameterDTO, 0, len(names))
	for _, name := range names {
		p := merged[name]
		out = append(out, dto.ParameterDTO{
			Name:              p.Name,
			Value:             p.Value.Raw(),
			Kind:              string(p.Value.Kind),
			Confidence:        p.Confidence,
			SourceText:        p.SourceText,
			Offsets:           p.Offsets,
			Scope:             string(p.Scope),
			UserConfirmed:     p.UserConfirmed,
			NeedsRevalidation: p.NeedsRevalidation,
			NeedsReview:       p.NeedsReview,
			ExtractionMethod:  p.ExtractionMethod,
		})
	}
	return out
}

// qualityTier derives the extraction quality from the average confidence of
// the present parameters; any parameter flagged for review caps the tier.
func qualityTier(sess *entity.StreamWorksSession) string {
	merged := sess.MergedParameters()
	if len(merged) == 0 {
		return "low"
	}
	sum := 0.0
	review := false
	for _, p := range merged {
		sum += p.Confidence
		review = review || p.NeedsReview || p.NeedsRevalidation
	}
	if review {
		return "needs_review"
	}
	avg := sum / float64(len(merged))
	switch {
	case avg >= 0.8:
		return "high"
	case avg >= 0.55:
		return "medium"
	default:
		return "low"
	}
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
