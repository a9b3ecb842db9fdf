package service

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamworks-assistant-be/internal/dto"
	"streamworks-assistant-be/internal/entity"
	"streamworks-assistant-be/internal/repository/contract"
	"streamworks-assistant-be/internal/repository/memory"
	"streamworks-assistant-be/pkg/dialog/schema"
	"streamworks-assistant-be/pkg/extraction"
)

// nopLogger satisfies logger.ILogger without output.
type nopLogger struct{}

func (nopLogger) Debug(module, message string, details map[string]interface{}) {}
func (nopLogger) Info(module, message string, details map[string]interface{})  {}
func (nopLogger) Warn(module, message string, details map[string]interface{})  {}
func (nopLogger) Error(module, message string, details map[string]interface{}) {}
func (nopLogger) Sync() error                                                  { return nil }

func newCoreTestLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestService(store contract.SessionStore, extractor extraction.Extractor) IDialogService {
	return NewDialogService(store, extractor, schema.NewRegistry(), nil, 5*time.Second, nopLogger{})
}

func newRuleService(store contract.SessionStore) IDialogService {
	return newTestService(store, extraction.NewRuleExtractor(newCoreTestLogger()))
}

func TestProcessMessageFileTransferEndToEnd(t *testing.T) {
	store := memory.NewSessionRepository(time.Hour)
	svc := newRuleService(store)
	ctx := context.Background()

	text := "Create stream nightly-sync: Copy files from server PROD-DB01 to STAGING-ENV using SFTP protocol for *.csv files"
	res, err := svc.ProcessMessage(ctx, &dto.ProcessMessageRequest{Message: text})
	require.NoError(t, err)

	require.NotNil(t, res.JobType)
	assert.Equal(t, schema.JobTypeFileTransfer, res.JobType.JobType)
	assert.GreaterOrEqual(t, res.JobType.Confidence, 0.85)

	byName := map[string]dto.ParameterDTO{}
	for _, p := range res.Parameters {
		byName[p.Name] = p
	}
	for name, want := range map[string]string{
		"stream_name":   "nightly-sync",
		"source_system": "PROD-DB01",
		"target_system": "STAGING-ENV",
		"protocol":      "SFTP",
		"file_pattern":  "*.csv",
	} {
		require.Contains(t, byName, name)
		assert.Equal(t, want, byName[name].Value, name)
	}

	// Every reported parameter span reproduces its source text.
	for _, p := range res.Parameters {
		if p.Offsets != nil {
			assert.Equal(t, p.SourceText, text[p.Offsets.Start:p.Offsets.End], p.Name)
		}
	}

	assert.Equal(t, 100.0, res.CompletionPercentage)
	assert.Empty(t, res.Missing)
	assert.Greater(t, res.Coverage, 0.0)
	assert.LessOrEqual(t, res.Coverage, 1.0)
	assert.Equal(t, string(entity.StateParameterCollection), res.State)

	// Guards pass one transition per turn: two follow-up turns reach
	// READY_FOR_XML.
	res, err = svc.ProcessMessage(ctx, &dto.ProcessMessageRequest{SessionId: res.SessionId, Message: "passt so"})
	require.NoError(t, err)
	assert.Equal(t, string(entity.StateValidation), res.State)

	res, err = svc.ProcessMessage(ctx, &dto.ProcessMessageRequest{SessionId: res.SessionId, Message: "weiter bitte"})
	require.NoError(t, err)
	assert.Equal(t, string(entity.StateReadyForXML), res.State)
}

func TestProcessMessageUncertainStaysUnclassified(t *testing.T) {
	store := memory.NewSessionRepository(time.Hour)
	svc := newRuleService(store)

	res, err := svc.ProcessMessage(context.Background(), &dto.ProcessMessageRequest{
		Message: "stream für datenverarbeitung",
	})
	require.NoError(t, err)

	require.NotNil(t, res.JobType)
	assert.Empty(t, res.JobType.JobType)
	assert.Equal(t, string(entity.StateStreamConfiguration), res.State)
}

func TestProcessMessageJobTypeHint(t *testing.T) {
	store := memory.NewSessionRepository(time.Hour)
	svc := newRuleService(store)

	res, err := svc.ProcessMessage(context.Background(), &dto.ProcessMessageRequest{
		Message:     "irgendein lauf",
		JobTypeHint: schema.JobTypeSAP,
	})
	require.NoError(t, err)

	require.NotNil(t, res.JobType)
	assert.Equal(t, schema.JobTypeSAP, res.JobType.JobType)
	assert.Equal(t, 1.0, res.JobType.Confidence)

	// Unknown hints are ignored with a warning, not an error.
	res2, err := svc.ProcessMessage(context.Background(), &dto.ProcessMessageRequest{
		Message:     "irgendein lauf",
		JobTypeHint: "NO_SUCH_TYPE",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res2.Warnings)
}

func TestProcessMessageNeverDowngradesJobType(t *testing.T) {
	store := memory.NewSessionRepository(time.Hour)
	svc := newRuleService(store)
	ctx := context.Background()

	res, err := svc.ProcessMessage(ctx, &dto.ProcessMessageRequest{
		Message: "SAP Export aus System PA1_100 mit Report ZTV_001",
	})
	require.NoError(t, err)
	require.Equal(t, schema.JobTypeSAP, res.JobType.JobType)

	// A later ambiguous message must not displace the committed type.
	res, err = svc.ProcessMessage(ctx, &dto.ProcessMessageRequest{
		SessionId: res.SessionId,
		Message:   "füge noch eine datei kopieren aufgabe hinzu",
	})
	require.NoError(t, err)
	assert.Equal(t, schema.JobTypeSAP, res.JobType.JobType)
}

// failingStore rejects every save.
type failingStore struct {
	contract.SessionStore
}

func (f *failingStore) Save(ctx context.Context, sess *entity.StreamWorksSession) error {
	return errors.New("disk full")
}

func TestProcessMessageAtomicOnSaveFailure(t *testing.T) {
	inner := memory.NewSessionRepository(time.Hour)
	svc := newRuleService(&failingStore{SessionStore: inner})

	sessionId := uuid.New()
	_, err := svc.ProcessMessage(context.Background(), &dto.ProcessMessageRequest{
		SessionId: sessionId,
		Message:   "SAP Export aus System PA1_100",
	})
	require.Error(t, err)

	// Nothing was committed.
	_, loadErr := inner.Load(context.Background(), sessionId)
	assert.ErrorIs(t, loadErr, contract.ErrSessionNotFound)
}

// failingExtractor simulates a collaborator outage.
type failingExtractor struct{}

func (failingExtractor) Extract(ctx context.Context, text, jobType string, sch schema.JobSchema) (*extraction.Result, error) {
	return nil, extraction.NewError(extraction.KindTimeout, context.DeadlineExceeded)
}

func TestProcessMessageAtomicOnExtractionFailure(t *testing.T) {
	store := memory.NewSessionRepository(time.Hour)
	ruleSvc := newRuleService(store)
	ctx := context.Background()

	res, err := ruleSvc.ProcessMessage(ctx, &dto.ProcessMessageRequest{
		Message: "SAP Export aus System PA1_100",
	})
	require.NoError(t, err)
	before, err := store.Load(ctx, res.SessionId)
	require.NoError(t, err)

	brokenSvc := newTestService(store, failingExtractor{})
	_, err = brokenSvc.ProcessMessage(ctx, &dto.ProcessMessageRequest{
		SessionId: res.SessionId,
		Message:   "mit Report ZTV_001",
	})
	require.Error(t, err)
	assert.True(t, extraction.IsRecoverable(err))

	// The stored session is exactly as it was before the failed turn.
	after, err := store.Load(ctx, res.SessionId)
	require.NoError(t, err)
	assert.Equal(t, len(before.Messages), len(after.Messages))
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, len(before.JobParameters), len(after.JobParameters))
}

func TestCorrectParameterConfirmsAndProtects(t *testing.T) {
	store := memory.NewSessionRepository(time.Hour)
	svc := newRuleService(store)
	ctx := context.Background()

	res, err := svc.ProcessMessage(ctx, &dto.ProcessMessageRequest{
		Message: "SAP Export aus System PA1_100 mit Report ZTV_001",
	})
	require.NoError(t, err)

	corr, err := svc.CorrectParameter(ctx, &dto.CorrectionRequest{
		SessionId:     res.SessionId,
		ParameterName: "report",
		OldValue:      "ZTV_001",
		NewValue:      "ZTV_002",
	})
	require.NoError(t, err)
	assert.Equal(t, "ZTV_002", corr.UpdatedValue)
	assert.Equal(t, 1.0, corr.Confidence)
	// "ZTV_002" never occurred in the conversation.
	assert.True(t, corr.NeedsRevalidation)
	assert.Contains(t, corr.AffectedParameters, "job_type")

	// A later automatic extraction must not override the confirmed value.
	turn, err := svc.ProcessMessage(ctx, &dto.ProcessMessageRequest{
		SessionId: res.SessionId,
		Message:   "nochmal mit Report ZTV_009 bitte",
	})
	require.NoError(t, err)
	for _, p := range turn.Parameters {
		if p.Name == "report" {
			assert.Equal(t, "ZTV_002", p.Value)
			assert.True(t, p.UserConfirmed)
		}
	}
	assert.NotEmpty(t, turn.Warnings)
}

func TestGenerationLifecycle(t *testing.T) {
	store := memory.NewSessionRepository(time.Hour)
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NewStdLogger(false, false))
	svc := NewDialogService(store, extraction.NewRuleExtractor(newCoreTestLogger()),
		schema.NewRegistry(), pubSub, 5*time.Second, nopLogger{})
	ctx := context.Background()

	readyMsgs, err := pubSub.Subscribe(ctx, TopicSessionReadyForXML)
	require.NoError(t, err)

	res, err := svc.ProcessMessage(ctx, &dto.ProcessMessageRequest{
		Message: "Create stream nightly-sync: Copy files from server PROD-DB01 to STAGING-ENV using SFTP protocol",
	})
	require.NoError(t, err)

	// Parameters are not available before READY_FOR_XML.
	_, err = svc.GetParametersForGeneration(ctx, res.SessionId)
	require.Error(t, err)

	// Force past the remaining guards, as the UI does on user request.
	res, err = svc.ProcessMessage(ctx, &dto.ProcessMessageRequest{
		SessionId:       res.SessionId,
		Message:         "einfach generieren",
		ForceGeneration: true,
	})
	require.NoError(t, err)
	require.Equal(t, string(entity.StateReadyForXML), res.State)

	select {
	case msg := <-readyMsgs:
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("no ready event published")
	}

	params, err := svc.GetParametersForGeneration(ctx, res.SessionId)
	require.NoError(t, err)
	assert.Equal(t, "nightly-sync", params.Stream["stream_name"])
	assert.Equal(t, "PROD-DB01", params.Job["source_system"])

	// A failure report keeps the session open.
	sess, err := svc.SignalGenerationResult(ctx, res.SessionId, &dto.GenerationResultRequest{
		Success: false, Errors: []string{"template rejected"},
	})
	require.NoError(t, err)
	assert.Equal(t, string(entity.StateReadyForXML), sess.State)
	assert.Contains(t, sess.ValidationErrors, "template rejected")

	// Success completes it.
	sess, err = svc.SignalGenerationResult(ctx, res.SessionId, &dto.GenerationResultRequest{Success: true})
	require.NoError(t, err)
	assert.Equal(t, string(entity.StateCompleted), sess.State)
}

func TestResetSession(t *testing.T) {
	store := memory.NewSessionRepository(time.Hour)
	svc := newRuleService(store)
	ctx := context.Background()

	res, err := svc.ProcessMessage(ctx, &dto.ProcessMessageRequest{
		Message: "SAP Export aus System PA1_100 mit Report ZTV_001",
	})
	require.NoError(t, err)

	sess, err := svc.ResetSession(ctx, res.SessionId)
	require.NoError(t, err)
	assert.Equal(t, string(entity.StateStreamConfiguration), sess.State)
	assert.Nil(t, sess.JobType)
	// Collected parameters survive the reset.
	assert.NotEmpty(t, sess.Parameters)
}

func TestGetSessionUnknownId(t *testing.T) {
	svc := newRuleService(memory.NewSessionRepository(time.Hour))

	_, err := svc.GetSession(context.Background(), uuid.New())
	assert.ErrorIs(t, err, contract.ErrSessionNotFound)
}

func TestProcessMessageRejectsEmptyMessage(t *testing.T) {
	svc := newRuleService(memory.NewSessionRepository(time.Hour))

	_, err := svc.ProcessMessage(context.Background(), &dto.ProcessMessageRequest{Message: "   "})
	assert.Error(t, err)
}
