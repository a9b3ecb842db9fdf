// FILE: internal/service/generation_listener.go
package service

import (
	"context"
	"fmt"

	"streamworks-assistant-be/internal/dto"
	"streamworks-assistant-be/internal/pkg/logger"
	"streamworks-assistant-be/pkg/events"
	natsbus "streamworks-assistant-be/pkg/nats"

	"github.com/google/uuid"
)

// Subject and durable name for generation outcomes reported by the
// external XML renderer.
const (
	SubjectGenerationResult = "events.GENERATION_RESULT"
	durableGenerationResult = "dialog-generation-result"
)

// IGenerationListener consumes generation outcomes from the NATS bus and
// feeds them into the dialog engine, as an alternative to the HTTP
// generation-result endpoint.
type IGenerationListener interface {
	Start() error
}

type generationListener struct {
	subscriber *natsbus.Subscriber
	dialog     IDialogService
	logger     logger.ILogger
}

func NewGenerationListener(
	subscriber *natsbus.Subscriber,
	dialog IDialogService,
	appLogger logger.ILogger,
) IGenerationListener {
	return &generationListener{
		subscriber: subscriber,
		dialog:     dialog,
		logger:     appLogger,
	}
}

func (l *generationListener) Start() error {
	return l.subscriber.Subscribe(SubjectGenerationResult, durableGenerationResult, l.handle)
}

func (l *generationListener) handle(ctx context.Context, ev events.Event) error {
	payload := ev.Payload()

	rawId, _ := payload["session_id"].(string)
	sessionId, err := uuid.Parse(rawId)
	if err != nil {
		// Unparseable ids are dropped, not retried.
		l.logger.Warn("GenerationListener", "Dropping result with invalid session id", map[string]interface{}{
			"session_id": rawId,
		})
		return nil
	}

	success, _ := payload["success"].(bool)
	var errs []string
	if rawErrs, ok := payload["errors"].([]interface{}); ok {
		for _, e := range rawErrs {
			if s, ok := e.(string); ok {
				errs = append(errs, s)
			}
		}
	}

	_, err = l.dialog.SignalGenerationResult(ctx, sessionId, &dto.GenerationResultRequest{
		Success: success,
		Errors:  errs,
	})
	if err != nil {
		return fmt.Errorf("apply generation result for session %s: %w", sessionId, err)
	}

	l.logger.Info("GenerationListener", "Applied generation result", map[string]interface{}{
		"session_id": sessionId.String(),
		"success":    success,
	})
	return nil
}
