package contract

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"streamworks-assistant-be/internal/entity"
)

// ErrSessionNotFound is surfaced directly to the caller; no fallback
// session is fabricated for an unknown id.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore is the persistence collaborator for dialog sessions. The
// engine is persistence-agnostic: memory, Redis and Postgres-backed
// implementations exist and are selected by configuration.
//
// Stores do not serialize concurrent turns for the same session id; the
// caller owns that (single writer per session).
type SessionStore interface {
	Load(ctx context.Context, id uuid.UUID) (*entity.StreamWorksSession, error)
	Save(ctx context.Context, sess *entity.StreamWorksSession) error
	Delete(ctx context.Context, id uuid.UUID) error
}
