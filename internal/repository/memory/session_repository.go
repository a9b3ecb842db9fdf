package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"streamworks-assistant-be/internal/entity"
	"streamworks-assistant-be/internal/repository/contract"
)

// SessionRepository keeps dialog sessions in process memory with a TTL.
// Sessions are deep-copied on the way in and out so a caller never aliases
// the stored aggregate.
type SessionRepository struct {
	cache *cache.Cache
}

var _ contract.SessionStore = &SessionRepository{}

// NewSessionRepository creates a store whose entries expire after ttl and
// which purges expired items every 10 minutes.
func NewSessionRepository(ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = 1 * time.Hour
	}
	return &SessionRepository{cache: cache.New(ttl, 10*time.Minute)}
}

func (r *SessionRepository) Load(ctx context.Context, id uuid.UUID) (*entity.StreamWorksSession, error) {
	if x, found := r.cache.Get(id.String()); found {
		return x.(*entity.StreamWorksSession).Clone(), nil
	}
	return nil, contract.ErrSessionNotFound
}

func (r *SessionRepository) Save(ctx context.Context, sess *entity.StreamWorksSession) error {
	r.cache.Set(sess.Id.String(), sess.Clone(), cache.DefaultExpiration)
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.cache.Delete(id.String())
	return nil
}
