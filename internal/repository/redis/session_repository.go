package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"streamworks-assistant-be/internal/entity"
	"streamworks-assistant-be/internal/repository/contract"
)

const keyPrefix = "sw:session:"

// SessionRepository persists dialog sessions as JSON blobs in Redis with a
// sliding TTL. Used when multiple backend instances share session state.
type SessionRepository struct {
	client *goredis.Client
	ttl    time.Duration
}

var _ contract.SessionStore = &SessionRepository{}

func NewSessionRepository(client *goredis.Client, ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = 1 * time.Hour
	}
	return &SessionRepository{client: client, ttl: ttl}
}

func (r *SessionRepository) Load(ctx context.Context, id uuid.UUID) (*entity.StreamWorksSession, error) {
	raw, err := r.client.Get(ctx, keyPrefix+id.String()).Bytes()
	if err == goredis.Nil {
		return nil, contract.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var sess entity.StreamWorksSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if sess.StreamParameters == nil {
		sess.StreamParameters = map[string]*entity.SourceGroundedParameter{}
	}
	if sess.JobParameters == nil {
		sess.JobParameters = map[string]*entity.SourceGroundedParameter{}
	}
	return &sess, nil
}

func (r *SessionRepository) Save(ctx context.Context, sess *entity.StreamWorksSession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.Id, err)
	}
	if err := r.client.Set(ctx, keyPrefix+sess.Id.String(), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", sess.Id, err)
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Del(ctx, keyPrefix+id.String()).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}
