package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"streamworks-assistant-be/internal/entity"
	"streamworks-assistant-be/internal/repository/contract"
)

func TestLoadUnknownSession(t *testing.T) {
	repo := NewSessionRepository(time.Hour)

	if _, err := repo.Load(context.Background(), uuid.New()); err != contract.ErrSessionNotFound {
		t.Fatalf("Load() error = %v, want ErrSessionNotFound", err)
	}
}

func TestSaveAndLoadDoNotAlias(t *testing.T) {
	repo := NewSessionRepository(time.Hour)
	ctx := context.Background()

	sess := entity.NewStreamWorksSession(uuid.New())
	sess.JobParameters["system"] = &entity.SourceGroundedParameter{
		Name:       "system",
		Value:      entity.StringValue("PA1_100"),
		Confidence: 0.95,
		Scope:      entity.ScopeJob,
	}
	if err := repo.Save(ctx, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Mutating the caller's aggregate after Save must not reach the store.
	sess.JobParameters["system"].Value = entity.StringValue("QA2_200")
	sess.State = entity.StateCompleted

	got, err := repo.Load(ctx, sess.Id)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if v := got.JobParameters["system"].Value.Raw(); v != "PA1_100" {
		t.Errorf("stored value = %q, want %q", v, "PA1_100")
	}
	if got.State != entity.StateStreamConfiguration {
		t.Errorf("stored state = %s, want %s", got.State, entity.StateStreamConfiguration)
	}

	// Mutating a loaded copy must not reach the store either.
	got.JobParameters["system"].Confidence = 0.1
	again, err := repo.Load(ctx, sess.Id)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if again.JobParameters["system"].Confidence != 0.95 {
		t.Errorf("stored confidence = %v, want 0.95", again.JobParameters["system"].Confidence)
	}
}

func TestDeleteRemovesSession(t *testing.T) {
	repo := NewSessionRepository(time.Hour)
	ctx := context.Background()

	sess := entity.NewStreamWorksSession(uuid.New())
	if err := repo.Save(ctx, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := repo.Delete(ctx, sess.Id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.Load(ctx, sess.Id); err != contract.ErrSessionNotFound {
		t.Fatalf("Load() after delete error = %v, want ErrSessionNotFound", err)
	}
}
