package implementation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"streamworks-assistant-be/internal/mapper"
	"streamworks-assistant-be/internal/model"
	"streamworks-assistant-be/internal/repository/contract"

	"streamworks-assistant-be/internal/entity"
)

type DialogSessionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.DialogSessionMapper
}

func NewDialogSessionRepository(db *gorm.DB) contract.SessionStore {
	return &DialogSessionRepositoryImpl{
		db:     db,
		mapper: mapper.NewDialogSessionMapper(),
	}
}

func (r *DialogSessionRepositoryImpl) Load(ctx context.Context, id uuid.UUID) (*entity.StreamWorksSession, error) {
	var row model.DialogSession
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, contract.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return r.mapper.ToEntity(&row)
}

func (r *DialogSessionRepositoryImpl) Save(ctx context.Context, sess *entity.StreamWorksSession) error {
	row, err := r.mapper.ToModel(sess)
	if err != nil {
		return err
	}
	// Upsert: a session row is written once per turn.
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.Id, err)
	}
	return nil
}

func (r *DialogSessionRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.DialogSession{}, "id = ?", id).Error
}
