package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type DialogSession struct {
	Id                   uuid.UUID      `gorm:"type:uuid;primaryKey"`
	JobType              string         `gorm:"type:varchar(32);index"`
	State                string         `gorm:"type:varchar(32);not null"`
	CompletionPercentage float64        `gorm:"not null;default:0"`
	Detection            datatypes.JSON `gorm:"type:jsonb"`
	StreamParameters     datatypes.JSON `gorm:"type:jsonb"`
	JobParameters        datatypes.JSON `gorm:"type:jsonb"`
	CriticalMissing      datatypes.JSON `gorm:"type:jsonb"`
	ValidationErrors     datatypes.JSON `gorm:"type:jsonb"`
	Messages             datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt            time.Time      `gorm:"autoCreateTime"`
	LastActivityAt       time.Time      `gorm:"index"`
}

func (DialogSession) TableName() string {
	return "dialog_sessions"
}
