package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Animation statuses mirror the external prediction lifecycle. The local row
// is a read-through record of the external service's view plus bookkeeping
// about whether usage has been recorded for it.
const (
	AnimationStatusStarting   = "starting"
	AnimationStatusProcessing = "processing"
	AnimationStatusSucceeded  = "succeeded"
	AnimationStatusFailed     = "failed"
	AnimationStatusCanceled   = "canceled"
)

type Animation struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UUID         string         `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	UserID       uint           `gorm:"not null;index" json:"user_id"`
	PredictionID string         `gorm:"type:varchar(191);not null;uniqueIndex" json:"prediction_id"`
	Status       string         `gorm:"type:varchar(20);not null;default:'starting';index" json:"status"`
	OutputURL    string         `gorm:"type:text" json:"output_url,omitempty"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
	Title        string         `gorm:"type:varchar(150);default:'AI Animation'" json:"title"`
	ViewCount    uint           `gorm:"default:0" json:"view_count"`
	CompletedAt  *time.Time     `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate generates the public identifier
func (a *Animation) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == "" {
		a.UUID = uuid.New().String()
	}
	return nil
}

// IsTerminal reports whether no further status transitions can occur.
func (a *Animation) IsTerminal() bool {
	return IsTerminalAnimationStatus(a.Status)
}

func IsTerminalAnimationStatus(status string) bool {
	switch status {
	case AnimationStatusSucceeded, AnimationStatusFailed, AnimationStatusCanceled:
		return true
	default:
		return false
	}
}
