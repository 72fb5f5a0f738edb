package models

import (
	"time"
)

// UsageRecord tracks per-user generation usage. Free users are governed by
// the weekly window on LastGeneratedAt; paid users by AnimationsLeft.
type UsageRecord struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	IsPaidUser      bool       `gorm:"default:false" json:"is_paid_user"`
	AnimationsLeft  int        `gorm:"default:0" json:"animations_left"`
	LastGeneratedAt *time.Time `gorm:"type:timestamp;default:null" json:"last_generated_at,omitempty"`
	LastUsedAt      *time.Time `gorm:"type:timestamp;default:null" json:"last_used_at,omitempty"`
	LastResetAt     *time.Time `gorm:"type:timestamp;default:null" json:"last_reset_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
