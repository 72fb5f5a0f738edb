package models

import (
	"time"
)

// SubscriptionPlan holds the current plan per user. ExpireDate is only set
// for basic/pro plans (30 days after subscribing). The quota engine is the
// sole writer of this record.
type SubscriptionPlan struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UserID           uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	PlanType         string     `gorm:"type:varchar(20);not null;default:'free'" json:"plan_type"`
	SubscribeDate    *time.Time `gorm:"type:timestamp;default:null" json:"subscribe_date,omitempty"`
	ExpireDate       *time.Time `gorm:"type:timestamp;default:null" json:"expire_date,omitempty"`
	PaymentReference string     `gorm:"type:varchar(191);default:''" json:"payment_reference,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsExpired reports whether a paid plan has lapsed at the given instant.
func (p *SubscriptionPlan) IsExpired(now time.Time) bool {
	if p.PlanType != "basic" && p.PlanType != "pro" {
		return false
	}
	return p.ExpireDate != nil && p.ExpireDate.Before(now)
}
