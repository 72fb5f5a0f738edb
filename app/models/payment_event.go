package models

import "time"

// Payment provider constants
const (
	PaymentProviderCreem = "creem"
)

// PaymentEvent records a confirmed checkout exactly once. Plan activation is
// keyed on the provider payment id, which makes re-submitting the return-URL
// parameters a no-op.
type PaymentEvent struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Provider          string     `gorm:"type:varchar(20);not null;index:ux_payment_events_provider_payment,unique,priority:1" json:"provider"`
	ProviderPaymentID string     `gorm:"type:varchar(191);not null;index:ux_payment_events_provider_payment,unique,priority:2" json:"provider_payment_id"`
	UserID            uint       `gorm:"not null;index" json:"user_id"`
	PlanType          string     `gorm:"type:varchar(20);not null" json:"plan_type"`
	PayloadJSON       string     `gorm:"type:longtext" json:"payload_json"`
	ProcessedAt       *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError   string     `gorm:"type:text" json:"processing_error,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
