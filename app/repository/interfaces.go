package repository

import (
	"time"

	"github.com/facemojo/facemojo/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByProvider(provider, providerID string) (*models.User, error)
	Update(user *models.User) error
	TouchLastLogin(id uint, at time.Time) error
	Count() (int64, error)
}

// UsageRepository defines the interface for usage-record operations.
// DecrementIfPositive must be atomic at the store level so that two
// concurrent completions cannot drive the counter below zero.
type UsageRepository interface {
	GetOrCreate(userID uint) (*models.UsageRecord, error)
	Save(record *models.UsageRecord) error
	DecrementIfPositive(userID uint, at time.Time) (bool, error)
	MarkGenerated(userID uint, at time.Time) error
	ResetAllocation(userID uint, allocation int, at time.Time) error
}

// SubscriptionPlanRepository defines the interface for plan records
type SubscriptionPlanRepository interface {
	GetOrCreate(userID uint) (*models.SubscriptionPlan, error)
	Save(plan *models.SubscriptionPlan) error
	ListPaid() ([]models.SubscriptionPlan, error)
}

// AnimationRepository defines the interface for animation history rows
type AnimationRepository interface {
	Create(animation *models.Animation) error
	GetByUUID(uuid string) (*models.Animation, error)
	GetByPredictionID(predictionID string) (*models.Animation, error)
	GetByUserID(userID uint, offset, limit int) ([]models.Animation, error)
	ListPendingOlderThan(cutoff time.Time, limit int) ([]models.Animation, error)
	FinalizeSuccess(id uint, outputURL string, at time.Time) (bool, error)
	FinalizeFailure(id uint, status, errorMessage string, at time.Time) (bool, error)
	CountByUserID(userID uint) (int64, error)
}

// PaymentEventRepository persists confirmed checkouts idempotently
type PaymentEventRepository interface {
	CreateIfNotExists(event *models.PaymentEvent) (bool, *models.PaymentEvent, error)
	MarkProcessed(id uint, processingError string) error
}
