package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/facemojo/facemojo/app/models"
)

// subscriptionPlanRepository implements the SubscriptionPlanRepository interface
type subscriptionPlanRepository struct {
	db *gorm.DB
}

// NewSubscriptionPlanRepository creates a new subscription plan repository instance
func NewSubscriptionPlanRepository(db *gorm.DB) SubscriptionPlanRepository {
	return &subscriptionPlanRepository{db: db}
}

// GetOrCreate returns the plan record for a user, defaulting to free
func (r *subscriptionPlanRepository) GetOrCreate(userID uint) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	if err := r.db.Where("user_id = ?", userID).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			plan = models.SubscriptionPlan{UserID: userID, PlanType: "free"}
			if err := r.db.Create(&plan).Error; err != nil {
				return nil, err
			}
			return &plan, nil
		}
		return nil, err
	}
	return &plan, nil
}

// Save persists the full plan record
func (r *subscriptionPlanRepository) Save(plan *models.SubscriptionPlan) error {
	return r.db.Save(plan).Error
}

// ListPaid returns all basic/pro plan records, used by the monthly reset
func (r *subscriptionPlanRepository) ListPaid() ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	err := r.db.Where("plan_type IN ?", []string{"basic", "pro"}).Find(&plans).Error
	return plans, err
}
