package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/facemojo/facemojo/app/models"
)

// usageRepository implements the UsageRepository interface
type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository creates a new usage repository instance
func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

// GetOrCreate returns the usage record for a user, creating an empty one
// for first-time users (no prior generation, not paid).
func (r *usageRepository) GetOrCreate(userID uint) (*models.UsageRecord, error) {
	var record models.UsageRecord
	if err := r.db.Where("user_id = ?", userID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			record = models.UsageRecord{UserID: userID}
			if err := r.db.Create(&record).Error; err != nil {
				return nil, err
			}
			return &record, nil
		}
		return nil, err
	}
	return &record, nil
}

// Save persists the full usage record
func (r *usageRepository) Save(record *models.UsageRecord) error {
	return r.db.Save(record).Error
}

// DecrementIfPositive atomically consumes one animation from a paid user's
// allocation. Returns false when the counter was already at zero, so a
// concurrent double-completion can never push it negative.
func (r *usageRepository) DecrementIfPositive(userID uint, at time.Time) (bool, error) {
	tx := r.db.Model(&models.UsageRecord{}).
		Where("user_id = ? AND animations_left > 0", userID).
		Updates(map[string]interface{}{
			"animations_left":   gorm.Expr("animations_left - 1"),
			"last_generated_at": at,
			"last_used_at":      at,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// MarkGenerated stamps the last generation time without touching the counter
func (r *usageRepository) MarkGenerated(userID uint, at time.Time) error {
	return r.db.Model(&models.UsageRecord{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"last_generated_at": at,
			"last_used_at":      at,
		}).Error
}

// ResetAllocation restores a paid user's monthly allocation and stamps the reset time
func (r *usageRepository) ResetAllocation(userID uint, allocation int, at time.Time) error {
	return r.db.Model(&models.UsageRecord{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"animations_left": allocation,
			"last_reset_at":   at,
		}).Error
}
