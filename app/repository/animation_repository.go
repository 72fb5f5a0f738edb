package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/facemojo/facemojo/app/models"
)

// animationRepository implements the AnimationRepository interface
type animationRepository struct {
	db *gorm.DB
}

// NewAnimationRepository creates a new animation repository instance
func NewAnimationRepository(db *gorm.DB) AnimationRepository {
	return &animationRepository{db: db}
}

// Create creates a new animation record
func (r *animationRepository) Create(animation *models.Animation) error {
	return r.db.Create(animation).Error
}

// GetByUUID retrieves an animation by its public identifier
func (r *animationRepository) GetByUUID(uuid string) (*models.Animation, error) {
	var animation models.Animation
	err := r.db.Where("uuid = ?", uuid).First(&animation).Error
	if err != nil {
		return nil, err
	}
	return &animation, nil
}

// GetByPredictionID retrieves an animation by the external prediction id
func (r *animationRepository) GetByPredictionID(predictionID string) (*models.Animation, error) {
	var animation models.Animation
	err := r.db.Where("prediction_id = ?", predictionID).First(&animation).Error
	if err != nil {
		return nil, err
	}
	return &animation, nil
}

// GetByUserID lists a user's animations, newest first
func (r *animationRepository) GetByUserID(userID uint, offset, limit int) ([]models.Animation, error) {
	var animations []models.Animation
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&animations).Error
	return animations, err
}

// ListPendingOlderThan returns non-terminal animations created before the
// cutoff, used by the background reconciler.
func (r *animationRepository) ListPendingOlderThan(cutoff time.Time, limit int) ([]models.Animation, error) {
	var animations []models.Animation
	err := r.db.Where("status IN ? AND created_at < ?",
		[]string{models.AnimationStatusStarting, models.AnimationStatusProcessing}, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&animations).Error
	return animations, err
}

// FinalizeSuccess transitions an animation to succeeded exactly once.
// Returns false when the row was already terminal, so usage can never be
// recorded twice for the same job.
func (r *animationRepository) FinalizeSuccess(id uint, outputURL string, at time.Time) (bool, error) {
	tx := r.db.Model(&models.Animation{}).
		Where("id = ? AND status NOT IN ?", id, []string{
			models.AnimationStatusSucceeded,
			models.AnimationStatusFailed,
			models.AnimationStatusCanceled,
		}).
		Updates(map[string]interface{}{
			"status":       models.AnimationStatusSucceeded,
			"output_url":   outputURL,
			"completed_at": at,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// FinalizeFailure transitions an animation to failed/canceled exactly once
func (r *animationRepository) FinalizeFailure(id uint, status, errorMessage string, at time.Time) (bool, error) {
	if !models.IsTerminalAnimationStatus(status) || status == models.AnimationStatusSucceeded {
		status = models.AnimationStatusFailed
	}
	tx := r.db.Model(&models.Animation{}).
		Where("id = ? AND status NOT IN ?", id, []string{
			models.AnimationStatusSucceeded,
			models.AnimationStatusFailed,
			models.AnimationStatusCanceled,
		}).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errorMessage,
			"completed_at":  at,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// CountByUserID returns the number of animations a user has created
func (r *animationRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Animation{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
