package controllers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/facemojo/facemojo/app/models"
	"github.com/facemojo/facemojo/app/repository"
	"github.com/facemojo/facemojo/internal/pkg/cache"
	"github.com/facemojo/facemojo/internal/pkg/generation"
	"github.com/facemojo/facemojo/internal/pkg/metrics/counter"
	"github.com/facemojo/facemojo/internal/pkg/quota"
)

const defaultAnimationPageSize = 20

var (
	generationClient *generation.Client
	generationPoller *generation.Poller
	generationOnce   sync.Once
)

func getGenerationClient() *generation.Client {
	generationOnce.Do(func() {
		generationClient = generation.NewClientFromEnv()
		generationPoller = generation.NewPollerFromEnv(generationClient)
	})
	return generationClient
}

func getGenerationPoller() *generation.Poller {
	getGenerationClient()
	return generationPoller
}

// getQuotaService and animationRepo are vars so tests can swap in fakes.
var getQuotaService = func() *quota.Service {
	factory := repository.GetGlobalFactory()
	return quota.NewService(factory.GetUsageRepository(), factory.GetPlanRepository())
}

var animationRepo = func() repository.AnimationRepository {
	return repository.GetGlobalFactory().GetAnimationRepository()
}

type createAnimationRequest struct {
	Image string `json:"image"`
	Video string `json:"video"`
	Title string `json:"title"`
}

// HandleCreateAnimation checks quota and forwards a new generation job to the
// external service. The animation row is created in the starting state; usage
// is consumed later, when the job is first observed succeeded.
func HandleCreateAnimation(c *fiber.Ctx) error {
	userID := currentUserID(c)

	var req createAnimationRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Request body must be valid JSON")
	}

	decision, err := getQuotaService().CanGenerate(c.Context(), userID)
	if err != nil {
		log.Errorf("animation: quota check for user %d failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Quota check failed")
	}
	if !decision.Allowed {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":     "quota_exceeded",
			"message":   quotaMessage(decision.Reason),
			"reason":    decision.Reason,
			"plan":      decision.Plan,
			"remaining": decision.Remaining,
		})
	}

	prediction, err := getGenerationClient().CreatePrediction(c.Context(), req.Image, req.Video)
	if err != nil {
		return generationErrorResponse(c, err)
	}

	title := strings.TrimSpace(req.Title)
	animation := &models.Animation{
		UserID:       userID,
		PredictionID: prediction.ID,
		Status:       normalizeAnimationStatus(prediction.Status),
	}
	if title != "" {
		animation.Title = title
	}
	if err := animationRepo().Create(animation); err != nil {
		// Without the row the client has no uuid to poll and no success can
		// ever be reconciled or charged, so the submission fails here.
		log.Errorf("animation: persisting job %s failed: %v", prediction.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "The job could not be recorded; please retry")
	}

	return c.Status(fiber.StatusCreated).JSON(animationResponse(animation, prediction))
}

// HandleGetAnimation returns the current state of one animation, re-fetched
// from the external service while the job is still running.
func HandleGetAnimation(c *fiber.Ctx) error {
	animation, err := loadOwnAnimation(c)
	if err != nil {
		return err
	}

	if animation.IsTerminal() {
		if animation.Status == models.AnimationStatusSucceeded {
			if err := counter.AddAnimationView(animation.ID); err != nil {
				log.Debugf("animation: counting view for %s failed: %v", animation.UUID, err)
			}
		}
		return c.JSON(animationResponse(animation, nil))
	}

	prediction, err := getGenerationClient().GetPrediction(c.Context(), animation.PredictionID)
	if err != nil {
		return generationErrorResponse(c, err)
	}

	finalizeObserved(c.Context(), animation, prediction)
	return c.JSON(animationResponse(animation, prediction))
}

// HandleWaitAnimation blocks until the job reaches a terminal state, the
// attempt budget runs out, or the client disconnects.
func HandleWaitAnimation(c *fiber.Ctx) error {
	animation, err := loadOwnAnimation(c)
	if err != nil {
		return err
	}

	if animation.IsTerminal() {
		return c.JSON(animationResponse(animation, nil))
	}

	prediction, err := getGenerationPoller().PollUntilDone(c.Context(), animation.PredictionID)
	if err != nil {
		var failed *generation.GenerationFailedError
		if errors.As(err, &failed) {
			// The upstream job failed; record that terminal state locally.
			failedPrediction := &generation.Prediction{
				ID:     animation.PredictionID,
				Status: generation.StatusFailed,
				Error:  failed.Message,
			}
			finalizeObserved(c.Context(), animation, failedPrediction)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":   "generation_failed",
				"message": failed.Message,
				"uuid":    animation.UUID,
			})
		}
		return generationErrorResponse(c, err)
	}

	finalizeObserved(c.Context(), animation, prediction)
	return c.JSON(animationResponse(animation, prediction))
}

// HandleListAnimations returns the user's animation history, newest first.
func HandleListAnimations(c *fiber.Ctx) error {
	userID := currentUserID(c)

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", defaultAnimationPageSize)
	if limit < 1 || limit > 100 {
		limit = defaultAnimationPageSize
	}

	repo := animationRepo()
	animations, err := repo.GetByUserID(userID, (page-1)*limit, limit)
	if err != nil {
		log.Errorf("animation: listing history for user %d failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load animations")
	}
	total, err := repo.CountByUserID(userID)
	if err != nil {
		log.Errorf("animation: counting history for user %d failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load animations")
	}

	items := make([]fiber.Map, 0, len(animations))
	for i := range animations {
		items = append(items, animationResponse(&animations[i], nil))
	}

	return c.JSON(fiber.Map{
		"animations": items,
		"page":       page,
		"limit":      limit,
		"total":      total,
	})
}

// loadOwnAnimation resolves the :uuid parameter and enforces ownership.
func loadOwnAnimation(c *fiber.Ctx) (*models.Animation, error) {
	userID := currentUserID(c)
	uuid := strings.TrimSpace(c.Params("uuid"))
	if uuid == "" {
		return nil, jsonError(c, fiber.StatusBadRequest, "invalid_request", "Animation id is required")
	}

	animation, err := animationRepo().GetByUUID(uuid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, jsonError(c, fiber.StatusNotFound, "not_found", "Animation not found")
		}
		log.Errorf("animation: loading %s failed: %v", uuid, err)
		return nil, jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load animation")
	}
	if animation.UserID != userID {
		return nil, jsonError(c, fiber.StatusNotFound, "not_found", "Animation not found")
	}
	return animation, nil
}

// finalizeObserved persists a newly observed terminal state and consumes
// quota for successes. The conditional update in the repository guarantees
// usage is recorded at most once per animation, no matter how many pollers
// and reconcilers observe the same result.
func finalizeObserved(ctx context.Context, animation *models.Animation, prediction *generation.Prediction) {
	if prediction == nil || !prediction.IsTerminal() {
		return
	}

	repo := animationRepo()
	now := time.Now()

	switch prediction.Status {
	case generation.StatusSucceeded:
		outputURL := prediction.OutputURL()
		changed, err := repo.FinalizeSuccess(animation.ID, outputURL, now)
		if err != nil {
			log.Errorf("animation: finalizing %s failed: %v", animation.UUID, err)
			return
		}
		animation.Status = models.AnimationStatusSucceeded
		animation.OutputURL = outputURL
		animation.CompletedAt = &now
		if changed {
			if err := getQuotaService().RecordUsage(ctx, animation.UserID); err != nil {
				log.Errorf("animation: recording usage for user %d failed: %v", animation.UserID, err)
			}
			if err := cache.Delete(usageCacheKey(animation.UserID)); err != nil {
				log.Debugf("animation: dropping usage hint for user %d failed: %v", animation.UserID, err)
			}
		}
	case generation.StatusFailed, generation.StatusCanceled:
		status := normalizeAnimationStatus(prediction.Status)
		if _, err := repo.FinalizeFailure(animation.ID, status, prediction.Error, now); err != nil {
			log.Errorf("animation: finalizing %s failed: %v", animation.UUID, err)
			return
		}
		animation.Status = status
		animation.ErrorMessage = prediction.Error
		animation.CompletedAt = &now
	}
}

func animationResponse(animation *models.Animation, prediction *generation.Prediction) fiber.Map {
	status := animation.Status
	if prediction != nil && !animation.IsTerminal() {
		status = normalizeAnimationStatus(prediction.Status)
	}
	resp := fiber.Map{
		"uuid":       animation.UUID,
		"status":     status,
		"title":      animation.Title,
		"created_at": animation.CreatedAt.UTC().Format(time.RFC3339),
	}
	if animation.OutputURL != "" {
		resp["output_url"] = animation.OutputURL
	} else if prediction != nil && prediction.Status == generation.StatusSucceeded {
		resp["output_url"] = prediction.OutputURL()
	}
	if animation.ErrorMessage != "" {
		resp["error_message"] = animation.ErrorMessage
	} else if prediction != nil && prediction.Error != "" {
		resp["error_message"] = prediction.Error
	}
	if animation.CompletedAt != nil {
		resp["completed_at"] = animation.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// normalizeAnimationStatus maps upstream statuses onto the local vocabulary.
func normalizeAnimationStatus(status string) string {
	switch status {
	case generation.StatusStarting, generation.StatusProcessing,
		generation.StatusSucceeded, generation.StatusFailed, generation.StatusCanceled:
		return status
	default:
		return models.AnimationStatusProcessing
	}
}

func quotaMessage(reason string) string {
	switch reason {
	case quota.ReasonWeeklyLimitReached:
		return "Free plan allows one animation per week. Upgrade for more."
	case quota.ReasonAllocationExhausted:
		return "Your monthly animation allocation is used up."
	default:
		return "Generation is not available right now."
	}
}

// generationErrorResponse maps client errors onto HTTP statuses.
func generationErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, generation.ErrMissingInput):
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Image and video are required")
	case errors.Is(err, generation.ErrPayloadTooLarge):
		return jsonError(c, fiber.StatusRequestEntityTooLarge, "payload_too_large", "Image or video exceeds the size limit")
	case errors.Is(err, generation.ErrNotConfigured):
		return jsonError(c, fiber.StatusServiceUnavailable, "not_configured", "Generation service is not configured")
	case errors.Is(err, generation.ErrPollDeadlineExceeded):
		return jsonError(c, fiber.StatusGatewayTimeout, "poll_timeout", "The job did not finish in time; check its status later")
	case errors.Is(err, context.Canceled):
		return jsonError(c, fiber.StatusBadRequest, "client_closed_request", "Request was canceled")
	default:
		var upstream *generation.UpstreamError
		if errors.As(err, &upstream) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":   "upstream_error",
				"message": "The generation service returned an error",
				"detail":  upstream.Detail,
				"status":  upstream.StatusCode,
			})
		}
		var parseErr *generation.ParseError
		if errors.As(err, &parseErr) {
			return jsonError(c, fiber.StatusBadGateway, "upstream_error", "The generation service returned an unreadable response")
		}
		log.Errorf("animation: generation request failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Generation request failed")
	}
}
