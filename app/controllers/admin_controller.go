package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/facemojo/facemojo/internal/pkg/cache"
	"github.com/facemojo/facemojo/internal/pkg/reconciler"
)

// quotaResetLockKey guards the monthly reset against concurrent schedulers.
const quotaResetLockKey = "facemojo:quota:monthly_reset"

// HandleAdminResetQuota refills the monthly allocation of every paid user.
// Safe to invoke repeatedly; the per-user calendar-month check makes extra
// runs within the same month no-ops.
func HandleAdminResetQuota(c *fiber.Ctx) error {
	acquired, err := cache.AcquireLock(quotaResetLockKey, 10*time.Minute)
	if err != nil {
		log.Errorf("admin: acquiring reset lock failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to acquire the reset lock")
	}
	if !acquired {
		return jsonError(c, fiber.StatusConflict, "reset_in_progress", "A quota reset is already running")
	}
	defer func() {
		if err := cache.ReleaseLock(quotaResetLockKey); err != nil {
			log.Errorf("admin: releasing reset lock failed: %v", err)
		}
	}()

	count, err := getQuotaService().ResetMonthlyQuota(c.Context())
	if err != nil {
		log.Errorf("admin: monthly quota reset failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Quota reset failed")
	}

	return c.JSON(fiber.Map{
		"status": "ok",
		"reset":  count,
	})
}

// HandleAdminReconcile triggers one reconciliation sweep over stale pending
// animations.
func HandleAdminReconcile(c *fiber.Ctx) error {
	finalized, err := reconciler.GetManager().SweepOnce(c.Context())
	if err != nil {
		log.Errorf("admin: reconcile sweep failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Reconcile sweep failed")
	}

	return c.JSON(fiber.Map{
		"status":    "ok",
		"finalized": finalized,
	})
}
