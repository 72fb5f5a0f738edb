package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/facemojo/facemojo/app/models"
	"github.com/facemojo/facemojo/app/repository"
	"github.com/facemojo/facemojo/internal/pkg/cache"
)

const usageCacheTTL = 10 * time.Second

// HandleGetAccount returns account information for the authenticated user.
func HandleGetAccount(c *fiber.Ctx) error {
	if !isLoggedIn(c) {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}
	userID := currentUserID(c)

	factory := repository.GetGlobalFactory()
	account, err := factory.GetUserRepository().GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		log.Errorf("account: loading user %d failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	plan, remaining, err := getQuotaService().Remaining(c.Context(), userID)
	if err != nil {
		log.Errorf("account: loading quota for user %d failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load quota")
	}

	animationCount, err := animationRepo().CountByUserID(userID)
	if err != nil {
		log.Errorf("account: counting animations for user %d failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load statistics")
	}

	return c.JSON(fiber.Map{
		"id":            account.ID,
		"username":      account.Name,
		"email":         account.Email,
		"status":        account.Status,
		"plan":          plan,
		"is_admin":      account.Role == models.ROLE_ADMIN,
		"avatar_url":    account.AvatarURL,
		"created_at":    account.CreatedAt.UTC().Format(time.RFC3339),
		"last_login_at": formatTimePtr(account.LastLoginAt),
		"stats": fiber.Map{
			"animations": fiber.Map{
				"count":     animationCount,
				"remaining": remaining,
			},
		},
	})
}

// HandleGetUsage returns the caller's current generation eligibility. The
// decision is cached for a few seconds so dashboard polling does not hit the
// store on every request; the cache is a hint only, submission always
// revalidates.
func HandleGetUsage(c *fiber.Ctx) error {
	if !isLoggedIn(c) {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}
	userID := currentUserID(c)

	key := usageCacheKey(userID)
	if cached, err := cache.Get(key); err == nil && cached != "" {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.SendString(cached)
	}

	decision, err := getQuotaService().CanGenerate(c.Context(), userID)
	if err != nil {
		log.Errorf("usage: quota check for user %d failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Quota check failed")
	}

	payload, err := json.Marshal(decision)
	if err != nil {
		return c.JSON(decision)
	}
	if err := cache.Set(key, payload, usageCacheTTL); err != nil {
		log.Debugf("usage: caching decision for user %d failed: %v", userID, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(payload)
}

func usageCacheKey(userID uint) string {
	return fmt.Sprintf("facemojo:usage:%d", userID)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
