package controllers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	gothfiber "github.com/shareed2k/goth_fiber"
	"gorm.io/gorm"

	"github.com/facemojo/facemojo/app/models"
	"github.com/facemojo/facemojo/app/repository"
	"github.com/facemojo/facemojo/internal/pkg/session"
	"github.com/facemojo/facemojo/internal/pkg/usercontext"
)

// HandleOAuthCallback completes the provider flow and logs the user in
func HandleOAuthCallback(c *fiber.Ctx) error {
	// Complete OAuth with provider and obtain unified user
	u, err := gothfiber.CompleteUserAuth(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "oauth_failed", fmt.Sprintf("OAuth failed: %v", err))
	}

	repo := repository.GetGlobalFactory().GetUserRepository()

	appUser, err := repo.GetByProvider(u.Provider, u.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Optional email match if provided
		if u.Email != "" {
			if existing, lookupErr := repo.GetByEmail(u.Email); lookupErr == nil {
				appUser = existing
			}
		}
		if appUser == nil {
			// Create new user; password is a random placeholder since validation
			// requires one (not usable for login)
			placeholder := fmt.Sprintf("oauth_%d", time.Now().UnixNano())
			hash, _ := models.HashPassword(placeholder)
			email := u.Email
			if email == "" {
				// Ensure unique, non-empty email to satisfy unique index semantics in MySQL
				email = fmt.Sprintf("%s_%s@%s.oauth.local", u.Provider, u.UserID, u.Provider)
			}
			appUser = &models.User{
				Name:       firstNonEmpty(u.Name, u.NickName, u.Email, "User"),
				Email:      email,
				Password:   hash,
				Provider:   u.Provider,
				ProviderID: u.UserID,
				AvatarURL:  u.AvatarURL,
				Status:     models.STATUS_ACTIVE,
			}
			if err := repo.Create(appUser); err != nil {
				return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", fmt.Sprintf("create user failed: %v", err))
			}
		} else if appUser.Provider == "" {
			// Link the provider identity to the existing email account.
			appUser.Provider = u.Provider
			appUser.ProviderID = u.UserID
			if err := repo.Update(appUser); err != nil {
				return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", fmt.Sprintf("link provider failed: %v", err))
			}
		}
	} else if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", fmt.Sprintf("db error: %v", err))
	}

	// Create app session
	if err := establishSession(c, appUser); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "session init failed")
	}
	// Cache user plan in session for subsequent requests
	if plan, planErr := repository.GetGlobalFactory().GetPlanRepository().GetOrCreate(appUser.ID); planErr == nil && plan.PlanType != "" {
		_ = session.SetSessionValue(c, usercontext.KeyPlan, plan.PlanType)
	}

	// Update last login timestamp
	_ = repo.TouchLastLogin(appUser.ID, time.Now())

	return c.Redirect("/", fiber.StatusSeeOther)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
