package controllers

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/facemojo/facemojo/app/models"
	"github.com/facemojo/facemojo/app/repository"
	"github.com/facemojo/facemojo/internal/pkg/cache"
	"github.com/facemojo/facemojo/internal/pkg/entitlements"
	"github.com/facemojo/facemojo/internal/pkg/payment"
	"github.com/facemojo/facemojo/internal/pkg/session"
	"github.com/facemojo/facemojo/internal/pkg/usercontext"
)

var (
	creemClient *payment.CreemClient
	creemOnce   sync.Once
)

func getCreemClient() *payment.CreemClient {
	creemOnce.Do(func() {
		creemClient = payment.NewCreemClientFromEnv()
	})
	return creemClient
}

type confirmCheckoutRequest struct {
	CheckoutID string `json:"checkout_id"`
}

// HandleConfirmCheckout activates a paid plan after verifying the checkout
// with the payment provider. The checkout id from the return URL is never
// trusted on its own; activation requires a server-side lookup, and each
// checkout activates a plan at most once.
func HandleConfirmCheckout(c *fiber.Ctx) error {
	userID := currentUserID(c)

	var req confirmCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Request body must be valid JSON")
	}
	checkoutID := strings.TrimSpace(req.CheckoutID)
	if checkoutID == "" {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "checkout_id is required")
	}

	verification, err := getCreemClient().VerifyCheckout(c.Context(), checkoutID)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrCheckoutNotPaid):
			return jsonError(c, fiber.StatusPaymentRequired, "checkout_not_paid", "The checkout has not completed payment")
		case errors.Is(err, payment.ErrUnknownProduct):
			return jsonError(c, fiber.StatusUnprocessableEntity, "unknown_product", "The checkout does not match any available plan")
		default:
			log.Errorf("subscription: checkout verification for %s failed: %v", checkoutID, err)
			return jsonError(c, fiber.StatusBadGateway, "verification_failed", "Could not verify the checkout with the payment provider")
		}
	}

	// A verified checkout for a lower plan must not clobber a higher active
	// subscription. The session plan is a cheap pre-screen; the stored row
	// decides.
	if entitlements.PlanRank(verification.Plan) < entitlements.PlanRank(entitlements.NormalizePlan(usercontext.GetPlan(c))) {
		stored, err := repository.GetGlobalFactory().GetPlanRepository().GetOrCreate(userID)
		if err == nil && planDowngrade(stored, verification.Plan, time.Now()) {
			return jsonError(c, fiber.StatusConflict, "plan_downgrade",
				"The checkout is for a lower plan than the active subscription; contact support for downgrades")
		}
	}

	payload, _ := json.Marshal(verification)
	event := &models.PaymentEvent{
		Provider:          models.PaymentProviderCreem,
		ProviderPaymentID: verification.CheckoutID,
		UserID:            userID,
		PlanType:          string(verification.Plan),
		PayloadJSON:       string(payload),
	}

	created, stored, err := repository.GetGlobalFactory().GetPaymentEventRepository().CreateIfNotExists(event)
	if err != nil {
		log.Errorf("subscription: recording payment event for %s failed: %v", checkoutID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to record the payment")
	}
	if !created {
		// Replayed confirmation. Same user gets the current state back;
		// anyone else is rejected.
		if stored.UserID != userID {
			return jsonError(c, fiber.StatusConflict, "checkout_already_used", "This checkout was already redeemed")
		}
		return subscriptionState(c, userID)
	}

	if err := getQuotaService().ApplyPlanChange(c.Context(), userID, verification.Plan, verification.CheckoutID); err != nil {
		log.Errorf("subscription: applying plan %s for user %d failed: %v", verification.Plan, userID, err)
		if markErr := repository.GetGlobalFactory().GetPaymentEventRepository().MarkProcessed(stored.ID, err.Error()); markErr != nil {
			log.Errorf("subscription: marking payment event %d failed: %v", stored.ID, markErr)
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Payment verified but plan activation failed; contact support")
	}

	if err := repository.GetGlobalFactory().GetPaymentEventRepository().MarkProcessed(stored.ID, ""); err != nil {
		log.Errorf("subscription: marking payment event %d failed: %v", stored.ID, err)
	}

	// Refresh the session-cached plan so the next request sees the upgrade.
	_ = session.SetSessionValue(c, usercontext.KeyPlan, string(verification.Plan))
	if err := cache.Delete(usageCacheKey(userID)); err != nil {
		log.Debugf("subscription: dropping usage hint for user %d failed: %v", userID, err)
	}

	return subscriptionState(c, userID)
}

// HandleGetSubscription returns the user's plan, expiry, and remaining quota.
func HandleGetSubscription(c *fiber.Ctx) error {
	return subscriptionState(c, currentUserID(c))
}

// planDowngrade reports whether activating next would lower an active paid
// plan. Lapsed subscriptions never block a new checkout.
func planDowngrade(stored *models.SubscriptionPlan, next entitlements.Plan, now time.Time) bool {
	current := entitlements.NormalizePlan(stored.PlanType)
	if !entitlements.IsPaid(current) || stored.IsExpired(now) {
		return false
	}
	return entitlements.PlanRank(next) < entitlements.PlanRank(current)
}

func subscriptionState(c *fiber.Ctx, userID uint) error {
	plan, remaining, err := getQuotaService().Remaining(c.Context(), userID)
	if err != nil {
		log.Errorf("subscription: loading quota for user %d failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load subscription")
	}

	resp := fiber.Map{
		"plan":      plan,
		"remaining": remaining,
	}
	if stored, err := repository.GetGlobalFactory().GetPlanRepository().GetOrCreate(userID); err == nil {
		if stored.SubscribeDate != nil {
			resp["subscribed_at"] = stored.SubscribeDate.UTC().Format(time.RFC3339)
		}
		if stored.ExpireDate != nil {
			resp["expires_at"] = stored.ExpireDate.UTC().Format(time.RFC3339)
		}
	}
	return c.JSON(resp)
}
