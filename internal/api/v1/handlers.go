package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/facemojo/facemojo/app/controllers"
)

// Pong is the health-check response body.
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer implements the public v1 API surface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// PostAuthRegister creates a local account.
func (s *APIServer) PostAuthRegister(c *fiber.Ctx) error {
	return controllers.HandleAuthRegister(c)
}

// PostAuthLogin verifies credentials and starts a session.
func (s *APIServer) PostAuthLogin(c *fiber.Ctx) error {
	return controllers.HandleAuthLogin(c)
}

// GetUserAccount returns account information for the authenticated user.
// Security is enforced via session middleware attached in RegisterHandlers.
func (s *APIServer) GetUserAccount(c *fiber.Ctx) error {
	return controllers.HandleGetAccount(c)
}

// GetUserUsage returns the user's current generation eligibility.
func (s *APIServer) GetUserUsage(c *fiber.Ctx) error {
	return controllers.HandleGetUsage(c)
}

// PostAnimation submits a new generation job.
func (s *APIServer) PostAnimation(c *fiber.Ctx) error {
	return controllers.HandleCreateAnimation(c)
}

// GetAnimations lists the user's animation history.
func (s *APIServer) GetAnimations(c *fiber.Ctx) error {
	return controllers.HandleListAnimations(c)
}

// GetAnimation returns the current state of one animation.
func (s *APIServer) GetAnimation(c *fiber.Ctx) error {
	return controllers.HandleGetAnimation(c)
}

// PostAnimationWait blocks until the animation reaches a terminal state.
func (s *APIServer) PostAnimationWait(c *fiber.Ctx) error {
	return controllers.HandleWaitAnimation(c)
}

// GetSubscription returns the user's plan and remaining quota.
func (s *APIServer) GetSubscription(c *fiber.Ctx) error {
	return controllers.HandleGetSubscription(c)
}

// PostSubscriptionConfirm verifies a checkout and activates the plan.
func (s *APIServer) PostSubscriptionConfirm(c *fiber.Ctx) error {
	return controllers.HandleConfirmCheckout(c)
}

// PostAdminQuotaReset refills all paid allocations for a new month.
func (s *APIServer) PostAdminQuotaReset(c *fiber.Ctx) error {
	return controllers.HandleAdminResetQuota(c)
}

// PostAdminReconcile triggers one sweep over stale pending animations.
func (s *APIServer) PostAdminReconcile(c *fiber.Ctx) error {
	return controllers.HandleAdminReconcile(c)
}
