package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/facemojo/facemojo/internal/pkg/middleware"
)

// RegisterHandlers attaches the v1 routes to the given group. Session-backed
// routes return JSON 401 instead of a redirect; maintenance routes require
// the shared admin token.
func RegisterHandlers(router fiber.Router, si *APIServer) {
	router.Get("/ping", si.GetPing)

	router.Post("/auth/register", si.PostAuthRegister)
	router.Post("/auth/login", si.PostAuthLogin)

	user := router.Group("/user", middleware.RequireAPISessionAuth)
	user.Get("/account", si.GetUserAccount)
	user.Get("/usage", si.GetUserUsage)

	animations := router.Group("/animations", middleware.RequireAPISessionAuth)
	animations.Post("/", si.PostAnimation)
	animations.Get("/", si.GetAnimations)
	animations.Get("/:uuid", si.GetAnimation)
	animations.Post("/:uuid/wait", si.PostAnimationWait)

	subscription := router.Group("/subscription", middleware.RequireAPISessionAuth)
	subscription.Get("/", si.GetSubscription)
	subscription.Post("/confirm", si.PostSubscriptionConfirm)

	admin := router.Group("/admin", middleware.AdminTokenMiddleware())
	admin.Post("/quota/reset", si.PostAdminQuotaReset)
	admin.Post("/reconcile", si.PostAdminReconcile)
}
