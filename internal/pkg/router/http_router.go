package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/facemojo/facemojo/app/controllers"
	"github.com/facemojo/facemojo/internal/pkg/middleware"
	"github.com/facemojo/facemojo/internal/pkg/oauth"
	"github.com/facemojo/facemojo/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// init oauth providers
	oauth.Setup()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	app.Use(cors.New())

	// Social OAuth
	app.Get("/auth/:provider", gothfiber.BeginAuthHandler)
	app.Get("/auth/:provider/callback", controllers.HandleOAuthCallback)

	// Session logout outside the API surface so browser flows can hit it directly
	app.Post("/logout", middleware.RequireAPISessionAuth, controllers.HandleAuthLogout)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
