package router

import (
	"github.com/gofiber/fiber/v2"
)

// Router installs a group of routes on the application
type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App) {
	// Operator routes first so /metrics and /monitor bypass the API limiter.
	setup(app, NewOperatorRouter(), NewWebhookRouter(), NewApiRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
