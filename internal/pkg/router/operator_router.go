package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/ManuelReschke/AgentHub/app/controllers"
	"github.com/ManuelReschke/AgentHub/internal/pkg/metrics"
	"github.com/ManuelReschke/AgentHub/internal/pkg/middleware"
)

// OperatorRouter serves metrics, the fiber monitor and operator actions
// behind basic auth.
type OperatorRouter struct {
}

func (h OperatorRouter) InstallRouter(app *fiber.App) {
	auth := middleware.OperatorAuth()
	app.Get("/metrics", auth, metrics.Handler())
	app.Get("/monitor", auth, monitor.New(monitor.Config{Title: "AgentHub Monitor"}))
	app.Post("/internal/accounts", auth, controllers.HandleOpenAccount)
	app.Post("/internal/sweep", auth, controllers.HandleRunSweep)
	app.Get("/internal/settings", auth, controllers.HandleListSettings)
	app.Put("/internal/settings/:key", auth, controllers.HandleUpdateSetting)
}

func NewOperatorRouter() *OperatorRouter {
	return &OperatorRouter{}
}
