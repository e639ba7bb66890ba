package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/AgentHub/app/controllers"
)

// WebhookRouter receives payment gateway notifications. Authenticity is
// checked per gateway inside the controller.
type WebhookRouter struct {
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	webhooks := app.Group("/webhooks")
	webhooks.Post("/mercadopago", controllers.HandleMercadoPagoWebhook)
	webhooks.Post("/asaas", controllers.HandleAsaasWebhook)
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}
