package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/AgentHub/app/models"
)

// Global API controller instance
var apiController *APIController

// InitializeAPIController initializes the global API controller with its services
func InitializeAPIController(deps Dependencies) {
	apiController = NewAPIController(deps)
}

// GetAPIController returns the global API controller instance
func GetAPIController() *APIController {
	if apiController == nil {
		panic("API controller not initialized. Call InitializeAPIController first.")
	}
	return apiController
}

// Adapter functions used by the routers

// HandleChat - Adapter for chat turns
func HandleChat(c *fiber.Ctx) error {
	return GetAPIController().HandleChat(c)
}

// HandleCheckout - Adapter for checkout initiation
func HandleCheckout(c *fiber.Ctx) error {
	return GetAPIController().HandleCheckout(c)
}

// HandleGetTransaction - Adapter for transaction polling
func HandleGetTransaction(c *fiber.Ctx) error {
	return GetAPIController().HandleGetTransaction(c)
}

// HandleGetCredits - Adapter for the balance endpoint
func HandleGetCredits(c *fiber.Ctx) error {
	return GetAPIController().HandleGetCredits(c)
}

// HandleGetUsage - Adapter for the usage history endpoint
func HandleGetUsage(c *fiber.Ctx) error {
	return GetAPIController().HandleGetUsage(c)
}

// HandleOpenAccount - Adapter for operator account provisioning
func HandleOpenAccount(c *fiber.Ctx) error {
	return GetAPIController().HandleOpenAccount(c)
}

// HandleRunSweep - Adapter for the manual pending sweep
func HandleRunSweep(c *fiber.Ctx) error {
	return GetAPIController().HandleRunSweep(c)
}

// HandleListSettings - Adapter for listing runtime settings
func HandleListSettings(c *fiber.Ctx) error {
	return GetAPIController().HandleListSettings(c)
}

// HandleUpdateSetting - Adapter for changing one runtime setting
func HandleUpdateSetting(c *fiber.Ctx) error {
	return GetAPIController().HandleUpdateSetting(c)
}

// HandleMercadoPagoWebhook - Adapter for Mercado Pago notifications
func HandleMercadoPagoWebhook(c *fiber.Ctx) error {
	return GetAPIController().HandleWebhook(models.GatewayMercadoPago)(c)
}

// HandleAsaasWebhook - Adapter for Asaas notifications
func HandleAsaasWebhook(c *fiber.Ctx) error {
	return GetAPIController().HandleWebhook(models.GatewayAsaas)(c)
}
