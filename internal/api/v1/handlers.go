package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/ManuelReschke/AgentHub/app/controllers"
)

// ServerInterface lists the v1 operations documented in public/docs/v1/openapi.yml
type ServerInterface interface {
	GetPing(c *fiber.Ctx) error
	PostChat(c *fiber.Ctx) error
	PostCheckout(c *fiber.Ctx) error
	GetCheckout(c *fiber.Ctx) error
	GetAccountCredits(c *fiber.Ctx) error
	GetAccountUsage(c *fiber.Ctx) error
}

// Pong is the response of GET /ping
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer implements the ServerInterface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// PostChat runs one chat turn billed to the authenticated account.
func (s *APIServer) PostChat(c *fiber.Ctx) error {
	return controllers.HandleChat(c)
}

// PostCheckout opens a PIX checkout for credits, an agent or a combo.
func (s *APIServer) PostCheckout(c *fiber.Ctx) error {
	return controllers.HandleCheckout(c)
}

// GetCheckout returns the status of one of the account's transactions.
func (s *APIServer) GetCheckout(c *fiber.Ctx) error {
	return controllers.HandleGetTransaction(c)
}

func (s *APIServer) GetAccountCredits(c *fiber.Ctx) error {
	return controllers.HandleGetCredits(c)
}

func (s *APIServer) GetAccountUsage(c *fiber.Ctx) error {
	return controllers.HandleGetUsage(c)
}

// RegisterHandlers mounts the v1 operations on router
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	router.Get("/ping", si.GetPing)
	router.Post("/chat", si.PostChat)
	router.Post("/checkout", si.PostCheckout)
	router.Get("/checkout/:id", si.GetCheckout)
	router.Get("/account/credits", si.GetAccountCredits)
	router.Get("/account/usage", si.GetAccountUsage)
}
