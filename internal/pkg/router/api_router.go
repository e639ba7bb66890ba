package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/AgentHub/app/models"
	"github.com/ManuelReschke/AgentHub/app/repository"
	apiv1 "github.com/ManuelReschke/AgentHub/internal/api/v1"
	"github.com/ManuelReschke/AgentHub/internal/pkg/cache"
	"github.com/ManuelReschke/AgentHub/internal/pkg/env"
	"github.com/ManuelReschke/AgentHub/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiterConfig()))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	accounts := repository.GetGlobalRepositories().Account
	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware(accounts), middleware.RequireAccount)
	apiServer := apiv1.NewAPIServer()
	apiv1.RegisterHandlers(v1, apiServer)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

// limiterConfig keys requests by the API key hash so clients behind one NAT
// do not share a budget and storage never holds a raw credential. RATE_LIMIT_STORAGE=memory keeps counters in process.
func limiterConfig() limiter.Config {
	cfg := limiter.Config{
		Max:        env.GetEnvInt("API_RATE_LIMIT_PER_MINUTE", 60),
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if key := middleware.ExtractAPIKey(c); key != "" {
				return "key:" + models.HashAPIKey(key)
			}
			if auth := strings.TrimSpace(c.Get("Authorization")); auth != "" {
				return "auth:" + models.HashAPIKey(auth)
			}
			return "ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests",
			})
		},
	}
	if env.GetEnv("RATE_LIMIT_STORAGE", "redis") == "redis" {
		cfg.Storage = cache.NewLimiterStorage()
	}
	return cfg
}
