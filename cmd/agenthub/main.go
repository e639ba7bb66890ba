package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/AgentHub/app/controllers"
	"github.com/ManuelReschke/AgentHub/app/repository"
	"github.com/ManuelReschke/AgentHub/internal/pkg/billing"
	"github.com/ManuelReschke/AgentHub/internal/pkg/cache"
	"github.com/ManuelReschke/AgentHub/internal/pkg/chat"
	"github.com/ManuelReschke/AgentHub/internal/pkg/completion"
	"github.com/ManuelReschke/AgentHub/internal/pkg/database"
	"github.com/ManuelReschke/AgentHub/internal/pkg/entitlements"
	"github.com/ManuelReschke/AgentHub/internal/pkg/env"
	"github.com/ManuelReschke/AgentHub/internal/pkg/jobqueue"
	"github.com/ManuelReschke/AgentHub/internal/pkg/ledger"
	"github.com/ManuelReschke/AgentHub/internal/pkg/payment"
	"github.com/ManuelReschke/AgentHub/internal/pkg/router"
	"github.com/ManuelReschke/AgentHub/internal/pkg/settings"
)

func main() {
	app, jobs := NewApplication()
	jobs.Start()

	go func() {
		if err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))); err != nil {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Infof("Received %s, shutting down", sig)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorf("HTTP shutdown: %v", err)
	}
	jobs.Stop()
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()

	// Services
	settingsProvider := settings.NewProviderFromEnv(repos.Setting.All)
	gateways := payment.NewRegistry(settingsProvider, &http.Client{Timeout: 15 * time.Second})
	ledgerStore := ledger.NewStore(db)
	entitlementStore := entitlements.NewStore(db)

	billingService := billing.NewService(billing.NewRepository(db), billing.Dependencies{
		Ledger:       ledgerStore,
		Entitlements: entitlementStore,
		Catalog:      repos.Catalog(),
		Gateways:     gateways,
		Lock: func(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
			return cache.Lock(ctx, cache.GetClient(), key, ttl)
		},
	})
	jobs := jobqueue.NewManager(billingService, jobqueue.ConfigFromEnv())
	chatEngine := chat.NewEngine(ledgerStore, entitlementStore, repos.Agent, repos.Conversation, completion.NewRouterFromEnv(), settingsProvider)

	controllers.InitializeAPIController(controllers.Dependencies{
		Chat:     chatEngine,
		Billing:  billingService,
		Gateways: gateways,
		Ledger:   ledgerStore,
		APIKeys:  repos.Account,
		Signup:   settingsProvider,
		Sweeper:  jobs,
		Settings: repos.Setting,
		Policy:   settingsProvider,
	})

	// Warm the settings cache.
	if _, err := settingsProvider.Snapshot(context.Background()); err != nil {
		log.Errorf("[Settings] initial load failed: %v", err)
	}

	basePath := findBasePath()

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "AgentHub",
		BodyLimit: 4 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	return app, jobs
}

// findBasePath locates the project root when started from cmd/agenthub.
func findBasePath() string {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/agenthub to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			return path
		}
	}
	panic("Could not find project root directory")
}
