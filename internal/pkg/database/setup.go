package database

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/AgentHub/app/models"
	"github.com/ManuelReschke/AgentHub/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// DB is the shared connection opened by SetupDatabase
var DB *gorm.DB

// GetDB returns the shared connection, or nil before SetupDatabase ran
func GetDB() *gorm.DB {
	return DB
}

// DSN builds the MySQL data source name from the environment
func DSN() string {
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)
}

// Models lists every table managed by the application
func Models() []interface{} {
	return []interface{}{
		&models.Account{},
		&models.UsageRecord{},
		&models.CreditGrant{},
		&models.Agent{},
		&models.AgentKnowledge{},
		&models.CreditPackage{},
		&models.Combo{},
		&models.ComboAgent{},
		&models.Entitlement{},
		&models.Transaction{},
		&models.BillingWebhookEvent{},
		&models.Conversation{},
		&models.Message{},
		&models.Setting{},
	}
}

func SetupDatabase() {
	var err error
	gormLogger := logger.Default.LogMode(logger.Warn)
	if env.IsDev() {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       DSN(),
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{Logger: gormLogger})
		if err == nil {
			// Versioned migrations in ./migrations are authoritative in production.
			if env.GetEnv("DB_AUTO_MIGRATE", "true") == "true" {
				if mErr := DB.AutoMigrate(Models()...); mErr != nil {
					log.Errorf("[Database] auto-migrate failed: %v", mErr)
				}
			}
			return
		}

		log.Warnf("[Database] failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Infof("[Database] retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}
