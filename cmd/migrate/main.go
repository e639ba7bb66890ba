package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/ManuelReschke/AgentHub/internal/pkg/env"
)

type command struct {
	usage string
	args  int
	run   func(m *migrate.Migrate, args []string) error
}

var commands = map[string]command{
	"up":      {usage: "up          apply all pending migrations", run: up},
	"down":    {usage: "down        roll back the last migration", run: down},
	"steps":   {usage: "steps N     apply N migrations, negative N rolls back", args: 1, run: steps},
	"goto":    {usage: "goto V      migrate to version V", args: 1, run: gotoVersion},
	"force":   {usage: "force V     set version V without running SQL (clears dirty)", args: 1, run: force},
	"status":  {usage: "status      show the current version", run: status},
	"version": {usage: "version     alias of status", run: status},
}

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok || len(os.Args)-2 < cmd.args {
		printUsage()
		os.Exit(1)
	}

	m, err := newMigrate()
	if err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Printf("Failed to close migration resources: %v, %v", sourceErr, dbErr)
		}
	}()

	if err := cmd.run(m, os.Args[2:]); err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func newMigrate() (*migrate.Migrate, error) {
	user := env.GetEnv("DB_USER", "agenthub")
	host := env.GetEnv("DB_HOST", "db")
	port := env.GetEnv("DB_PORT", "3306")
	name := env.GetEnv("DB_NAME", "agenthub_db")
	log.Printf("Connecting to database: %s@%s:%s/%s", user, host, port, name)

	dbURL := fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		user, env.GetEnv("DB_PASSWORD", "agenthub"), host, port, name)
	return migrate.New("file://"+env.GetEnv("MIGRATIONS_PATH", "migrations"), dbURL)
}

func up(m *migrate.Migrate, _ []string) error {
	return report(m.Up(), "Migrations applied")
}

func down(m *migrate.Migrate, _ []string) error {
	return report(m.Steps(-1), "Last migration rolled back")
}

func steps(m *migrate.Migrate, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil || n == 0 {
		return fmt.Errorf("invalid step count %q", args[0])
	}
	return report(m.Steps(n), fmt.Sprintf("Moved %d step(s)", n))
}

func gotoVersion(m *migrate.Migrate, args []string) error {
	v, err := parseVersion(args[0])
	if err != nil {
		return err
	}
	return report(m.Migrate(v), fmt.Sprintf("Migrated to version %d", v))
}

func force(m *migrate.Migrate, args []string) error {
	v, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q", args[0])
	}
	if err := m.Force(v); err != nil {
		return err
	}
	log.Printf("Forced version %d", v)
	return nil
}

func status(m *migrate.Migrate, _ []string) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Println("No migrations have been applied yet")
		return nil
	}
	if err != nil {
		return err
	}
	if dirty {
		log.Printf("Current migration version: %d (dirty, fix the schema and run force %d)", version, version)
		return nil
	}
	log.Printf("Current migration version: %d", version)
	return nil
}

// report treats ErrNoChange as success.
func report(err error, done string) error {
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Println("No changes: database is already up to date")
		return nil
	case err != nil:
		return err
	default:
		log.Println(done)
		return nil
	}
}

func parseVersion(raw string) (uint, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q", raw)
	}
	return uint(v), nil
}

func printUsage() {
	fmt.Println("Usage: go run ./cmd/migrate <command>")
	fmt.Println("Commands:")
	for _, name := range []string{"up", "down", "steps", "goto", "force", "status"} {
		fmt.Println("  " + commands[name].usage)
	}
}
