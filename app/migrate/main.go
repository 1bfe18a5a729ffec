// Command migrate applies or rolls back the Postgres schema.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/jobhound/backend/config"
	"github.com/jobhound/backend/internal/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadApp()
	var (
		action = flag.String("action", "up", "Migration action: up, down, version")
		dir    = flag.String("path", cfg.MigrationsPath, "Directory holding the SQL migrations")
	)
	flag.Parse()

	log := logger.New()
	if cfg.PostgresURI == "" {
		log.Fatal("POSTGRES_URI environment variable is not set")
	}
	if _, err := os.Stat(*dir); err != nil {
		log.WithError(err).Fatalf("migrations directory not found: %s", *dir)
	}

	if err := run(cfg.PostgresURI, *dir, *action); err != nil {
		log.WithError(err).WithField("action", *action).Fatal("migration failed")
	}
}

func run(databaseURL, dir, action string) error {
	switch action {
	case "up":
		if err := config.MigrateUp(databaseURL, dir); err != nil {
			return err
		}
		fmt.Println("migrations applied")
	case "down":
		if err := config.MigrateDown(databaseURL, dir); err != nil {
			return err
		}
		fmt.Println("last migration rolled back")
	case "version":
		version, dirty, err := config.MigrationVersion(databaseURL, dir)
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty: %v)\n", version, dirty)
	default:
		return fmt.Errorf("unknown action: %s", action)
	}
	return nil
}
