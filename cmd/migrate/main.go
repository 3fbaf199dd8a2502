package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/slotboard/booking-service/internal/db"
	"github.com/slotboard/booking-service/pkg/logging"
)

func main() {
	logger := logging.Default()
	_ = godotenv.Load()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Error("POSTGRES_DSN is required")
		os.Exit(1)
	}

	logger.Info("applying migrations")
	if err := db.MigrateUp(dsn); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations up to date")
}
