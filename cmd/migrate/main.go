package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/bbureau12/echonet/internal/config"
	"github.com/bbureau12/echonet/internal/storage"
)

func main() {
	cfg := config.Load()

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := storage.Migrate(context.Background(), db, logger); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	log.Println("Migrations applied successfully.")
}
