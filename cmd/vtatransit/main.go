package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/vtatransit-data/internal/common/config"
	"github.com/vtatransit-data/internal/common/db"
	"github.com/vtatransit-data/internal/common/logger"
	"github.com/vtatransit-data/internal/common/notify"
	"github.com/vtatransit-data/internal/feed/runner"
	"github.com/vtatransit-data/internal/server"
)

func main() {
	// .env is optional; environment variables win either way
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log := logger.WithLevel(logger.New(
		logger.ConsoleWriter(),
		logger.FileWriter(cfg.Logging.FilePath),
	), cfg.Logging.Level)

	log.Info("VTA transit data service starting",
		"log_level", cfg.Logging.Level,
		"check_interval", cfg.Import.CheckInterval,
		"listen_addr", cfg.Server.ListenAddr)

	settings, err := config.LoadSettings(cfg.Import.SettingsPath)
	if err != nil {
		log.Fatal("Failed to load feed settings", "path", cfg.Import.SettingsPath, "error", err)
	}

	database, err := db.New(cfg.Database.ConnectionString(), log)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	notifier := notify.NewClient(cfg.Alerts.WebhookURL)
	importRunner := runner.New(cfg.Import.CheckInterval, settings, database, notifier, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := importRunner.Start(ctx); err != nil {
			log.Error("Import runner error", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: server.New(database, settings, log).Router(),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("HTTP server listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	<-sigChan
	log.Info("Shutdown signal received")

	cancel()
	if err := srv.Shutdown(context.Background()); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}
	wg.Wait()

	log.Info("VTA transit data service stopped")
}
