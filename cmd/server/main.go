package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/plexshare/backend/internal/config"
	"github.com/plexshare/backend/internal/database"
	"github.com/plexshare/backend/internal/handlers"
	"github.com/plexshare/backend/internal/middleware"
	"github.com/plexshare/backend/internal/plex"
	"github.com/plexshare/backend/internal/services"
	"github.com/plexshare/backend/internal/storage"
	"github.com/plexshare/backend/pkg/logger"
)

func main() {
	logger.Init()

	cfg := config.Load()

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var uploader services.ObjectUploader
	var exports handlers.ExportLister
	if cfg.MinIO.Enabled() {
		storageClient, err := storage.NewMinIOClient(cfg.MinIO)
		if err != nil {
			log.Fatalf("minio initialization failed: %v", err)
		}
		if err := storageClient.EnsureBucket(rootCtx); err != nil {
			log.Fatalf("failed ensuring minio bucket: %v", err)
		}
		uploader = storageClient
		exports = storageClient
	}

	store := config.NewSettingsStore(cfg.Settings)
	store.Subscribe(services.ApplyLogLevel)

	auditService := services.NewAuditService(db, uploader, cfg.Audit.QueueSize)
	settingsService := services.NewSettingsService(db, store, auditService)
	if _, err := settingsService.Load(rootCtx); err != nil {
		log.Fatalf("failed loading stored settings: %v", err)
	}

	directory := plex.NewClient(cfg.Plex)
	accessService := services.NewAccessService(db, directory, store, auditService)
	importService := services.NewImportService(db, directory, store, accessService)
	userDirectory := services.NewUserDirectory(db, directory, store, accessService, auditService)
	tasks := services.NewDailyTasks(db, store, accessService, cfg.Tasks.Interval)

	// The loop stays up and skips cycles while tasks are disabled. Turning
	// them back on runs a cycle right away.
	store.Subscribe(func(previous, current config.Settings) {
		if current.TasksEnabled() && !previous.TasksEnabled() {
			tasks.Trigger(services.WithActor(rootCtx, services.ActorScheduler))
		}
	})
	tasks.Start(rootCtx)
	auditService.StartExporter(rootCtx, cfg.Audit.ExportInterval)

	app := fiber.New(fiber.Config{BodyLimit: 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.CORSOrigins))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	handlers.Register(app, handlers.Handlers{
		Users:    handlers.NewUsersHandler(userDirectory),
		Sections: handlers.NewSectionsHandler(db),
		Imports:  handlers.NewImportsHandler(importService),
		Settings: handlers.NewSettingsHandler(settingsService),
		Tasks:    handlers.NewTasksHandler(tasks),
		Audit:    handlers.NewAuditHandler(auditService, exports),
	}, middleware.RequireOperator(cfg.Server.AdminToken))

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":           cfg.Server.Port,
		"address":        listenAddr,
		"db_driver":      cfg.DB.Driver,
		"audit_export":   cfg.MinIO.Enabled(),
		"operator_token": cfg.Server.AdminToken != "",
	})
	if cfg.Server.AdminToken == "" {
		logger.Warn("operator_token_disabled", map[string]interface{}{
			"reason": "ADMIN_TOKEN is empty, the API is unauthenticated",
		})
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			tasks.Stop()
			cancel()
			auditService.Close()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
