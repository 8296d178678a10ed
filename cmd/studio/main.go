package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"idcard-studio/internal/common/config"
	"idcard-studio/internal/common/logger"
	"idcard-studio/internal/common/middleware"
	"idcard-studio/internal/common/validation"
	"idcard-studio/internal/studio/export"
	"idcard-studio/internal/studio/fields"
	"idcard-studio/internal/studio/handlers"
	"idcard-studio/internal/studio/importer"
	"idcard-studio/internal/studio/parser"
	"idcard-studio/internal/studio/render"
	"idcard-studio/internal/studio/repository"
	"idcard-studio/internal/studio/service"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
)

// ============================================================
// ID Card Studio
// ============================================================

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	closeLog, err := logger.Init(logger.Config{
		LogDir: cfg.LogDir,
		Debug:  cfg.Debug,
		JSON:   cfg.LogJSON,
	})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer closeLog()
	slogger := logger.WithComponent("studio")

	db, err := repository.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo := repository.New(db)
	if err := repo.Init(ctx); err != nil {
		log.Fatalf("init db: %v", err)
	}

	registry := fields.NewRegistry()
	loaded, err := repo.LoadCustomFields(ctx, registry)
	if err != nil {
		log.Fatalf("load custom fields: %v", err)
	}
	slogger.Info("Custom fields loaded", "count", loaded)

	validator := validation.New()
	assets := render.NewAssetLoader(cfg.AssetTimeout, cfg.AssetDir)
	renderer := render.NewRenderer(registry, assets, logger.WithComponent("render"))
	sessions := service.NewSessionManager()

	settings := render.DefaultSettings()
	settings.DPI = cfg.RenderDPI

	studio := handlers.New(handlers.Deps{
		Repo:      repo,
		Registry:  registry,
		Importer:  importer.NewDispatcher(parser.PSDParser{}, int64(cfg.BodyLimit())).WithLogger(logger.WithComponent("import")),
		Renderer:  renderer,
		Exporter:  export.NewExporter(renderer, validator, logger.WithComponent("export")),
		Sessions:  sessions,
		Storage:   service.NewFileStorage(cfg.StorageRoot),
		Validator: validator,
		Logger:    slogger,
		Settings:  settings,
		Workers:   cfg.RenderWorkers,
	})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		BodyLimit:    cfg.BodyLimit(),
		AppName:      "ID Card Studio",
	})

	// ============================================================
	// Global Middleware
	// ============================================================

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(nil))
	app.Use(middleware.CORS())

	// ============================================================
	// Routes
	// ============================================================

	studio.Register(app.Group("/api/v1"))

	go expireSessions(ctx, sessions, cfg.SessionIdle, slogger)

	// ============================================================
	// Server Start
	// ============================================================

	addr := fmt.Sprintf(":%s", cfg.Port)
	slogger.Info("Starting ID Card Studio", "addr", addr, "env", cfg.Environment, "db", cfg.DBPath)

	if err := app.Listen(addr, fiber.ListenConfig{
		GracefulContext: ctx,
		ShutdownTimeout: 10 * time.Second,
	}); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	slogger.Info("Server stopped")
}

// expireSessions drops editor sessions idle longer than idle.
func expireSessions(ctx context.Context, sessions *service.SessionManager, idle time.Duration, slogger *slog.Logger) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(idle / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Expire(idle); n > 0 {
				slogger.Info("Sessions expired", "count", n, "open", sessions.Len())
			}
		}
	}
}
