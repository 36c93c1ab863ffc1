package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"meshapi/docs"
	"meshapi/internal/config"
	"meshapi/internal/database"
	"meshapi/internal/database/migration"
	handlers "meshapi/internal/http/handler"
	"meshapi/internal/http/middleware"
	"meshapi/internal/logging"
	"meshapi/internal/metrics"
	meshotel "meshapi/internal/otel"
	"meshapi/internal/repository"
	"meshapi/internal/repository/postgres"
	"meshapi/internal/service"
	"meshapi/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// @title Mesh API
// @version 1.0
// @description Transient storage and STL/OBJ conversion for 3D meshes.
// @BasePath /api
func main() {
	if err := run(); err != nil {
		slog.Error("server_exit", "error", err.Error())
		os.Exit(1)
	}
}

func run() error {
	// Configuration comes from defaults, an optional TOML file and the environment (.env auto-loaded if present)
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := meshotel.Init(ctx, cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Error("tracing_shutdown_failed", "error", err.Error())
		}
	}()

	store, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	deps := []handlers.Pinger{store}

	// The model index is optional; without a database host the gateway keeps no records
	var repo repository.ModelRepository = repository.Noop{}
	if cfg.Database.Enabled() {
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		if err := migration.EnsureMigrated(ctx, db, logger, cfg.Database.Host); err != nil {
			return err
		}
		repo = postgres.NewModelPostgres(db)
		deps = append(deps, db)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promMiddleware, err := middleware.NewPrometheusMiddleware(reg, "/healthz")
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}
	gatewayMetrics, err := metrics.NewGateway(reg)
	if err != nil {
		return fmt.Errorf("register gateway metrics: %w", err)
	}

	svc := service.NewMeshService(store, repo, service.Options{
		AllowedFormats: cfg.Gateway.AllowedFormats,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		Metrics:        gatewayMetrics,
		Logger:         logger,
	})

	app := fiber.New(fiber.Config{
		AppName:               "meshapi",
		BodyLimit:             int(cfg.HTTP.MaxUploadBytes),
		ErrorHandler:          handlers.ErrorHandler(),
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(otelfiber.Middleware(otelfiber.WithNext(func(c *fiber.Ctx) bool {
		return c.Path() == "/metrics" || c.Path() == "/healthz"
	})))
	// CORS answers browser preflights before routing can reject OPTIONS
	app.Use(middleware.CORS(cfg.HTTP.CORSOrigins, handlers.ExportFilenameHeader))
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger())
	app.Use(promMiddleware.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(otelhttp.NewHandler(
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		"metrics",
	)))

	// Swagger UI with dynamic host and scheme
	docs.SwaggerInfo.BasePath = cfg.HTTP.APIPrefix
	if docs.SwaggerInfo.BasePath == "" {
		docs.SwaggerInfo.BasePath = "/"
	}
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	handlers.RegisterRoutes(app, cfg.HTTP.APIPrefix, svc, deps...)

	addr := ":" + cfg.HTTP.Port
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server_starting",
			"addr", addr,
			"api_prefix", cfg.HTTP.APIPrefix,
			"storage_backend", cfg.Storage.Backend,
			"model_index", cfg.Database.Enabled(),
			"max_upload", humanize.IBytes(uint64(cfg.HTTP.MaxUploadBytes)),
			"allowed_formats", cfg.Gateway.AllowedFormats,
			"cors_origins", cfg.HTTP.CORSOrigins,
		)
		if err := app.Listen(addr); err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server_stopping")
		return app.ShutdownWithContext(sctx)
	})
	return g.Wait()
}

func newStore(ctx context.Context, cfg *config.AppConfig) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case config.BackendMinIO:
		return storage.NewMinIO(ctx, cfg.Storage.MinIO)
	default:
		return storage.NewLocal(cfg.Gateway.UploadDir)
	}
}
