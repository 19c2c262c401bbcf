package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/config"
	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/domain/patientflow"
	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/platform/agent"
	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/platform/db"
	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/platform/middleware"
	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/platform/telemetry"
	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/platform/websocket"
	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/pkg/clock"
)

var version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ae-server",
		Short: "A&E patient-flow coordination server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(simulateCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the A&E API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the transition journal schema",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			pool, err := journalPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, db.Migrations()).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			pool, err := journalPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, db.Migrations()).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func journalPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if !cfg.HasJournal() {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	return db.NewPool(ctx, db.PoolOptions{
		URL:            cfg.DatabaseURL,
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		ConnectTimeout: 10 * time.Second,
	})
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// server is the wired application: the engine and service behind the HTTP
// surface, with the hub, metrics and optional journal subscribed to every
// transition.
type server struct {
	echo   *echo.Echo
	engine *patientflow.Engine
	svc    *patientflow.Service
	hub    *websocket.Hub
	tp     *telemetry.TelemetryProvider
	agents agent.Set
}

// collaboratorRoutes call out to triage, planning or advice and are rate
// limited per client.
var collaboratorRoutes = []string{
	"/api/v1/triage-assessments",
	"/api/v1/dispatches",
	"/api/v1/patients/:id/responder-updates",
	"/api/v1/patients/:id/resource-plan",
	"/api/v1/advice/first-aid",
	"/api/v1/advice/chat",
}

// newServer wires every component. pool may be nil, in which case
// transitions are not journaled and /health/db is not served.
func newServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool) *server {
	clk := clock.New()
	store := patientflow.NewStore(clk)
	tp := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{
		ServiceVersion: version,
		Environment:    cfg.Env,
		GoCollectors:   true,
	}, store.All)

	agents := agent.New(agent.Config{
		URL:     cfg.LLMAPIURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
		RPS:     cfg.LLMRPS,
	}, logger)
	collab := tp.Instrument(agents.Triage, agents.Planner, agents.Advisor)

	engine := patientflow.NewEngine(store, clk, patientflow.Config{
		PrepReadyInterval:   cfg.PrepReadyInterval,
		InTransitInterval:   cfg.InTransitInterval,
		ArrivalPollInterval: cfg.ArrivalPollInterval,
		PrepStampInterval:   cfg.PrepStampInterval,
		SettleDelay:         cfg.ArrivalSettleDelay,
		DefaultETAMinutes:   cfg.DefaultETAMinutes,
	}, logger)
	svc := patientflow.NewService(engine, patientflow.DemoDirectory(), collab, collab, collab, patientflow.ServiceConfig{
		HospitalID:     cfg.HospitalID,
		RouteKM:        cfg.RouteDistanceKM,
		PlanOnDispatch: cfg.PlanOnDispatch,
		PlanTimeout:    cfg.LLMTimeout,
	}, logger)

	hub := websocket.NewHub(logger)
	engine.Subscribe(hub)
	engine.Subscribe(tp)
	if pool != nil {
		engine.Subscribe(patientflow.NewJournalPG(pool))
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders("/ws"))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(tp.MetricsMiddleware())
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/ws"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
			"agents":  agents.Mode,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}
	e.GET("/metrics", tp.PrometheusHandler())
	websocket.NewHandler(hub).RegisterRoutes(e.Group(""))

	limiter := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	})
	apiV1 := e.Group("/api/v1", onlyRoutes(limiter, collaboratorRoutes...))
	patientflow.NewHandler(svc).RegisterRoutes(apiV1)

	return &server{echo: e, engine: engine, svc: svc, hub: hub, tp: tp, agents: agents}
}

// onlyRoutes applies mw to requests whose matched route is one of routes.
func onlyRoutes(mw echo.MiddlewareFunc, routes ...string) echo.MiddlewareFunc {
	set := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		set[r] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		limited := mw(next)
		return func(c echo.Context) error {
			if _, ok := set[c.Path()]; ok {
				return limited(c)
			}
			return next(c)
		}
	}
}

func runServer() error {
	// Logger
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Journal database (optional)
	var pool *pgxpool.Pool
	if cfg.HasJournal() {
		pool, err = db.NewPool(ctx, db.PoolOptions{
			URL:            cfg.DatabaseURL,
			MaxConns:       cfg.DBMaxConns,
			MinConns:       cfg.DBMinConns,
			ConnectTimeout: 10 * time.Second,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to journal database")
	}

	srv := newServer(cfg, logger, pool)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.engine.Run(gctx)
	})
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("hospital_id", cfg.HospitalID).Msg("starting server")
		if err := srv.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	err = g.Wait()
	srv.svc.Wait()
	if err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
