package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-flood-alerts/internal/api"
	"github.com/mr1hm/go-flood-alerts/internal/app"
	"github.com/mr1hm/go-flood-alerts/internal/config"
	"github.com/mr1hm/go-flood-alerts/internal/ingestion"
	"github.com/mr1hm/go-flood-alerts/internal/logging"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()
	engine, err := app.New(ctx, cfg, observability.NewMetrics(), clock)
	if err != nil {
		logging.Fatalf("Failed to initialize engine: %v", err)
	}
	defer engine.Close()

	// Start feed poller
	mgr := ingestion.NewManager(cfg, engine.Coordinator, engine.Metrics)
	mgr.Start(ctx)

	sweeper, err := ingestion.NewSweeper(ctx, cfg.Alerting.SilenceSweepSchedule, engine.Alerts, engine.Metrics)
	if err != nil {
		logging.Fatalf("Failed to schedule silence sweep: %v", err)
	}
	sweeper.Start()

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS))

	handler := api.NewHandler(engine.Coordinator, engine.Queries, engine.Alerts, engine.Broadcaster, engine.DB, clock)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	sweeper.Stop()
	mgr.Stop()
	engine.Broadcaster.Close() // Close all streams gracefully

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
