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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GearGrab/service-booking/internal/application"
	"github.com/GearGrab/service-booking/internal/config"
	bookingDomain "github.com/GearGrab/service-booking/internal/domain/booking"
	bookingEvents "github.com/GearGrab/service-booking/internal/events"
	"github.com/GearGrab/service-booking/internal/handler"
	"github.com/GearGrab/service-booking/internal/platform/auth"
	"github.com/GearGrab/service-booking/internal/platform/health"
	"github.com/GearGrab/service-booking/internal/platform/logger"
	"github.com/GearGrab/service-booking/internal/platform/middleware"
	"github.com/GearGrab/service-booking/internal/platform/tracing"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the booking HTTP API and rental event consumer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log, err := logger.NewNamed(cfg.AppEnv, serviceName)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer func() { _ = log.Sync() }()

		return serve(cmd.Context(), cfg, log)
	},
}

func serve(parent context.Context, cfg *config.ServiceConfig, log *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, serviceName, cfg.AppEnv, cfg.OTLPEndpoint, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		tctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer tcancel()
		if err := shutdownTracing(tctx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	// Storage
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()

	// Payment gateway
	payments, err := buildCoordinator(cfg, log)
	if err != nil {
		return err
	}

	// Notification sinks
	sinks, err := buildNotifier(cfg, store, log)
	if err != nil {
		return err
	}
	defer sinks.close()

	bookingService := application.NewBookingService(
		store.repo,
		bookingDomain.NewDepositPricingStrategy(),
		payments,
		sinks.notifier,
		log,
	)
	resolutionService := application.NewResolutionService(
		store.repo,
		payments,
		sinks.notifier,
		log,
	)

	if len(cfg.KafkaConfig.Brokers) > 0 {
		groupID := cfg.KafkaConfig.GroupPrefix + "booking-service"
		rentalConsumer := bookingEvents.NewRentalEventConsumer(
			cfg.KafkaConfig.Brokers,
			groupID,
			bookingService,
			log,
		)
		defer func() { _ = rentalConsumer.Close() }()

		go func() {
			log.Info("starting rental event consumer", zap.String("group", groupID))
			if err := rentalConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("rental event consumer error", zap.Error(err))
			}
		}()
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, 15*time.Minute)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.MetricsMiddleware())

	checkers := store.checkers
	for name, c := range sinks.checkers {
		checkers[name] = c
	}
	health.NewHandler(serviceName, checkers).RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.NewBookingHandler(bookingService, resolutionService).RegisterRoutes(&router.RouterGroup, jwtManager)
	handler.NewAdminBookingHandler(bookingService).RegisterRoutes(&router.RouterGroup, jwtManager)

	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting",
			zap.String("addr", cfg.Port),
			zap.String("store", cfg.StoreDriver),
			zap.String("payment_provider", cfg.Payment.Provider),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("shutting down service-booking...")

	// Stop the consumer before draining HTTP.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}

	// Deliver queued notifications before the sinks close.
	bookingService.Flush()
	resolutionService.Flush()

	log.Info("service-booking stopped")
	return nil
}
