package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kart-checkout/internal/checkout"
	"kart-checkout/internal/config"
	"kart-checkout/internal/database"
	"kart-checkout/internal/handler"
	"kart-checkout/internal/repository"
	"kart-checkout/internal/router"
	"kart-checkout/internal/service"
	"kart-checkout/internal/shipping"
	"kart-checkout/internal/shopapi"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting kart-checkout API server")

	// Create context for application lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize session repository
	var sessions repository.SessionRepository
	if cfg.Database.Backend == config.StorePostgres {
		pool, err := database.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer pool.Close()

		if err := repository.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		tokens, err := repository.NewTokenCipher(cfg.Session.TokenKey)
		if err != nil {
			return fmt.Errorf("failed to initialize token cipher: %w", err)
		}
		sessions = repository.NewSessionRepository(pool, tokens, logger)
	} else {
		logger.Info().Msg("using in-memory session store (sessions are lost on restart)")
		sessions = repository.NewMemorySessionRepository(logger)
	}

	// Shop backend client
	shop := shopapi.NewClient(cfg.ShopAPI.BaseURL, cfg.ShopAPI.Timeout, logger)

	// Shipping rates: live from the shop, snapshot as fallback
	rates := shipping.NewFallbackSource(shop, snapshotSource(ctx, cfg, logger), logger)

	// Initialize services
	checkoutService := service.NewCheckoutService(
		sessions,
		checkout.Dependencies{
			Rates:    rates,
			Coupons:  shop,
			Registry: shop,
			Orders:   shop,
		},
		checkout.Options{
			OriginURL:      cfg.ShopAPI.OriginURL,
			DefaultCountry: cfg.Shipping.DefaultCountry,
		},
		cfg.Session.TTL,
		logger,
	)

	go sweep(ctx, checkoutService, cfg.Session.SweepInterval, logger)

	// Initialize HTTP handlers
	checkoutHandler := handler.NewCheckoutHandler(checkoutService, logger)

	// Initialize router
	mux := router.New(checkoutHandler, cfg.Auth.APIKey, logger)

	// Create HTTP server. The write timeout must outlast a shop API call.
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ShopAPI.Timeout*2 + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for errors from the server
	serverErrors := make(chan error, 1)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Str("store_backend", cfg.Database.Backend).
			Msg("HTTP server started")
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or an error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received, starting graceful shutdown")

		// Create a context with timeout for shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Attempt graceful shutdown
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			// Force close
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("server shutdown completed")
	}

	return nil
}

// snapshotSource builds the rate snapshot source, reading from S3 when
// enabled and from the local file system otherwise. Returns nil when no
// snapshot is configured.
func snapshotSource(ctx context.Context, cfg *config.Config, logger zerolog.Logger) shipping.RateSource {
	if cfg.Shipping.SnapshotPath == "" {
		logger.Info().Msg("no shipping rate snapshot configured")
		return nil
	}

	fileLoader := shipping.NewFileLoader(logger)
	var s3Loader shipping.Loader
	if cfg.S3.Enabled {
		l, err := shipping.NewS3Loader(ctx, cfg.S3.Bucket, cfg.S3.Region, logger)
		if err != nil {
			logger.Warn().
				Err(err).
				Msg("failed to initialise S3 loader, falling back to local file system only")
		} else {
			s3Loader = l
		}
	} else {
		logger.Info().Msg("using local file system for shipping rate snapshot (S3 disabled)")
	}

	loader := shipping.NewFallbackLoader(s3Loader, fileLoader, cfg.S3.Prefix, cfg.S3.Enabled, logger)
	return shipping.NewSnapshotSource(loader, cfg.Shipping.SnapshotPath)
}

// sweep periodically drops expired checkout sessions until ctx is done.
func sweep(ctx context.Context, svc service.CheckoutService, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.Sweep(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to sweep checkout sessions")
			}
		}
	}
}
