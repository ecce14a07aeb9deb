package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"payment-gateway/config"
	"payment-gateway/handlers"
	"payment-gateway/logging"
	"payment-gateway/provider"
	"payment-gateway/service"
	"payment-gateway/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the payment gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, shutdown, err := initTelemetry(cfg, "")
	if err != nil {
		return err
	}
	defer shutdown()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logging.Error("Failed to open payment store", zap.Error(err), zap.String("driver", cfg.Store.Driver))
		return err
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			logging.Error("Error closing payment store", zap.Error(err))
		}
	}()

	registry, err := newRegistry(cfg)
	if err != nil {
		return err
	}

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return fmt.Errorf("snowflake node: %w", err)
	}

	// Initialize service layer
	paymentService := service.NewPaymentService(tracer, st, registry, service.Options{
		CallbackURL:     cfg.CallbackURL(),
		ProviderTimeout: cfg.ProviderTimeout,
		Node:            node,
	})

	router := handlers.NewRouter(handlers.RouterConfig{
		ServiceName: cfg.ServiceName,
		FrontendURL: cfg.FrontendURL,
		RateLimit:   cfg.RateLimit.Requests,
		RateWindow:  cfg.RateLimit.Window,

		AllowedOrigins:        cfg.CORS.AllowedOrigins,
		AllowedOriginSuffixes: cfg.CORS.AllowedSuffixes,
	}, paymentService)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Payment gateway starting",
			zap.String("port", cfg.Port),
			zap.String("store", cfg.Store.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logging.Error("Failed to start server", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info("Shutting down payment gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (store.PaymentStore, error) {
	switch cfg.Store.Driver {
	case "", "memory":
		logging.Warn("Using in-memory payment store; records are lost on restart")
		return store.NewMemory(), nil
	case "postgres":
		pool, err := store.NewPool(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store.NewPostgres(pool), nil
	case "mongo", "mongodb":
		return store.NewMongo(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func newRegistry(cfg *config.Config) (*provider.Registry, error) {
	if cfg.Paystack.SecretKey == "" || cfg.Flutterwave.SecretKey == "" {
		logging.Warn("Provider secret key missing; calls to that provider will be rejected")
	}
	return provider.NewRegistry(
		provider.NewPaystack(provider.Options{
			BaseURL:   cfg.Paystack.BaseURL,
			SecretKey: cfg.Paystack.SecretKey,
			Timeout:   cfg.ProviderTimeout,
		}),
		provider.NewFlutterwave(provider.Options{
			BaseURL:       cfg.Flutterwave.BaseURL,
			SecretKey:     cfg.Flutterwave.SecretKey,
			WebhookSecret: cfg.Flutterwave.SecretHash,
			Timeout:       cfg.ProviderTimeout,
		}),
	)
}
