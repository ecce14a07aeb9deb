package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"payment-gateway/config"
	"payment-gateway/logging"
	"payment-gateway/monitoring"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "payment-gateway",
		Short:         "Multi-provider payment gateway",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(relayCmd())
	rootCmd.AddCommand(signWebhookCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initTelemetry sets up logging, tracing and metrics for a long-running
// command. The returned func flushes and shuts everything down.
func initTelemetry(cfg *config.Config, component string) (trace.Tracer, func(), error) {
	serviceName := cfg.ServiceName
	if component != "" {
		serviceName += "-" + component
	}

	// Initialize structured logging
	if err := logging.InitLogger(serviceName, cfg.OTELEndpoint); err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}

	// Initialize OpenTelemetry
	tp, tracer, err := monitoring.InitTracer(serviceName, cfg.OTELEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize tracer: %w", err)
	}
	mp, _, err := monitoring.InitMeter(serviceName, cfg.OTELEndpoint)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, nil, fmt.Errorf("initialize meter: %w", err)
	}

	shutdown := func() {
		ctx := context.Background()
		if err := mp.Shutdown(ctx); err != nil {
			logging.Error("Error shutting down meter provider", zap.Error(err))
		}
		if err := tp.Shutdown(ctx); err != nil {
			logging.Error("Error shutting down tracer provider", zap.Error(err))
		}
		if err := logging.Shutdown(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "Error shutting down logger provider:", err)
		}
		_ = logging.Sync()
	}
	return tracer, shutdown, nil
}
