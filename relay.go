package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"payment-gateway/config"
	"payment-gateway/logging"
	"payment-gateway/outbox"
	"payment-gateway/store"
)

func relayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Publish outbox events from Postgres to Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			_, shutdown, err := initTelemetry(cfg, "relay")
			if err != nil {
				return err
			}
			defer shutdown()

			pool, err := store.NewPool(ctx, cfg.Store.PostgresDSN)
			if err != nil {
				logging.Error("Failed to connect to Postgres", zap.Error(err))
				return err
			}
			defer pool.Close()

			writer := outbox.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
			relay := outbox.NewRelay(pool, writer, cfg.Kafka.PollInterval, cfg.Kafka.BatchSize)
			logging.Info("Relaying outbox",
				zap.Strings("brokers", cfg.Kafka.Brokers),
				zap.String("topic", cfg.Kafka.Topic),
			)
			return relay.Run(ctx)
		},
	}
}
