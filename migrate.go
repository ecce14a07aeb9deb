package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"payment-gateway/config"
	"payment-gateway/store"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|down|status]",
		Short: "Apply the Postgres schema migrations",
		Long: `Apply the embedded goose migrations to DATABASE_URL.

Examples:
  payment-gateway migrate
  payment-gateway migrate status
  payment-gateway migrate down`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}
			dsn, _ := cmd.Flags().GetString("dsn")
			if dsn == "" {
				dsn = cfg.Store.PostgresDSN
			}
			if err := store.Migrate(dsn, direction); err != nil {
				return fmt.Errorf("migrate %s: %w", direction, err)
			}
			return nil
		},
	}
	cmd.Flags().String("dsn", "", "Postgres connection string (defaults to DATABASE_URL)")
	return cmd
}
