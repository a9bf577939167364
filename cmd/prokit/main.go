package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/PaulFidika/prokit/config"
	"github.com/PaulFidika/prokit/jobs"
	"github.com/PaulFidika/prokit/logging"
	migrations "github.com/PaulFidika/prokit/migrations/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var Version = "dev"

var envFile string

var rootCmd = &cobra.Command{
	Use:           "prokit",
	Short:         "Pro entitlement resolution service",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduled grant reconciler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Revoke duplicate active admin grants once and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		actor, _ := cmd.Flags().GetString("actor")
		log := logging.New(cfg.LogLevel, cfg.LogFormat)
		a, err := buildApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()
		rep, runErr := a.service.ReconcileDuplicates(cmd.Context(), actor)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return runErr
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database and job queue migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL required")
		}
		log := logging.New(cfg.LogLevel, cfg.LogFormat)
		ctx := cmd.Context()
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.Up(ctx, pool, cfg.DBSchema, log); err != nil {
			return err
		}
		return jobs.MigrateRiver(ctx, pool, log)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file")
	reconcileCmd.Flags().String("actor", "system", "recorded as the revoking actor")
	rootCmd.AddCommand(serveCmd, reconcileCmd, migrateCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
