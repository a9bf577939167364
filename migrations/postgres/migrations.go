package migrations

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/migrate"
)

//go:embed *.sql
var migrationFS embed.FS

// FS exposes the embedded SQL for external runners.
var FS = migrationFS

// Migrations is a bun/migrate registry for this module.
var Migrations = migrate.NewMigrations()

func init() {
	if err := Migrations.Discover(migrationFS); err != nil {
		panic(fmt.Sprintf("discover migrations: %v", err))
	}
}

// Up applies all pending migrations inside schema, creating it if needed.
func Up(ctx context.Context, pool *pgxpool.Pool, schema string, log logrus.FieldLogger) error {
	schema = normalizeSchema(schema)
	if _, err := pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{schema}.Sanitize()); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	scoped, err := pgxpool.NewWithConfig(ctx, scopedConfig(pool.Config(), schema))
	if err != nil {
		return fmt.Errorf("open migration pool: %w", err)
	}
	defer scoped.Close()

	sqldb := stdlib.OpenDBFromPool(scoped)
	defer sqldb.Close()
	db := bun.NewDB(sqldb, pgdialect.New())

	m := migrate.NewMigrator(db, Migrations)
	if err := m.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Lock(ctx); err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}
	defer func() { _ = m.Unlock(ctx) }()

	group, err := m.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if group.IsZero() {
		log.WithField("schema", schema).Info("database schema up to date")
		return nil
	}
	log.WithFields(logrus.Fields{"schema": schema, "group": group.String()}).Info("database migrated")
	return nil
}

func normalizeSchema(schema string) string {
	if s := strings.TrimSpace(schema); s != "" {
		return s
	}
	return "public"
}

// scopedConfig copies base with search_path pinned to schema.
func scopedConfig(base *pgxpool.Config, schema string) *pgxpool.Config {
	cfg := base.Copy()
	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = pgx.Identifier{schema}.Sanitize()
	cfg.MaxConns = 2
	cfg.MinConns = 0
	return cfg
}
