package migrations

import (
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestScopedConfigPinsSearchPath(t *testing.T) {
	base, err := pgxpool.ParseConfig("postgres://prokit@localhost:5432/prokit?sslmode=disable")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg := scopedConfig(base, normalizeSchema(" billing "))
	if got := cfg.ConnConfig.RuntimeParams["search_path"]; got != `"billing"` {
		t.Fatalf("search_path = %q", got)
	}
	if _, ok := base.ConnConfig.RuntimeParams["search_path"]; ok {
		t.Fatalf("base config must not be modified")
	}
	if normalizeSchema("") != "public" {
		t.Fatalf("empty schema should default to public")
	}
}

func TestMigrationsDiscovered(t *testing.T) {
	if n := len(Migrations.Sorted()); n != 3 {
		t.Fatalf("expected 3 migrations, got %d", n)
	}
}
