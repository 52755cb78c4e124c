package database

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/chat-moderation/internal/infra/config"
)

func TestDSNEscapesCredentials(t *testing.T) {
	dsn := DSN(config.PostgresSettings{
		Host:     "db.internal",
		Port:     5432,
		User:     "chat",
		Password: "p@ss/word",
		Database: "chat",
		SSLMode:  "require",
	})

	parsed, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("ParseConfig(%q): %v", dsn, err)
	}
	if parsed.ConnConfig.Password != "p@ss/word" {
		t.Fatalf("password not preserved: %q", parsed.ConnConfig.Password)
	}
	if parsed.ConnConfig.Host != "db.internal" || parsed.ConnConfig.Port != 5432 {
		t.Fatalf("unexpected host/port: %s:%d", parsed.ConnConfig.Host, parsed.ConnConfig.Port)
	}
	if parsed.ConnConfig.Database != "chat" {
		t.Fatalf("unexpected database %q", parsed.ConnConfig.Database)
	}
}

func TestPoolConfigAppliesLimitsAndSession(t *testing.T) {
	cfg := config.PostgresSettings{
		Host:            "localhost",
		Port:            5432,
		User:            "chat",
		Password:        "secret",
		Database:        "chat",
		SSLMode:         "disable",
		MaxConns:        8,
		MinConns:        20,
		MaxConnLifetime: time.Hour,
	}

	poolConfig, err := PoolConfig(cfg, "chat-moderation")
	if err != nil {
		t.Fatalf("PoolConfig returned error: %v", err)
	}
	if poolConfig.MaxConns != 8 || poolConfig.MinConns != 8 {
		t.Fatalf("expected min conns clamped to max, got max=%d min=%d", poolConfig.MaxConns, poolConfig.MinConns)
	}
	if poolConfig.MaxConnLifetime != time.Hour {
		t.Fatalf("unexpected lifetime %s", poolConfig.MaxConnLifetime)
	}

	params := poolConfig.ConnConfig.RuntimeParams
	if params["search_path"] != "chat,public" {
		t.Fatalf("unexpected search_path %q", params["search_path"])
	}
	if params["application_name"] != "chat-moderation" {
		t.Fatalf("unexpected application_name %q", params["application_name"])
	}
}
