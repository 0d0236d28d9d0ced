package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "judge.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
mysql:
  dsn: "user:pass@tcp(localhost:3306)/gavel"
redis:
  addr: "localhost:6379"
queue:
  kafka:
    brokers: ["localhost:9092"]
`

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.Server.Addr)
	}
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Fatalf("expected default shutdown timeout, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Queue.Topic != "judge.submissions" {
		t.Fatalf("expected default topic, got %q", cfg.Queue.Topic)
	}
	if cfg.Judge.WorkRoot == "" {
		t.Fatal("expected default work root")
	}
}

func TestLoadConfigValidation(t *testing.T) {
	path := writeConfig(t, `
redis:
  addr: "localhost:6379"
queue:
  kafka:
    brokers: ["localhost:9092"]
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("config without mysql dsn must be rejected")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	t.Setenv("GAVEL_MYSQL_DSN", "override:secret@tcp(db:3306)/gavel")
	t.Setenv("GAVEL_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MySQL.DSN != "override:secret@tcp(db:3306)/gavel" {
		t.Fatalf("dsn override not applied: %q", cfg.MySQL.DSN)
	}
	if len(cfg.Queue.Kafka.Brokers) != 2 || cfg.Queue.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("broker override not applied: %v", cfg.Queue.Kafka.Brokers)
	}
}

func TestLoadConfigLimits(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
judge:
  limits:
    wall_time_ms: 2000
    memory_mb: 64
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	limits := cfg.Judge.Limits.ToResourceLimit().Normalize()
	if limits.WallTimeMs != 2000 || limits.MemoryMB != 64 {
		t.Fatalf("explicit limits lost: %+v", limits)
	}
	if limits.CPUQuota != 50000 || limits.PIDs != 16 {
		t.Fatalf("unset limits must normalize to defaults: %+v", limits)
	}
}
