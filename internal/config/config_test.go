package config

import (
	"testing"
	"time"
)

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("JWT_SECRET_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error without JWT_SECRET_KEY")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("JWT_SECRET_KEY", "0123456789abcdef0123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8800" {
		t.Errorf("ListenAddr = %q, want :8800", cfg.Server.ListenAddr)
	}
	if cfg.WebSocket.WorkerPoolSize != 256 {
		t.Errorf("WorkerPoolSize = %d, want 256", cfg.WebSocket.WorkerPoolSize)
	}
	if cfg.WebSocket.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 30s", cfg.WebSocket.HeartbeatInterval)
	}
	if cfg.Presence.Policy != "first_writer" {
		t.Errorf("Presence.Policy = %q, want first_writer", cfg.Presence.Policy)
	}
	if cfg.NATS.Enabled {
		t.Error("NATS should be disabled by default")
	}
	if len(cfg.Security.CORSOrigins) != 1 || cfg.Security.CORSOrigins[0] != "http://localhost:5173" {
		t.Errorf("CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("JWT_SECRET_KEY", "0123456789abcdef0123")
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("WORKER_POOL_SIZE", "32")
	t.Setenv("READ_TIMEOUT", "3s")
	t.Setenv("PRESENCE_POLICY", "last_writer")
	t.Setenv("CLIENT_URL", "https://a.example, https://b.example")
	t.Setenv("REDIS_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q, want :9000", cfg.Server.ListenAddr)
	}
	if cfg.WebSocket.WorkerPoolSize != 32 {
		t.Errorf("WorkerPoolSize = %d, want 32", cfg.WebSocket.WorkerPoolSize)
	}
	if cfg.WebSocket.ReadTimeout != 3*time.Second {
		t.Errorf("ReadTimeout = %v, want 3s", cfg.WebSocket.ReadTimeout)
	}
	if cfg.Presence.Policy != "last_writer" {
		t.Errorf("Presence.Policy = %q, want last_writer", cfg.Presence.Policy)
	}
	if cfg.Redis.Enabled {
		t.Error("Redis.Enabled should be false")
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Security.CORSOrigins) != len(want) {
		t.Fatalf("CORSOrigins = %v, want %v", cfg.Security.CORSOrigins, want)
	}
	for i := range want {
		if cfg.Security.CORSOrigins[i] != want[i] {
			t.Errorf("CORSOrigins[%d] = %q, want %q", i, cfg.Security.CORSOrigins[i], want[i])
		}
	}
}

func TestLoad_RejectsUnknownPolicy(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("JWT_SECRET_KEY", "0123456789abcdef0123")
	t.Setenv("PRESENCE_POLICY", "fan_out")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for unknown presence policy")
	}
}

func TestEnvTransformFunc(t *testing.T) {
	if got := envTransformFunc("DATABASE_URL"); got != "database.url" {
		t.Errorf("DATABASE_URL -> %q, want database.url", got)
	}
	if got := envTransformFunc("HOME"); got != "" {
		t.Errorf("unmapped HOME -> %q, want empty", got)
	}
}
