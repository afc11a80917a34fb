// Package config loads application settings from built-in defaults, an
// optional YAML file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the server binary.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	WebSocket WebSocketConfig `koanf:"websocket"`
	Presence  PresenceConfig  `koanf:"presence"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	NATS      NATSConfig      `koanf:"nats"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	ListenAddr      string        `koanf:"listen_addr" validate:"required"`
	Name            string        `koanf:"name" validate:"required"` // instance name stored on sessions
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// WebSocketConfig tunes the realtime transport.
type WebSocketConfig struct {
	WorkerPoolSize    int           `koanf:"worker_pool_size" validate:"gt=0"`
	MaxConnections    int           `koanf:"max_connections" validate:"gt=0"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval" validate:"gt=0"`
	HeartbeatTimeout  time.Duration `koanf:"heartbeat_timeout" validate:"gt=0"`
}

// PresenceConfig selects how a second connection for an already-present
// user is treated: "first_writer" keeps the original route, "last_writer"
// replaces it.
type PresenceConfig struct {
	Policy string `koanf:"policy" validate:"oneof=first_writer last_writer"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// RedisConfig backs connection sessions and rate limiting. Both degrade to
// no-ops when disabled.
type RedisConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr" validate:"required_if=Enabled true"`
}

// NATSConfig backs domain event publishing.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url" validate:"required_if=Enabled true"`
}

type SecurityConfig struct {
	JWTSecret    string        `koanf:"jwt_secret" validate:"required,min=16"`
	TokenTTL     time.Duration `koanf:"token_ttl" validate:"gt=0"`
	CORSOrigins  []string      `koanf:"cors_origins"`
	SecureCookie bool          `koanf:"secure_cookie"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

var validate = validator.New()

// Validate checks field constraints declared in struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
