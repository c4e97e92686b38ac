package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// devJWTSigningKey is used when no key is configured. Production deployments
// must override it; Validate refuses it outside development.
const devJWTSigningKey = "dev-secret-key-change-in-production"

// Config is the full service configuration. Values come from an optional
// YAML file, then environment variables override individual fields.
type Config struct {
	Environment string      `yaml:"environment"`
	Server      Server      `yaml:"server"`
	Auth        Auth        `yaml:"auth"`
	Database    Database    `yaml:"database"`
	Redis       RedisConfig `yaml:"redis"`
	Kafka       Kafka       `yaml:"kafka"`
	Log         Log         `yaml:"log"`
	Audit       Audit       `yaml:"audit"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Auth struct {
	JWTSigningKey  string        `yaml:"jwt_signing_key"`
	JWTIssuer      string        `yaml:"jwt_issuer"`
	JWTAudience    string        `yaml:"jwt_audience"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	// AdminAPIToken guards registry administration. Empty disables it.
	AdminAPIToken string `yaml:"admin_api_token"`
}

// Database selects the durable backend. An empty URL runs on in-memory
// stores.
type Database struct {
	URL string `yaml:"url"`
}

// RedisConfig configures the site owner cache. An empty URL disables it.
type RedisConfig struct {
	URL           string        `yaml:"url"`
	PoolSize      int           `yaml:"pool_size"`
	MinIdleConns  int           `yaml:"min_idle_conns"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	OwnerCacheTTL time.Duration `yaml:"owner_cache_ttl"`
}

// Kafka configures the composition event stream. No brokers disables it.
type Kafka struct {
	Brokers           []string      `yaml:"brokers"`
	Topic             string        `yaml:"topic"`
	ClientID          string        `yaml:"client_id"`
	Partitions        int32         `yaml:"partitions"`
	ReplicationFactor int16         `yaml:"replication_factor"`
	BreakerThreshold  int           `yaml:"breaker_threshold"`
	BreakerCooldown   time.Duration `yaml:"breaker_cooldown"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Audit struct {
	BufferSize int `yaml:"buffer_size"`
}

// Default returns the development configuration.
func Default() *Config {
	return &Config{
		Environment: "development",
		Server: Server{
			Addr:            ":8080",
			RequestTimeout:  15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: Auth{
			JWTSigningKey:  devJWTSigningKey,
			JWTIssuer:      "ezweb",
			JWTAudience:    "ezweb-api",
			AccessTokenTTL: time.Hour,
		},
		Redis: RedisConfig{
			PoolSize:      10,
			MinIdleConns:  2,
			DialTimeout:   5 * time.Second,
			ReadTimeout:   3 * time.Second,
			WriteTimeout:  3 * time.Second,
			OwnerCacheTTL: 5 * time.Minute,
		},
		Kafka: Kafka{
			Topic:             "ezweb.composition.events",
			ClientID:          "ezweb",
			Partitions:        3,
			ReplicationFactor: 1,
			BreakerThreshold:  5,
			BreakerCooldown:   30 * time.Second,
		},
		Log:   Log{Level: "info", Format: "json"},
		Audit: Audit{BufferSize: 1024},
	}
}

// Load reads path (when not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("EZWEB_ENV", &c.Environment)
	str("EZWEB_ADDR", &c.Server.Addr)
	str("DATABASE_URL", &c.Database.URL)
	str("REDIS_URL", &c.Redis.URL)
	str("JWT_SIGNING_KEY", &c.Auth.JWTSigningKey)
	str("JWT_ISSUER", &c.Auth.JWTIssuer)
	str("JWT_AUDIENCE", &c.Auth.JWTAudience)
	str("ADMIN_API_TOKEN", &c.Auth.AdminAPIToken)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v, ok := lookup("AUDIT_BUFFER_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUDIT_BUFFER_SIZE: %w", err)
		}
		c.Audit.BufferSize = n
	}
	return errors.Join(
		dur("REQUEST_TIMEOUT", &c.Server.RequestTimeout),
		dur("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout),
		dur("ACCESS_TOKEN_TTL", &c.Auth.AccessTokenTTL),
		dur("OWNER_CACHE_TTL", &c.Redis.OwnerCacheTTL),
	)
}

// Validate checks required values and rejects development secrets outside
// development.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Auth.JWTSigningKey == "" {
		return errors.New("auth.jwt_signing_key is required")
	}
	if !c.IsDevelopment() && c.Auth.JWTSigningKey == devJWTSigningKey {
		return errors.New("JWT_SIGNING_KEY must be set outside development")
	}
	if c.Server.RequestTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when brokers are set")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "" || c.Environment == "development"
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
