package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "RENTALDESK_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Auth      AuthConfig      `koanf:"auth"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Redis     RedisConfig     `koanf:"redis"`
	Storage   StorageConfig   `koanf:"storage"`
	Tracing   TracingConfig   `koanf:"tracing"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	CORS      CORSConfig      `koanf:"cors"`
	Audit     AuditConfig     `koanf:"audit"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	URL      string `koanf:"url"`
	MaxConns int    `koanf:"maxconns"`
	Migrate  bool   `koanf:"migrate"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type AuthConfig struct {
	JWT JWTConfig `koanf:"jwt"`
}

type JWTConfig struct {
	SigningKey         string `koanf:"signingkey"`
	Issuer             string `koanf:"issuer"`
	ExpiryHours        int    `koanf:"expiryhours"`
	RefreshExpiryHours int    `koanf:"refreshexpiryhours"`
}

// RateLimitConfig throttles login and refresh per client address.
type RateLimitConfig struct {
	Backend       string        `koanf:"backend"` // "memory" or "redis"
	Requests      int           `koanf:"requests"`
	Window        time.Duration `koanf:"window"`
	SweepInterval time.Duration `koanf:"sweepinterval"`
	// TrustedProxies lists peers whose X-Forwarded-For is believed.
	TrustedProxies []string `koanf:"trustedproxies"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// StorageConfig points at the S3-compatible bucket for car photos. Upload
// routes answer 503 while Bucket is empty.
type StorageConfig struct {
	Bucket          string        `koanf:"bucket"`
	Region          string        `koanf:"region"`
	Endpoint        string        `koanf:"endpoint"`
	AccessKeyID     string        `koanf:"accesskeyid"`
	SecretAccessKey string        `koanf:"secretaccesskey"`
	MaxSizeMB       int           `koanf:"maxsizemb"`
	URLExpiry       time.Duration `koanf:"urlexpiry"`
}

type TracingConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Exporter     string  `koanf:"exporter"`
	Endpoint     string  `koanf:"endpoint"`
	Insecure     bool    `koanf:"insecure"`
	SamplingRate float64 `koanf:"samplingrate"`
	Environment  string  `koanf:"environment"`
}

type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowedorigins"`
}

// AuditConfig switches audit writes to a buffered background sink.
type AuditConfig struct {
	Async         bool          `koanf:"async"`
	BufferSize    int           `koanf:"buffersize"`
	BatchSize     int           `koanf:"batchsize"`
	FlushInterval time.Duration `koanf:"flushinterval"`
}

func Load(configPaths ...string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	_ = k.Load(confmap.Provider(map[string]any{
		"server.host":                 "0.0.0.0",
		"server.port":                 8080,
		"database.maxconns":           25,
		"database.migrate":            true,
		"log.level":                   "info",
		"log.format":                  "json",
		"auth.jwt.issuer":             "rentaldesk",
		"auth.jwt.expiryhours":        1,
		"auth.jwt.refreshexpiryhours": 168,
		"ratelimit.backend":           "memory",
		"ratelimit.requests":          10,
		"ratelimit.window":            "1m",
		"ratelimit.sweepinterval":     "5m",
		"redis.addr":                  "localhost:6379",
		"storage.region":              "us-east-1",
		"storage.maxsizemb":           10,
		"storage.urlexpiry":           "5m",
		"tracing.exporter":            "otlp-http",
		"tracing.samplingrate":        1.0,
		"tracing.environment":         "development",
		"metrics.enabled":             true,
		"audit.async":                 false,
		"audit.buffersize":            4096,
		"audit.batchsize":             100,
		"audit.flushinterval":         "500ms",
	}, "."), nil)

	// YAML file (optional)
	for _, path := range configPaths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			continue
		}
	}

	// Environment variables override everything
	// RENTALDESK_SERVER_PORT -> server.port
	_ = k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, envPrefix)), "_", ".")
		if key == "cors.allowedorigins" {
			return key, strings.Split(value, ",")
		}
		return key, value
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if len(c.Auth.JWT.SigningKey) < 32 {
		errs = append(errs, errors.New("auth.jwt.signingkey must be at least 32 characters"))
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("ratelimit.backend must be memory or redis, got %q", c.RateLimit.Backend))
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("ratelimit.requests and ratelimit.window must be positive"))
	}
	return errors.Join(errs...)
}
