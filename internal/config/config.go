// Package config builds the process configuration once at start-up. The
// resulting *Config is passed explicitly to every constructor that needs it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minJWTSecretLen = 32

type Config struct {
	Addr        string
	Environment string
	ServiceName string

	LogLevel  string
	LogFormat string

	DatabaseURL string

	JWTSecret string
	JWTLeeway time.Duration

	CORSOrigins    []string
	RequestTimeout time.Duration

	// Process-wide token bucket; RateLimitRPS <= 0 disables it.
	RateLimitRPS   float64
	RateLimitBurst int

	// Per-caller fixed window backed by Redis; empty RedisAddr disables it.
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	UserRateLimit  int
	UserRateWindow time.Duration

	TracingExporter string
	OTLPEndpoint    string
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv and validates it.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}

	cfg := &Config{
		Addr:            p.getString("APP_ADDR", ":8080"),
		Environment:     p.getString("ENVIRONMENT", "development"),
		ServiceName:     p.getString("SERVICE_NAME", "tasks-api"),
		LogLevel:        strings.ToLower(p.getString("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(p.getString("LOG_FORMAT", "json")),
		DatabaseURL:     p.getString("DATABASE_URL", ""),
		JWTSecret:       getenv("JWT_SECRET"),
		JWTLeeway:       p.getDuration("JWT_LEEWAY", 0),
		CORSOrigins:     p.getList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		RequestTimeout:  p.getDuration("REQUEST_TIMEOUT", 15*time.Second),
		RateLimitRPS:    p.getFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst:  p.getInt("RATE_LIMIT_BURST", 20),
		RedisAddr:       p.getString("REDIS_ADDR", ""),
		RedisPassword:   getenv("REDIS_PASSWORD"),
		RedisDB:         p.getInt("REDIS_DB", 0),
		UserRateLimit:   p.getInt("USER_RATE_LIMIT", 60),
		UserRateWindow:  p.getDuration("USER_RATE_WINDOW", time.Minute),
		TracingExporter: strings.ToLower(p.getString("TRACING_EXPORTER", "none")),
		OTLPEndpoint:    p.getString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is not set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	} else if len(c.JWTSecret) < minJWTSecretLen {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters long", minJWTSecretLen))
	}
	switch c.TracingExporter {
	case "none", "stdout", "otlp":
	default:
		errs = append(errs, fmt.Errorf("TRACING_EXPORTER %q is not one of none, stdout, otlp", c.TracingExporter))
	}
	if c.RedisAddr != "" && (c.UserRateLimit <= 0 || c.UserRateWindow <= 0) {
		errs = append(errs, errors.New("USER_RATE_LIMIT and USER_RATE_WINDOW must be positive when REDIS_ADDR is set"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) getString(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) getInt(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) getFloat(key string, def float64) float64 {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (p *parser) getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) getList(key string, def []string) []string {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
