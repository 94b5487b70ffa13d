// Package config loads process configuration from the environment, with an
// optional .env file for local runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Client configures the storefront client.
type Client struct {
	BaseURL   string        `env:"STOREFRONT_BASE_URL,default=https://localhost:8443"`
	TokenFile string        `env:"STOREFRONT_TOKEN_FILE"`
	PageLimit int           `env:"STOREFRONT_PAGE_LIMIT,default=10"`
	Debounce  time.Duration `env:"STOREFRONT_DEBOUNCE,default=300ms"`
	LogLevel  string        `env:"LOG_LEVEL,default=info"`
}

// Server configures the cart API.
type Server struct {
	Addr        string        `env:"API_ADDR,default=:8443"`
	DatabaseURL string        `env:"DATABASE_URL"`
	RedisAddr   string        `env:"REDIS_ADDR"`
	OtelHost    string        `env:"OTEL_HOST"`
	SampleRate  float64       `env:"OTEL_SAMPLE_RATE,default=1"`
	TLSCert     string        `env:"TLS_CERT"`
	TLSKey      string        `env:"TLS_KEY"`
	SessionTTL  time.Duration `env:"SESSION_TTL,default=1h"`
	LogLevel    string        `env:"LOG_LEVEL,default=info"`
}

// TLS reports whether both a certificate and a key are configured.
func (s Server) TLS() bool {
	return s.TLSCert != "" && s.TLSKey != ""
}

// LoadClient reads Client settings. envFile, when non-empty, is loaded
// first; a missing file is ignored.
func LoadClient(envFile string) (Client, error) {
	var c Client
	if err := load(envFile, &c); err != nil {
		return Client{}, err
	}
	if c.PageLimit < 1 {
		return Client{}, fmt.Errorf("STOREFRONT_PAGE_LIMIT must be positive, got %d", c.PageLimit)
	}
	if c.Debounce < 0 {
		return Client{}, fmt.Errorf("STOREFRONT_DEBOUNCE must not be negative, got %s", c.Debounce)
	}
	return c, nil
}

// LoadServer reads Server settings. envFile, when non-empty, is loaded
// first; a missing file is ignored.
func LoadServer(envFile string) (Server, error) {
	var s Server
	if err := load(envFile, &s); err != nil {
		return Server{}, err
	}
	if (s.TLSCert == "") != (s.TLSKey == "") {
		return Server{}, errors.New("TLS_CERT and TLS_KEY must be set together")
	}
	if s.SampleRate < 0 || s.SampleRate > 1 {
		return Server{}, fmt.Errorf("OTEL_SAMPLE_RATE must be within [0,1], got %v", s.SampleRate)
	}
	return s, nil
}

func load(envFile string, target any) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env (%s): %w", envFile, err)
		}
	}
	if err := envdecode.Decode(target); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("decode env: %w", err)
	}
	return nil
}
