package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/upb/session-auth/utils"
)

// LoggedOutText is the OIDC_LOGGED_OUT value that renders a plain confirmation
// instead of redirecting
const LoggedOutText = "none"

// Config represents the complete application configuration
type Config struct {
	Environment    string            `env:"ENVIRONMENT" envDefault:"development"`
	Server         ServerConfig      `envPrefix:"SERVER_"`
	OIDC           OIDCConfig        `envPrefix:"OIDC_"`
	Auth           AuthConfig        `envPrefix:"AUTH_"`
	SimulateClaims map[string]string `env:"SIMULATE_CLAIMS" envKeyValSeparator:"="`
	Session        SessionConfig     `envPrefix:"SESSION_"`
	Redis          RedisConfig       `envPrefix:"REDIS_"`
	Observability  ObservabilityConfig
	CORS           CORSConfig `envPrefix:"CORS_"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080" validate:"gt=0"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// OIDCConfig holds the identity provider client configuration
type OIDCConfig struct {
	Domain       string `env:"DOMAIN" validate:"required"`
	ClientID     string `env:"CLIENT_ID" validate:"required"`
	ClientSecret string `env:"CLIENT_SECRET" validate:"required"`
	LoggedOut    string `env:"LOGGED_OUT" envDefault:"/"`
	ForceHTTPS   bool   `env:"FORCE_HTTPS" envDefault:"false"`

	ClaimsNamespace string `env:"CLAIMS_NAMESPACE"`
	SubjectPolicy   string `env:"SUBJECT_POLICY" envDefault:"email" validate:"oneof=claims email"`
	RequiredClaim   string `env:"REQUIRED_CLAIM"`

	IDTokenVerification string `env:"ID_TOKEN_VERIFICATION" envDefault:"none" validate:"oneof=none hmac discovery"`
	Discovery           bool   `env:"DISCOVERY" envDefault:"false"`
	Issuer              string `env:"ISSUER"`
}

// AuthConfig holds the auth route configuration
type AuthConfig struct {
	BasePath string `env:"BASE_PATH" envDefault:"/auth"`
}

// SessionConfig holds session store configuration
type SessionConfig struct {
	Store   string        `env:"STORE" envDefault:"cookie" validate:"oneof=cookie redis"`
	Name    string        `env:"NAME" envDefault:"oidc_session" validate:"required"`
	HashKey string        `env:"HASH_KEY"`
	MaxAge  time.Duration `env:"MAX_AGE" envDefault:"24h" validate:"gt=0"`
}

// RedisConfig holds the Redis session store configuration
type RedisConfig struct {
	Addr      string `env:"ADDR" envDefault:"localhost:6379"`
	Password  string `env:"PASSWORD"`
	DB        int    `env:"DB" envDefault:"0"`
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"session:"`
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" validate:"required"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json console text"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:*"`
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks struct constraints and the cross-field rules
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}

	if c.OIDC.IDTokenVerification == "discovery" && !c.OIDC.Discovery {
		return errors.New("OIDC_ID_TOKEN_VERIFICATION=discovery requires OIDC_DISCOVERY=true")
	}

	if c.Session.Store == "redis" && c.Redis.Addr == "" {
		return errors.New("redis address is required for the redis session store")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// LoggedOutPage returns the post-logout landing path, empty when the plain
// confirmation should be rendered
func (c *OIDCConfig) LoggedOutPage() string {
	if c.LoggedOut == LoggedOutText {
		return ""
	}
	return c.LoggedOut
}

// SimulateClaimValues returns the extra simulated claims in the shape the token
// handler stamps
func (c *Config) SimulateClaimValues() map[string]interface{} {
	out := make(map[string]interface{}, len(c.SimulateClaims))
	for k, v := range c.SimulateClaims {
		out[k] = v
	}
	return out
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
