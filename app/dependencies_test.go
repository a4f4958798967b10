package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/session-auth/config"
	"github.com/upb/session-auth/services"
	"github.com/upb/session-auth/token"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "development",
		OIDC: config.OIDCConfig{
			Domain:              "tenant.example.com",
			ClientID:            "client-1",
			ClientSecret:        "secret-1",
			LoggedOut:           "/",
			SubjectPolicy:       "email",
			IDTokenVerification: "none",
		},
		Auth: config.AuthConfig{BasePath: "/auth"},
		Session: config.SessionConfig{
			Store:  "cookie",
			Name:   "oidc_session",
			MaxAge: 24 * time.Hour,
		},
		Redis: config.RedisConfig{KeyPrefix: "session:"},
		Observability: config.ObservabilityConfig{
			LogLevel:  "debug",
			LogFormat: "console",
		},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("cookie store", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		assert.NotNil(t, deps.Tokens)
		assert.NotNil(t, deps.Provider)
		assert.NotNil(t, deps.Sessions)
		assert.NotNil(t, deps.AuthController)
		assert.NotNil(t, deps.SessionAuth)
		assert.NotNil(t, deps.Extractor)
		assert.NotNil(t, deps.HealthHandler)
		assert.NotNil(t, deps.HelloHandler)
		assert.Nil(t, deps.Redis)
		assert.Empty(t, deps.pingers)

		assert.Equal(t, "/auth/login", deps.AuthController.LoginPath())
		assert.Equal(t, "/auth/simulate", deps.AuthController.SimulatePath())
		assert.Equal(t, "openid email", deps.Tokens.Scope())

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("redis store", func(t *testing.T) {
		ctx := context.Background()
		mini := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.Session.Store = "redis"
		cfg.Redis.Addr = mini.Addr()

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps.Redis)
		assert.Contains(t, deps.pingers, "redis")

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("redis unreachable", func(t *testing.T) {
		mini := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.Session.Store = "redis"
		cfg.Redis.Addr = mini.Addr()
		mini.Close()

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize sessions")
	})

	t.Run("discovery verification without discovery", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.OIDC.IDTokenVerification = "discovery"
		cfg.OIDC.Discovery = false

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Nil(t, deps)
		assert.ErrorIs(t, err, services.ErrVerificationUnavailable)
	})

	t.Run("production hides simulate", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Environment = "production"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.Empty(t, deps.AuthController.SimulatePath())
	})
}

func TestNewPolicy(t *testing.T) {
	verified := &token.Token{Claims: map[string]interface{}{
		"sub":               "u1",
		"email":             "a@example.com",
		"email_verified":    true,
		"https://app/admin": true,
	}}

	t.Run("email policy requires verification", func(t *testing.T) {
		policy := NewPolicy(&config.OIDCConfig{SubjectPolicy: "email"})
		assert.Equal(t, "openid email", policy.Scope())

		_, err := policy.BuildSubject(&token.Token{Claims: map[string]interface{}{"sub": "u1"}}, "u1")
		assert.ErrorIs(t, err, token.ErrEmailNotVerified)

		s, err := policy.BuildSubject(verified, "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", s.UserID())
	})

	t.Run("claims policy", func(t *testing.T) {
		policy := NewPolicy(&config.OIDCConfig{SubjectPolicy: "claims"})
		assert.Equal(t, "openid", policy.Scope())

		s, err := policy.BuildSubject(&token.Token{Claims: map[string]interface{}{"sub": "u1"}}, "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", s.UserID())
	})

	t.Run("required claim is namespaced", func(t *testing.T) {
		policy := NewPolicy(&config.OIDCConfig{
			SubjectPolicy:   "claims",
			ClaimsNamespace: "https://app/",
			RequiredClaim:   "admin",
		})

		_, err := policy.BuildSubject(&token.Token{Claims: map[string]interface{}{"sub": "u1"}}, "u1")
		assert.ErrorIs(t, err, token.ErrMissingClaim)

		_, err = policy.BuildSubject(verified, "u1")
		assert.NoError(t, err)
	})
}
