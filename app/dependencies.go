package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/upb/session-auth/auth"
	"github.com/upb/session-auth/config"
	"github.com/upb/session-auth/handlers"
	"github.com/upb/session-auth/middleware"
	"github.com/upb/session-auth/services"
	"github.com/upb/session-auth/session"
	"github.com/upb/session-auth/subject"
	"github.com/upb/session-auth/token"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	Redis  *redis.Client

	// Auth
	Tokens         *token.Handler
	Provider       *services.OIDCProvider
	Sessions       *session.Manager
	AuthController *auth.Controller
	SessionAuth    *middleware.SessionAuth
	Extractor      *middleware.Extractor

	// Handlers
	HealthHandler *handlers.HealthHandler
	HelloHandler  *handlers.HelloHandler

	pingers map[string]handlers.Pinger
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		pingers: make(map[string]handlers.Pinger),
	}

	tokens, err := token.NewHandler(NewPolicy(&cfg.OIDC), cfg.OIDC.ClientSecret, logger.Named("token"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token handler: %w", err)
	}
	deps.Tokens = tokens

	if err := deps.initSessions(ctx, cfg); err != nil {
		deps.closeRedis()
		return nil, fmt.Errorf("failed to initialize sessions: %w", err)
	}

	provider, err := services.NewOIDCProvider(ctx, services.ProviderConfig{
		Domain:       cfg.OIDC.Domain,
		ClientID:     cfg.OIDC.ClientID,
		ClientSecret: cfg.OIDC.ClientSecret,
		Discovery:    cfg.OIDC.Discovery,
		Issuer:       cfg.OIDC.Issuer,
	}, logger.Named("oidc"))
	if err != nil {
		deps.closeRedis()
		return nil, fmt.Errorf("failed to initialize oidc provider: %w", err)
	}
	deps.Provider = provider

	if err := deps.initAuth(cfg); err != nil {
		deps.closeRedis()
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	deps.HealthHandler = handlers.NewHealthHandler(deps.pingers, logger)
	deps.HelloHandler = handlers.NewHelloHandler(deps.Extractor, logger)

	logger.Info("all dependencies initialized successfully",
		zap.String("session_store", cfg.Session.Store),
		zap.String("subject_policy", cfg.OIDC.SubjectPolicy),
		zap.Bool("production", cfg.IsProduction()))
	return deps, nil
}

// NewPolicy builds the Subject policy selected by configuration
func NewPolicy(cfg *config.OIDCConfig) token.Policy {
	var policy token.Policy
	switch cfg.SubjectPolicy {
	case "claims":
		policy = token.ClaimsPolicy(cfg.ClaimsNamespace)
	default:
		ns := cfg.ClaimsNamespace
		policy = token.EmailPolicy(func(tok *token.Token, userID, email string) (subject.Subject, error) {
			return subject.NewClaims(userID, email, tok.Claims, ns), nil
		})
	}

	if cfg.RequiredClaim != "" {
		policy = token.RequireClaim(cfg.ClaimsNamespace+cfg.RequiredClaim, policy)
	}
	return policy
}

// initSessions builds the configured session store and the manager around it
func (d *Dependencies) initSessions(ctx context.Context, cfg *config.Config) error {
	secret := cfg.Session.HashKey
	if secret == "" {
		secret = cfg.OIDC.ClientSecret
	}
	hashKey, blockKey := session.DeriveKeys(secret)
	opts := session.DefaultOptions(cfg.Session.MaxAge, cfg.IsProduction() || cfg.OIDC.ForceHTTPS)

	var store sessions.Store
	switch cfg.Session.Store {
	case "redis":
		d.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisStore := session.NewRedisStore(d.Redis, cfg.Redis.KeyPrefix, opts, hashKey, blockKey)
		if err := redisStore.Ping(ctx); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		d.pingers["redis"] = redisStore
		store = redisStore
		d.Logger.Info("redis session store connected", zap.String("addr", cfg.Redis.Addr))
	default:
		store = session.NewCookieStore(opts, hashKey, blockKey)
	}

	d.Sessions = session.NewManager(store, cfg.Session.Name, d.Logger.Named("session"))
	return nil
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	var verifier auth.Verifier
	switch cfg.OIDC.IDTokenVerification {
	case "hmac":
		verifier = d.Tokens
	case "discovery":
		if !d.Provider.CanVerify() {
			return services.ErrVerificationUnavailable
		}
		verifier = d.Provider
	}

	d.AuthController = auth.NewController(d.Tokens, d.Provider, d.Sessions, auth.Options{
		BasePath:       cfg.Auth.BasePath,
		LoggedOutPage:  cfg.OIDC.LoggedOutPage(),
		ForceHTTPS:     cfg.OIDC.ForceHTTPS,
		Production:     cfg.IsProduction(),
		SimulateClaims: cfg.SimulateClaimValues(),
		Verifier:       verifier,
	}, d.Logger.Named("auth"))

	d.SessionAuth = middleware.NewSessionAuth(d.Tokens, d.Sessions, middleware.FilterConfig{
		LoginPath:    d.AuthController.LoginPath(),
		SimulatePath: d.AuthController.SimulatePath(),
		Production:   cfg.IsProduction(),
	}, d.Logger.Named("filter"))

	d.Extractor = middleware.NewExtractor(d.Tokens, d.Sessions, d.Logger)

	if cfg.IsProduction() {
		d.Logger.Info("auth controller initialized")
		return nil
	}
	d.Logger.Warn("simulate login enabled", zap.String("path", d.AuthController.SimulatePath()))
	return nil
}

func (d *Dependencies) closeRedis() error {
	if d.Redis == nil {
		return nil
	}
	return d.Redis.Close()
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if err := d.closeRedis(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
	} else if d.Redis != nil {
		d.Logger.Info("redis connection closed")
	}

	// Sync logger
	_ = d.Logger.Sync()

	return errors.Join(errs...)
}
