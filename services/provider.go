package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// ProviderConfig holds configuration for the OIDC provider client
type ProviderConfig struct {
	Domain       string
	ClientID     string
	ClientSecret string
	// Discovery resolves endpoints from {domain}/.well-known/openid-configuration
	// and enables JWKS verification of ID tokens.
	Discovery bool
	// Issuer overrides the expected discovery issuer, {domain}/ by default
	Issuer     string
	HTTPClient *http.Client
}

// TokenSet is the result of a successful code exchange
type TokenSet struct {
	IDToken     string
	AccessToken string
	// ExpiresIn is the token lifetime in seconds, 0 when the provider sent none
	ExpiresIn int
}

// OIDCProvider talks to the identity provider's authorize, token and logout endpoints
type OIDCProvider struct {
	baseURL      string
	clientID     string
	clientSecret string
	endpoint     oauth2.Endpoint
	endSession   string
	verifier     *gooidc.IDTokenVerifier
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewOIDCProvider creates a provider client. Without discovery the Auth0 endpoint
// layout ({domain}/authorize, {domain}/oauth/token) is used.
func NewOIDCProvider(ctx context.Context, cfg ProviderConfig, logger *zap.Logger) (*OIDCProvider, error) {
	if cfg.Domain == "" {
		return nil, errors.New("domain is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	base := baseURL(cfg.Domain)
	p := &OIDCProvider{
		baseURL:      base,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		endpoint: oauth2.Endpoint{
			AuthURL:   base + "/authorize",
			TokenURL:  base + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		httpClient: httpClient,
		logger:     logger,
	}

	if !cfg.Discovery {
		return p, nil
	}

	// Auth0 issuers carry a trailing slash
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = base + "/"
	}
	op, err := gooidc.NewProvider(oidcContext(ctx, httpClient), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	var extra struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := op.Claims(&extra); err != nil {
		return nil, fmt.Errorf("decode discovery document: %w", err)
	}

	p.endpoint = op.Endpoint()
	p.endSession = extra.EndSessionEndpoint
	p.verifier = op.Verifier(&gooidc.Config{ClientID: cfg.ClientID})

	logger.Info("oidc discovery complete",
		zap.String("issuer", issuer),
		zap.String("authorize", p.endpoint.AuthURL),
		zap.Bool("end_session", p.endSession != ""))

	return p, nil
}

func (p *OIDCProvider) oauthConfig(callbackURL, scope string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		Endpoint:     p.endpoint,
		RedirectURL:  callbackURL,
		Scopes:       strings.Fields(scope),
	}
}

// AuthorizeURL builds the provider login URL (response_type=code)
func (p *OIDCProvider) AuthorizeURL(callbackURL, scope string) string {
	return p.oauthConfig(callbackURL, scope).AuthCodeURL("")
}

// Exchange trades an authorization code for tokens. Every failure is internal: the
// provider round trip cannot be recovered from here, only reported.
func (p *OIDCProvider) Exchange(ctx context.Context, code, callbackURL string) (*TokenSet, error) {
	tok, err := p.oauthConfig(callbackURL, "").Exchange(oidcContext(ctx, p.httpClient), code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, NewDomainError(ErrorTypeInternal, "token exchange rejected by provider", err).
				WithDetail("provider_error", retrieveErr.ErrorCode)
		}
		return nil, WrapInternal("token exchange failed", err)
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return nil, WrapInternal("token response carried no id_token", nil)
	}

	set := &TokenSet{IDToken: idToken, AccessToken: tok.AccessToken}
	switch {
	case tok.ExpiresIn > 0:
		set.ExpiresIn = int(tok.ExpiresIn)
	case !tok.Expiry.IsZero():
		set.ExpiresIn = int(time.Until(tok.Expiry).Round(time.Second).Seconds())
	}
	return set, nil
}

// LogoutURL returns the federated logout URL that sends the browser back to returnTo
func (p *OIDCProvider) LogoutURL(returnTo string) string {
	if p.endSession != "" {
		q := url.Values{}
		q.Set("client_id", p.clientID)
		q.Set("post_logout_redirect_uri", returnTo)
		return p.endSession + "?" + q.Encode()
	}

	q := url.Values{}
	q.Set("returnTo", returnTo)
	q.Set("client_id", p.clientID)
	return p.baseURL + "/v2/logout?" + q.Encode() + "&federated"
}

// CanVerify reports whether JWKS verification is available
func (p *OIDCProvider) CanVerify() bool {
	return p.verifier != nil
}

// Verify checks the ID token signature against the provider keys
func (p *OIDCProvider) Verify(ctx context.Context, raw string) error {
	if p.verifier == nil {
		return ErrVerificationUnavailable
	}
	if _, err := p.verifier.Verify(oidcContext(ctx, p.httpClient), raw); err != nil {
		return fmt.Errorf("verify id_token: %w", err)
	}
	return nil
}

func oidcContext(ctx context.Context, client *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

func baseURL(domain string) string {
	domain = strings.TrimSuffix(domain, "/")
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	return "https://" + domain
}
