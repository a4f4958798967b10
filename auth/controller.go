package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/upb/session-auth/handlers"
	"github.com/upb/session-auth/services"
	"github.com/upb/session-auth/session"
	"github.com/upb/session-auth/token"
	"github.com/upb/session-auth/utils"
	"go.uber.org/zap"
)

// Provider is the identity provider client used by the controller
type Provider interface {
	AuthorizeURL(callbackURL, scope string) string
	Exchange(ctx context.Context, code, callbackURL string) (*services.TokenSet, error)
	LogoutURL(returnTo string) string
}

// Verifier checks an ID token signature right after the code exchange
type Verifier interface {
	Verify(ctx context.Context, raw string) error
}

// Options configures the controller
type Options struct {
	// BasePath is where Routes is mounted, e.g. "/auth"
	BasePath string
	// LoggedOutPage is where the logged-out action sends the browser. Empty renders a
	// plain confirmation instead.
	LoggedOutPage string
	// ForceHTTPS builds callback and logout URLs with https whatever the inbound scheme
	ForceHTTPS bool
	// Production removes the simulate routes
	Production bool
	// SimulateClaims are stamped on every simulated token
	SimulateClaims map[string]interface{}
	// Verifier, when set, checks ID tokens returned by the provider
	Verifier Verifier
}

// Controller drives the login, callback and logout flow
type Controller struct {
	tokens   *token.Handler
	provider Provider
	sessions *session.Manager
	opts     Options
	logger   *zap.Logger
}

// NewController creates a new auth controller
func NewController(tokens *token.Handler, provider Provider, sessions *session.Manager, opts Options, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.BasePath = strings.TrimSuffix(opts.BasePath, "/")
	return &Controller{
		tokens:   tokens,
		provider: provider,
		sessions: sessions,
		opts:     opts,
		logger:   logger,
	}
}

// LoginPath returns the path of the login action
func (c *Controller) LoginPath() string {
	return c.opts.BasePath + "/login"
}

// SimulatePath returns the path of the simulate form, empty in production
func (c *Controller) SimulatePath() string {
	if c.opts.Production {
		return ""
	}
	return c.opts.BasePath + "/simulate"
}

// HandleLogin redirects to the provider authorization endpoint
func (c *Controller) HandleLogin(w http.ResponseWriter, r *http.Request) {
	authURL := c.provider.AuthorizeURL(c.absoluteURL(r, "/callback"), c.tokens.Scope())
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback exchanges the authorization code and stores the ID token in the session
func (c *Controller) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Has("error") {
		description := q.Get("error_description")
		if description == "" {
			description = q.Get("error")
		}
		c.logger.Warn("provider returned an error",
			zap.String("error", q.Get("error")),
			zap.String("description", description))
		handlers.HandleServiceError(w, services.Forbidden(description, nil), c.logger)
		return
	}

	code := q.Get("code")
	if code == "" {
		handlers.HandleServiceError(w, services.ErrNoAuthorizationCode, c.logger)
		return
	}

	set, err := c.provider.Exchange(r.Context(), code, c.absoluteURL(r, "/callback"))
	if err != nil {
		if services.GetErrorType(err) == "" {
			err = services.WrapInternal("token exchange failed", err)
		}
		handlers.HandleServiceError(w, err, c.logger)
		return
	}

	if c.opts.Verifier != nil {
		if err := c.opts.Verifier.Verify(r.Context(), set.IDToken); err != nil {
			handlers.HandleServiceError(w, services.Forbidden("Invalid ID token", err), c.logger)
			return
		}
	}

	c.establish(w, r, set.IDToken, set.ExpiresIn)
}

// HandleLogout clears the session and leaves through the provider when a token was held
func (c *Controller) HandleLogout(w http.ResponseWriter, r *http.Request) {
	s := c.sessions.Load(r)
	hadToken := s.Get(session.KeyIDToken) != ""

	s.Invalidate()
	if err := s.Save(w, r); err != nil {
		c.logger.Error("failed to clear session", zap.Error(err))
	}

	loggedOut := c.absoluteURL(r, "/out")
	if hadToken {
		http.Redirect(w, r, c.provider.LogoutURL(loggedOut), http.StatusFound)
		return
	}
	http.Redirect(w, r, loggedOut, http.StatusFound)
}

// HandleLoggedOut is the post-logout landing action
func (c *Controller) HandleLoggedOut(w http.ResponseWriter, r *http.Request) {
	if c.opts.LoggedOutPage != "" {
		http.Redirect(w, r, c.opts.LoggedOutPage, http.StatusFound)
		return
	}
	if err := utils.WriteText(w, http.StatusOK, "Logged Out"); err != nil {
		c.logger.Error("failed to write logged out page", zap.Error(err))
	}
}

// establish validates the ID token, stores it and resumes the pending request
func (c *Controller) establish(w http.ResponseWriter, r *http.Request, idToken string, expiresIn int) {
	subj, err := c.tokens.BuildSubject(idToken)
	if err != nil {
		handlers.HandleServiceError(w, services.Forbidden(err.Error(), err), c.logger)
		return
	}

	s := c.sessions.Load(r)
	s.Put(session.KeyIDToken, idToken)
	s.SetExpiry(expiresIn)
	target := s.Pop(session.KeyTargetURL)

	if err := s.Save(w, r); err != nil {
		handlers.HandleServiceError(w, services.WrapInternal("failed to save session", err), c.logger)
		return
	}

	c.logger.Debug("id token stored, resuming request",
		zap.String("sub", subj.UserID()),
		zap.String("target", target))

	http.Redirect(w, r, safeTarget(target), http.StatusFound)
}

// absoluteURL builds a URL under the controller base path for the provider to call back
func (c *Controller) absoluteURL(r *http.Request, path string) string {
	scheme := "http"
	if c.opts.ForceHTTPS || r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + c.opts.BasePath + path
}

// safeTarget only follows local paths
func safeTarget(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}
