package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/session-auth/services"
	"github.com/upb/session-auth/session"
	"github.com/upb/session-auth/subject"
	"github.com/upb/session-auth/token"
	"go.uber.org/zap"
)

const (
	testSecret = "client-secret"
	cookieName = "oidc_session"
)

// MockProvider mocks the identity provider client
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) AuthorizeURL(callbackURL, scope string) string {
	return m.Called(callbackURL, scope).String(0)
}

func (m *MockProvider) Exchange(ctx context.Context, code, callbackURL string) (*services.TokenSet, error) {
	args := m.Called(ctx, code, callbackURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TokenSet), args.Error(1)
}

func (m *MockProvider) LogoutURL(returnTo string) string {
	return m.Called(returnTo).String(0)
}

// MockVerifier mocks ID token verification
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, raw string) error {
	return m.Called(ctx, raw).Error(0)
}

type fixture struct {
	provider   *MockProvider
	tokens     *token.Handler
	sessions   *session.Manager
	controller *Controller
	router     chi.Router
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	tokens, err := token.NewHandler(token.EmailPolicy(func(tok *token.Token, userID, email string) (subject.Subject, error) {
		return subject.NewClaims(userID, email, tok.Claims, ""), nil
	}), testSecret, zap.NewNop())
	require.NoError(t, err)

	hashKey, blockKey := session.DeriveKeys(testSecret)
	store := session.NewCookieStore(session.DefaultOptions(time.Hour, false), hashKey, blockKey)
	sessions := session.NewManager(store, cookieName, zap.NewNop())

	if opts.BasePath == "" {
		opts.BasePath = "/auth"
	}
	provider := &MockProvider{}
	c := NewController(tokens, provider, sessions, opts, zap.NewNop())

	r := chi.NewRouter()
	r.Route(opts.BasePath, c.Routes)

	return &fixture{provider: provider, tokens: tokens, sessions: sessions, controller: c, router: r}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) cookieWith(t *testing.T, values map[string]string) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s := f.sessions.Load(req)
	for k, v := range values {
		s.Put(k, v)
	}
	require.NoError(t, s.Save(rec, req))
	return responseCookie(rec)
}

// sessionAfter loads the session the browser holds after the response
func (f *fixture) sessionAfter(t *testing.T, rec *httptest.ResponseRecorder) *session.Session {
	t.Helper()
	c := responseCookie(rec)
	require.NotNil(t, c, "session cookie not set")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	return f.sessions.Load(req)
}

func responseCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	return nil
}

func idToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return raw
}

func verifiedToken(t *testing.T) string {
	return idToken(t, jwt.MapClaims{"sub": "auth0|1", "email": "jane@example.com", "email_verified": true})
}

func TestHandleLogin(t *testing.T) {
	t.Run("redirects to provider with request scheme", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.provider.On("AuthorizeURL", "http://example.com/auth/callback", "openid email").
			Return("https://idp.example.com/authorize?x=1")

		rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://idp.example.com/authorize?x=1", rec.Header().Get("Location"))
		assert.Nil(t, responseCookie(rec))
		f.provider.AssertExpectations(t)
	})

	t.Run("force https overrides observed scheme", func(t *testing.T) {
		f := newFixture(t, Options{ForceHTTPS: true})
		f.provider.On("AuthorizeURL", "https://example.com/auth/callback", "openid email").
			Return("https://idp.example.com/authorize")

		rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))

		assert.Equal(t, http.StatusFound, rec.Code)
		f.provider.AssertExpectations(t)
	})
}

func TestHandleCallback_ProtocolErrors(t *testing.T) {
	f := newFixture(t, Options{})

	t.Run("provider error", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet,
			"/auth/callback?error=access_denied&error_description=User%20cancelled", nil))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "User cancelled")
	})

	t.Run("provider error takes precedence over code", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&error=login_required", nil))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "login_required")
	})

	t.Run("missing code", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/callback", nil))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "No authorization code received")
	})

	f.provider.AssertNotCalled(t, "Exchange", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCallback_ExchangeFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.provider.On("Exchange", mock.Anything, "code-1", "http://example.com/auth/callback").
		Return(nil, errors.New("connection refused"))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=code-1", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Nil(t, responseCookie(rec))
}

func TestHandleCallback_SubjectRejected(t *testing.T) {
	f := newFixture(t, Options{})
	unverified := idToken(t, jwt.MapClaims{"sub": "auth0|1", "email": "jane@example.com", "email_verified": false})
	f.provider.On("Exchange", mock.Anything, "code-1", mock.Anything).
		Return(&services.TokenSet{IDToken: unverified, ExpiresIn: 60}, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=code-1", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "not (yet) verified")
	assert.Nil(t, responseCookie(rec))
}

func TestHandleCallback_VerifierRejects(t *testing.T) {
	verifier := &MockVerifier{}
	f := newFixture(t, Options{Verifier: verifier})
	raw := verifiedToken(t)
	f.provider.On("Exchange", mock.Anything, "code-1", mock.Anything).
		Return(&services.TokenSet{IDToken: raw}, nil)
	verifier.On("Verify", mock.Anything, raw).Return(token.ErrSignature)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=code-1", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	verifier.AssertExpectations(t)
}

func TestHandleCallback_Success(t *testing.T) {
	t.Run("resumes the pending request", func(t *testing.T) {
		f := newFixture(t, Options{})
		raw := verifiedToken(t)
		f.provider.On("Exchange", mock.Anything, "code-1", "http://example.com/auth/callback").
			Return(&services.TokenSet{IDToken: raw, AccessToken: "at", ExpiresIn: 7200}, nil)

		req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=code-1", nil)
		req.AddCookie(f.cookieWith(t, map[string]string{session.KeyTargetURL: "/hello/subject?tab=2"}))
		rec := f.do(req)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/hello/subject?tab=2", rec.Header().Get("Location"))
		assert.Equal(t, 7200, responseCookie(rec).MaxAge)

		s := f.sessionAfter(t, rec)
		assert.Equal(t, raw, s.Get(session.KeyIDToken))
		assert.Equal(t, "", s.Get(session.KeyTargetURL))

		deadline, err := strconv.ParseInt(s.Get(session.KeyExpiresAt), 10, 64)
		require.NoError(t, err)
		assert.InDelta(t, time.Now().Add(2*time.Hour).Unix(), deadline, 2)
	})

	t.Run("falls back to root", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.provider.On("Exchange", mock.Anything, "code-1", mock.Anything).
			Return(&services.TokenSet{IDToken: verifiedToken(t)}, nil)

		rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=code-1", nil))

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
	})

	t.Run("verifier accepts", func(t *testing.T) {
		verifier := &MockVerifier{}
		f := newFixture(t, Options{Verifier: verifier})
		raw := verifiedToken(t)
		f.provider.On("Exchange", mock.Anything, "code-1", mock.Anything).
			Return(&services.TokenSet{IDToken: raw}, nil)
		verifier.On("Verify", mock.Anything, raw).Return(nil)

		rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=code-1", nil))

		assert.Equal(t, http.StatusFound, rec.Code)
		verifier.AssertExpectations(t)
	})
}

func TestHandleLogout(t *testing.T) {
	t.Run("with token leaves through the provider", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.provider.On("LogoutURL", "http://example.com/auth/out").
			Return("https://idp.example.com/v2/logout?federated")

		req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
		req.AddCookie(f.cookieWith(t, map[string]string{session.KeyIDToken: verifiedToken(t)}))
		rec := f.do(req)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://idp.example.com/v2/logout?federated", rec.Header().Get("Location"))

		c := responseCookie(rec)
		require.NotNil(t, c)
		assert.Less(t, c.MaxAge, 0)
		assert.Equal(t, "", f.sessionAfter(t, rec).Get(session.KeyIDToken))
		f.provider.AssertExpectations(t)
	})

	t.Run("without token goes straight to logged out page", func(t *testing.T) {
		f := newFixture(t, Options{ForceHTTPS: true})

		rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/logout", nil))

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://example.com/auth/out", rec.Header().Get("Location"))
		f.provider.AssertNotCalled(t, "LogoutURL", mock.Anything)
	})
}

func TestHandleLoggedOut(t *testing.T) {
	t.Run("configured page", func(t *testing.T) {
		f := newFixture(t, Options{LoggedOutPage: "/"})
		rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/out", nil))

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
	})

	t.Run("no page configured", func(t *testing.T) {
		f := newFixture(t, Options{})
		rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/out", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Logged Out", rec.Body.String())
	})
}

func TestSimulate(t *testing.T) {
	t.Run("path value", func(t *testing.T) {
		f := newFixture(t, Options{SimulateClaims: map[string]interface{}{"role": "tester"}})

		req := httptest.NewRequest(http.MethodGet, "/auth/simulate/dev@example.com", nil)
		req.AddCookie(f.cookieWith(t, map[string]string{session.KeyTargetURL: "/hello/subject"}))
		rec := f.do(req)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/hello/subject", rec.Header().Get("Location"))

		raw := f.sessionAfter(t, rec).Get(session.KeyIDToken)
		s, err := f.tokens.BuildSubject(raw)
		require.NoError(t, err)
		claims := s.(*subject.Claims)
		assert.Equal(t, "dev@example.com", claims.UserID())
		assert.Equal(t, "dev@example.com", claims.Email)
		assert.True(t, claims.Simulated)
		assert.Equal(t, "tester", claims.String("role"))
	})

	t.Run("form post", func(t *testing.T) {
		f := newFixture(t, Options{})

		req := httptest.NewRequest(http.MethodPost, "/auth/doSimulate", strings.NewReader(url.Values{"value": {"dev"}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := f.do(req)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
		assert.NotEmpty(t, f.sessionAfter(t, rec).Get(session.KeyIDToken))
	})

	t.Run("form post without value", func(t *testing.T) {
		f := newFixture(t, Options{})

		req := httptest.NewRequest(http.MethodPost, "/auth/doSimulate", strings.NewReader(""))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := f.do(req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Nil(t, responseCookie(rec))
	})

	t.Run("form page", func(t *testing.T) {
		f := newFixture(t, Options{})
		rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/simulate", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rec.Body.String(), `action="/auth/doSimulate"`)
	})
}

func TestRoutes_NoSimulateInProduction(t *testing.T) {
	f := newFixture(t, Options{Production: true})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/auth/simulate", nil),
		httptest.NewRequest(http.MethodGet, "/auth/simulate/admin", nil),
		httptest.NewRequest(http.MethodPost, "/auth/doSimulate", strings.NewReader("value=admin")),
	} {
		rec := f.do(req)
		assert.Equal(t, http.StatusNotFound, rec.Code, req.URL.Path)
		assert.Nil(t, responseCookie(rec))
	}

	assert.Equal(t, "", f.controller.SimulatePath())
	assert.Equal(t, "/auth/login", f.controller.LoginPath())
}

func TestSafeTarget(t *testing.T) {
	tests := map[string]string{
		"":                      "/",
		"/hello":                "/hello",
		"/hello?x=1":            "/hello?x=1",
		"//evil.example.com":    "/",
		"/\\evil.example.com":   "/",
		"https://evil.example/": "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeTarget(in), in)
	}
}
