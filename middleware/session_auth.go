package middleware

import (
	"errors"
	"net/http"

	"github.com/upb/session-auth/session"
	"github.com/upb/session-auth/subject"
	"github.com/upb/session-auth/token"
	"github.com/upb/session-auth/utils"
	"go.uber.org/zap"
)

// SubjectBuilder turns the raw ID token held in the session into a Subject
type SubjectBuilder interface {
	BuildSubject(raw string) (subject.Subject, error)
}

// FilterConfig selects where unauthenticated requests are sent
type FilterConfig struct {
	LoginPath    string
	SimulatePath string
	// Production disables the simulate redirect target
	Production bool
}

// SessionAuth provides the two request gates backed by the session ID token
type SessionAuth struct {
	builder  SubjectBuilder
	sessions *session.Manager
	cfg      FilterConfig
	logger   *zap.Logger
}

// NewSessionAuth creates the request gates
func NewSessionAuth(builder SubjectBuilder, sessions *session.Manager, cfg FilterConfig, logger *zap.Logger) *SessionAuth {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionAuth{
		builder:  builder,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
	}
}

// Authenticate builds the Subject from the session token and attaches it to the request
// context. Requests without a usable token are sent to login; tokens that decode but
// fail validation are rejected with 403.
func (m *SessionAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		s := m.sessions.Load(r)
		raw := s.Get(session.KeyIDToken)
		if raw == "" {
			m.redirectToLogin(w, r, s)
			return
		}

		subj, err := m.builder.BuildSubject(raw)
		if err != nil {
			if errors.Is(err, token.ErrMalformedToken) {
				m.logger.Debug("dropping undecodable session token",
					zap.String("request_id", requestID),
					zap.Error(err))
				s.Pop(session.KeyIDToken)
				m.redirectToLogin(w, r, s)
				return
			}

			m.logger.Warn("subject rejected",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteForbidden(w, err.Error())
			return
		}

		m.logger.Debug("subject attached",
			zap.String("request_id", requestID),
			zap.String("sub", subj.UserID()))

		next.ServeHTTP(w, r.WithContext(WithSubject(ctx, subj)))
	})
}

// CheckAuthenticated only requires a token to be present in the session
func (m *SessionAuth) CheckAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := m.sessions.Load(r)
		if s.Get(session.KeyIDToken) == "" {
			m.redirectToLogin(w, r, s)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *SessionAuth) redirectToLogin(w http.ResponseWriter, r *http.Request, s *session.Session) {
	s.Put(session.KeyTargetURL, r.URL.RequestURI())
	if err := s.Save(w, r); err != nil {
		m.logger.Error("failed to save session",
			zap.String("request_id", GetRequestIDFromContext(r.Context())),
			zap.Error(err))
	}

	target := m.cfg.LoginPath
	if !m.cfg.Production && m.cfg.SimulatePath != "" {
		target = m.cfg.SimulatePath
	}
	http.Redirect(w, r, target, http.StatusFound)
}
