package middleware

import (
	"net/http"

	"github.com/upb/session-auth/session"
	"github.com/upb/session-auth/subject"
	"go.uber.org/zap"
)

// Extractor resolves the current Subject for handlers on routes where authentication
// is optional. Failures yield no Subject rather than an error.
type Extractor struct {
	builder  SubjectBuilder
	sessions *session.Manager
	logger   *zap.Logger
}

// NewExtractor creates an Extractor
func NewExtractor(builder SubjectBuilder, sessions *session.Manager, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{builder: builder, sessions: sessions, logger: logger}
}

// Subject returns the Subject attached by Authenticate, or decodes the session token
func (e *Extractor) Subject(r *http.Request) (subject.Subject, bool) {
	if s := GetSubjectFromContext(r.Context()); s != nil {
		return s, true
	}

	raw := e.sessions.Load(r).Get(session.KeyIDToken)
	if raw == "" {
		return nil, false
	}

	s, err := e.builder.BuildSubject(raw)
	if err != nil {
		e.logger.Debug("no subject for request",
			zap.String("request_id", GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		return nil, false
	}
	return s, true
}

// ExtractAs resolves the Subject and asserts the application's concrete type
func ExtractAs[T subject.Subject](e *Extractor, r *http.Request) (T, bool) {
	var zero T
	s, ok := e.Subject(r)
	if !ok {
		return zero, false
	}
	typed, ok := s.(T)
	return typed, ok
}
