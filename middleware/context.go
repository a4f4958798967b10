package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/session-auth/subject"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// SubjectKey is the context key for the authenticated Subject
	SubjectKey contextKey = "subject"
)

// GetRequestIDFromContext retrieves the request ID from context, falling back to the
// id assigned by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return chimw.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetSubjectFromContext retrieves the Subject attached by the Authenticate filter
func GetSubjectFromContext(ctx context.Context) subject.Subject {
	if val := ctx.Value(SubjectKey); val != nil {
		if s, ok := val.(subject.Subject); ok {
			return s
		}
	}
	return nil
}

// WithSubject adds the Subject to the context
func WithSubject(ctx context.Context, s subject.Subject) context.Context {
	return context.WithValue(ctx, SubjectKey, s)
}

// SubjectAs returns the context Subject as the application's concrete type
func SubjectAs[T subject.Subject](ctx context.Context) (T, bool) {
	s, ok := GetSubjectFromContext(ctx).(T)
	return s, ok
}
