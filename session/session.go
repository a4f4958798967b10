// Package session wraps a gorilla/sessions store with the small string API the auth
// controller and filters need. The store is the only place ID tokens live between
// requests.
package session

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

// Session keys shared by the controller and the filters
const (
	KeyIDToken   = "id_token"
	KeyTargetURL = "target_url"
	// KeyExpiresAt holds the absolute deadline (unix seconds) after which the
	// session is treated as empty
	KeyExpiresAt = "expires_at"
)

// DefaultOptions returns cookie options for the session cookie
func DefaultOptions(maxAge time.Duration, secure bool) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Manager loads per-request sessions from a store
type Manager struct {
	store  sessions.Store
	name   string
	logger *zap.Logger
	now    func() time.Time
}

// NewManager creates a Manager for the named session cookie
func NewManager(store sessions.Store, name string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, name: name, logger: logger, now: time.Now}
}

// Load returns the session bound to the request. A cookie that cannot be decoded, a
// store entry that has expired, or a session past its deadline yields an empty
// session rather than an error.
func (m *Manager) Load(r *http.Request) *Session {
	s, err := m.store.Get(r, m.name)
	if err != nil {
		m.logger.Debug("discarding unreadable session", zap.Error(err))
	}
	if s == nil {
		s = sessions.NewSession(m.store, m.name)
		s.IsNew = true
	}
	if s.Values == nil {
		s.Values = make(map[interface{}]interface{})
	}

	sess := &Session{raw: s, now: m.now}
	if deadline, ok := sess.deadline(); ok && !m.now().Before(deadline) {
		m.logger.Debug("session past its deadline", zap.Time("expires_at", deadline))
		sess.Clear()
		s.IsNew = true
	}
	return sess
}

// Session is a request-scoped view over a stored session
type Session struct {
	raw *sessions.Session
	now func() time.Time
	// deadlineSet means MaxAge already matches the deadline for this response
	deadlineSet bool
}

// IsNew reports whether the session did not exist before this request
func (s *Session) IsNew() bool {
	return s.raw.IsNew
}

// Get returns the string stored under key, or ""
func (s *Session) Get(key string) string {
	v, _ := s.raw.Values[key].(string)
	return v
}

// Put stores value under key. An empty value removes the key.
func (s *Session) Put(key, value string) {
	if value == "" {
		delete(s.raw.Values, key)
		return
	}
	s.raw.Values[key] = value
}

// Pop returns the value under key and removes it
func (s *Session) Pop(key string) string {
	v := s.Get(key)
	delete(s.raw.Values, key)
	return v
}

// Clear removes every value from the session
func (s *Session) Clear() {
	for k := range s.raw.Values {
		delete(s.raw.Values, k)
	}
}

// SetExpiry sets the session deadline to seconds from now. A non-positive value
// drops any stored deadline so Save restarts the store default lifetime.
func (s *Session) SetExpiry(seconds int) {
	if seconds <= 0 {
		delete(s.raw.Values, KeyExpiresAt)
		s.deadlineSet = false
		return
	}
	s.setDeadline(s.now().Add(time.Duration(seconds)*time.Second), seconds)
}

// Invalidate clears the session and expires it in the store on the next Save
func (s *Session) Invalidate() {
	s.Clear()
	s.raw.Options.MaxAge = -1
}

// Save persists the session. It must be called before the response body is written.
// Sessions holding values always carry a deadline; the cookie Max-Age and the store
// TTL follow it.
func (s *Session) Save(w http.ResponseWriter, r *http.Request) error {
	if s.raw.Options.MaxAge > 0 && len(s.raw.Values) > 0 && !s.deadlineSet {
		deadline, ok := s.deadline()
		if !ok {
			deadline = s.now().Add(time.Duration(s.raw.Options.MaxAge) * time.Second)
		}
		remaining := int(deadline.Sub(s.now()).Round(time.Second).Seconds())
		if remaining < 1 {
			remaining = 1
		}
		s.setDeadline(deadline, remaining)
	}
	return s.raw.Save(r, w)
}

func (s *Session) setDeadline(deadline time.Time, maxAge int) {
	s.raw.Values[KeyExpiresAt] = strconv.FormatInt(deadline.Unix(), 10)
	s.raw.Options.MaxAge = maxAge
	s.deadlineSet = true
}

func (s *Session) deadline() (time.Time, bool) {
	raw := s.Get(KeyExpiresAt)
	if raw == "" {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// an unreadable deadline is already past
		return time.Unix(0, 0), true
	}
	return time.Unix(unix, 0), true
}
