package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a session id has no entry in Redis
var ErrNotFound = errors.New("session not found")

// defaultTTL applies to browser-session cookies (MaxAge 0) so Redis entries never live forever
const defaultTTL = 24 * time.Hour

// RedisStore is a sessions.Store keeping session values in Redis. The cookie only
// carries a signed session id.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	codecs  []securecookie.Codec
	Options *sessions.Options
}

// NewRedisStore creates a Redis backed store. keyPairs sign (and optionally encrypt)
// the session id cookie. Expiry is left to the key TTL and the session deadline.
func NewRedisStore(client redis.UniversalClient, prefix string, opts *sessions.Options, keyPairs ...[]byte) *RedisStore {
	if prefix == "" {
		prefix = "session:"
	}
	s := &RedisStore{
		client:  client,
		prefix:  prefix,
		codecs:  securecookie.CodecsFromPairs(keyPairs...),
		Options: opts,
	}
	for _, c := range s.codecs {
		if sc, ok := c.(*securecookie.SecureCookie); ok {
			sc.MaxAge(0)
		}
	}
	return s
}

// Get returns the session cached in the request registry, loading it on first use
func (s *RedisStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session referenced by the request cookie, or returns a new one
func (s *RedisStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}

	var id string
	if err := securecookie.DecodeMulti(name, c.Value, &id, s.codecs...); err != nil {
		return session, err
	}

	values, err := s.load(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return session, nil
		}
		return session, err
	}

	session.ID = id
	session.Values = values
	session.IsNew = false
	return session, nil
}

// Save writes the session to Redis and refreshes the id cookie. A negative MaxAge
// deletes both.
func (s *RedisStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.client.Del(r.Context(), s.prefix+session.ID).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if err := s.save(r.Context(), session); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) save(ctx context.Context, session *sessions.Session) error {
	values := make(map[string]interface{}, len(session.Values))
	for k, v := range session.Values {
		key, ok := k.(string)
		if !ok {
			return fmt.Errorf("session key %v is not a string", k)
		}
		values[key] = v
	}

	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := defaultTTL
	if session.Options.MaxAge > 0 {
		ttl = time.Duration(session.Options.MaxAge) * time.Second
	}
	return s.client.Set(ctx, s.prefix+session.ID, data, ttl).Err()
}

func (s *RedisStore) load(ctx context.Context, id string) (map[interface{}]interface{}, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var stored map[string]interface{}
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	values := make(map[interface{}]interface{}, len(stored))
	for k, v := range stored {
		values[k] = v
	}
	return values, nil
}
