// Package subject defines the authenticated principal handed to application handlers.
//
// A Subject is built once per request from the ID token held in the session and is
// never persisted. Applications either supply their own Subject type or use Claims,
// the default implementation that exposes every claim under a configured namespace.
package subject

import (
	"strings"
	"time"
)

// Subject is the application-level principal produced from an ID token.
type Subject interface {
	// UserID returns the provider-assigned stable identifier (the "sub" claim).
	UserID() string
}

// registered claims are never exposed through the claim bag.
var registeredClaims = map[string]bool{
	"sub": true, "iss": true, "aud": true, "exp": true, "nbf": true,
	"iat": true, "jti": true, "azp": true, "nonce": true, "at_hash": true,
	"__simulated": true,
}

// Claims is the default Subject: identity plus the claims found under a namespace prefix.
type Claims struct {
	ID        string           `json:"id"`
	Email     string           `json:"email,omitempty"`
	Simulated bool             `json:"simulated,omitempty"`
	Values    map[string]Value `json:"claims"`
}

// NewClaims builds a Claims subject from raw decoded claims. Only claims whose name
// starts with namespace are kept, with the prefix stripped. An empty namespace keeps
// every non-registered claim.
func NewClaims(id, email string, raw map[string]interface{}, namespace string) *Claims {
	c := &Claims{
		ID:     id,
		Email:  email,
		Values: make(map[string]Value),
	}
	if simulated, ok := raw["__simulated"].(bool); ok {
		c.Simulated = simulated
	}

	for name, v := range raw {
		if namespace == "" && registeredClaims[name] {
			continue
		}
		if !strings.HasPrefix(name, namespace) {
			continue
		}
		key := strings.TrimPrefix(name, namespace)
		if key == "" {
			continue
		}
		if value, ok := ValueOf(v); ok {
			c.Values[key] = value
		}
	}

	return c
}

// UserID implements Subject
func (c *Claims) UserID() string {
	if c == nil {
		return ""
	}
	return c.ID
}

// Get returns the claim stored under name (namespace prefix already stripped)
func (c *Claims) Get(name string) (Value, bool) {
	if c == nil {
		return Value{}, false
	}
	v, ok := c.Values[name]
	return v, ok
}

// Is reports whether the claim is a boolean set to true
func (c *Claims) Is(name string) bool {
	v, ok := c.Get(name)
	if !ok {
		return false
	}
	b, ok := v.Bool()
	return ok && b
}

// String returns the claim rendered as a string, or "" when absent
func (c *Claims) String(name string) string {
	v, ok := c.Get(name)
	if !ok {
		return ""
	}
	return v.String()
}

// Int returns an integral claim
func (c *Claims) Int(name string) (int64, bool) {
	v, ok := c.Get(name)
	if !ok {
		return 0, false
	}
	return v.Int()
}

// Time returns a timestamp claim
func (c *Claims) Time(name string) (time.Time, bool) {
	v, ok := c.Get(name)
	if !ok {
		return time.Time{}, false
	}
	return v.Time()
}
