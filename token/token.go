package token

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claim names read by the handler and the bundled policies
const (
	ClaimSubject       = "sub"
	ClaimEmail         = "email"
	ClaimEmailVerified = "email_verified"
	ClaimSimulated     = "__simulated"
)

// Token is a decoded (not verified) ID token
type Token struct {
	Raw    string
	Claims jwt.MapClaims
}

// String returns a string claim
func (t *Token) String(name string) (string, bool) {
	if t == nil {
		return "", false
	}
	s, ok := t.Claims[name].(string)
	return s, ok
}

// Bool returns a claim carried as a JSON boolean. Strings such as "true" do not count.
func (t *Token) Bool(name string) (bool, bool) {
	if t == nil {
		return false, false
	}
	b, ok := t.Claims[name].(bool)
	return b, ok
}

// Has reports whether the claim is present with a non-empty, non-false value
func (t *Token) Has(name string) bool {
	if t == nil {
		return false
	}
	switch v := t.Claims[name].(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case []interface{}:
		return len(v) > 0
	}
	return true
}

// Subject returns the sub claim
func (t *Token) Subject() string {
	s, _ := t.String(ClaimSubject)
	return s
}

// Email returns the email claim
func (t *Token) Email() string {
	s, _ := t.String(ClaimEmail)
	return s
}

// EmailVerified reports whether the provider marked the email as verified
func (t *Token) EmailVerified() bool {
	b, ok := t.Bool(ClaimEmailVerified)
	return ok && b
}

// Simulated reports whether the token was synthesized by the simulate action
func (t *Token) Simulated() bool {
	b, ok := t.Bool(ClaimSimulated)
	return ok && b
}
