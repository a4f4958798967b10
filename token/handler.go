// Package token decodes ID tokens and turns them into Subjects.
//
// Decoding is not verifying: tokens read back from the session were stored by the
// callback after a successful code exchange, so the session store is the trust anchor.
// Verify is only used at callback time when HMAC verification is enabled.
package token

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/session-auth/subject"
	"go.uber.org/zap"
)

// Handler decodes ID tokens, checks the mandatory claims and delegates Subject
// construction to a Policy. It also signs simulated tokens for the dev/test login.
type Handler struct {
	policy Policy
	key    []byte
	parser *jwt.Parser
	logger *zap.Logger
}

// NewHandler creates a Handler. The HMAC key used for simulated tokens and HMAC
// verification is derived from the OIDC client secret.
func NewHandler(policy Policy, clientSecret string, logger *zap.Logger) (*Handler, error) {
	if policy == nil {
		return nil, errors.New("token policy is required")
	}
	if clientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Handler{
		policy: policy,
		key:    []byte(clientSecret),
		parser: jwt.NewParser(jwt.WithoutClaimsValidation(), jwt.WithJSONNumber()),
		logger: logger,
	}, nil
}

// Scope returns the OIDC scope requested at login
func (h *Handler) Scope() string {
	return h.policy.Scope()
}

// Decode parses the ID token without verifying its signature
func (h *Handler) Decode(raw string) (*Token, error) {
	if raw == "" {
		return nil, ErrNoToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := h.parser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	return &Token{Raw: raw, Claims: claims}, nil
}

// BuildSubject decodes the ID token and builds its Subject. Every failure wraps
// ErrInvalidArgument.
func (h *Handler) BuildSubject(raw string) (subject.Subject, error) {
	tok, err := h.Decode(raw)
	if err != nil {
		return nil, err
	}

	userID := tok.Subject()
	if userID == "" {
		return nil, ErrMissingSubject
	}

	s, err := h.policy.BuildSubject(tok, userID)
	if err != nil {
		return nil, err
	}
	if isNil(s) {
		return nil, ErrNoSubject
	}

	h.logger.Debug("subject built from id token",
		zap.String("sub", userID),
		zap.Bool("simulated", tok.Simulated()))

	return s, nil
}

// BuildSimulatedJWT signs a fake ID token carrying sub=value and the simulated marker,
// plus extra and whatever the policy stamps. It must only be reachable outside production.
func (h *Handler) BuildSimulatedJWT(value string, extra map[string]interface{}) (string, error) {
	if value == "" {
		return "", fmt.Errorf("%w: simulated value is empty", ErrInvalidArgument)
	}

	claims := jwt.MapClaims{}
	for k, v := range extra {
		claims[k] = v
	}
	h.policy.Simulate(value, claims)
	claims[ClaimSubject] = value
	claims[ClaimSimulated] = true
	claims["iat"] = time.Now().Unix()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.key)
	if err != nil {
		return "", fmt.Errorf("sign simulated token: %w", err)
	}
	return signed, nil
}

// Verify checks an HS256 signature made with the client secret, along with exp/nbf
// when present.
func (h *Handler) Verify(_ context.Context, raw string) error {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return h.key, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return nil
}

// isNil catches typed nil pointers returned through the Subject interface
func isNil(s subject.Subject) bool {
	if s == nil {
		return true
	}
	v := reflect.ValueOf(s)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}
