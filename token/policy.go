package token

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/session-auth/subject"
)

// Policy turns a decoded ID token into a Subject. Policies compose: decorators such as
// RequireVerifiedEmail and RequireClaim wrap another Policy and add a precondition,
// a scope and the matching simulated claims.
type Policy interface {
	// Scope returns the space separated OIDC scope needed by the policy
	Scope() string

	// BuildSubject builds the Subject. userID is the already checked sub claim.
	BuildSubject(tok *Token, userID string) (subject.Subject, error)

	// Simulate stamps the claims the policy needs onto a simulated token
	Simulate(value string, claims jwt.MapClaims)
}

// SubjectFunc builds a Subject from a decoded token
type SubjectFunc func(tok *Token, userID string) (subject.Subject, error)

// EmailSubjectFunc builds a Subject from a token whose email has been verified
type EmailSubjectFunc func(tok *Token, userID, email string) (subject.Subject, error)

type funcPolicy struct {
	scope string
	fn    SubjectFunc
}

// NewPolicy returns a base Policy requesting scope and delegating to fn
func NewPolicy(scope string, fn SubjectFunc) Policy {
	if scope == "" {
		scope = "openid"
	}
	return &funcPolicy{scope: scope, fn: fn}
}

func (p *funcPolicy) Scope() string { return p.scope }

func (p *funcPolicy) BuildSubject(tok *Token, userID string) (subject.Subject, error) {
	if p.fn == nil {
		return nil, nil
	}
	return p.fn(tok, userID)
}

func (p *funcPolicy) Simulate(string, jwt.MapClaims) {}

// ClaimsPolicy builds the default claim-bag Subject, exposing the claims found under namespace
func ClaimsPolicy(namespace string) Policy {
	return NewPolicy("openid", func(tok *Token, userID string) (subject.Subject, error) {
		return subject.NewClaims(userID, tok.Email(), tok.Claims, namespace), nil
	})
}

type verifiedEmail struct {
	next Policy
}

// RequireVerifiedEmail rejects tokens whose email_verified claim is not true
func RequireVerifiedEmail(next Policy) Policy {
	return &verifiedEmail{next: next}
}

// EmailPolicy builds Subjects from a verified email address
func EmailPolicy(fn EmailSubjectFunc) Policy {
	return RequireVerifiedEmail(NewPolicy("openid", func(tok *Token, userID string) (subject.Subject, error) {
		return fn(tok, userID, tok.Email())
	}))
}

func (p *verifiedEmail) Scope() string {
	return mergeScopes(p.next.Scope(), "openid email")
}

func (p *verifiedEmail) BuildSubject(tok *Token, userID string) (subject.Subject, error) {
	if !tok.EmailVerified() {
		return nil, ErrEmailNotVerified
	}
	return p.next.BuildSubject(tok, userID)
}

func (p *verifiedEmail) Simulate(value string, claims jwt.MapClaims) {
	claims[ClaimEmail] = value
	claims[ClaimEmailVerified] = true
	p.next.Simulate(value, claims)
}

type requireClaim struct {
	name string
	next Policy
}

// RequireClaim rejects tokens lacking the named claim (or carrying it as false/empty)
func RequireClaim(name string, next Policy) Policy {
	return &requireClaim{name: name, next: next}
}

func (p *requireClaim) Scope() string { return p.next.Scope() }

func (p *requireClaim) BuildSubject(tok *Token, userID string) (subject.Subject, error) {
	if !tok.Has(p.name) {
		return nil, fmt.Errorf("%w: %s", ErrMissingClaim, p.name)
	}
	return p.next.BuildSubject(tok, userID)
}

func (p *requireClaim) Simulate(value string, claims jwt.MapClaims) {
	if _, ok := claims[p.name]; !ok {
		claims[p.name] = true
	}
	p.next.Simulate(value, claims)
}

// mergeScopes joins scope lists keeping the first occurrence of each entry
func mergeScopes(scopes ...string) string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range scopes {
		for _, field := range strings.Fields(s) {
			if !seen[field] {
				seen[field] = true
				out = append(out, field)
			}
		}
	}
	return strings.Join(out, " ")
}
