package token

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func TestToken_BoolClaimsMustBeBooleans(t *testing.T) {
	tok := &Token{Claims: jwt.MapClaims{
		ClaimEmailVerified: "true",
		ClaimSimulated:     "true",
		"flag":             true,
	}}

	_, ok := tok.Bool(ClaimEmailVerified)
	assert.False(t, ok)
	assert.False(t, tok.EmailVerified())
	assert.False(t, tok.Simulated())

	b, ok := tok.Bool("flag")
	assert.True(t, ok)
	assert.True(t, b)

	var missing *Token
	assert.False(t, missing.EmailVerified())
}
