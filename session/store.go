package session

import (
	"crypto/sha256"

	"github.com/gorilla/sessions"
)

// DeriveKeys derives a cookie hash key and an encryption key from a secret so the
// session cookie is signed and encrypted without extra configuration.
func DeriveKeys(secret string) (hashKey, blockKey []byte) {
	h := sha256.Sum256([]byte("session-hash:" + secret))
	b := sha256.Sum256([]byte("session-block:" + secret))
	return h[:], b[:]
}

// NewCookieStore returns a store that keeps the whole session in an encrypted cookie.
// The codec does not time cookies out; the deadline stored in the session does.
func NewCookieStore(opts *sessions.Options, hashKey, blockKey []byte) *sessions.CookieStore {
	store := sessions.NewCookieStore(hashKey, blockKey)
	store.MaxAge(0)
	store.Options = opts
	return store
}
