package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

const refreshTokenBytes = 32

// NewRefreshToken returns a random opaque token and the digest to store.
func NewRefreshToken() (token, digest string, err error) {
	b := make([]byte, refreshTokenBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(b)
	return token, Digest(token), nil
}

// Digest is the SHA-256 hex of a token. Refresh rows and revocation keys are
// addressed by digest so raw credentials are never stored.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
