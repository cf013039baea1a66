// Package auth guards the training endpoint with a bcrypt-hashed bearer token.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// TokenPrefix marks tokens generated by GenerateToken.
	TokenPrefix = "vip_tk_" // #nosec G101 //nolint:gosec // prefix, not a credential

	// tokenLength is the random part of a token in bytes, hex encoded.
	tokenLength = 24

	bcryptCost = 12
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// GenerateToken returns a new random token.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(buf), nil
}

// HashToken creates a bcrypt hash of a token.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(hash), nil
}

// VerifyToken checks if a token matches a hash.
func VerifyToken(token, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

// MaskToken returns a masked version of a token for display.
func MaskToken(token string) string {
	if len(token) < len(TokenPrefix)+4 {
		return "****"
	}
	return token[:len(TokenPrefix)+4] + "****"
}

// ExtractToken reads a token from "Authorization: Bearer <token>" or, failing
// that, the token query parameter.
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Guard checks requests against a configured token hash. The zero value and a
// guard built from an empty hash allow everything.
type Guard struct {
	hash string
}

// NewGuard creates a guard for the given bcrypt hash.
func NewGuard(hash string) *Guard {
	return &Guard{hash: strings.TrimSpace(hash)}
}

// Enabled reports whether a token is required.
func (g *Guard) Enabled() bool {
	return g != nil && g.hash != ""
}

// Check returns nil if r carries a valid token or the guard is disabled.
func (g *Guard) Check(r *http.Request) error {
	if !g.Enabled() {
		return nil
	}
	token := ExtractToken(r)
	if token == "" {
		return ErrMissingToken
	}
	if !VerifyToken(token, g.hash) {
		return ErrInvalidToken
	}
	return nil
}

// ValidateHash reports whether hash is a usable bcrypt hash.
func ValidateHash(hash string) error {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return fmt.Errorf("not a bcrypt hash: %w", err)
	}
	return nil
}
