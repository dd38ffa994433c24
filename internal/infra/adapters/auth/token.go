// Package auth supplies the bearer credential issued by the identity
// provider. Signature checks are the server's job; the client only avoids
// sending a token it can already tell has expired.
package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"architect-studio/internal/domain"
	"architect-studio/internal/domain/ports/adapter"

	"github.com/golang-jwt/jwt/v5"
)

// expirySkew treats tokens about to expire as already expired.
const expirySkew = 30 * time.Second

var (
	_ adapter.TokenSource = (*StaticToken)(nil)
	_ adapter.TokenSource = (*FileToken)(nil)
)

type StaticToken struct {
	token string
	now   func() time.Time
}

func NewStaticToken(token string) *StaticToken {
	return &StaticToken{token: strings.TrimSpace(token), now: time.Now}
}

func (s *StaticToken) Token(context.Context) (string, error) {
	return checked(s.token, s.now())
}

// FileToken re-reads path on every call so an external refresher can
// rotate the credential underneath a long-running process.
type FileToken struct {
	path string
	now  func() time.Time
}

func NewFileToken(path string) *FileToken {
	return &FileToken{path: path, now: time.Now}
}

func (f *FileToken) Token(context.Context) (string, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCredentialMissing, err)
	}
	return checked(strings.TrimSpace(string(b)), f.now())
}

// ExpiresAt returns the exp claim of a JWT, or false for opaque tokens and
// tokens without one.
func ExpiresAt(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func checked(token string, now time.Time) (string, error) {
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		return "", domain.ErrCredentialMissing
	}
	if exp, ok := ExpiresAt(token); ok && !now.Add(expirySkew).Before(exp) {
		return "", fmt.Errorf("%w: expired at %s", domain.ErrCredentialExpired, exp.UTC().Format(time.RFC3339))
	}
	return token, nil
}
