package remote

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// ErrNoToken is returned when no session token is available. Requests are
// not sent without credentials.
var ErrNoToken = errors.New("no session token")

// AuthProvider adds authentication to requests.
type AuthProvider interface {
	Apply(req *http.Request) error
}

// BearerToken attaches a fixed bearer token.
type BearerToken struct {
	Token string
}

func (a *BearerToken) Apply(req *http.Request) error {
	if strings.TrimSpace(a.Token) == "" {
		return ErrNoToken
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
	return nil
}

// TokenFile reads the bearer token from Path on every request, so a session
// layer that rewrites or deletes the file takes effect immediately.
type TokenFile struct {
	Path string
}

func (a *TokenFile) Apply(req *http.Request) error {
	token, err := a.Read()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// Read returns the stored token.
func (a *TokenFile) Read() (string, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Write stores token with owner-only permissions.
func (a *TokenFile) Write(token string) error {
	if err := os.WriteFile(a.Path, []byte(strings.TrimSpace(token)+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// Invalidate deletes the stored token. A missing file is not an error.
func (a *TokenFile) Invalidate() error {
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}
