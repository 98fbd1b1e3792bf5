// Package auth resolves bearer tokens to ledger accounts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"powershare-ledger/internal/model"
)

var (
	// ErrInvalidToken means the token is missing, unknown or rejected.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnavailable means the identity service could not be reached.
	ErrUnavailable = errors.New("identity service unavailable")
)

// Authenticator maps a bearer token to the account it belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.Account, error)
}

// StaticToken binds one token to an account.
type StaticToken struct {
	Token     string
	AccountID string
	Name      string
}

// StaticTokens authenticates against a fixed token table. Used for local
// runs, the demo and tests.
type StaticTokens struct {
	byToken map[string]model.Account
}

func NewStaticTokens(tokens []StaticToken) (*StaticTokens, error) {
	s := &StaticTokens{byToken: make(map[string]model.Account, len(tokens))}
	for i, t := range tokens {
		if strings.TrimSpace(t.Token) == "" || strings.TrimSpace(t.AccountID) == "" {
			return nil, fmt.Errorf("token %d: token and account_id are required", i)
		}
		if _, dup := s.byToken[t.Token]; dup {
			return nil, fmt.Errorf("token %d: duplicate token", i)
		}
		s.byToken[t.Token] = model.Account{ID: t.AccountID, Name: t.Name}
	}
	return s, nil
}

func (s *StaticTokens) Authenticate(_ context.Context, token string) (model.Account, error) {
	a, ok := s.byToken[token]
	if !ok {
		return model.Account{}, ErrInvalidToken
	}
	return a, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
