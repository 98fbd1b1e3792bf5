package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"powershare-ledger/internal/model"
)

// RemoteVerifier checks tokens against an external user service.
type RemoteVerifier struct {
	BaseURL string
	Client  *http.Client
	log     *zap.Logger
}

// NewRemoteVerifier creates a verifier for the user service at baseURL.
// A zero timeout defaults to 5 seconds.
func NewRemoteVerifier(baseURL string, timeout time.Duration, log *zap.Logger) *RemoteVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RemoteVerifier{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// tokenCheck is the user service's response body.
type tokenCheck struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
}

// VerifierError carries the user service's status for non-2xx replies.
type VerifierError struct {
	StatusCode int
	Message    string
	kind       error
}

func (e *VerifierError) Error() string { return e.Message }
func (e *VerifierError) Unwrap() error { return e.kind }

func (v *RemoteVerifier) Authenticate(ctx context.Context, token string) (model.Account, error) {
	if token == "" {
		return model.Account{}, ErrInvalidToken
	}
	u, err := url.Parse(v.BaseURL + "/user/check_token_valid")
	if err != nil {
		return model.Account{}, fmt.Errorf("invalid auth url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := v.Client.Do(req)
	duration := time.Since(start)
	if err != nil {
		v.log.Warn("token check failed", zap.Error(err), zap.Duration("duration", duration))
		return model.Account{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	v.log.Debug("token check", zap.Int("status", resp.StatusCode), zap.Duration("duration", duration))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return model.Account{}, &VerifierError{
			StatusCode: resp.StatusCode,
			Message:    "token rejected by user service",
			kind:       ErrInvalidToken,
		}
	case resp.StatusCode >= 500:
		return model.Account{}, &VerifierError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("user service returned status %d", resp.StatusCode),
			kind:       ErrUnavailable,
		}
	case resp.StatusCode != http.StatusOK:
		return model.Account{}, &VerifierError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("user service returned status %d", resp.StatusCode),
			kind:       ErrInvalidToken,
		}
	}

	var check tokenCheck
	if err := json.NewDecoder(resp.Body).Decode(&check); err != nil {
		v.log.Warn("token check decode failed", zap.Error(err))
		return model.Account{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if !check.Valid || check.UserID == "" {
		return model.Account{}, fmt.Errorf("%w: %s", ErrInvalidToken, check.Message)
	}
	return model.Account{ID: check.UserID, Name: check.Name}, nil
}
