package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"powershare-ledger/internal/api/models"
	"powershare-ledger/internal/auth"
	"powershare-ledger/internal/model"
)

const accountKey = "ledger.account"

// AccountDirectory records authenticated callers so their display names
// can be shown to other users.
type AccountDirectory interface {
	RememberAccount(ctx context.Context, a model.Account) error
}

// RequireAccount authenticates the bearer token and stores the account in
// the gin context. Requests without a valid token stop with 401.
func RequireAccount(authn auth.Authenticator, dir AccountDirectory, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c, "Missing bearer token")
			return
		}
		a, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrUnavailable) {
				log.Warn("authentication unavailable", zap.Error(err))
				c.Header("Retry-After", "1")
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, models.ErrorResponse{
					Error: models.ErrorDetail{Code: "AUTH_UNAVAILABLE", Message: "Authentication service unavailable"},
				})
				return
			}
			unauthorized(c, "Invalid authentication credentials")
			return
		}
		if dir != nil {
			if err := dir.RememberAccount(c.Request.Context(), a); err != nil {
				// Listings fall back to an empty name; the request itself can proceed.
				log.Warn("remember account failed", zap.String("account", a.ID), zap.Error(err))
			}
		}
		c.Set(accountKey, a)
		c.Next()
	}
}

// AccountFrom returns the account stored by RequireAccount.
func AccountFrom(c *gin.Context) (model.Account, bool) {
	v, ok := c.Get(accountKey)
	if !ok {
		return model.Account{}, false
	}
	a, ok := v.(model.Account)
	return a, ok
}

func unauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
		Error: models.ErrorDetail{Code: "UNAUTHORIZED", Message: message},
	})
}
