package middleware_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"powershare-ledger/internal/api/middleware"
	"powershare-ledger/internal/api/models"
)

func TestErrorHandlerHidesPanicValue(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "string", value: "dsn=ledger.db password=hunter2", want: "password=hunter2"},
		{name: "error", value: errors.New("grid table corrupt"), want: "grid table corrupt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.ErrorLevel)
			r := gin.New()
			r.Use(middleware.ErrorHandler(zap.New(core)))
			r.GET("/boom", func(*gin.Context) { panic(tt.value) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

			require.Equal(t, http.StatusInternalServerError, w.Code)
			assert.NotContains(t, w.Body.String(), tt.want)

			var body models.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
			assert.Equal(t, "An unexpected error occurred", body.Error.Message)

			entries := logs.FilterMessage("panic recovered").All()
			require.Len(t, entries, 1)
			assert.Contains(t, entries[0].ContextMap()["panic"], tt.want)
		})
	}
}
