package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	obscontext "github.com/smallbiznis/tabledesk/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsOnlyPresentFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	ctx = obscontext.WithRestaurantID(ctx, "42")
	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "42", fields["restaurant_id"])
	assert.NotContains(t, fields, "actor_id")
	assert.NotContains(t, fields, "trace_id")

	ctx = obscontext.WithActor(ctx, "staff", "cashier-1")
	WithContext(ctx, base).Info("again")
	assert.Equal(t, "cashier-1", logs.All()[1].ContextMap()["actor_id"])

	assert.Same(t, base, WithContext(context.Background(), base))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "chatty"})
	assert.ErrorContains(t, err, "chatty")

	log, err := New(nil, Config{Level: "debug", Format: "console", ServiceName: "board"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestGinMiddlewareAccessLog(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	r := gin.New()
	r.Use(GinMiddleware(zap.New(core), MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "internal_error", "boom" },
	}))
	r.GET("/v1/restaurants/:slug/board", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/v1/orders", func(c *gin.Context) {
		c.Set(TableKey, "12")
		_ = c.Error(errors.New("boom"))
		c.Status(http.StatusInternalServerError)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/restaurants/trattoria/board", nil)
	req.Header.Set(HeaderRequestID, "req-abc")
	r.ServeHTTP(rec, req)
	assert.Equal(t, "req-abc", rec.Header().Get(HeaderRequestID))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/orders", nil))
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "req-abc", entries[0].ContextMap()["request_id"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "12", entries[1].ContextMap()[TableKey])
	assert.Equal(t, "boom", entries[1].ContextMap()["error_code"])
}
