package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func loggedRequest(t *testing.T, handler http.HandlerFunc) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	wrapped := RequestLogger(zap.New(core))(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/datasources", nil)
	wrapped.ServeHTTP(httptest.NewRecorder(), req)
	return logs
}

func TestRequestLogger_RoutineTrafficIsDebug(t *testing.T) {
	logs := loggedRequest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.DebugLevel, entry.Level)

	fields := entry.ContextMap()
	assert.Equal(t, int64(http.StatusOK), fields["status"])
	assert.Equal(t, int64(len(`{"ok":true}`)), fields["bytes"])
	assert.Equal(t, "/api/datasources", fields["path"])
}

func TestRequestLogger_ServerErrorsAreWarn(t *testing.T) {
	logs := loggedRequest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "request failed", entry.Message)
}

func TestRequestLogger_NilLoggerPassesThrough(t *testing.T) {
	called := false
	wrapped := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
