package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParsesLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, New("svc", "DEBUG", "text").GetLevel())
	assert.Equal(t, logrus.InfoLevel, New("svc", "nonsense", "text").GetLevel())
	assert.Equal(t, "svc", New("svc", "info", "json").Service())
}

func TestWithContextAddsIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	l := New("storefront", "info", "json")
	l.SetOutput(&buf)

	ctx := WithUserID(WithTraceID(context.Background(), "trace-1"), "user-9")
	l.WithContext(ctx).Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "storefront", line["service"])
	assert.Equal(t, "trace-1", line["trace_id"])
	assert.Equal(t, "user-9", line["user_id"])
}

func TestLogRequestLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New("storefront", "info", "json")
	l.SetOutput(&buf)

	l.LogRequest(context.Background(), http.MethodGet, "/api/cart", http.StatusInternalServerError, 5*time.Millisecond)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.EqualValues(t, 500, line["status"])
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetUserID(ctx))
	assert.NotEqual(t, NewTraceID(), NewTraceID())
}
