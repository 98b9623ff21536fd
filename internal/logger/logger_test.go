package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeKVs(t *testing.T) {
	got := sanitizeKVs([]any{"shop", "demo.myshopify.com", "access_token", "shpat_123", "odd"})
	assert.Equal(t, []any{"shop", "demo.myshopify.com", "access_token", "[REDACTED]", "odd"}, got)
}

func TestLogger_WithRedactsSecrets(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.With("component", "test").Info("сообщение", "api_secret", "s3cr3t", "asset_id", "42")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "test", fields["component"])
	assert.Equal(t, "[REDACTED]", fields["api_secret"])
	assert.Equal(t, "42", fields["asset_id"])
}

func TestNew(t *testing.T) {
	for _, mode := range []string{"dev", "prod"} {
		l, err := New(mode)
		require.NoError(t, err)
		require.NotNil(t, l)
	}
}
