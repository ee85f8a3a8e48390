package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		" error ": slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLogger_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogOptions{Service: "orders-worker", Output: &buf})

	WithOrderID(logger, "42").Info("processed")
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "orders-worker", rec["service"])
	assert.Equal(t, "42", rec["order_id"])
	assert.Equal(t, "processed", rec["msg"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(LogOptions{Format: "TEXT", Level: "warn", Output: &buf}).Warn("slow", "queue", "new_order")

	assert.Contains(t, buf.String(), "msg=slow")
	assert.Contains(t, buf.String(), "queue=new_order")
}

func TestFromContext(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))

	logger := Discard()
	assert.Same(t, logger, FromContext(WithLogger(context.Background(), logger)))
}
