package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesTraceID(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelInfo, "storefront", func(context.Context) string { return "abc123" })

	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "cart fetched", "lines", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "cart fetched", rec["msg"])
	assert.Equal(t, "storefront", rec["service"])
	assert.Equal(t, "abc123", rec["trace_id"])
	assert.EqualValues(t, 3, rec["lines"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestNop(t *testing.T) {
	Nop().With("k", "v").Error(context.Background(), "dropped")
}
