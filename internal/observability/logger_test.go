package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFromContext_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	initLogger(&buf, "claimsqa-test", "json", "info")
	t.Cleanup(func() { initLogger(&bytes.Buffer{}, "claimsqa-test", "json", "info") })

	ctx := WithRequestID(context.Background(), "req-123")
	LoggerFromContext(ctx).Info().Msg("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "claimsqa-test", entry["service"])
	assert.Equal(t, "hello", entry["message"])
	assert.NotContains(t, entry, "trace_id")
}

func TestInitLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	initLogger(&buf, "svc", "json", "warn")
	t.Cleanup(func() { initLogger(&bytes.Buffer{}, "svc", "json", "info") })

	log.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordStage(context.Background(), "normalize", 0, nil)
		m.RecordExtraction(context.Background(), "ok")
		m.RecordRequestMetric(context.Background(), "GET", "/", 200, 0)
	})
}

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "svc", "test", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	m, err := InitMetrics()
	require.NoError(t, err)
	ctx, span := StartSpan(context.Background(), "noop")
	m.RecordStage(ctx, "normalize", 0, nil)
	span.End()
}
