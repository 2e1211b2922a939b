package otel_test

import (
	"chalet/infras/otel"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordedScope(t *testing.T) (otel.Scope, *tracetest.SpanRecorder) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := provider.Tracer("test").Start(context.Background(), "booking.Submit")

	return otel.NewScope(span), recorder
}

func TestScope_SetAttributes(t *testing.T) {
	scope, recorder := newRecordedScope(t)

	scope.SetAttributes(map[string]any{
		"payment_intent_id": "pi_123",
		"nights":            3,
		"grand_total":       int64(123_400),
		"used_fallback":     true,
		"vat_rate":          0.2,
		"missing":           []string{"2026-12-24"},
		"check_in":          time.Date(2026, 12, 24, 0, 0, 0, 0, time.UTC),
		"backoff":           1500 * time.Millisecond,
		"other":             struct{ A int }{A: 1},
	})
	scope.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)

	got := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		got[kv.Key] = kv.Value
	}

	assert.Equal(t, "pi_123", got["payment_intent_id"].AsString())
	assert.Equal(t, int64(3), got["nights"].AsInt64())
	assert.Equal(t, int64(123_400), got["grand_total"].AsInt64())
	assert.True(t, got["used_fallback"].AsBool())
	assert.InDelta(t, 0.2, got["vat_rate"].AsFloat64(), 0.0001)
	assert.Equal(t, []string{"2026-12-24"}, got["missing"].AsStringSlice())
	assert.Equal(t, "2026-12-24T00:00:00Z", got["check_in"].AsString())
	assert.Equal(t, int64(1500), got["backoff"].AsInt64())
	assert.Equal(t, "{1}", got["other"].AsString())
}

func TestScope_TraceIfError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode codes.Code
	}{
		{name: "nil error leaves the status unset", err: nil, wantCode: codes.Unset},
		{name: "error marks the span", err: errors.New("provider unavailable"), wantCode: codes.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, recorder := newRecordedScope(t)

			scope.AddEvent("attempt")
			scope.TraceIfError(tt.err)
			scope.End()

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.wantCode, spans[0].Status().Code)
			assert.Equal(t, "attempt", spans[0].Events()[0].Name)
		})
	}
}
