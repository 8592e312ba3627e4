package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{
		Level:     slog.LevelInfo,
		Format:    FormatJSON,
		Output:    &buf,
		Component: "records",
	})

	logger.Debug("hidden")
	logger.Info("field decrypted", "model", "Transaction")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "field decrypted", entry["msg"])
	assert.Equal(t, ServiceName, entry["service"])
	assert.Equal(t, "records", entry["component"])
	assert.Equal(t, "Transaction", entry["model"])

	_, err := time.Parse(time.RFC3339Nano, entry["time"].(string))
	assert.NoError(t, err)
}

func TestConsoleHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{
		Level:  slog.LevelWarn,
		Format: FormatConsole,
		Output: &buf,
	})

	logger.Info("skipped")
	logger.Warn("double encryption detected", "model", "Invoice")

	out := buf.String()
	assert.NotContains(t, out, "skipped")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "double encryption detected")
	assert.Contains(t, out, "service=fieldcrypt")
	assert.Contains(t, out, "model=Invoice")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFormat(t *testing.T) {
	for _, f := range []LogFormat{FormatJSON, FormatText, FormatConsole} {
		got, err := ParseFormat(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestRegistry_Record(t *testing.T) {
	r := NewRegistry()

	r.RecordOperation("encrypt", nil, time.Millisecond)
	r.RecordOperation("encrypt", nil, time.Millisecond)
	r.RecordOperation("decrypt_string", errors.New("boom"), time.Millisecond)
	r.RecordDoubleEncryption()
	r.RecordUnwrap()
	r.RecordUnwrap()
	r.RecordFieldFallback("Transaction", "value")
	r.RecordCacheLookup(true)
	r.RecordCacheLookup(false)
	r.RecordCacheLookup(false)
	r.RecordCacheEviction("expired")
	r.RecordAuditEvent("DECRYPT", "INFO")
	r.RecordAuditDropped("buffer_full")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.OperationsTotal.WithLabelValues("encrypt", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.OperationsTotal.WithLabelValues("decrypt_string", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.DoubleEncryptionsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.UnwrapsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FieldFallbacksTotal.WithLabelValues("Transaction", "value")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CacheLookupsTotal.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.CacheLookupsTotal.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CacheEvictionsTotal.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.AuditEventsTotal.WithLabelValues("DECRYPT", "INFO")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.AuditDroppedTotal.WithLabelValues("buffer_full")))
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.RecordDoubleEncryption()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "fieldcrypt_double_encryption_total 1")
}

func TestNoOpRecorder(t *testing.T) {
	var r Recorder = NoOpRecorder{}
	assert.NotPanics(t, func() {
		r.RecordOperation("encrypt", nil, time.Second)
		r.RecordFieldFallback("m", "f")
		r.RecordAuditDropped("x")
	})
}
