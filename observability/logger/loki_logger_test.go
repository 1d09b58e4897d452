package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/MaanVader/Chack/observability/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"unknown", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "debug", DebugLevel.String())
	assert.Equal(t, "error", ErrorLevel.String())
	assert.Equal(t, "unknown", LogLevel(99).String())
}

func TestLokiLogger_LogLevels(t *testing.T) {
	tests := []struct {
		name      string
		logLevel  string
		logMethod func(*LokiLogger, context.Context)
		shouldLog bool
	}{
		{
			name:      "debug level logs debug",
			logLevel:  "debug",
			logMethod: func(l *LokiLogger, ctx context.Context) { l.Debug(ctx, "test", nil) },
			shouldLog: true,
		},
		{
			name:      "info level skips debug",
			logLevel:  "info",
			logMethod: func(l *LokiLogger, ctx context.Context) { l.Debug(ctx, "test", nil) },
			shouldLog: false,
		},
		{
			name:      "error level skips warn",
			logLevel:  "error",
			logMethod: func(l *LokiLogger, ctx context.Context) { l.Warn(ctx, "test", nil) },
			shouldLog: false,
		},
		{
			name:      "error level logs error",
			logLevel:  "error",
			logMethod: func(l *LokiLogger, ctx context.Context) { l.Error(ctx, "test", errors.New("boom"), nil) },
			shouldLog: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New("test", "test", tt.logLevel, &buf, nil)

			tt.logMethod(logger, context.Background())

			if tt.shouldLog {
				assert.NotEmpty(t, buf.String())
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestLokiLogger_ContextAndErrorFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New("chack.executor", "test", "info", &buf, types.Fields{"version": "1.0.0"})

	ctx := context.WithValue(context.Background(), types.TraceIDKey, "trace-1")
	ctx = context.WithValue(ctx, types.AssessmentIDKey, "a-1")

	logger.Error(ctx, "transition failed", errors.New("connection reset"), types.Fields{"attempt": 2})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "chack.executor", entry["service"])
	assert.Equal(t, "transition failed", entry["message"])
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "a-1", entry["assessment_id"])
	assert.Equal(t, "connection reset", entry["error"])
	assert.Equal(t, "*errors.errorString", entry["error_type"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Equal(t, float64(2), entry["attempt"])
	assert.NotContains(t, entry, "request_id")
}

func TestLokiLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	parent := New("test", "test", "info", &buf, types.Fields{"component": "scheduler"})

	child := parent.WithFields(types.Fields{"assessment_id": "a-9"})
	child.Info(context.Background(), "timer armed", nil)
	parent.Info(context.Background(), "idle", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var childEntry, parentEntry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &childEntry))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &parentEntry))

	assert.Equal(t, "a-9", childEntry["assessment_id"])
	assert.Equal(t, "scheduler", childEntry["component"])
	assert.NotContains(t, parentEntry, "assessment_id")
}

func TestLokiLogger_ConcurrentWritesStayLineDelimited(t *testing.T) {
	var buf bytes.Buffer
	logger := New("test", "test", "info", &buf, nil)
	child := logger.WithFields(types.Fields{"child": true})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); logger.Info(context.Background(), "parent", nil) }()
		go func() { defer wg.Done(); child.Info(context.Background(), "child", nil) }()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 100)
	for _, line := range lines {
		assert.True(t, json.Valid([]byte(line)), line)
	}
}
