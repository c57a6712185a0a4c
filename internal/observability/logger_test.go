package observability_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/log/noop"

	"github.com/shelfstack/lending-go/internal/observability"
)

func Test_SlogLogger_ForwardsLevelsAndAttributes(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := observability.NewSlogLogger(slog.New(handler))

	logger.Debug("executed sql", "duration_ms", 1.25)
	logger.Info("unit of work committed", "statement_count", 2)
	logger.Warn("failed to close database rows")
	logger.Error("database query execution failed", "error", "boom")

	output := buf.String()
	assert.Contains(t, output, "level=DEBUG")
	assert.Contains(t, output, "duration_ms=1.25")
	assert.Contains(t, output, "level=INFO")
	assert.Contains(t, output, "statement_count=2")
	assert.Contains(t, output, "level=WARN")
	assert.Contains(t, output, "level=ERROR")
	assert.Contains(t, output, "error=boom")
}

func Test_SlogLogger_NilFallsBackToDefault(t *testing.T) {
	logger := observability.NewSlogLogger(nil)

	assert.NotPanics(t, func() {
		logger.Info("using default logger")
	})
}

func Test_SlogBridgeLoggerWithHandler_ForwardsContext(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := observability.NewSlogBridgeLoggerWithHandler(handler)

	ctx := t.Context()
	logger.DebugContext(ctx, "a")
	logger.InfoContext(ctx, "b", "key", "value")
	logger.WarnContext(ctx, "c")
	logger.ErrorContext(ctx, "d")

	output := buf.String()
	assert.Contains(t, output, "msg=a")
	assert.Contains(t, output, "key=value")
	assert.Contains(t, output, "level=ERROR")
}

func Test_SlogBridgeLogger_UsesGlobalProvider(t *testing.T) {
	logger := observability.NewSlogBridgeLogger("lending-storage")

	assert.NotNil(t, logger)
	assert.NotPanics(t, func() {
		logger.InfoContext(t.Context(), "bridge logger ready")
	})
}

func Test_OTelLogger_EmitsAllLevels(t *testing.T) {
	logger := observability.NewOTelLogger(noop.NewLoggerProvider().Logger("test"))

	ctx := t.Context()
	assert.NotPanics(t, func() {
		logger.DebugContext(ctx, "debug message", "key", "value")
		logger.InfoContext(ctx, "info message", "count", 3)
		logger.WarnContext(ctx, "warn message")
		logger.ErrorContext(ctx, "error message", "error", "boom")
	})
}
