package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{"debug level text", &Config{Level: "debug", Format: "text"}},
		{"info level json", &Config{Level: "info", Format: "json"}},
		{"warn level text", &Config{Level: "warn", Format: "text"}},
		{"error level json", &Config{Level: "error", Format: "json"}},
		{"default level", &Config{Level: "invalid", Format: "text"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.config.Output = &buf
			Init(tt.config)
			slog.Error("test message")
			if !strings.Contains(buf.String(), "test message") {
				t.Error("Expected message to reach configured output")
			}
		})
	}
}

func TestInitJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(&Config{Level: "info", Format: "json", Output: &buf})

	slog.Info("json message")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("Expected JSON output, got %q", buf.String())
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	Init(&Config{Level: "debug", Format: "text", Output: &buf})

	ctx := context.Background()
	ctx = context.WithValue(ctx, RequestIDKey, "test-request-id")
	ctx = WithOperator(ctx, "reviewer")
	ctx = WithSubmission(ctx, "sub-42")

	WithContext(ctx).Info("enriched")

	out := buf.String()
	for _, want := range []string{"request_id=test-request-id", "operator=reviewer", "submission_id=sub-42"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in log, got %q", want, out)
		}
	}
}

func TestWithContextEmpty(t *testing.T) {
	Init(&Config{Level: "info", Format: "text"})

	logger := WithContext(context.Background())
	if logger == nil {
		t.Error("Expected non-nil logger")
	}
}

func TestLogFunctions(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(handler))

	ctx := context.Background()
	ctx = context.WithValue(ctx, RequestIDKey, "req-123")

	Info(ctx, "info message", "key", "value")
	if !strings.Contains(buf.String(), "info message") {
		t.Error("Expected info message in log")
	}

	buf.Reset()
	Debug(ctx, "debug message")
	if !strings.Contains(buf.String(), "debug message") {
		t.Error("Expected debug message in log")
	}

	buf.Reset()
	Warn(ctx, "warn message")
	if !strings.Contains(buf.String(), "warn message") {
		t.Error("Expected warn message in log")
	}

	buf.Reset()
	Error(ctx, "error message")
	if !strings.Contains(buf.String(), "error message") {
		t.Error("Expected error message in log")
	}
}
