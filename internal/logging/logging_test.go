package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_JSONIncludesFieldsAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "debug", Format: "json", Output: &buf})

	ctx, id := EnsureRequestID(context.Background())
	logger.With(String("component", "overlap")).Debug(ctx, "zone skipped", Int("vertices", 2))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "zone skipped" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["component"] != "overlap" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["vertices"] != float64(2) {
		t.Errorf("vertices = %v", entry["vertices"])
	}
	if entry["request_id"] != id {
		t.Errorf("request_id = %v, expected %s", entry["request_id"], id)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Format: "text", Output: &buf})

	logger.Info(context.Background(), "hidden")
	logger.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestEnsureRequestID_KeepsExisting(t *testing.T) {
	ctx, first := EnsureRequestID(context.Background())
	ctx, second := EnsureRequestID(ctx)
	if first == "" || first != second {
		t.Errorf("expected stable request id, got %q then %q", first, second)
	}
	if RequestIDFromContext(ctx) != first {
		t.Errorf("RequestIDFromContext() = %q", RequestIDFromContext(ctx))
	}
}

func TestNoop(t *testing.T) {
	l := Noop().With(String("k", "v"))
	l.Info(context.Background(), "ignored")
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")
	ctx, id := EnsureRequestID(ctx)
	if id != "req-42" || RequestIDFromContext(ctx) != "req-42" {
		t.Errorf("expected caller id to be kept, got %q", id)
	}
}
