package logging_test

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/shelfscan/shelfscan/internal/logging"
)

func TestJSONLoggerWritesStructuredLines(t *testing.T) {
	// Swaps os.Stdout, so no t.Parallel.
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}

	stdout := os.Stdout
	os.Stdout = w
	logger := logging.NewStdoutLogger("test-component")
	logger.Info("analysis started",
		logging.Field{Key: "url", Value: "https://shop.example.com/"},
		logging.Field{Key: "pages", Value: 3})
	os.Stdout = stdout
	w.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("read: %v", err)
	}

	var entry struct {
		Level     string         `json:"level"`
		Msg       string         `json:"msg"`
		Component string         `json:"component"`
		Time      string         `json:"time"`
		Fields    map[string]any `json:"fields"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}

	if entry.Level != "info" || entry.Msg != "analysis started" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Component != "test-component" {
		t.Errorf("component = %q", entry.Component)
	}
	if entry.Time == "" {
		t.Error("time missing")
	}
	if entry.Fields["url"] != "https://shop.example.com/" {
		t.Errorf("fields = %v", entry.Fields)
	}
}

func TestWithOverridesComponent(t *testing.T) {
	t.Parallel()

	base := logging.NewStdoutLogger("parent")
	child := base.With(logging.Field{Key: "component", Value: "child"})
	if child == nil {
		t.Fatal("With returned nil")
	}
}
