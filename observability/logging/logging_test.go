package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupWritesStructuredJSON(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)
	defer log.SetOutput(os.Stderr)

	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "redbankd.log")
	logger := setup(&buf, "redbankd", "test", Options{File: file, MaxSizeMB: 1})
	logger.Info("market updated", "asset", "uusd")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	for key, want := range map[string]string{
		"message":  "market updated",
		"severity": "INFO",
		"service":  "redbankd",
		"env":      "test",
		"asset":    "uusd",
	} {
		if got, _ := line[key].(string); got != want {
			t.Fatalf("%s: got %q want %q", key, got, want)
		}
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("missing timestamp: %v", line)
	}

	written, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read rotated file: %v", err)
	}
	if !strings.Contains(string(written), "market updated") {
		t.Fatalf("log file missing line: %s", written)
	}
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)
	defer log.SetOutput(os.Stderr)

	var buf bytes.Buffer
	logger := setup(&buf, "redbankd", "", Options{Level: ParseLevel("info")})
	logger.Debug("noisy")
	if buf.Len() != 0 {
		t.Fatalf("debug line written at info level: %s", buf.String())
	}
	if ParseLevel("WARN") != slog.LevelWarn || ParseLevel("bogus") != slog.LevelInfo {
		t.Fatalf("unexpected level parsing")
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("Authorization", "Bearer abc").Value.String(); got != RedactedValue {
		t.Fatalf("expected redaction, got %q", got)
	}
	if got := MaskField("asset", "uusd").Value.String(); got != "uusd" {
		t.Fatalf("unexpected masking of %q", got)
	}
	if got := MaskField("token", "").Value.String(); got != "" {
		t.Fatalf("empty values stay empty, got %q", got)
	}
}
