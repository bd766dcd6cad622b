package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewLoggerWritesEventAndService(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "intake-worker", "debug")
	logger.Debug("upload_processed", "upload_id", "u-1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log record: %v (%s)", err, buf.String())
	}
	if record["event"] != "upload_processed" || record["service"] != "intake-worker" || record["upload_id"] != "u-1" {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
