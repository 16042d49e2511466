package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "statusengine")
	log.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v (line: %s)", err, buf.String())
	}
	if entry["component"] != "statusengine" {
		t.Errorf("expected component field 'statusengine', got %v", entry["component"])
	}
	if entry["message"] != "hello" {
		t.Errorf("expected message field 'hello', got %v", entry["message"])
	}
}

func TestNewDefaultsToStderrWhenWriterNil(t *testing.T) {
	// Must not panic when w is nil; it falls back to os.Stderr internally.
	log := New(nil, "test")
	log.Debug().Msg("noop")
}

func TestNopDiscardsOutput(t *testing.T) {
	log := Nop()
	// Nop logger must not panic and produces no observable output; there is
	// nothing to assert on besides the absence of a crash.
	log.Info().Str("k", "v").Msg("discarded")
}
