package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_JSONCarriesService(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, zerolog.InfoLevel, false)
	logger.Warn().Int("count", 3).Msg("enumeration after service period")

	var event map[string]any
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("expected a JSON line, got %q: %v", buf.String(), err)
	}
	if event["service"] != Service {
		t.Errorf("expected service=%s, got %v", Service, event["service"])
	}
	if event["level"] != "warn" {
		t.Errorf("expected level warn, got %v", event["level"])
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, zerolog.WarnLevel, false)
	logger.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("info event should be filtered at warn level, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	if lvl, err := ParseLevel(""); err != nil || lvl != zerolog.InfoLevel {
		t.Errorf("empty level: got %v %v", lvl, err)
	}
	if lvl, err := ParseLevel("debug"); err != nil || lvl != zerolog.DebugLevel {
		t.Errorf("debug: got %v %v", lvl, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
