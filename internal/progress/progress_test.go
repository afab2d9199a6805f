package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLogTracker_StageAlwaysLogged(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogManager(zerolog.New(&buf))
	tr := m.NewTracker(0, 6, "billing_outlier")

	tr.SetStage("scanning billing")
	tr.SetProgress(10, 100)
	tr.SetProgress(20, 100) // throttled
	tr.SetStage("scoring peer groups")
	tr.Done()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 log lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"task":"billing_outlier"`) || !strings.Contains(lines[0], `"index":1`) {
		t.Errorf("tracker fields missing: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"rows":10`) || !strings.Contains(lines[1], `"pct":10`) {
		t.Errorf("unexpected progress line: %s", lines[1])
	}
	if !strings.Contains(lines[2], "scoring peer groups") {
		t.Errorf("expected second stage, got %s", lines[2])
	}
	if !strings.Contains(lines[3], "finished") {
		t.Errorf("expected finished line, got %s", lines[3])
	}
}

func TestLogTracker_ProgressAfterInterval(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogManager(zerolog.New(&buf))
	m.interval = time.Millisecond
	tr := m.NewTracker(1, 2, "ingest")
	tr.SetProgress(1, 0)
	time.Sleep(5 * time.Millisecond)
	tr.SetCounter("rows", 42)

	out := buf.String()
	if strings.Count(out, "\n") != 2 {
		t.Fatalf("expected 2 lines, got:\n%s", out)
	}
	if !strings.Contains(out, `"rows":42`) {
		t.Errorf("counter missing: %s", out)
	}
}

func TestHumanCount(t *testing.T) {
	cases := map[int64]string{
		12:            "12",
		1_500:         "1.5k",
		227_000_000:   "227.0M",
		3_100_000_000: "3.1B",
	}
	for in, want := range cases {
		if got := humanCount(in); got != want {
			t.Errorf("humanCount(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestNop(t *testing.T) {
	tr := Nop()
	tr.SetStage("x")
	tr.SetProgress(1, 2)
	tr.SetCounter("y", 3)
	tr.Done()
	NoopManager{}.Wait()
}
