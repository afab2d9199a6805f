package progress

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogManager implements Manager with throttled structured log lines for
// non-TTY environments (CI, batch hosts). Stage changes are always logged;
// progress and counter updates at most once per interval per task.
type LogManager struct {
	log      zerolog.Logger
	interval time.Duration
}

const logInterval = 20 * time.Second

// NewLogManager creates a new log-based progress manager.
func NewLogManager(log zerolog.Logger) *LogManager {
	return &LogManager{log: log, interval: logInterval}
}

func (m *LogManager) NewTracker(index, total int, name string) Tracker {
	return &logTracker{
		log: m.log.With().
			Str("task", name).
			Int("index", index+1).
			Int("of", total).
			Logger(),
		interval: m.interval,
		start:    time.Now(),
	}
}

func (m *LogManager) Wait() {}

// logTracker implements Tracker with throttled log output.
type logTracker struct {
	mu       sync.Mutex
	log      zerolog.Logger
	interval time.Duration
	start    time.Time
	stage    string
	lastLog  time.Time
	prevRows int64
	prevTime time.Time
}

func (t *logTracker) SetStage(stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = stage
	t.lastLog = time.Time{} // reset throttle so next progress update prints
	t.prevRows = 0
	t.prevTime = time.Time{}
	t.log.Info().Str("stage", stage).Msg("stage")
}

func (t *logTracker) SetProgress(current, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if now.Sub(t.lastLog) < t.interval {
		return
	}

	ev := t.log.Info().Str("stage", t.stage).Int64("rows", current)
	if !t.prevTime.IsZero() {
		if elapsed := now.Sub(t.prevTime).Seconds(); elapsed > 0 {
			ev = ev.Float64("rows_per_sec", float64(current-t.prevRows)/elapsed)
		}
	}
	if total > 0 {
		ev = ev.Int64("total", total).Float64("pct", float64(current)/float64(total)*100)
	}
	t.prevRows = current
	t.prevTime = now
	t.lastLog = now
	ev.Msg("progress")
}

func (t *logTracker) SetCounter(name string, value int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if time.Since(t.lastLog) < t.interval {
		return
	}
	t.lastLog = time.Now()
	t.log.Info().Str("stage", t.stage).Int64(name, value).Msg("progress")
}

func (t *logTracker) Done() {
	t.log.Info().Dur("elapsed", time.Since(t.start).Truncate(time.Second)).Msg("finished")
}
