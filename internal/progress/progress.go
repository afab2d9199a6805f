package progress

import (
	"fmt"
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Tracker tracks progress for a single task (a detector or an ingest table).
type Tracker interface {
	SetStage(stage string)
	SetProgress(current, total int64)
	SetCounter(name string, value int64)
	Done()
}

// Manager creates trackers for individual tasks.
type Manager interface {
	NewTracker(index, total int, name string) Tracker
	Wait()
}

// MPBManager implements Manager using the mpb multi-progress-bar library.
type MPBManager struct {
	container *mpb.Progress
}

// NewMPBManager creates a new mpb-based progress manager.
func NewMPBManager() *MPBManager {
	p := mpb.New(mpb.WithWidth(60))
	return &MPBManager{container: p}
}

// NewTracker creates a new progress bar for a task.
func (m *MPBManager) NewTracker(index, total int, name string) Tracker {
	stageVal := &atomic.Value{}
	stageVal.Store("")
	counterVal := &atomic.Value{}
	counterVal.Store("")
	bar := m.container.AddBar(100,
		mpb.PrependDecorators(
			decor.Name(fmt.Sprintf("[%d/%d] %s ", index+1, total, name), decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.Any(func(s decor.Statistics) string {
				stage := stageVal.Load().(string)
				if c := counterVal.Load().(string); c != "" {
					return stage + "  " + c
				}
				return stage
			}),
		),
	)

	return &mpbTracker{
		bar:     bar,
		stage:   stageVal,
		counter: counterVal,
	}
}

// Wait waits for all progress bars to finish.
func (m *MPBManager) Wait() {
	m.container.Wait()
}

type mpbTracker struct {
	bar     *mpb.Bar
	stage   *atomic.Value
	counter *atomic.Value
}

func (t *mpbTracker) SetStage(stage string) {
	t.stage.Store(stage)
	t.counter.Store("")
	t.bar.SetCurrent(0) // reset progress for new stage
}

func (t *mpbTracker) SetProgress(current, total int64) {
	if total > 0 {
		pct := int64(float64(current) / float64(total) * 100)
		t.bar.SetTotal(100, false)
		t.bar.SetCurrent(min(pct, 100))
	}
}

func (t *mpbTracker) SetCounter(name string, value int64) {
	t.counter.Store(fmt.Sprintf("%s: %s", name, humanCount(value)))
}

func (t *mpbTracker) Done() {
	t.bar.SetTotal(100, false)
	t.bar.SetCurrent(100)
	t.bar.Abort(false) // complete without removing
}

// NoopManager discards all progress.
type NoopManager struct{}

func (NoopManager) NewTracker(index, total int, name string) Tracker { return noopTracker{} }

func (NoopManager) Wait() {}

// Nop returns a Tracker that discards all progress.
func Nop() Tracker { return noopTracker{} }

type noopTracker struct{}

func (noopTracker) SetStage(stage string)               {}
func (noopTracker) SetProgress(current, total int64)    {}
func (noopTracker) SetCounter(name string, value int64) {}
func (noopTracker) Done()                               {}

// humanCount formats a row count with a k/M/B suffix.
func humanCount(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1e9)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1e3)
	}
	return fmt.Sprintf("%d", n)
}
