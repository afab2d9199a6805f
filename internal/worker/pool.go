// Package worker runs detectors concurrently over one snapshot.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gyeh/fraud-signals/internal/config"
	"github.com/gyeh/fraud-signals/internal/dataset"
	"github.com/gyeh/fraud-signals/internal/progress"
	"github.com/gyeh/fraud-signals/internal/signals"
)

// ErrMissingColumn means a detector needs a column the snapshot lacks.
var ErrMissingColumn = errors.New("required column missing")

// partitionKey is the peer-group key. Without it the run stops before any
// detector starts; other missing columns only disable the detectors that
// need them.
var partitionKey = []dataset.Column{dataset.ProviderTaxonomy, dataset.ProviderState}

// Result holds one detector's output. Err is set when the detector failed,
// panicked or could not start; Flags is then nil.
type Result struct {
	Kind     signals.Kind
	Flags    []signals.Flag
	Err      error
	Duration time.Duration
}

// Pool runs detectors in parallel, each isolated from the others' failures.
type Pool struct {
	Workers      int
	Snapshot     dataset.Snapshot
	Config       *config.Config
	AnalysisDate time.Time
	Log          zerolog.Logger
	Progress     progress.Manager
}

// Preflight checks the snapshot against the columns each detector requires.
// It returns the per-detector errors for detectors that cannot run, and a
// fatal error when the peer-group key itself is missing.
func Preflight(snap dataset.Snapshot, detectors []signals.Detector) (map[signals.Kind]error, error) {
	var fatal []string
	for _, c := range partitionKey {
		if !snap.HasColumn(c) {
			fatal = append(fatal, c.String())
		}
	}
	if len(fatal) > 0 {
		return nil, fmt.Errorf("%w: peer-group key %s", ErrMissingColumn, strings.Join(fatal, ", "))
	}

	skipped := make(map[signals.Kind]error)
	for _, d := range detectors {
		var missing []string
		for _, c := range d.Requires() {
			if !snap.HasColumn(c) {
				missing = append(missing, c.String())
			}
		}
		if len(missing) > 0 {
			skipped[d.Kind()] = fmt.Errorf("%s: %w: %s", d.Kind(), ErrMissingColumn, strings.Join(missing, ", "))
		}
	}
	return skipped, nil
}

// Run executes all detectors and returns their results in input order. A
// failing or skipped detector is reported in its Result; the returned error
// is only set for a missing peer-group key and cancellation.
func (p *Pool) Run(ctx context.Context, detectors []signals.Detector) ([]Result, error) {
	skipped, err := Preflight(p.Snapshot, detectors)
	if err != nil {
		return nil, err
	}
	mgr := p.Progress
	if mgr == nil {
		mgr = progress.NoopManager{}
	}

	results := make([]Result, len(detectors))
	g := new(errgroup.Group)
	g.SetLimit(max(p.Workers, 1))
	for i, d := range detectors {
		i, d := i, d
		if err, ok := skipped[d.Kind()]; ok {
			p.Log.Warn().Str("signal", string(d.Kind())).Err(err).Msg("detector skipped")
			results[i] = Result{Kind: d.Kind(), Err: err}
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = Result{Kind: d.Kind(), Err: ctx.Err()}
				return nil
			}
			tracker := mgr.NewTracker(i, len(detectors), string(d.Kind()))
			results[i] = p.runOne(ctx, d, tracker)
			tracker.Done()
			return nil
		})
	}
	g.Wait()
	mgr.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (p *Pool) runOne(ctx context.Context, d signals.Detector, tracker progress.Tracker) (res Result) {
	log := p.Log.With().Str("signal", string(d.Kind())).Logger()
	start := time.Now()
	res.Kind = d.Kind()
	defer func() {
		res.Duration = time.Since(start)
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("detector panicked")
			res.Flags = nil
			res.Err = fmt.Errorf("%s panicked: %v", d.Kind(), r)
		}
	}()

	log.Info().Msg("detector started")
	flags, err := d.Detect(ctx, signals.Env{
		Snapshot:     p.Snapshot,
		Config:       p.Config,
		AnalysisDate: p.AnalysisDate,
		Log:          log,
		Progress:     tracker,
	})
	if err != nil {
		log.Error().Err(err).Msg("detector failed")
		res.Err = fmt.Errorf("%s: %w", d.Kind(), err)
		return res
	}
	res.Flags = flags
	tracker.SetCounter("flags", int64(len(flags)))
	log.Info().Int("flags", len(flags)).Dur("elapsed", time.Since(start)).Msg("detector finished")
	return res
}

// Outputs splits results into the flag slices of successful detectors and
// the errors of failed ones.
func Outputs(results []Result) ([][]signals.Flag, map[signals.Kind]string) {
	var outputs [][]signals.Flag
	failed := make(map[signals.Kind]string)
	for _, r := range results {
		if r.Err != nil {
			failed[r.Kind] = r.Err.Error()
			continue
		}
		outputs = append(outputs, r.Flags)
	}
	return outputs, failed
}
