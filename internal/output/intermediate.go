// Package output persists detection results between stages and writes the
// final report.
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	simdjson "github.com/minio/simdjson-go"

	"github.com/gyeh/fraud-signals/internal/aggregate"
	"github.com/gyeh/fraud-signals/internal/signals"
)

// Intermediate file names inside the run directory.
const (
	FlaggedFile = "flagged.ndjson"
	RunFile     = "run.json"
)

var useSimd = simdjson.SupportedCPU()

// RunInfo is the summary of a detect run, stored next to the flagged
// providers.
type RunInfo struct {
	RunID        string                   `json:"run_id"`
	ToolVersion  string                   `json:"tool_version"`
	StartedAt    time.Time                `json:"started_at"`
	FinishedAt   time.Time                `json:"finished_at"`
	AnalysisDate string                   `json:"analysis_date"`
	Snapshot     string                   `json:"snapshot"`
	Summary      aggregate.Summary        `json:"summary"`
	Durations    map[signals.Kind]float64 `json:"detector_seconds,omitempty"`
}

// WriteIntermediate writes one flagged provider per line and the run
// summary into dir.
func WriteIntermediate(dir string, providers []aggregate.FlaggedProvider, info RunInfo) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}

	path := filepath.Join(dir, FlaggedFile)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	enc := json.NewEncoder(w)
	for i := range providers {
		if err := enc.Encode(&providers[i]); err != nil {
			f.Close()
			return fmt.Errorf("encoding provider %s: %w", providers[i].NPI, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run info: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, RunFile), append(data, '\n'), 0o644)
}

// ReadRunInfo loads the summary written by WriteIntermediate.
func ReadRunInfo(dir string) (RunInfo, error) {
	var info RunInfo
	data, err := os.ReadFile(filepath.Join(dir, RunFile))
	if err != nil {
		return info, fmt.Errorf("reading run info: %w", err)
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("parsing run info: %w", err)
	}
	return info, nil
}

// ReadFlagged loads flagged providers whose overall severity is at least
// floor. Lines below floor are rejected after extracting only the severity.
func ReadFlagged(dir string, floor signals.Severity) ([]aggregate.FlaggedProvider, error) {
	path := filepath.Join(dir, FlaggedFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 256*1024*1024)

	var pj *simdjson.ParsedJson
	var providers []aggregate.FlaggedProvider
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var sev signals.Severity
		sev, pj, err = severityOf(line, pj)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if sev < floor {
			continue
		}

		var p aggregate.FlaggedProvider
		if err := json.Unmarshal(line, &p); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		for i := range p.Flags {
			p.Flags[i].NPI = p.NPI
		}
		providers = append(providers, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return providers, nil
}

// severityOf extracts overall_severity from one NDJSON line. Returns the
// (possibly reused) ParsedJson.
func severityOf(line []byte, pj *simdjson.ParsedJson) (signals.Severity, *simdjson.ParsedJson, error) {
	var raw string
	if useSimd {
		var err error
		pj, err = simdjson.Parse(line, pj)
		if err != nil {
			return 0, pj, err
		}
		err = pj.ForEach(func(i simdjson.Iter) error {
			elem, err := i.FindElement(nil, "overall_severity")
			if err != nil {
				return err
			}
			raw, err = elem.Iter.String()
			return err
		})
		if err != nil {
			return 0, pj, err
		}
	} else {
		var head struct {
			Severity string `json:"overall_severity"`
		}
		if err := json.Unmarshal(line, &head); err != nil {
			return 0, pj, err
		}
		raw = head.Severity
	}
	sev, err := signals.ParseSeverity(raw)
	return sev, pj, err
}
