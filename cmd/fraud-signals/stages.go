package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gyeh/fraud-signals/internal/aggregate"
	"github.com/gyeh/fraud-signals/internal/cloud"
	"github.com/gyeh/fraud-signals/internal/dataset"
	"github.com/gyeh/fraud-signals/internal/ingest"
	"github.com/gyeh/fraud-signals/internal/output"
	"github.com/gyeh/fraud-signals/internal/signals"
	"github.com/gyeh/fraud-signals/internal/worker"
)

type ingestFlags struct {
	sources ingest.Sources
	tmpDir  string
	region  string
}

func (f *ingestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.sources.Spending, "spending", "", "Provider spending dataset (parquet, CSV or CSV.gz; path, URL or s3:// URI)")
	cmd.Flags().StringVar(&f.sources.Exclusions, "exclusions", "", "OIG LEIE exclusion list CSV")
	cmd.Flags().StringVar(&f.sources.Registry, "registry", "", "NPPES registry CSV or ZIP")
	cmd.Flags().StringVar(&f.sources.Affiliations, "affiliations", "", "Optional organization headcount CSV (ORG_NPI, PROVIDER_COUNT)")
	cmd.Flags().StringVar(&f.tmpDir, "tmp-dir", "", "Temp directory for downloads (default: system temp)")
	cmd.Flags().StringVar(&f.region, "region", "", "AWS region for s3:// sources (default: from environment)")
}

type detectFlags struct {
	workers int
	runDir  string
}

func (f *detectFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.workers, "workers", len(signals.Kinds()), "Number of detectors run concurrently")
	cmd.Flags().StringVar(&f.runDir, "run-dir", "run", "Directory for the detection results")
}

type reportFlags struct {
	outputFile  string
	minSeverity string
	s3Bucket    string
	s3Prefix    string
	region      string
}

func (f *reportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.outputFile, "output", "o", "fraud_signals.json", "Report file path (use '-' for stdout)")
	cmd.Flags().StringVar(&f.minSeverity, "min-severity", "medium", "Lowest overall severity included: medium, high or critical")
	cmd.Flags().StringVar(&f.s3Bucket, "s3-bucket", "", "Upload the report to this S3 bucket")
	cmd.Flags().StringVar(&f.s3Prefix, "s3-prefix", "reports", "Key prefix for the uploaded report")
	if cmd.Flags().Lookup("region") == nil {
		cmd.Flags().StringVar(&f.region, "region", "", "AWS region for the upload (default: from environment)")
	}
}

func newIngestCmd(a *app) *cobra.Command {
	var f ingestFlags
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Convert raw spending, LEIE and NPPES files into a parquet snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.ingest(cmd.Context(), f)
		},
	}
	f.register(cmd)
	cmd.MarkFlagRequired("spending")
	cmd.MarkFlagRequired("exclusions")
	cmd.MarkFlagRequired("registry")
	return cmd
}

func newDetectCmd(a *app) *cobra.Command {
	var f detectFlags
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run every detector over the snapshot and aggregate flags per provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.detect(cmd.Context(), f)
			return err
		},
	}
	f.register(cmd)
	return cmd
}

func newReportCmd(a *app) *cobra.Command {
	var (
		f      reportFlags
		runDir string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the JSON report from detection results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.report(cmd.Context(), runDir, f)
		},
	}
	cmd.Flags().StringVar(&runDir, "run-dir", "run", "Directory holding the detection results")
	f.register(cmd)
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var (
		in  ingestFlags
		det detectFlags
		rep reportFlags
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run detect and report in sequence, ingesting first when sources are given",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if in.sources != (ingest.Sources{}) {
				if err := a.ingest(ctx, in); err != nil {
					return err
				}
			}
			if _, err := a.detect(ctx, det); err != nil {
				return err
			}
			rep.region = in.region
			return a.report(ctx, det.runDir, rep)
		},
	}
	in.register(cmd)
	det.register(cmd)
	rep.register(cmd)
	return cmd
}

func (a *app) ingest(ctx context.Context, f ingestFlags) error {
	tmpDir := f.tmpDir
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}

	start := time.Now()
	stats, err := ingest.Run(ctx, ingest.Options{
		Sources:  f.sources,
		OutDir:   a.dataDir,
		TmpDir:   tmpDir,
		Stores:   ingest.S3Stores(f.region),
		Log:      log.Logger,
		Progress: a.progressManager(),
	})
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	var rows int64
	for _, s := range stats {
		rows += s.Rows
	}
	fmt.Fprintf(os.Stderr, "\nIngest complete: %d tables, %d rows in %.1fs\n", len(stats), rows, time.Since(start).Seconds())
	fmt.Fprintf(os.Stderr, "Snapshot written to %s\n", a.dataDir)
	return nil
}

func (a *app) detect(ctx context.Context, f detectFlags) (output.RunInfo, error) {
	started := time.Now().UTC()
	analysis, err := a.cfg.AnalysisTime(started)
	if err != nil {
		return output.RunInfo{}, err
	}
	snap, err := dataset.Open(a.dataDir)
	if err != nil {
		return output.RunInfo{}, fmt.Errorf("opening snapshot: %w", err)
	}

	pool := &worker.Pool{
		Workers:      f.workers,
		Snapshot:     snap,
		Config:       a.cfg,
		AnalysisDate: analysis,
		Log:          log.Logger,
		Progress:     a.progressManager(),
	}
	results, err := pool.Run(ctx, signals.All())
	if err != nil {
		return output.RunInfo{}, err
	}

	outputs, failed := worker.Outputs(results)
	providers := aggregate.Reduce(log.Logger, outputs...)

	mgr := a.progressManager()
	tracker := mgr.NewTracker(0, 1, "enrich")
	scanned, err := aggregate.Enrich(ctx, snap, providers, tracker)
	tracker.Done()
	mgr.Wait()
	if err != nil {
		return output.RunInfo{}, fmt.Errorf("enriching flagged providers: %w", err)
	}

	summary := aggregate.Summarize(providers, scanned)
	summary.DetectorErrors = failed
	durations := make(map[signals.Kind]float64, len(results))
	for _, r := range results {
		durations[r.Kind] = r.Duration.Seconds()
	}

	info := output.RunInfo{
		RunID:        uuid.NewString(),
		ToolVersion:  version,
		StartedAt:    started,
		FinishedAt:   time.Now().UTC(),
		AnalysisDate: analysis.Format("2006-01-02"),
		Snapshot:     a.dataDir,
		Summary:      summary,
		Durations:    durations,
	}
	if err := output.WriteIntermediate(f.runDir, providers, info); err != nil {
		return output.RunInfo{}, fmt.Errorf("writing detection results: %w", err)
	}

	if len(failed) > 0 {
		log.Warn().Int("failed", len(failed)).Msg("some detectors failed, results are partial")
	}
	fmt.Fprintf(os.Stderr, "\nDetection complete: %d providers scanned, %d flagged, %d flags in %.1fs\n",
		scanned, summary.TotalProvidersFlagged, summary.TotalFlags, info.FinishedAt.Sub(started).Seconds())
	fmt.Fprintf(os.Stderr, "Results written to %s\n", f.runDir)
	return info, nil
}

func (a *app) report(ctx context.Context, runDir string, f reportFlags) error {
	floor, err := signals.ParseSeverity(f.minSeverity)
	if err != nil {
		return fmt.Errorf("--min-severity: %w", err)
	}
	if f.s3Bucket != "" && f.outputFile == "-" {
		return fmt.Errorf("--s3-bucket needs a report file, not stdout")
	}

	info, err := output.ReadRunInfo(runDir)
	if err != nil {
		return err
	}
	providers, err := output.ReadFlagged(runDir, floor)
	if err != nil {
		return fmt.Errorf("reading detection results: %w", err)
	}

	rep := output.BuildReport(info, providers, time.Now())
	if err := output.WriteReport(f.outputFile, rep); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	log.Info().
		Str("run_id", info.RunID).
		Int("providers", len(rep.Providers)).
		Str("min_severity", floor.String()).
		Msg("report written")

	if f.s3Bucket == "" {
		return nil
	}
	client, err := cloud.NewS3Client(ctx, f.s3Bucket, f.region)
	if err != nil {
		return err
	}
	key := cloud.ReportKey(f.s3Prefix, info.RunID, filepath.Base(f.outputFile))
	if err := client.UploadFile(ctx, key, f.outputFile, "application/json"); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Report uploaded to s3://%s/%s\n", f.s3Bucket, key)
	return nil
}
