package output

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gyeh/fraud-signals/internal/aggregate"
)

// SchemaVersion is the version of the report layout.
const SchemaVersion = "2.0"

// Metadata heads the report.
type Metadata struct {
	SchemaVersion string    `json:"schema_version"`
	ToolVersion   string    `json:"tool_version"`
	RunID         string    `json:"run_id"`
	GeneratedAt   time.Time `json:"generated_at"`
	AnalysisDate  string    `json:"analysis_date"`
	aggregate.Summary
}

// Report is the top-level output JSON structure.
type Report struct {
	Metadata  Metadata                    `json:"metadata"`
	Providers []aggregate.FlaggedProvider `json:"providers"`
}

// BuildReport assembles the report for providers. Totals are recounted over
// providers so a severity-filtered report stays self-consistent; providers
// scanned and detector errors come from the run.
func BuildReport(info RunInfo, providers []aggregate.FlaggedProvider, generatedAt time.Time) Report {
	if providers == nil {
		providers = []aggregate.FlaggedProvider{}
	}
	summary := aggregate.Summarize(providers, info.Summary.TotalProvidersScanned)
	for k, v := range info.Summary.DetectorErrors {
		summary.DetectorErrors[k] = v
	}
	return Report{
		Metadata: Metadata{
			SchemaVersion: SchemaVersion,
			ToolVersion:   info.ToolVersion,
			RunID:         info.RunID,
			GeneratedAt:   generatedAt.UTC(),
			AnalysisDate:  info.AnalysisDate,
			Summary:       summary,
		},
		Providers: providers,
	}
}

// WriteReport writes the report as indented JSON. A path of "-" writes to
// stdout.
func WriteReport(outputPath string, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	data = append(data, '\n')

	if outputPath == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(outputPath, data, 0o644)
}
