package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "fraud-signals.yaml"

// Config holds the thresholds and switches for a detection run.
type Config struct {
	// AnalysisDate anchors the "recently enumerated" window. Empty means the
	// date the run starts.
	AnalysisDate string `yaml:"analysis_date"`

	Excluded   ExcludedConfig   `yaml:"excluded_provider"`
	Outlier    OutlierConfig    `yaml:"billing_outlier"`
	Escalation EscalationConfig `yaml:"rapid_escalation"`
	Workforce  WorkforceConfig  `yaml:"workforce_impossibility"`
	Official   OfficialConfig   `yaml:"shared_official"`
	Geographic GeographicConfig `yaml:"geographic_implausibility"`

	Logging LoggingConfig `yaml:"logging"`
}

// Exclusion-date comparison modes.
const (
	MatchAfter   = "after"   // billing month strictly after the exclusion month
	MatchOverlap = "overlap" // billing month on or after the exclusion month
)

type ExcludedConfig struct {
	Match string `yaml:"match"` // after | overlap
}

type OutlierConfig struct {
	Percentile       float64 `yaml:"percentile"`        // e.g. 0.99
	MinPeerGroupSize int     `yaml:"min_peer_group_size"`
	RelativeAccuracy float64 `yaml:"relative_accuracy"` // sketch error bound
	HighMultiple     float64 `yaml:"high_multiple"`     // total > k × threshold → high
}

type EscalationConfig struct {
	LookbackMonths int     `yaml:"lookback_months"`
	SpanMonths     int     `yaml:"span_months"`
	WindowMonths   int     `yaml:"window_months"`
	MinMonths      int     `yaml:"min_months"`
	FlagGrowthPct  float64 `yaml:"flag_growth_pct"` // later window > pct% of earlier
	HighGrowthPct  float64 `yaml:"high_growth_pct"`
}

type WorkforceConfig struct {
	WorkingDays      float64 `yaml:"working_days"`
	HoursPerDay      float64 `yaml:"hours_per_day"`
	MaxClaimsPerHour float64 `yaml:"max_claims_per_hour"`
	DefaultHeadcount int64   `yaml:"default_headcount"`
}

type OfficialConfig struct {
	MinOrganizations int     `yaml:"min_organizations"`
	MinCombinedPaid  float64 `yaml:"min_combined_paid"`
	CriticalPaid     float64 `yaml:"critical_paid"` // combined ≥ this → critical
}

type GeographicConfig struct {
	MaxRatio    float64     `yaml:"max_ratio"`
	HighClaims  int64       `yaml:"high_claims"` // claims ≥ this → high
	HCPCSRanges []CodeRange `yaml:"hcpcs_ranges"`
}

// CodeRange is an inclusive HCPCS code range, e.g. G0151–G0162.
type CodeRange struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Contains reports whether code falls within the range. HCPCS codes are
// fixed-width so lexical order matches code order.
func (r CodeRange) Contains(code string) bool {
	return len(code) == len(r.From) && code >= r.From && code <= r.To
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalid, path, err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Excluded.Match == "" {
		cfg.Excluded.Match = MatchAfter
	}

	if cfg.Outlier.Percentile == 0 {
		cfg.Outlier.Percentile = 0.99
	}
	if cfg.Outlier.MinPeerGroupSize == 0 {
		cfg.Outlier.MinPeerGroupSize = 30
	}
	if cfg.Outlier.RelativeAccuracy == 0 {
		cfg.Outlier.RelativeAccuracy = 0.01
	}
	if cfg.Outlier.HighMultiple == 0 {
		cfg.Outlier.HighMultiple = 2
	}

	if cfg.Escalation.LookbackMonths == 0 {
		cfg.Escalation.LookbackMonths = 24
	}
	if cfg.Escalation.SpanMonths == 0 {
		cfg.Escalation.SpanMonths = 12
	}
	if cfg.Escalation.WindowMonths == 0 {
		cfg.Escalation.WindowMonths = 3
	}
	if cfg.Escalation.MinMonths == 0 {
		cfg.Escalation.MinMonths = 3
	}
	if cfg.Escalation.FlagGrowthPct == 0 {
		cfg.Escalation.FlagGrowthPct = 200
	}
	if cfg.Escalation.HighGrowthPct == 0 {
		cfg.Escalation.HighGrowthPct = 400
	}

	if cfg.Workforce.WorkingDays == 0 {
		cfg.Workforce.WorkingDays = 22
	}
	if cfg.Workforce.HoursPerDay == 0 {
		cfg.Workforce.HoursPerDay = 8
	}
	if cfg.Workforce.MaxClaimsPerHour == 0 {
		cfg.Workforce.MaxClaimsPerHour = 6
	}
	if cfg.Workforce.DefaultHeadcount == 0 {
		cfg.Workforce.DefaultHeadcount = 1
	}

	if cfg.Official.MinOrganizations == 0 {
		cfg.Official.MinOrganizations = 5
	}
	if cfg.Official.MinCombinedPaid == 0 {
		cfg.Official.MinCombinedPaid = 1_000_000
	}
	if cfg.Official.CriticalPaid == 0 {
		cfg.Official.CriticalPaid = 5_000_000
	}

	if cfg.Geographic.MaxRatio == 0 {
		cfg.Geographic.MaxRatio = 0.1
	}
	if cfg.Geographic.HighClaims == 0 {
		cfg.Geographic.HighClaims = 1000
	}
	if len(cfg.Geographic.HCPCSRanges) == 0 {
		cfg.Geographic.HCPCSRanges = HomeHealthRanges()
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// HomeHealthRanges is the home-health HCPCS allowlist.
func HomeHealthRanges() []CodeRange {
	return []CodeRange{
		{From: "G0151", To: "G0162"},
		{From: "G0299", To: "G0300"},
		{From: "S9122", To: "S9124"},
		{From: "T1019", To: "T1022"},
	}
}

// AnalysisTime resolves AnalysisDate, falling back to now.
func (c *Config) AnalysisTime(now time.Time) (time.Time, error) {
	if c.AnalysisDate == "" {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse("2006-01-02", c.AnalysisDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: analysis_date %q: %v", ErrInvalid, c.AnalysisDate, err)
	}
	return t, nil
}

// ErrInvalid marks a configuration that cannot be used for a run.
var ErrInvalid = errors.New("invalid configuration")
