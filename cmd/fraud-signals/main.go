package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gyeh/fraud-signals/internal/config"
	"github.com/gyeh/fraud-signals/internal/logging"
	"github.com/gyeh/fraud-signals/internal/progress"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app carries state shared by every subcommand once flags are parsed.
type app struct {
	configPath string
	logLevel   string
	dataDir    string
	noProgress bool

	cfg *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "\nInterrupted, nothing written")
		} else {
			log.Error().Err(err).Msg("fraud-signals failed")
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "fraud-signals",
		Short:         "Detect Medicaid billing fraud signals and report them per provider",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			level := a.logLevel
			if level == "" {
				level = cfg.Logging.Level
			}
			return logging.Init(level, logging.IsTerminal(os.Stderr))
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", config.DefaultPath, "YAML config file (defaults apply when absent)")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")
	pf.StringVar(&a.dataDir, "data-dir", "data", "Snapshot directory holding the parquet tables")
	pf.BoolVar(&a.noProgress, "no-progress", false, "Disable progress output")

	rootCmd.AddCommand(newIngestCmd(a))
	rootCmd.AddCommand(newDetectCmd(a))
	rootCmd.AddCommand(newReportCmd(a))
	rootCmd.AddCommand(newRunCmd(a))
	return rootCmd
}

// progressManager picks bars for terminals and log lines otherwise.
func (a *app) progressManager() progress.Manager {
	switch {
	case a.noProgress:
		return progress.NoopManager{}
	case logging.IsTerminal(os.Stderr):
		return progress.NewMPBManager()
	default:
		return progress.NewLogManager(log.Logger)
	}
}
