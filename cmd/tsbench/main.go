// Command tsbench synthesizes gap-ridden sensor streams, runs them through
// every processing engine and prints a per-stage report.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vjranagit/tscore/internal/config"
	"github.com/vjranagit/tscore/internal/version"
	"github.com/vjranagit/tscore/pkg/provenance"
)

var flags = viper.New()

var rootCmd = &cobra.Command{
	Use:   "tsbench",
	Short: "Exercise the time-series processing engines on synthetic data.",
	Long: `tsbench generates two irregularly sampled streams with missing runs,
then fills, differentiates, integrates, downsamples and synchronizes them
with the configured engines. Each stage is reported with its point counts,
fill statistics and wall time.

Configuration comes from --config (or ./tscore.yaml) with TSCORE_*
environment overrides.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runBench,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of tsbench.",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("tsbench\n")
		cmd.Printf("  Version: %s\n", version.Version)
		cmd.Printf("  Commit:  %s\n", version.GitSHA)
		cmd.Printf("  Runtime: %s\n", runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	rootCmd.Flags().String("config", "", "Path to config file")
	rootCmd.Flags().Int("points", 2000, "Samples in the primary stream")
	rootCmd.Flags().Float64("gap-ratio", 0.1, "Fraction of samples replaced by gaps")
	rootCmd.Flags().Uint64("seed", 1, "Random seed")
	rootCmd.Flags().String("methods", "linear,spline_cubic,smoothing_spline,mls,gpr,lomb_scargle_spectral",
		"Comma-separated interpolation methods to benchmark")
	rootCmd.Flags().String("log-level", "", "Override the configured log level")
	rootCmd.Flags().String("color", "auto", "Colored status column: yes, no or auto")
	if err := flags.BindPFlags(rootCmd.Flags()); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding flags: %v\n", err)
		os.Exit(1)
	}
}

func runBench(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flags.GetString("config"))
	if err != nil {
		return err
	}
	if lvl := flags.GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	switch strings.ToLower(flags.GetString("color")) {
	case "yes", "true", "1":
		color.NoColor = false
	case "no", "false", "0":
		color.NoColor = true
	}

	opts := benchOptions{
		Points:   flags.GetInt("points"),
		GapRatio: flags.GetFloat64("gap-ratio"),
		Seed:     flags.GetUint64("seed"),
	}
	if opts.Points < 3 {
		return fmt.Errorf("points must be at least 3, got %d", opts.Points)
	}
	if opts.GapRatio < 0 || opts.GapRatio >= 1 {
		return fmt.Errorf("gap ratio must be in [0, 1), got %v", opts.GapRatio)
	}
	for _, m := range strings.Split(flags.GetString("methods"), ",") {
		if m = strings.TrimSpace(m); m != "" {
			opts.Methods = append(opts.Methods, provenance.Method(m))
		}
	}

	log := cfg.Logger()
	rc, err := cfg.OpenCache(log)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer rc.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	p := newPipeline(cfg, rc, log)
	stages, err := p.run(ctx, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := printStages(out, stages, time.Since(start)); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	printLineage(out, p.graph.Len(), p.edges)
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
