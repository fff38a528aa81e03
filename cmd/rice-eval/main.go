// Package main provides the rice-eval binary, which scores retrieval
// backends against a labeled corpus and ground-truth scenario queries.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rice-eval",
		Short: "Rice Eval - retrieval quality harness",
		Long: `Rice Eval indexes a labeled document corpus into a retrieval backend,
replays ground-truth scenario queries against it, and reports accuracy,
precision, recall, NDCG, MRR and MAP at each cutoff.

Run 'rice-eval run' for a one-shot evaluation.
Run 'rice-eval serve' to expose the evaluation endpoint over HTTP.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("backend", "", "retrieval backend (memory, lexical, hybrid, qdrant)")
	rootCmd.PersistentFlags().String("corpus", "", "corpus source (path or URL)")
	rootCmd.PersistentFlags().String("scenarios", "", "scenario source (path or URL)")
	rootCmd.PersistentFlags().String("cutoffs", "", "comma separated cutoffs, e.g. 1,2,3")

	rootCmd.AddCommand(
		runCmd(),
		serveCmd(),
		labelCmd(),
		historyCmd(),
		versionCmd(),
	)

	return rootCmd
}

// loadConfig loads the config file and environment, applies flag overrides,
// and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	if v, _ := cmd.Flags().GetString("backend"); v != "" {
		cfg.Backend.Type = v
	}
	if v, _ := cmd.Flags().GetString("corpus"); v != "" {
		cfg.Corpus.Source = v
	}
	if v, _ := cmd.Flags().GetString("scenarios"); v != "" {
		cfg.Corpus.ScenarioSource = v
	}
	if v, _ := cmd.Flags().GetString("cutoffs"); v != "" {
		cutoffs, err := parseCutoffs(v)
		if err != nil {
			return nil, nil, err
		}
		cfg.Eval.Cutoffs = cutoffs
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return cfg, logger.New(cfg.Log.Level, cfg.Log.Format), nil
}

func parseCutoffs(s string) ([]int, error) {
	var cutoffs []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid cutoff %q: %w", part, err)
		}
		cutoffs = append(cutoffs, k)
	}
	return cutoffs, nil
}

// parseWindow parses a look-back window. Besides time.ParseDuration units it
// accepts a whole number of days such as "7d".
func parseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid window %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid window %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid window %q: must not be negative", s)
	}
	return d, nil
}

// windowValue is a flag value parsed by parseWindow.
type windowValue time.Duration

func (w *windowValue) String() string {
	d := time.Duration(*w)
	if d > 0 && d%(24*time.Hour) == 0 {
		return strconv.Itoa(int(d/(24*time.Hour))) + "d"
	}
	return d.String()
}

func (w *windowValue) Set(s string) error {
	d, err := parseWindow(s)
	if err != nil {
		return err
	}
	*w = windowValue(d)
	return nil
}

func (w *windowValue) Type() string {
	return "window"
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rice-eval %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}
