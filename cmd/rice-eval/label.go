package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/corpus"
	"github.com/ricesearch/rice-eval/internal/report"
)

func labelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "label",
		Short: "Print the label assigned to every corpus document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			labeler := corpus.NewLabeler(corpus.RulesFromConfig(cfg.Labeler))
			docs, err := corpus.LoadDocumentsFrom(ctx, cfg.Corpus.Source, cfg.Corpus.FetchTimeout, labeler)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLABEL")
			for _, d := range docs {
				fmt.Fprintf(tw, "%s\t%s\n", d.ID, d.Label)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			counts := corpus.CountByCategory(docs)
			cats := make([]corpus.Category, 0, len(counts))
			for c := range counts {
				cats = append(cats, c)
			}
			sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

			fmt.Fprintf(cmd.OutOrStdout(), "\n%d documents, fingerprint %s\n", len(docs), corpus.Fingerprint(docs))
			for _, c := range cats {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-28s %d\n", c, counts[c])
			}
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	since := windowValue(7 * 24 * time.Hour)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs saved in Redis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Report.RedisURL == "" {
				return fmt.Errorf("run history is disabled: set RICE_EVAL_REDIS_URL or report.redis_url")
			}

			format, _ := cmd.Flags().GetString("format")
			if format == "" {
				format = cfg.Report.Format
			}

			history, err := report.NewRedisHistory(cfg.Report.RedisURL, cfg.Report.TTL)
			if err != nil {
				return err
			}
			defer history.Close()

			runs, err := history.LoadRuns(cmd.Context(), time.Now().Add(-time.Duration(since)))
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return nil
			}

			for i := range runs {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				if err := report.Write(cmd.OutOrStdout(), &runs[i], format); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().Var(&since, "since", "show runs finished within this window (e.g. 7d, 36h)")
	cmd.Flags().String("format", "", "report format (text, json)")

	return cmd
}
