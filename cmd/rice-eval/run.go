package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/bus"
	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/corpus"
	"github.com/ricesearch/rice-eval/internal/embed"
	"github.com/ricesearch/rice-eval/internal/evaluation"
	"github.com/ricesearch/rice-eval/internal/metrics"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/pkg/security"
	"github.com/ricesearch/rice-eval/internal/report"
	"github.com/ricesearch/rice-eval/internal/retriever"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Index the corpus and evaluate every scenario once",
		Long: `Load the corpus and scenarios, index the corpus into a fresh backend,
run every scenario query, and print the metric report.

The run is then saved to Redis history, published on the event bus, and
written as a Prometheus textfile when those sinks are configured. Sink
failures are logged and do not fail the run.`,
		RunE: runEvaluation,
	}

	cmd.Flags().String("format", "", "report format (text, json)")
	cmd.Flags().Bool("no-progress", false, "disable progress bars")

	return cmd
}

// environment is everything a run or serve command builds from config.
type environment struct {
	docs      []corpus.Document
	harness   *evaluation.Harness
	collector *metrics.Collector
}

// Close releases the backend.
func (e *environment) Close() error {
	return e.harness.Close()
}

// setup loads the corpus, builds the backend and indexes the corpus into it.
// Query outcomes go to the metrics collector and then to onQuery, if set.
func setup(ctx context.Context, cfg *config.Config, log *logger.Logger, progress io.Writer, onQuery evaluation.Observer) (*environment, error) {
	log.Debug("Configuration", "settings", security.MaskSensitiveMap(map[string]string{
		"backend":        cfg.Backend.Type,
		"embed_provider": cfg.Embed.Provider,
		"embed_api_key":  cfg.Embed.APIKey,
		"qdrant_api_key": cfg.Qdrant.APIKey,
		"redis_url":      security.MaskURL(cfg.Report.RedisURL),
		"bus":            cfg.Bus.Type,
	}))

	labeler := corpus.NewLabeler(corpus.RulesFromConfig(cfg.Labeler))
	docs, err := corpus.LoadDocumentsFrom(ctx, cfg.Corpus.Source, cfg.Corpus.FetchTimeout, labeler)
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %w", err)
	}
	log.Info("Loaded corpus", "documents", len(docs), "source", cfg.Corpus.Source)
	for cat, n := range corpus.CountByCategory(docs) {
		log.Debug("Corpus category", "label", cat.String(), "documents", n)
	}

	embedder, err := embed.New(cfg.Embed)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	backend, err := retriever.New(ctx, cfg, embedder)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector(retriever.NameOf(backend))
	if cached, ok := embedder.(*embed.CachedEmbedder); ok {
		cached.SetMetrics(collector)
	}

	// Every run starts from an empty collection.
	if qs, ok := backend.(*retriever.QdrantStore); ok {
		if err := qs.Reset(ctx); err != nil {
			backend.Close()
			return nil, err
		}
	}

	var observer evaluation.Observer = collector
	if onQuery != nil {
		observer = evaluation.ObserverFunc(func(o evaluation.Outcome) {
			collector.ObserveQuery(o)
			onQuery.ObserveQuery(o)
		})
	}

	indexBar := newProgressBar(progress, len(docs), "indexing")
	h := evaluation.NewHarness(backend,
		evaluation.WithLogger(log),
		evaluation.WithWorkers(cfg.Eval.Workers),
		evaluation.WithQueryTimeout(cfg.Eval.QueryTimeout),
		evaluation.WithRateLimit(cfg.Eval.RateLimit),
		evaluation.WithIndexBatch(cfg.Backend.IndexBatch),
		evaluation.WithObserver(observer),
		evaluation.WithProgress(func(done, _ int) { _ = indexBar.Set(done) }),
	)
	if err := h.Index(ctx, docs); err != nil {
		h.Close()
		return nil, err
	}
	_ = indexBar.Finish()
	collector.SetIndexedDocuments(len(docs))

	return &environment{
		docs:      docs,
		harness:   h,
		collector: collector,
	}, nil
}

func runEvaluation(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if format, _ := cmd.Flags().GetString("format"); format != "" {
		cfg.Report.Format = format
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scenarios, err := corpus.LoadScenariosFrom(ctx, cfg.Corpus.ScenarioSource, cfg.Corpus.FetchTimeout)
	if err != nil {
		return fmt.Errorf("loading scenarios: %w", err)
	}

	progress := io.Writer(os.Stderr)
	if noProgress, _ := cmd.Flags().GetBool("no-progress"); noProgress {
		progress = io.Discard
	}

	started := time.Now()
	var queryBar *progressbar.ProgressBar

	env, err := setup(ctx, cfg, log, progress, evaluation.ObserverFunc(func(evaluation.Outcome) {
		_ = queryBar.Add(1)
	}))
	if err != nil {
		return err
	}
	defer env.Close()

	queryBar = newProgressBar(progress, len(scenarios), "querying")
	rep, err := env.harness.Evaluate(ctx, scenarios, cfg.Eval.Cutoffs)
	if err != nil {
		return err
	}
	_ = queryBar.Finish()

	run := report.NewRun(env.harness.Name(), corpus.Fingerprint(env.docs), len(env.docs), started, time.Now(), rep)
	env.collector.RecordReport(rep)

	if err := report.Write(cmd.OutOrStdout(), run, cfg.Report.Format); err != nil {
		return err
	}

	// Report sinks are best effort.
	saveHistory(ctx, cfg, log, run)
	publishRun(ctx, cfg, log, env.collector, run)
	if cfg.Metrics.Textfile != "" {
		if err := env.collector.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.WithError(err).Warn("Failed to write metrics textfile", "path", cfg.Metrics.Textfile)
		}
	}

	return nil
}

func saveHistory(ctx context.Context, cfg *config.Config, log *logger.Logger, run *report.Run) {
	if cfg.Report.RedisURL == "" {
		return
	}

	history, err := report.NewRedisHistory(cfg.Report.RedisURL, cfg.Report.TTL)
	if err != nil {
		log.WithError(err).Warn("Run history unavailable", "redis_url", security.MaskURL(cfg.Report.RedisURL))
		return
	}
	defer history.Close()

	if err := history.SaveRun(ctx, run); err != nil {
		log.WithError(err).Warn("Failed to save run history", "run_id", run.ID)
		return
	}
	log.Info("Saved run history", "run_id", run.ID)
}

func publishRun(ctx context.Context, cfg *config.Config, log *logger.Logger, collector *metrics.Collector, run *report.Run) {
	pub, err := bus.NewPublisher(cfg.Bus)
	if err != nil {
		log.WithError(err).Warn("Event bus unavailable")
		return
	}
	if pub == nil {
		return
	}

	p := bus.NewLoggedPublisher(bus.NewInstrumentedPublisher(pub, collector), log)
	defer p.Close()

	topic := cfg.Bus.Topic
	if topic == "" {
		topic = bus.TopicRunCompleted
	}
	_ = p.Publish(ctx, topic, bus.NewRunEvent(run))
}

func newProgressBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
