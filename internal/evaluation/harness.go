package evaluation

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ricesearch/rice-eval/internal/corpus"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/pkg/security"
	"github.com/ricesearch/rice-eval/internal/retriever"
)

// Observer is notified after every scenario query. It may be called from
// several goroutines at once.
type Observer interface {
	ObserveQuery(o Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(o Outcome)

// ObserveQuery implements Observer.
func (f ObserverFunc) ObserveQuery(o Outcome) { f(o) }

type options struct {
	workers      int
	queryTimeout time.Duration
	rateLimit    float64
	observer     Observer
	log          *logger.Logger
	indexBatch   int
	progress     func(done, total int)
}

// Option configures Evaluate and Harness.
type Option func(*options)

// WithWorkers sets how many queries run concurrently. The default is 1.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithQueryTimeout bounds every Retrieve call. A query that times out is
// scored as a miss.
func WithQueryTimeout(d time.Duration) Option {
	return func(o *options) { o.queryTimeout = d }
}

// WithRateLimit caps queries per second across all workers.
func WithRateLimit(qps float64) Option {
	return func(o *options) { o.rateLimit = qps }
}

// WithObserver registers a per-query observer.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithIndexBatch sets how many documents Harness.Index sends per call.
func WithIndexBatch(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.indexBatch = n
		}
	}
}

// WithProgress registers a callback invoked after each indexed batch.
func WithProgress(fn func(done, total int)) Option {
	return func(o *options) { o.progress = fn }
}

func buildOptions(opts []Option) options {
	o := options{
		workers:    1,
		log:        logger.Discard(),
		indexBatch: 32,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Evaluate runs every scenario through r at depth max(cutoffs) and computes
// the metric report.
//
// Scenarios are independent: a failed or timed out query is scored as a miss.
// BackendUnavailable and EmptyIndex abort the run and carry the index of the
// scenario that hit them. Outcomes are stored by scenario index, so the report
// does not depend on the number of workers.
func Evaluate(ctx context.Context, scenarios []corpus.Scenario, r retriever.Retriever, cutoffs []int, opts ...Option) (*Report, error) {
	o := buildOptions(opts)

	cutoffs, err := NormalizeCutoffs(cutoffs)
	if err != nil {
		return nil, err
	}
	depth := cutoffs[len(cutoffs)-1]

	if len(scenarios) == 0 {
		return nil, errors.ValidationError("at least one scenario is required")
	}

	name := retriever.NameOf(r)
	log := o.log.WithBackend(name)

	if c, ok := r.(retriever.Counter); ok {
		n, err := c.Count(ctx)
		if err != nil {
			if errors.IsFatal(err) {
				return nil, err
			}
			return nil, errors.BackendUnavailableError(name, err)
		}
		if n == 0 {
			return nil, errors.EmptyIndexError(name)
		}
	}

	var limiter *rate.Limiter
	if o.rateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(o.rateLimit), 1)
	}

	log.Info("Starting evaluation",
		"scenarios", len(scenarios),
		"cutoffs", cutoffs,
		"workers", o.workers,
	)
	start := time.Now()

	outcomes := make([]Outcome, len(scenarios))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for i, sc := range scenarios {
		g.Go(func() error {
			outcome, err := runQuery(gctx, r, i, sc, depth, o, limiter)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			if o.observer != nil {
				o.observer.ObserveQuery(outcome)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Evaluation aborted")
		return nil, err
	}

	ranks := make([]int, len(outcomes))
	failed := 0
	for i, oc := range outcomes {
		ranks[i] = oc.Rank
		if oc.Error != "" {
			failed++
		}
	}
	report := Compute(ranks, cutoffs)
	report.Errors = failed
	report.Outcomes = outcomes

	log.Info("Evaluation complete",
		"queries", report.QueryCount,
		"misses", report.Misses,
		"errors", report.Errors,
		"duration", time.Since(start),
	)

	return report, nil
}

func runQuery(ctx context.Context, r retriever.Retriever, index int, sc corpus.Scenario, depth int, o options, limiter *rate.Limiter) (Outcome, error) {
	outcome := Outcome{
		ScenarioIndex: index,
		Query:         sc.Query,
		ExpectedID:    sc.ExpectedID,
	}

	if err := ctx.Err(); err != nil {
		return outcome, err
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return outcome, err
		}
	}

	qctx := ctx
	if o.queryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, o.queryTimeout)
		defer cancel()
	}

	start := time.Now()
	results, err := r.Retrieve(qctx, sc.Query, depth)
	outcome.Latency = time.Since(start)

	if err != nil {
		// The run itself was cancelled, or another query failed fatally.
		if ctx.Err() != nil {
			return outcome, ctx.Err()
		}

		log := &logger.Logger{Logger: o.log.WithScenario(index).With("query", security.SanitizeForLog(sc.Query))}

		if stderrors.Is(qctx.Err(), context.DeadlineExceeded) || stderrors.Is(err, context.DeadlineExceeded) {
			terr := errors.QueryTimeoutError(err).WithScenario(index)
			outcome.Error = terr.Code
			log.WithError(terr).Warn("Query timed out, scoring as miss", "timeout", o.queryTimeout)
			return outcome, nil
		}
		log = log.WithError(err)

		if errors.IsFatal(err) {
			return outcome, atScenario(index, err)
		}

		outcome.Error = errors.CodeOf(err)
		if outcome.Error == "" {
			outcome.Error = errors.CodeInternal
		}
		log.Warn("Query failed, scoring as miss")
		return outcome, nil
	}

	outcome.Rank = RankOf(results, sc.ExpectedID)
	if outcome.Rank > depth {
		// A backend that ignores topK cannot improve its score.
		outcome.Rank = 0
	}
	return outcome, nil
}

// atScenario wraps a fatal error with the index of the scenario that hit it,
// keeping its code and details.
func atScenario(index int, err error) error {
	appErr, _ := errors.As(err)
	wrapped := errors.Wrap(appErr.Code, fmt.Sprintf("scenario %d", index), err)
	for k, v := range appErr.Details {
		wrapped.WithDetail(k, v)
	}
	return wrapped.WithScenario(index)
}

// Harness owns a backend for the duration of a run: load it with Index,
// score it with Evaluate, then release it with Close.
type Harness struct {
	backend retriever.Backend
	opts    []Option
	o       options

	closeOnce sync.Once
	closeErr  error
}

// NewHarness creates a harness over backend. opts apply to Index and to
// every Evaluate call.
func NewHarness(backend retriever.Backend, opts ...Option) *Harness {
	return &Harness{
		backend: backend,
		opts:    opts,
		o:       buildOptions(opts),
	}
}

// Backend returns the backend under evaluation.
func (h *Harness) Backend() retriever.Backend {
	return h.backend
}

// Name returns the backend name.
func (h *Harness) Name() string {
	return retriever.NameOf(h.backend)
}

// Index loads docs into the backend in batches, reporting progress after
// each batch.
func (h *Harness) Index(ctx context.Context, docs []corpus.Document) error {
	log := h.o.log.WithBackend(h.Name())
	start := time.Now()

	for i := 0; i < len(docs); i += h.o.indexBatch {
		end := i + h.o.indexBatch
		if end > len(docs) {
			end = len(docs)
		}

		if err := h.backend.Index(ctx, docs[i:end]); err != nil {
			return fmt.Errorf("indexing documents %d-%d: %w", i, end, err)
		}
		if h.o.progress != nil {
			h.o.progress(end, len(docs))
		}
	}

	log.Info("Indexed corpus", "documents", len(docs), "duration", time.Since(start))
	return nil
}

// Evaluate runs scenarios against the backend.
func (h *Harness) Evaluate(ctx context.Context, scenarios []corpus.Scenario, cutoffs []int) (*Report, error) {
	return Evaluate(ctx, scenarios, h.backend, cutoffs, h.opts...)
}

// Close releases the backend. It is safe to call more than once.
func (h *Harness) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.backend.Close()
	})
	return h.closeErr
}

var _ io.Closer = (*Harness)(nil)
