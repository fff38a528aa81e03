package evaluation

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ricesearch/rice-eval/internal/corpus"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/retriever"
)

// fakeBackend answers queries from a fixed table.
type fakeBackend struct {
	results map[string][]retriever.RankedResult
	errs    map[string]error
	delays  map[string]time.Duration

	docs     int
	countErr error

	calls   atomic.Int32
	indexed [][]corpus.Document
	closed  atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		results: make(map[string][]retriever.RankedResult),
		errs:    make(map[string]error),
		delays:  make(map[string]time.Duration),
		docs:    3,
	}
}

func (f *fakeBackend) Retrieve(ctx context.Context, query string, topK int) ([]retriever.RankedResult, error) {
	f.calls.Add(1)

	if d := f.delays[query]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.errs[query]; err != nil {
		return nil, err
	}

	out := append([]retriever.RankedResult(nil), f.results[query]...)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (f *fakeBackend) Index(_ context.Context, docs []corpus.Document) error {
	f.indexed = append(f.indexed, docs)
	f.docs += len(docs)
	return nil
}

func (f *fakeBackend) Count(context.Context) (int, error) {
	return f.docs, f.countErr
}

func (f *fakeBackend) Close() error {
	f.closed.Add(1)
	return nil
}

// retrieverOnly hides the Counter capability.
type retrieverOnly struct {
	r retriever.Retriever
}

func (r retrieverOnly) Retrieve(ctx context.Context, q string, k int) ([]retriever.RankedResult, error) {
	return r.r.Retrieve(ctx, q, k)
}

func ranked(ids ...string) []retriever.RankedResult {
	out := make([]retriever.RankedResult, len(ids))
	for i, id := range ids {
		out[i] = retriever.RankedResult{ID: id, Score: 1 - float64(i)*0.1}
	}
	return out
}

func TestEvaluate_ReferenceScenario(t *testing.T) {
	f := newFakeBackend()
	f.results["q1"] = []retriever.RankedResult{
		{ID: "C", Score: 0.9},
		{ID: "B", Score: 0.8},
		{ID: "A", Score: 0.5},
	}

	report, err := Evaluate(context.Background(), []corpus.Scenario{{Query: "q1", ExpectedID: "B"}}, f, []int{1, 2, 3})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	checks := []struct {
		metric Metric
		k      int
		want   float64
	}{
		{MetricAccuracy, 1, 0},
		{MetricAccuracy, 2, 1},
		{MetricAccuracy, 3, 1},
		{MetricMRR, 3, 0.5},
		{MetricNDCG, 2, 1 / math.Log2(3)},
		{MetricPrecision, 2, 0.5},
		{MetricRecall, 2, 1},
		{MetricMAP, 2, 0.5},
	}
	for _, c := range checks {
		if got := report.Value(c.metric, c.k); !almostEqual(got, c.want) {
			t.Errorf("%s@%d = %v, want %v", c.metric, c.k, got, c.want)
		}
	}

	if report.Depth != 3 {
		t.Errorf("Depth = %d, want 3", report.Depth)
	}
	if len(report.Outcomes) != 1 || report.Outcomes[0].Rank != 2 {
		t.Errorf("unexpected outcomes: %+v", report.Outcomes)
	}
}

func TestEvaluate_Miss(t *testing.T) {
	f := newFakeBackend()
	f.results["q"] = ranked("A", "C")

	report, err := Evaluate(context.Background(), []corpus.Scenario{{Query: "q", ExpectedID: "B"}}, f, []int{1, 2})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	for _, m := range AllMetrics() {
		for _, k := range []int{1, 2} {
			v := report.Value(m, k)
			if math.IsNaN(v) || v != 0 {
				t.Errorf("%s@%d = %v, want 0", m, k, v)
			}
		}
	}
	if report.Misses != 1 {
		t.Errorf("Misses = %d, want 1", report.Misses)
	}
}

func TestEvaluate_DepthIsMaxCutoff(t *testing.T) {
	f := newFakeBackend()
	f.results["q"] = ranked("A", "B", "C", "D", "E")

	var depth atomic.Int32
	obs := &depthRecorder{f: f, depth: &depth}

	if _, err := Evaluate(context.Background(), []corpus.Scenario{{Query: "q", ExpectedID: "E"}}, obs, []int{2, 4, 1}); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if depth.Load() != 4 {
		t.Errorf("retrieval depth = %d, want 4", depth.Load())
	}
}

type depthRecorder struct {
	f     *fakeBackend
	depth *atomic.Int32
}

func (d *depthRecorder) Retrieve(ctx context.Context, q string, k int) ([]retriever.RankedResult, error) {
	d.depth.Store(int32(k))
	return d.f.Retrieve(ctx, q, k)
}

func TestEvaluate_IgnoresRanksBeyondDepth(t *testing.T) {
	// A backend returning more than topK results.
	r := retrieverFunc(func(context.Context, string, int) ([]retriever.RankedResult, error) {
		return ranked("A", "B", "C"), nil
	})

	report, err := Evaluate(context.Background(), []corpus.Scenario{{Query: "q", ExpectedID: "C"}}, r, []int{1, 2})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if report.Outcomes[0].Rank != 0 {
		t.Errorf("rank beyond depth should be a miss, got %d", report.Outcomes[0].Rank)
	}
}

type retrieverFunc func(ctx context.Context, q string, k int) ([]retriever.RankedResult, error)

func (f retrieverFunc) Retrieve(ctx context.Context, q string, k int) ([]retriever.RankedResult, error) {
	return f(ctx, q, k)
}

func manyScenarios(f *fakeBackend, n int) []corpus.Scenario {
	scenarios := make([]corpus.Scenario, n)
	ids := []string{"A", "B", "C", "D", "E"}
	for i := range scenarios {
		q := fmt.Sprintf("q%d", i)
		// Rotate the ranking so the expected document lands at varying ranks.
		rot := append(append([]string(nil), ids[i%5:]...), ids[:i%5]...)
		f.results[q] = ranked(rot...)
		expected := "C"
		if i%7 == 0 {
			expected = "Z" // never retrieved
		}
		scenarios[i] = corpus.Scenario{Query: q, ExpectedID: expected}
	}
	return scenarios
}

func TestEvaluate_Idempotent(t *testing.T) {
	f := newFakeBackend()
	scenarios := manyScenarios(f, 25)

	first, err := Evaluate(context.Background(), scenarios, f, []int{1, 3, 5})
	if err != nil {
		t.Fatal(err)
	}
	second, err := Evaluate(context.Background(), scenarios, f, []int{1, 3, 5})
	if err != nil {
		t.Fatal(err)
	}

	assertSameMetrics(t, first, second)
}

func TestEvaluate_WorkersMatchSequential(t *testing.T) {
	f := newFakeBackend()
	scenarios := manyScenarios(f, 40)
	// Uneven latency so completion order differs from scenario order.
	for i := 0; i < 40; i += 3 {
		f.delays[fmt.Sprintf("q%d", i)] = time.Duration(i%5) * time.Millisecond
	}

	sequential, err := Evaluate(context.Background(), scenarios, f, []int{1, 2, 3, 4, 5})
	if err != nil {
		t.Fatal(err)
	}
	parallel, err := Evaluate(context.Background(), scenarios, f, []int{1, 2, 3, 4, 5}, WithWorkers(8))
	if err != nil {
		t.Fatal(err)
	}

	assertSameMetrics(t, sequential, parallel)
	if !slices.Equal(sequential.Ranks(), parallel.Ranks()) {
		t.Errorf("ranks differ: %v vs %v", sequential.Ranks(), parallel.Ranks())
	}
	for i, o := range parallel.Outcomes {
		if o.ScenarioIndex != i {
			t.Errorf("outcome %d has scenario index %d", i, o.ScenarioIndex)
		}
	}
}

func assertSameMetrics(t *testing.T, a, b *Report) {
	t.Helper()
	for _, m := range AllMetrics() {
		for _, k := range a.Cutoffs {
			if a.Value(m, k) != b.Value(m, k) {
				t.Errorf("%s@%d differs: %v vs %v", m, k, a.Value(m, k), b.Value(m, k))
			}
		}
	}
	if a.Misses != b.Misses || a.QueryCount != b.QueryCount {
		t.Errorf("counts differ: %+v vs %+v", a, b)
	}
}

func TestEvaluate_TimeoutIsMiss(t *testing.T) {
	f := newFakeBackend()
	f.results["fast"] = ranked("A")
	f.results["slow"] = ranked("A")
	f.delays["slow"] = time.Second

	scenarios := []corpus.Scenario{
		{Query: "fast", ExpectedID: "A"},
		{Query: "slow", ExpectedID: "A"},
	}

	report, err := Evaluate(context.Background(), scenarios, f, []int{1}, WithQueryTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if got := report.Value(MetricAccuracy, 1); got != 0.5 {
		t.Errorf("accuracy@1 = %v, want 0.5", got)
	}
	if report.Outcomes[1].Error != errors.CodeQueryTimeout {
		t.Errorf("slow query error = %q, want %q", report.Outcomes[1].Error, errors.CodeQueryTimeout)
	}
	if report.Errors != 1 {
		t.Errorf("Errors = %d, want 1", report.Errors)
	}
}

func TestEvaluate_BackendDeadlineIsTimeout(t *testing.T) {
	r := retrieverFunc(func(ctx context.Context, q string, k int) ([]retriever.RankedResult, error) {
		if q == "slow" {
			return nil, fmt.Errorf("embedding request: %w", context.DeadlineExceeded)
		}
		return ranked("A"), nil
	})
	scenarios := []corpus.Scenario{
		{Query: "slow", ExpectedID: "A"},
		{Query: "fast", ExpectedID: "A"},
	}

	report, err := Evaluate(context.Background(), scenarios, r, []int{1})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if report.Outcomes[0].Error != errors.CodeQueryTimeout {
		t.Errorf("deadline error recorded as %q, want %q", report.Outcomes[0].Error, errors.CodeQueryTimeout)
	}
	if report.Outcomes[0].Rank != 0 || report.Outcomes[1].Rank != 1 {
		t.Errorf("unexpected ranks: %v", report.Ranks())
	}
}

func TestEvaluate_RecoverableErrorIsMiss(t *testing.T) {
	f := newFakeBackend()
	f.results["ok"] = ranked("A")
	f.errs["bad"] = fmt.Errorf("transient failure")
	f.errs["invalid"] = errors.ValidationError("query too long")

	scenarios := []corpus.Scenario{
		{Query: "bad", ExpectedID: "A"},
		{Query: "ok", ExpectedID: "A"},
		{Query: "invalid", ExpectedID: "A"},
	}

	report, err := Evaluate(context.Background(), scenarios, f, []int{1})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if got := report.Value(MetricAccuracy, 1); !almostEqual(got, 1.0/3) {
		t.Errorf("accuracy@1 = %v, want 1/3", got)
	}
	if report.Outcomes[0].Error != errors.CodeInternal {
		t.Errorf("plain error recorded as %q, want %q", report.Outcomes[0].Error, errors.CodeInternal)
	}
	if report.Outcomes[2].Error != errors.CodeValidation {
		t.Errorf("validation error recorded as %q, want %q", report.Outcomes[2].Error, errors.CodeValidation)
	}
}

func TestEvaluate_FatalErrorCarriesScenario(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"unavailable", errors.BackendUnavailableError("fake", fmt.Errorf("connection refused")), errors.IsBackendUnavailable},
		{"empty index", errors.EmptyIndexError("fake"), errors.IsEmptyIndex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeBackend()
			scenarios := manyScenarios(f, 6)
			f.errs["q3"] = tt.err

			_, err := Evaluate(context.Background(), scenarios, f, []int{1})
			if !tt.check(err) {
				t.Fatalf("expected fatal error, got %v", err)
			}

			appErr, ok := errors.As(err)
			if !ok {
				t.Fatalf("expected AppError, got %T", err)
			}
			if got := appErr.Details[errors.DetailScenarioIndex]; got != "3" {
				t.Errorf("scenario_index = %q, want 3", got)
			}
			if got := appErr.Details[errors.DetailBackend]; got != "fake" {
				t.Errorf("backend detail = %q, want fake", got)
			}
			// Sequential run stops at the failing scenario.
			if calls := f.calls.Load(); calls != 4 {
				t.Errorf("Retrieve called %d times, want 4", calls)
			}
		})
	}
}

func TestEvaluate_EmptyIndexBeforeQueries(t *testing.T) {
	f := newFakeBackend()
	f.docs = 0

	_, err := Evaluate(context.Background(), []corpus.Scenario{{Query: "q", ExpectedID: "A"}}, f, []int{1})
	if !errors.IsEmptyIndex(err) {
		t.Fatalf("expected EMPTY_INDEX, got %v", err)
	}
	if f.calls.Load() != 0 {
		t.Errorf("no query should run against an empty index, got %d", f.calls.Load())
	}
}

func TestEvaluate_CountFailure(t *testing.T) {
	f := newFakeBackend()
	f.countErr = fmt.Errorf("socket closed")

	_, err := Evaluate(context.Background(), []corpus.Scenario{{Query: "q", ExpectedID: "A"}}, f, []int{1})
	if !errors.IsBackendUnavailable(err) {
		t.Fatalf("expected BACKEND_UNAVAILABLE, got %v", err)
	}
}

func TestEvaluate_WithoutCounter(t *testing.T) {
	f := newFakeBackend()
	f.docs = 0
	f.results["q"] = ranked("A")

	report, err := Evaluate(context.Background(), []corpus.Scenario{{Query: "q", ExpectedID: "A"}}, retrieverOnly{f}, []int{1})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if report.Value(MetricAccuracy, 1) != 1 {
		t.Error("expected a hit when the retriever cannot be counted")
	}
}

func TestEvaluate_Validation(t *testing.T) {
	f := newFakeBackend()
	scenarios := []corpus.Scenario{{Query: "q", ExpectedID: "A"}}

	if _, err := Evaluate(context.Background(), nil, f, []int{1}); !errors.IsValidation(err) {
		t.Errorf("no scenarios: expected validation error, got %v", err)
	}
	if _, err := Evaluate(context.Background(), scenarios, f, nil); !errors.IsValidation(err) {
		t.Errorf("no cutoffs: expected validation error, got %v", err)
	}
	if _, err := Evaluate(context.Background(), scenarios, f, []int{0}); !errors.IsValidation(err) {
		t.Errorf("zero cutoff: expected validation error, got %v", err)
	}
}

func TestEvaluate_Cancelled(t *testing.T) {
	f := newFakeBackend()
	scenarios := manyScenarios(f, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Evaluate(ctx, scenarios, retrieverOnly{f}, []int{1}); err == nil {
		t.Error("expected an error from a cancelled context")
	}
}

func TestEvaluate_Observer(t *testing.T) {
	f := newFakeBackend()
	scenarios := manyScenarios(f, 10)

	var (
		mu   sync.Mutex
		seen = make(map[int]bool)
	)
	obs := ObserverFunc(func(o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		seen[o.ScenarioIndex] = true
	})

	if _, err := Evaluate(context.Background(), scenarios, f, []int{1}, WithObserver(obs), WithWorkers(4)); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 10 {
		t.Errorf("observer saw %d scenarios, want 10", len(seen))
	}
}

func TestEvaluate_RateLimit(t *testing.T) {
	f := newFakeBackend()
	scenarios := manyScenarios(f, 3)

	start := time.Now()
	if _, err := Evaluate(context.Background(), scenarios, f, []int{1}, WithRateLimit(50), WithWorkers(3)); err != nil {
		t.Fatal(err)
	}
	// Burst of one: the third query waits two intervals of 20ms.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("rate limit not applied, run took %v", elapsed)
	}
}

func TestHarness(t *testing.T) {
	f := newFakeBackend()
	f.docs = 0
	f.results["q"] = ranked("d2", "d1")

	var progress [][2]int
	h := NewHarness(f,
		WithIndexBatch(2),
		WithProgress(func(done, total int) { progress = append(progress, [2]int{done, total}) }),
	)

	docs := []corpus.Document{{ID: "d1"}, {ID: "d2"}, {ID: "d3"}, {ID: "d4"}, {ID: "d5"}}
	if err := h.Index(context.Background(), docs); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	if len(f.indexed) != 3 {
		t.Errorf("expected 3 batches, got %d", len(f.indexed))
	}
	want := [][2]int{{2, 5}, {4, 5}, {5, 5}}
	if len(progress) != len(want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress = %v, want %v", progress, want)
		}
	}

	report, err := h.Evaluate(context.Background(), []corpus.Scenario{{Query: "q", ExpectedID: "d1"}}, []int{1, 2})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if report.Value(MetricMRR, 2) != 0.5 {
		t.Errorf("mrr@2 = %v, want 0.5", report.Value(MetricMRR, 2))
	}

	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if f.closed.Load() != 1 {
		t.Errorf("backend closed %d times, want 1", f.closed.Load())
	}
}
