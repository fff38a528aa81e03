package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ricesearch/rice-eval/internal/evaluation"
)

func TestObserveQuery(t *testing.T) {
	c := NewCollector("memory/hash-256")

	c.ObserveQuery(evaluation.Outcome{Rank: 1, Latency: time.Millisecond})
	c.ObserveQuery(evaluation.Outcome{Rank: 2, Latency: time.Millisecond})
	c.ObserveQuery(evaluation.Outcome{Rank: 0, Latency: time.Millisecond})
	c.ObserveQuery(evaluation.Outcome{Error: "QUERY_TIMEOUT", Latency: time.Second})

	tests := []struct {
		result string
		want   float64
	}{
		{"hit", 2},
		{"miss", 1},
		{"error", 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(c.Queries.WithLabelValues(tt.result)); got != tt.want {
			t.Errorf("queries{result=%q} = %v, want %v", tt.result, got, tt.want)
		}
	}

	if got := testutil.ToFloat64(c.QueryErrors.WithLabelValues("QUERY_TIMEOUT")); got != 1 {
		t.Errorf("query_errors{code=QUERY_TIMEOUT} = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.RetrievalLatency); got != 1 {
		t.Errorf("latency series = %d, want 1", got)
	}
}

func TestRecordReport(t *testing.T) {
	c := NewCollector("lexical/bm25")
	r := evaluation.Compute([]int{1, 2, 0, 0}, []int{1, 3})
	c.RecordReport(r)
	c.RecordReport(nil)

	if got := testutil.CollectAndCount(c.MetricValue); got != len(evaluation.AllMetrics())*2 {
		t.Errorf("metric_value series = %d, want %d", got, len(evaluation.AllMetrics())*2)
	}

	tests := []struct {
		metric evaluation.Metric
		k      string
		want   float64
	}{
		{evaluation.MetricAccuracy, "1", 0.25},
		{evaluation.MetricAccuracy, "3", 0.5},
		{evaluation.MetricMRR, "3", 0.375},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(c.MetricValue.WithLabelValues(string(tt.metric), tt.k)); got != tt.want {
			t.Errorf("%s@%s = %v, want %v", tt.metric, tt.k, got, tt.want)
		}
	}
}

func TestCacheAndBusMetrics(t *testing.T) {
	c := NewCollector("memory/hash-256")

	c.RecordCacheHit("embed")
	c.RecordCacheHit("embed")
	c.RecordCacheMiss("embed")
	c.RecordBusPublish("eval.run.completed", 5*time.Millisecond, nil)
	c.RecordBusPublish("eval.run.completed", time.Millisecond, errors.New("down"))

	if got := testutil.ToFloat64(c.CacheHits.WithLabelValues("embed")); got != 2 {
		t.Errorf("cache hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.CacheMisses.WithLabelValues("embed")); got != 1 {
		t.Errorf("cache misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.BusPublished.WithLabelValues("eval.run.completed", "success")); got != 1 {
		t.Errorf("bus success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.BusPublished.WithLabelValues("eval.run.completed", "error")); got != 1 {
		t.Errorf("bus error = %v, want 1", got)
	}
}

func TestCollectorsAreIsolated(t *testing.T) {
	a := NewCollector("a")
	b := NewCollector("b")

	a.SetIndexedDocuments(10)
	if got := testutil.ToFloat64(b.IndexedDocuments); got != 0 {
		t.Errorf("second collector saw %v documents, want 0", got)
	}
	if got := testutil.ToFloat64(a.IndexedDocuments); got != 10 {
		t.Errorf("indexed documents = %v, want 10", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector("memory/hash-256")
	c.SetIndexedDocuments(42)
	c.ObserveQuery(evaluation.Outcome{Rank: 1})

	path := filepath.Join(t.TempDir(), "rice_eval.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		`rice_eval_indexed_documents{backend="memory/hash-256"} 42`,
		`rice_eval_queries_total{backend="memory/hash-256",result="hit"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q", want)
		}
	}
}

func TestHandlerAndMiddleware(t *testing.T) {
	c := NewCollector("memory/hash-256")

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.Handle("/ping", HTTPMiddleware(c, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ping")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	want := `rice_eval_http_requests_total{backend="memory/hash-256",code="418",method="get"} 1`
	if !strings.Contains(string(body), want) {
		t.Errorf("metrics output missing %q", want)
	}
}
