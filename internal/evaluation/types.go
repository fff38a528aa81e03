// Package evaluation runs scenario queries against a retriever and scores the
// rankings with cutoff-parameterized IR metrics.
//
// Every scenario has exactly one relevant document, so a query is fully
// described by the 1-based rank of that document, or 0 when it was not
// retrieved.
package evaluation

import (
	"time"
)

// Metric names a quality metric.
type Metric string

// Metrics computed for every cutoff.
const (
	MetricAccuracy  Metric = "accuracy"
	MetricPrecision Metric = "precision"
	MetricRecall    Metric = "recall"
	MetricNDCG      Metric = "ndcg"
	MetricMRR       Metric = "mrr"
	MetricMAP       Metric = "map"
)

// AllMetrics returns every metric in report order.
func AllMetrics() []Metric {
	return []Metric{MetricAccuracy, MetricPrecision, MetricRecall, MetricNDCG, MetricMRR, MetricMAP}
}

// Outcome is the result of one scenario query.
type Outcome struct {
	ScenarioIndex int           `json:"scenario_index"`
	Query         string        `json:"query"`
	ExpectedID    string        `json:"expected_id"`
	Rank          int           `json:"rank"`            // 1-based; 0 = not retrieved
	Error         string        `json:"error,omitempty"` // error code when the query failed and was scored as a miss
	Latency       time.Duration `json:"latency_ns"`
}

// Hit reports whether the expected document was ranked within k.
func (o Outcome) Hit(k int) bool {
	return hit(o.Rank, k)
}

// Report maps (metric, cutoff) to a value averaged over all queries.
// It is not modified after Evaluate returns it.
type Report struct {
	Metrics    map[Metric]map[int]float64 `json:"metrics"`
	Cutoffs    []int                      `json:"cutoffs"`
	Depth      int                        `json:"depth"`
	QueryCount int                        `json:"query_count"`
	Misses     int                        `json:"misses"` // queries whose expected document was not retrieved at Depth
	Errors     int                        `json:"errors"` // queries that failed and were scored as misses
	Outcomes   []Outcome                  `json:"outcomes,omitempty"`
}

// Value returns the metric at cutoff k, or 0 when it was not computed.
func (r *Report) Value(m Metric, k int) float64 {
	if r == nil {
		return 0
	}
	return r.Metrics[m][k]
}

// Ranks returns the per-query ranks in scenario order.
func (r *Report) Ranks() []int {
	ranks := make([]int, len(r.Outcomes))
	for i, o := range r.Outcomes {
		ranks[i] = o.Rank
	}
	return ranks
}
