package evaluation

import (
	"fmt"
	"math"
	"sort"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/retriever"
)

// All metric functions take per-query ranks (1-based, 0 = miss) and return
// the arithmetic mean over queries. An empty rank list yields 0.

func hit(rank, k int) bool {
	return rank >= 1 && rank <= k
}

func mean(ranks []int, score func(rank int) float64) float64 {
	if len(ranks) == 0 {
		return 0
	}
	var sum float64
	for _, r := range ranks {
		sum += score(r)
	}
	return sum / float64(len(ranks))
}

// Accuracy is the fraction of queries with a hit within k.
func Accuracy(ranks []int, k int) float64 {
	return mean(ranks, func(rank int) float64 {
		if hit(rank, k) {
			return 1
		}
		return 0
	})
}

// Precision is hit/k averaged over queries.
func Precision(ranks []int, k int) float64 {
	if k < 1 {
		return 0
	}
	return mean(ranks, func(rank int) float64 {
		if hit(rank, k) {
			return 1 / float64(k)
		}
		return 0
	})
}

// Recall is hit/1 averaged over queries.
func Recall(ranks []int, k int) float64 {
	return Accuracy(ranks, k)
}

// NDCG is 1/log2(rank+1) for a hit within k, averaged over queries. The
// ideal DCG of a single relevant document is 1.
func NDCG(ranks []int, k int) float64 {
	return mean(ranks, func(rank int) float64 {
		if hit(rank, k) {
			return 1 / math.Log2(float64(rank)+1)
		}
		return 0
	})
}

// MRR is 1/rank for a hit within k, averaged over queries.
func MRR(ranks []int, k int) float64 {
	return mean(ranks, func(rank int) float64 {
		if hit(rank, k) {
			return 1 / float64(rank)
		}
		return 0
	})
}

// MAP is precision@k averaged over queries, which is how the metric reduces
// with one relevant document and a fixed cutoff.
func MAP(ranks []int, k int) float64 {
	return Precision(ranks, k)
}

var metricFuncs = map[Metric]func([]int, int) float64{
	MetricAccuracy:  Accuracy,
	MetricPrecision: Precision,
	MetricRecall:    Recall,
	MetricNDCG:      NDCG,
	MetricMRR:       MRR,
	MetricMAP:       MAP,
}

// Compute builds a report with every metric at every cutoff. cutoffs must
// already be normalized.
func Compute(ranks []int, cutoffs []int) *Report {
	report := &Report{
		Metrics:    make(map[Metric]map[int]float64, len(metricFuncs)),
		Cutoffs:    append([]int(nil), cutoffs...),
		QueryCount: len(ranks),
	}
	for _, k := range cutoffs {
		if k > report.Depth {
			report.Depth = k
		}
	}

	for _, m := range AllMetrics() {
		values := make(map[int]float64, len(cutoffs))
		for _, k := range cutoffs {
			values[k] = metricFuncs[m](ranks, k)
		}
		report.Metrics[m] = values
	}

	for _, r := range ranks {
		if !hit(r, report.Depth) {
			report.Misses++
		}
	}

	return report
}

// NormalizeCutoffs validates cutoffs and returns them sorted and
// deduplicated. The largest cutoff is the retrieval depth.
func NormalizeCutoffs(cutoffs []int) ([]int, error) {
	if len(cutoffs) == 0 {
		return nil, errors.ValidationError("at least one cutoff is required")
	}

	seen := make(map[int]bool, len(cutoffs))
	out := make([]int, 0, len(cutoffs))
	for _, k := range cutoffs {
		if k < 1 {
			return nil, errors.ValidationError(fmt.Sprintf("cutoff must be at least 1, got %d", k))
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out, nil
}

// RankOf returns the 1-based position of id in results, or 0 if absent.
func RankOf(results []retriever.RankedResult, id string) int {
	for i, r := range results {
		if r.ID == id {
			return i + 1
		}
	}
	return 0
}
