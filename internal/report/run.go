// Package report renders evaluation runs and keeps their history.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/ricesearch/rice-eval/internal/evaluation"
)

// Run is a named, timestamped evaluation run.
type Run struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Backend           string             `json:"backend"`
	CorpusFingerprint string             `json:"corpus_fingerprint"`
	Documents         int                `json:"documents"`
	StartedAt         time.Time          `json:"started_at"`
	FinishedAt        time.Time          `json:"finished_at"`
	Report            *evaluation.Report `json:"report"`
}

// RunName returns the display name of a run started at t.
func RunName(t time.Time) string {
	return "Retrieval Test Run - " + t.Format("01-02 15:04:05")
}

// NewRun wraps a finished report.
func NewRun(backend, fingerprint string, documents int, started, finished time.Time, r *evaluation.Report) *Run {
	return &Run{
		ID:                uuid.NewString(),
		Name:              RunName(started),
		Backend:           backend,
		CorpusFingerprint: fingerprint,
		Documents:         documents,
		StartedAt:         started,
		FinishedAt:        finished,
		Report:            r,
	}
}

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
