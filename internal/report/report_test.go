package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ricesearch/rice-eval/internal/evaluation"
)

func testRun() *Run {
	started := time.Date(2026, 3, 7, 9, 5, 1, 0, time.Local)
	r := evaluation.Compute([]int{2, 1, 0}, []int{1, 2, 3})
	return NewRun("memory/hash-384", "0123456789abcdef0123", 10, started, started.Add(1500*time.Millisecond), r)
}

func TestRunName(t *testing.T) {
	got := RunName(time.Date(2026, 3, 7, 9, 5, 1, 0, time.UTC))
	want := "Retrieval Test Run - 03-07 09:05:01"
	if got != want {
		t.Errorf("RunName() = %q, want %q", got, want)
	}
}

func TestNewRun(t *testing.T) {
	a := testRun()
	b := testRun()

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected unique run IDs, got %q and %q", a.ID, b.ID)
	}
	if a.Name != "Retrieval Test Run - 03-07 09:05:01" {
		t.Errorf("Name = %q", a.Name)
	}
	if a.Duration() != 1500*time.Millisecond {
		t.Errorf("Duration() = %v", a.Duration())
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, testRun()); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Retrieval Test Run - 03-07 09:05:01",
		"memory/hash-384",
		"10 documents (0123456789ab)",
		"3 (1 misses at depth 3, 0 errors)",
		"@1", "@2", "@3",
		"accuracy", "precision", "recall", "ndcg", "mrr", "map",
		"0.6667", // accuracy@2 and @3
		"0.3333", // accuracy@1
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteText_NoReport(t *testing.T) {
	run := testRun()
	run.Report = nil
	if err := WriteText(&bytes.Buffer{}, run); err == nil {
		t.Error("expected error for a run without a report")
	}
}

func TestWriteJSON(t *testing.T) {
	run := testRun()

	var buf bytes.Buffer
	if err := Write(&buf, run, FormatJSON); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var decoded Run
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.ID != run.ID || decoded.Backend != run.Backend {
		t.Errorf("decoded run = %+v", decoded)
	}
	if got := decoded.Report.Value(evaluation.MetricMRR, 2); got != run.Report.Value(evaluation.MetricMRR, 2) {
		t.Errorf("mrr@2 = %v, want %v", got, run.Report.Value(evaluation.MetricMRR, 2))
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, testRun(), "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
