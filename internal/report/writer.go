package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ricesearch/rice-eval/internal/evaluation"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Write renders run in the given format.
func Write(w io.Writer, run *Run, format string) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, run)
	case FormatText, "":
		return WriteText(w, run)
	default:
		return fmt.Errorf("unknown report format: %s", format)
	}
}

// WriteJSON writes run as indented JSON.
func WriteJSON(w io.Writer, run *Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}

// WriteText writes a metric table with one row per metric and one column
// per cutoff.
func WriteText(w io.Writer, run *Run) error {
	r := run.Report
	if r == nil {
		return fmt.Errorf("run %s has no report", run.ID)
	}

	fmt.Fprintf(w, "%s\n", run.Name)
	fmt.Fprintf(w, "  id:        %s\n", run.ID)
	fmt.Fprintf(w, "  backend:   %s\n", run.Backend)
	fmt.Fprintf(w, "  corpus:    %d documents (%s)\n", run.Documents, shortFingerprint(run.CorpusFingerprint))
	fmt.Fprintf(w, "  queries:   %d (%d misses at depth %d, %d errors)\n", r.QueryCount, r.Misses, r.Depth, r.Errors)
	fmt.Fprintf(w, "  duration:  %s\n\n", run.Duration().Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	header := make([]string, 0, len(r.Cutoffs)+1)
	header = append(header, "metric")
	for _, k := range r.Cutoffs {
		header = append(header, fmt.Sprintf("@%d", k))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")

	for _, m := range evaluation.AllMetrics() {
		row := make([]string, 0, len(r.Cutoffs)+1)
		row = append(row, string(m))
		for _, k := range r.Cutoffs {
			row = append(row, fmt.Sprintf("%.4f", r.Value(m, k)))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
	}

	return tw.Flush()
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
