// Package report renders the stored report of a tuning run.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/signalnine/autotune/internal/metrics"
	"github.com/signalnine/autotune/internal/result"
)

var ErrUnknownFormat = errors.New("unknown report format")

// Formats lists the accepted values of Generate's format argument.
var Formats = []string{"table", "markdown", "json", "yaml"}

// Generate reads the report stored in runDir and writes it to w.
func Generate(runDir, format string, w io.Writer) error {
	r, err := result.ReadReport(runDir)
	if err != nil {
		return err
	}
	return Render(r, format, w)
}

func Render(r *result.Report, format string, w io.Writer) error {
	switch format {
	case "", "table":
		return writeTable(r, w)
	case "markdown":
		return writeMarkdown(r, w)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w %q (want one of %s)", ErrUnknownFormat, format, strings.Join(Formats, ", "))
	}
}

// columns returns every metric name in order of first appearance.
func columns(ms []*metrics.Metrics) []string {
	seen := map[string]bool{}
	var cols []string
	for _, m := range ms {
		for _, v := range m.Values {
			if !seen[v.Name] {
				seen[v.Name] = true
				cols = append(cols, v.Name)
			}
		}
	}
	return cols
}

func formatValue(v any, ok bool) string {
	if !ok || v == nil {
		return "-"
	}
	switch x := v.(type) {
	case bool:
		if x {
			return "yes"
		}
		return "no"
	case int:
		return humanize.Comma(int64(x))
	case int64:
		return humanize.Comma(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return humanize.Comma(int64(x))
		}
		return humanize.FormatFloat("#,###.###", x)
	default:
		return fmt.Sprint(x)
	}
}

func summaryLines(r *result.Report) []string {
	lines := []string{
		fmt.Sprintf("Session %s, started %s, took %s", r.Session,
			humanize.Time(r.StartedAt), time.Duration(r.DurationS*float64(time.Second)).Round(time.Second)),
		fmt.Sprintf("Budget: %s trials per job, early stopping %s",
			humanize.Comma(int64(r.Budget.Trials)), humanize.Comma(int64(r.Budget.EarlyStopping))),
	}
	if len(r.FailedTasks) > 0 {
		ids := make([]string, len(r.FailedTasks))
		for i, id := range r.FailedTasks {
			ids[i] = fmt.Sprint(id)
		}
		lines = append(lines, fmt.Sprintf("Failed tasks: %s", strings.Join(ids, ", ")))
	}
	return lines
}

func writeTable(r *result.Report, w io.Writer) error {
	for _, l := range summaryLines(r) {
		fmt.Fprintln(w, l)
	}
	if len(r.Metrics) == 0 {
		fmt.Fprintln(w, "No metrics recorded.")
		return nil
	}
	fmt.Fprintln(w)

	cols := columns(r.Metrics)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := append([]string{"NAME"}, cols...)
	for i := range header {
		header[i] = strings.ToUpper(header[i])
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, m := range r.Metrics {
		row := []string{m.Name}
		for _, c := range cols {
			row = append(row, formatValue(m.Get(c)))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func writeMarkdown(r *result.Report, w io.Writer) error {
	for _, l := range summaryLines(r) {
		fmt.Fprintf(w, "%s  \n", l)
	}
	if len(r.Metrics) == 0 {
		fmt.Fprintln(w, "\nNo metrics recorded.")
		return nil
	}
	fmt.Fprintln(w)

	cols := columns(r.Metrics)
	fmt.Fprintf(w, "| Name | %s |\n", strings.Join(cols, " | "))
	fmt.Fprintf(w, "|%s\n", strings.Repeat("---|", len(cols)+1))
	for _, m := range r.Metrics {
		row := []string{m.Name}
		for _, c := range cols {
			row = append(row, formatValue(m.Get(c)))
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(row, " | "))
	}
	return nil
}
