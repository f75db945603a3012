package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sells-group/lead-harvest/internal/harvest"
	"github.com/sells-group/lead-harvest/internal/sink"
)

const progressFormat = "%-30s %6s %9s %10s %9s %9s"

// progressPrinter writes one line per finished location. The orchestrator
// serializes calls to report.
type progressPrinter struct {
	out   io.Writer
	color bool
	total int
	done  int
}

func newProgressPrinter(out io.Writer, total int, color bool) *progressPrinter {
	return &progressPrinter{out: out, total: total, color: color}
}

func (p *progressPrinter) header() {
	_, _ = fmt.Fprintln(p.out, legend(p.color))
	_, _ = fmt.Fprintf(p.out, progressFormat+"\n", "LOCATION", "LEADS", "REJECTED", "DUPLICATES", "RUNTIME", "PROGRESS")
}

func (p *progressPrinter) report(r harvest.LocationReport) {
	p.done++
	progress := fmt.Sprintf("%d/%d", p.done, p.total)
	runtime := fmt.Sprintf("%.2fs", r.Duration.Seconds())

	if r.Failed() && r.Observed == 0 {
		line := fmt.Sprintf(progressFormat, truncate(string(r.Location), 30), "ERROR", "-", "-", runtime, progress)
		_, _ = fmt.Fprintln(p.out, colorize(line, ansiRed, p.color))
		return
	}

	line := fmt.Sprintf(progressFormat,
		truncate(string(r.Location), 30),
		strconv.Itoa(r.Accepted),
		strconv.Itoa(r.Rejected),
		strconv.Itoa(r.Duplicates),
		runtime,
		progress,
	)
	if r.Failed() {
		line += " (partial)"
	}
	_, _ = fmt.Fprintln(p.out, colorize(line, leadColor(r.Accepted), p.color))
}

// renderSummary formats the run statistics and output names.
func renderSummary(st harvest.RunStatistics, dests harvest.Destinations) string {
	rows := [][]string{
		{"Observed", strconv.Itoa(st.TotalObserved)},
		{"Accepted", strconv.Itoa(st.Accepted)},
		{"Rejected", strconv.Itoa(st.Rejected)},
	}
	for _, reason := range harvest.Reasons {
		rows = append(rows, []string{"  " + string(reason), strconv.Itoa(st.RejectedByReason[reason])})
	}
	rows = append(rows,
		[]string{"Locations", strconv.Itoa(st.LocationsTotal)},
		[]string{"Locations failed", strconv.Itoa(st.LocationsFailed)},
		[]string{"Pages fetched", strconv.Itoa(st.PagesFetched)},
		[]string{"Degraded enrichments", strconv.Itoa(st.DegradedEnrichments)},
		[]string{"Elapsed", st.Elapsed.Round(time.Millisecond).String()},
	)
	for _, d := range []sink.Destination{dests.Accepted, dests.Rejected} {
		if d.Name != "" {
			rows = append(rows, []string{"Output (" + string(d.Kind) + ")", d.Name})
		}
	}
	return renderTable([]string{"METRIC", "VALUE"}, rows, []columnAlignment{alignLeft, alignRight})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
