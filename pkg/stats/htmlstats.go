package stats

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"os"
	"sort"
	"time"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/compaction/bridge"
	"cfbridge/pkg/engine"
)

type (
	IHtmlStatsSection interface {
		Title() template.HTML
		Body() template.HTML
	}

	HtmlStats struct {
		Title    string
		Version  string
		Database string
		// Refresh is the page reload interval in seconds. Zero disables it.
		Refresh  int
		Sections []IHtmlStatsSection
	}

	ServerInfo struct {
		StartTime time.Time
		Dir       string
		Engine    func() engine.Stats
	}
)

func (s *ServerInfo) Title() template.HTML {
	return template.HTML("Server Info")
}

func (s *ServerInfo) Body() template.HTML {
	var buf bytes.Buffer
	buf.WriteString(
		`<div id="id-server-info"><table title="server-info">
<tr><th>Start Time</th><th>Process ID</th><th>Database</th></tr>`)

	fmt.Fprintf(&buf, "<tr><td>%s</td><td>%d</td><td>%s</td></tr></table>",
		s.StartTime.Format("2006-01-02 15:04:05"), os.Getpid(), template.HTMLEscapeString(s.Dir))

	if s.Engine != nil {
		st := s.Engine()
		buf.WriteString(`<br><table title="engine">
<tr><th>Memtable</th><th>Runs</th><th>Entries</th><th>Bytes</th><th>Flushes</th><th>Compactions</th><th>Manual</th>` +
			`<th>Filtered</th><th>Removed</th><th>Changed</th><th>Skipped</th><th>Tombstones Dropped</th><th>Errors</th></tr>`)
		fmt.Fprintf(&buf, "<tr><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td>"+
			"<td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td></tr></table>",
			st.MemtableEntries, st.Runs, st.Entries, st.Bytes, st.Flushes, st.Compactions, st.ManualCompactions,
			st.KeysFiltered, st.KeysRemoved, st.KeysChanged, st.KeysSkipped, st.TombstonesDropped, st.BackgroundErrors)
	}
	buf.WriteString("</div>")
	return template.HTML(buf.String())
}

func (s *JobStats) Title() template.HTML {
	return template.HTML("Compaction Filters")
}

func (s *JobStats) Body() template.HTML {
	snap := s.Snapshot()
	var buf bytes.Buffer
	buf.WriteString(`<div id="id-filter-stats"><table title="filter-stats">
<tr><th>Factory</th><th>Active</th><th>Jobs</th><th>Full</th><th>Manual</th><th>Keys/Job 50%</th><th>Keys/Job 99%</th>` +
		`<th>Job Time avg</th><th>Job Time 99%</th><th>Job Time max</th>`)
	for _, kind := range compaction.DecisionKinds() {
		fmt.Fprintf(&buf, "<th>%s</th>", kind)
	}
	buf.WriteString("<th>Degraded</th><th>Invalid Skips</th><th>Faults</th></tr>\n")

	row := func(st *FactorySnapshot) {
		fmt.Fprintf(&buf, "<tr><td>%s</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%s</td><td>%s</td><td>%s</td>",
			template.HTMLEscapeString(st.Factory), st.Active, st.Jobs, st.FullJobs, st.ManualJobs, st.KeysP50, st.KeysP99,
			HtmlDurationEscapeString(st.ElapsedAvg.Round(time.Microsecond)),
			HtmlDurationEscapeString(st.ElapsedP99.Round(time.Microsecond)),
			HtmlDurationEscapeString(st.ElapsedMax.Round(time.Microsecond)))
		for _, kind := range compaction.DecisionKinds() {
			fmt.Fprintf(&buf, "<td>%d</td>", st.Decisions[kind])
		}
		fmt.Fprintf(&buf, "<td>%d</td><td>%d</td><td>%d</td></tr>\n", st.Degraded, st.InvalidSkips, st.Faults)
	}
	for i := range snap.Factories {
		row(&snap.Factories[i])
	}
	row(&snap.All)
	buf.WriteString("</table>")

	if len(snap.Faults) != 0 {
		stages := make([]string, 0, len(snap.Faults))
		for stage := range snap.Faults {
			stages = append(stages, string(stage))
		}
		sort.Strings(stages)
		buf.WriteString(`<br><table title="faults"><tr><th>Stage</th><th>Faults</th></tr>`)
		for _, stage := range stages {
			fmt.Fprintf(&buf, "<tr><td>%s</td><td>%d</td></tr>", stage, snap.Faults[bridge.FaultStage(stage)])
		}
		buf.WriteString("</table>")
	}
	buf.WriteString("</div>")
	return template.HTML(buf.String())
}

func (s *HtmlStats) AddSection(sec IHtmlStatsSection) {
	s.Sections = append(s.Sections, sec)
}

func (s *HtmlStats) Write(w io.Writer) error {
	return HtmlStatsTmpl.Execute(w, s)
}

// WriteHTML writes a page holding the filter statistics only.
func (s *JobStats) WriteHTML(w io.Writer) error {
	page := &HtmlStats{Title: "Compaction Filter Statistics"}
	page.AddSection(s)
	return page.Write(w)
}
