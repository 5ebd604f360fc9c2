// Package report renders the statistics snapshot as an HTML status page and
// as a machine-readable JSON file. It is a consumer of the statistics data
// model only; nothing in the sampling path depends on it.
package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"strings"
	"time"

	"pathwatch/statistics"
)

const (
	chartWidth  = 800
	chartHeight = 300
)

var palette = []string{"#1f77b4", "#d62728", "#2ca02c", "#9467bd", "#ff7f0e"}

// WriteJSON writes the snapshot to path, replacing any previous file. This is
// the stable machine-readable interface for external consumers.
func WriteJSON(path string, snap statistics.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("report: encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("report: write snapshot: %w", err)
	}
	return nil
}

// WriteHTML renders the status page to path.
func WriteHTML(path string, snap statistics.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create page: %w", err)
	}
	defer f.Close()

	return Render(f, snap)
}

// Render writes the HTML document for a snapshot.
func Render(w io.Writer, snap statistics.Snapshot) error {
	return pageTmpl.Execute(w, buildPage(snap))
}

type page struct {
	Generated   string
	Target      string
	Connections []connSection
	Chart       chart
}

type connSection struct {
	Name      string
	Interface string
	Rows      []windowRow
}

type windowRow struct {
	Label   string
	Average string
	Samples int
}

type chart struct {
	Width  int
	Height int
	Series []chartSeries
	Empty  bool
}

type chartSeries struct {
	Name  string
	Color string
	// Segments are SVG polyline point lists. A missing sample breaks the
	// line into a new segment rather than bridging the gap.
	Segments []string
}

func buildPage(snap statistics.Snapshot) page {
	p := page{
		Generated: time.Unix(snap.GeneratedAt, 0).UTC().Format(time.RFC1123),
		Target:    snap.Target,
		Chart:     buildChart(snap.Series),
	}

	for _, cs := range snap.Connections {
		section := connSection{Name: cs.Name, Interface: cs.Interface}
		for _, w := range cs.Windows {
			row := windowRow{Label: w.Label, Samples: w.Samples, Average: "no data"}
			if w.Average != nil {
				row.Average = fmt.Sprintf("%.2f", *w.Average)
			}
			section.Rows = append(section.Rows, row)
		}
		p.Connections = append(p.Connections, section)
	}

	return p
}

func buildChart(m statistics.Merged) chart {
	c := chart{Width: chartWidth, Height: chartHeight}
	if len(m.Timestamps) == 0 {
		c.Empty = true
		return c
	}

	minTs := m.Timestamps[0]
	maxTs := m.Timestamps[len(m.Timestamps)-1]
	span := maxTs - minTs
	if span == 0 {
		span = 1
	}

	for i, name := range m.Connections {
		s := chartSeries{Name: name, Color: palette[i%len(palette)]}
		var points []string
		flush := func() {
			if len(points) > 0 {
				s.Segments = append(s.Segments, strings.Join(points, " "))
				points = nil
			}
		}
		for ti, ts := range m.Timestamps {
			cell := m.Values[ti][i]
			if cell == nil {
				flush()
				continue
			}
			x := float64(ts-minTs) / float64(span) * chartWidth
			y := chartHeight - *cell/100*chartHeight
			points = append(points, fmt.Sprintf("%.1f,%.1f", x, y))
		}
		flush()
		c.Series = append(c.Series, s)
	}

	return c
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Packet Loss Averages</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { width: 100%; border-collapse: collapse; margin-bottom: 2em; }
th, td { border: 1px solid #444; padding: 8px; text-align: center; }
th { background-color: #f2f2f2; }
.legend span { margin-right: 1.5em; font-weight: bold; }
</style>
</head>
<body>
<h1>Packet Loss Averages</h1>
<p>Target: {{.Target}} &mdash; generated {{.Generated}}</p>
{{range .Connections}}
<h2>{{.Name}} ({{.Interface}})</h2>
<table>
<tr><th>Time Period</th><th>Average Packet Loss (%)</th><th>Samples</th></tr>
{{range .Rows}}
<tr><td>{{.Label}}</td><td>{{.Average}}</td><td>{{.Samples}}</td></tr>
{{end}}
</table>
{{end}}
<h2>Packet Loss Over Time</h2>
{{if .Chart.Empty}}
<p>No data available to draw the chart.</p>
{{else}}
<p class="legend">{{range .Chart.Series}}<span style="color: {{.Color}}">{{.Name}}</span>{{end}}</p>
<svg viewBox="0 0 {{.Chart.Width}} {{.Chart.Height}}" width="{{.Chart.Width}}" height="{{.Chart.Height}}" style="border: 1px solid #444">
{{range .Chart.Series}}{{$color := .Color}}
{{range .Segments}}<polyline points="{{.}}" fill="none" stroke="{{$color}}" stroke-width="2"/>
{{end}}{{end}}
</svg>
{{end}}
</body>
</html>
`))
