package stats

import (
	"html/template"
	"strings"
	"time"
)

const htmlStyle = `
body { font-family: sans-serif; font-size: 12px; }
h1 { font-size: 28px; font-weight: 400; }
h2 { font-size: 20px; font-weight: 500; color: #375EAB; }
table { border-collapse: collapse; }
th, td { text-align: right; padding: 6px 8px; }
th { background-color: #2F72B1; color: white; }
td:first-child, th:first-child { text-align: left; }
tr:nth-child(even) { background-color: #E6EAF2; }
header, footer { padding: 1em; color: white; background-color: #2C5893; }
`

// HtmlStatsTmpl renders an HtmlStats page. Sections are rendered in the
// order they were added.
var HtmlStatsTmpl = template.Must(template.New("html-stats-page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta name="viewport" content="width=device-width, initial-scale=1">
{{- if .Refresh}}
<meta http-equiv="refresh" content="{{.Refresh}}">
{{- end}}
<title>{{.Title}}</title>
<style>` + htmlStyle + `</style>
</head>
<body>
<header>
<h1>{{.Title}}</h1>
{{- if or .Database .Version}}
<p>{{.Database}}{{if .Version}} &middot; {{.Version}}{{end}}</p>
{{- end}}
</header>
{{range .Sections}}
<h2>{{.Title}}</h2>
{{.Body}}
{{end}}
<footer>compactserv</footer>
</body>
</html>
`))

// HtmlDurationEscapeString formats d for an HTML cell.
func HtmlDurationEscapeString(d time.Duration) string {
	return strings.Replace(d.String(), "µs", "&#181;s", 1)
}
