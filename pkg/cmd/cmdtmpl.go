package cmd

import (
	"text/template"
)

var usageTemplate = template.Must(template.New("cmd-usage").Parse(`
NAME
	{{.GetName}}{{if .GetDesc}} - {{.GetDesc}}{{end}}

SYNOPSIS
	{{.GetName}} {{if .GetSynopsis}}{{.GetSynopsis}}{{else}}[<args>]{{end}}
{{with .GetOptionDesc}}
OPTION
{{.}}
{{end}}
{{- with .GetDetails}}DESCRIPTION
{{.}}
{{end}}
{{- with .GetExample}}EXAMPLE
{{.}}
{{end}}
`))

// programUsage lists the registered commands, grouped commands first.
type programUsage struct {
	Program string
	Groups  []*Group
	Others  []ICommand
}

var commandListTemplate = template.Must(template.New("cmd-list").Parse(`
{{- if or .Groups .Others}}
COMMAND
{{- range .Groups}}
  {{.Name}}
{{- range .Commands}}
    * {{.GetName}}
      {{.GetDesc}}
{{- end}}
{{- end}}
{{- if .Others}}
{{- if .Groups}}
  others
{{- end}}
{{- range .Others}}
    * {{.GetName}}
      {{.GetDesc}}
{{- end}}
{{- end}}
{{end}}`))

var programTemplate = template.Must(template.Must(commandListTemplate.Clone()).New("program-usage").Parse(`
USAGE
  {{.Program}} [-version] [[options] <command> [<args>]]
{{template "cmd-list" .}}`))
