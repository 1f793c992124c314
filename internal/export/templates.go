package export

import (
	"bytes"
	"fmt"
	"html/template"
)

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
	body { font-family: Helvetica, Arial, sans-serif; font-size: 11px; color: #1a1a1a; }
	h1 { font-size: 18px; margin-bottom: 2px; }
	.meta { color: #666; margin-bottom: 16px; }
	table { border-collapse: collapse; width: 100%; }
	th, td { border: 1px solid #ccc; padding: 4px 6px; text-align: left; }
	th { background: #f0f0f0; }
	td.stage { text-align: center; white-space: nowrap; }
</style>
</head>
<body>
<h1>{{.ProjectName}}</h1>
<div class="meta">{{.ClientName}} &mdash; generated {{.GeneratedAt.Format "2006-01-02 15:04"}}</div>
<table>
<tr>
	<th>Macro Process</th><th>Process</th>
	<th>Process</th><th>RACI</th><th>Narrative</th><th>Risk</th><th>KRI</th><th>Test</th><th>Data</th>
</tr>
{{range .Rows}}
<tr>
	<td>{{.MacroProcess}}</td><td>{{.ProcessName}}</td>
	{{range .Stages}}<td class="stage">{{.}}</td>{{end}}
</tr>
{{end}}
</table>
</body>
</html>`))

type dashboardRow struct {
	MacroProcess string
	ProcessName  string
	Stages       []string
}

func renderDashboardHTML(in Input) (string, error) {
	rows := make([]dashboardRow, 0, len(in.Groups))
	for _, g := range in.Groups {
		row := dashboardRow{MacroProcess: g.MacroProcess, ProcessName: g.ProcessName}
		for _, slot := range groupSlots(g) {
			if slot == nil {
				row.Stages = append(row.Stages, "–")
				continue
			}
			row.Stages = append(row.Stages, fmt.Sprintf("%d · %s", slot.Stage, slot.StageLabel))
		}
		rows = append(rows, row)
	}

	var buf bytes.Buffer
	err := dashboardTemplate.Execute(&buf, struct {
		ProjectName string
		ClientName  string
		GeneratedAt interface{ Format(string) string }
		Rows        []dashboardRow
	}{in.ProjectName, in.ClientName, in.GeneratedAt, rows})
	if err != nil {
		return "", fmt.Errorf("render dashboard template: %w", err)
	}
	return buf.String(), nil
}
