// Package render carries the sample report transforms: a JSON document
// rendered to an HTML table, and an HTML page rendered to a single-page
// PDF. Both have the single-input/single-output shape the pipeline
// expects.
package render

import (
	"fmt"
	"html/template"
	"sort"
	"strings"
)

var reportTmpl = template.Must(template.New("report").Parse(`<html>
<body>
    <h1>Report</h1>
    <table>
    {{- range .Rows }}
        <tr>
            <td>{{ .Key }}</td>
            <td>{{ .Value }}</td>
        </tr>
    {{- end }}
    </table>
</body>
</html>
`))

type row struct {
	Key   string
	Value any
}

// JSONToHTML renders a flat JSON object as an HTML key/value table.
// Keys are emitted in sorted order so output is deterministic.
func JSONToHTML(data map[string]any) (string, error) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]row, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, row{Key: k, Value: data[k]})
	}

	var sb strings.Builder
	if err := reportTmpl.Execute(&sb, struct{ Rows []row }{rows}); err != nil {
		return "", fmt.Errorf("render report template: %w", err)
	}
	return sb.String(), nil
}
