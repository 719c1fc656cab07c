package cli

import (
	"strings"

	"github.com/olekukonko/tablewriter"
)

// renderTable lays rows out under headers for text output.
func renderTable(headers []string, rows [][]string) string {
	var b strings.Builder
	var table = tablewriter.NewWriter(&b)
	table.SetHeader(headers)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
	return strings.TrimRight(b.String(), "\n")
}
