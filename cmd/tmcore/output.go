package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// tableView collects rows for a rounded table. Columns named in numeric are
// right aligned.
type tableView struct {
	headers []string
	numeric []string
	rows    []table.Row
}

func newTableView(headers ...string) *tableView {
	return &tableView{headers: headers}
}

func (v *tableView) alignRight(headers ...string) *tableView {
	v.numeric = append(v.numeric, headers...)
	return v
}

func (v *tableView) add(cells ...any) {
	row := make(table.Row, len(v.headers))
	copy(row, cells)
	for i := len(cells); i < len(row); i++ {
		row[i] = ""
	}
	v.rows = append(v.rows, row)
}

func (v *tableView) render(w io.Writer) {
	if len(v.headers) == 0 {
		return
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(v.headers))
	configs := make([]table.ColumnConfig, len(v.headers))
	for i, name := range v.headers {
		header[i] = name
		align := text.AlignLeft
		if slices.Contains(v.numeric, name) {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.AppendRows(v.rows)
	tw.SetColumnConfigs(configs)
	fmt.Fprintln(w, tw.Render())
}

// writeJSON prints v as indented JSON. Segment text keeps its markup, so HTML
// escaping is off.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
