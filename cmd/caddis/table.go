package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// emptyCell is rendered in place of blank values so sparse job columns
// (display, output, error) stay scannable.
const emptyCell = "-"

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	if len(headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		cells := make(table.Row, len(headers))
		for i := range cells {
			cells[i] = emptyCell
			if i < len(row) && row[i] != "" {
				cells[i] = row[i]
			}
		}
		tw.AppendRow(cells)
	}

	configs := make([]table.ColumnConfig, len(headers))
	for i := range configs {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		}
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
