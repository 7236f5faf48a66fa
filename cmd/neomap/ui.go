package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	headerStyle = color.New(color.FgHiGreen, color.Bold)
	subtleStyle = color.New(color.FgHiBlack)
	errorStyle  = color.New(color.FgRed)
)

// printTable writes an aligned table with a dimmed header row.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var header, sep strings.Builder
	for i, h := range headers {
		fmt.Fprintf(&header, "%-*s  ", widths[i], h)
		sep.WriteString(strings.Repeat("-", widths[i]) + "  ")
	}
	subtleStyle.Fprintln(w, strings.TrimRight(header.String(), " "))
	subtleStyle.Fprintln(w, strings.TrimRight(sep.String(), " "))

	for _, row := range rows {
		var line strings.Builder
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(&line, "%-*s  ", widths[i], cell)
			}
		}
		fmt.Fprintln(w, strings.TrimRight(line.String(), " "))
	}
}
