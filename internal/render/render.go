// Package render formats query results as text tables for the REPL and
// CLI: a bordered lipgloss table when stdout is a terminal, and a plain
// pipe-delimited fallback when it isn't (so piped, non-interactive
// scripts driving the engine get stable, parseable output).
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// IsTerminal reports whether w is connected to a terminal, used to pick
// between the bordered and plain-text renderers.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Table writes columns/rows to w, using a bordered table when w is a
// terminal and a plain pipe-delimited form otherwise.
func Table(w io.Writer, columns []string, rows [][]string) {
	if len(columns) == 0 {
		return
	}
	if IsTerminal(w) {
		writeBordered(w, columns, rows)
		return
	}
	writePlain(w, columns, rows)
}

func writeBordered(w io.Writer, columns []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(columns...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, r := range rows {
		t.Row(r...)
	}
	fmt.Fprintln(w, t.Render())
}

func writePlain(w io.Writer, columns []string, rows [][]string) {
	fmt.Fprintln(w, strings.Join(columns, "|"))
	for _, r := range rows {
		fmt.Fprintln(w, strings.Join(r, "|"))
	}
}
