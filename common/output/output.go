// Package output renders CLI results as coloured status lines, tables, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// Supported --output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
	headerColor  = color.New(color.FgWhite, color.Bold)
)

// Printer writes CLI output to Out and diagnostics to Err.
type Printer struct {
	Out    io.Writer
	Err    io.Writer
	Format string
}

// New returns a Printer on stdout/stderr.
func New(format string) *Printer {
	return &Printer{Out: os.Stdout, Err: os.Stderr, Format: format}
}

// ValidFormat reports whether f is a supported output format.
func ValidFormat(f string) bool {
	switch f {
	case FormatTable, FormatJSON, FormatYAML:
		return true
	}
	return false
}

func (p *Printer) Success(format string, a ...any) {
	successColor.Fprintf(p.Out, "✓ "+format+"\n", a...)
}

func (p *Printer) Error(format string, a ...any) {
	errorColor.Fprintf(p.Err, "✗ "+format+"\n", a...)
}

func (p *Printer) Info(format string, a ...any) {
	infoColor.Fprintf(p.Out, format+"\n", a...)
}

func (p *Printer) Warn(format string, a ...any) {
	warnColor.Fprintf(p.Out, "⚠ "+format+"\n", a...)
}

// Structured reports whether the printer emits machine-readable output.
func (p *Printer) Structured() bool {
	return p.Format == FormatJSON || p.Format == FormatYAML
}

// Value renders v as JSON or YAML according to Format.
// Table format falls back to JSON; callers render tables themselves.
func (p *Printer) Value(v any) error {
	if p.Format == FormatYAML {
		enc := yaml.NewEncoder(p.Out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	enc := json.NewEncoder(p.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table is a simple left-aligned text table.
type Table struct {
	headers []string
	rows    [][]string
}

func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// AddRow appends a row; missing cells render empty, extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

// Render writes the table to w.
func (t *Table) Render(w io.Writer) {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range t.headers {
		headerColor.Fprintf(w, "%-*s  ", widths[i], h)
	}
	fmt.Fprintln(w)

	for i := range t.headers {
		fmt.Fprint(w, strings.Repeat("-", widths[i])+"  ")
	}
	fmt.Fprintln(w)

	for _, row := range t.rows {
		for i, cell := range row {
			fmt.Fprintf(w, "%-*s  ", widths[i], cell)
		}
		fmt.Fprintln(w)
	}
}
