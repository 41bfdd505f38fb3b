package ux

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Formatter defines the interface for output formatters.
type Formatter interface {
	// Format writes the given data to the output writer
	Format(data any) error
}

// FormatterOptions contains configuration for formatters
type FormatterOptions struct {
	// Writer is where output is written (defaults to os.Stdout)
	Writer io.Writer
	// NoColor disables styling for the text formatter
	NoColor bool
	// Compact enables compact output (no indentation for JSON/YAML)
	Compact bool
}

// Result pairs machine-readable data with the view printed in text mode.
// JSON and YAML formatters encode Data; the text formatter renders View.
type Result struct {
	Data any
	View any
}

// Field is one labelled line of a Fields view.
type Field struct {
	Label string
	Value string
}

// Fields renders as an aligned label/value list.
type Fields struct {
	Title string
	Items []Field
}

// Add appends a field, skipping empty values.
func (f *Fields) Add(label, value string) {
	if value == "" {
		return
	}
	f.Items = append(f.Items, Field{Label: label, Value: value})
}

// Table renders as a bordered table.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	// Empty is printed instead of the table when there are no rows.
	Empty string
}

// NewFormatter creates a formatter based on the format string
func NewFormatter(format string, opts *FormatterOptions) (Formatter, error) {
	if opts == nil {
		opts = &FormatterOptions{Writer: os.Stdout}
	}
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}

	switch format {
	case FormatJSON:
		return &JSONFormatter{opts: opts}, nil
	case FormatYAML:
		return &YAMLFormatter{opts: opts}, nil
	case FormatText, "":
		return newTextFormatter(opts), nil
	default:
		return nil, fmt.Errorf("unknown format: %s (supported: text, json, yaml)", format)
	}
}

func dataOf(v any) any {
	if r, ok := v.(Result); ok {
		return r.Data
	}
	return v
}

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	opts *FormatterOptions
}

// Format writes data as JSON
func (f *JSONFormatter) Format(data any) error {
	encoder := json.NewEncoder(f.opts.Writer)
	if !f.opts.Compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(dataOf(data))
}

// YAMLFormatter formats output as YAML
type YAMLFormatter struct {
	opts *FormatterOptions
}

// Format writes data as YAML
func (f *YAMLFormatter) Format(data any) error {
	encoder := yaml.NewEncoder(f.opts.Writer)
	if !f.opts.Compact {
		encoder.SetIndent(2)
	}
	defer encoder.Close()
	return encoder.Encode(dataOf(data))
}

// TextFormatter formats output as human-readable text
type TextFormatter struct {
	opts  *FormatterOptions
	title lipgloss.Style
	label lipgloss.Style
	muted lipgloss.Style
}

func newTextFormatter(opts *FormatterOptions) *TextFormatter {
	r := lipgloss.NewRenderer(opts.Writer)
	f := &TextFormatter{
		opts:  opts,
		title: r.NewStyle(),
		label: r.NewStyle(),
		muted: r.NewStyle(),
	}
	if !opts.NoColor {
		f.title = f.title.Foreground(lipgloss.Color("86")).Bold(true)
		f.label = f.label.Foreground(lipgloss.Color("12"))
		f.muted = f.muted.Foreground(lipgloss.Color("8"))
	}
	return f
}

// Format writes data as formatted text. Besides strings and fmt.Stringer
// it understands Result, Fields and Table.
func (f *TextFormatter) Format(data any) error {
	switch v := data.(type) {
	case Result:
		if v.View == nil {
			return f.Format(v.Data)
		}
		return f.Format(v.View)
	case Fields:
		return f.write(f.renderFields(v))
	case *Fields:
		return f.write(f.renderFields(*v))
	case Table:
		return f.write(f.renderTable(v))
	case string:
		return f.write(v)
	case fmt.Stringer:
		return f.write(v.String())
	default:
		return fmt.Errorf("text formatter cannot render %T; use --output json or yaml", data)
	}
}

func (f *TextFormatter) write(s string) error {
	_, err := fmt.Fprintln(f.opts.Writer, s)
	return err
}

func (f *TextFormatter) renderFields(v Fields) string {
	width := 0
	for _, item := range v.Items {
		width = max(width, len(item.Label))
	}

	var b strings.Builder
	if v.Title != "" {
		b.WriteString(f.title.Render(v.Title))
		b.WriteString("\n")
	}
	for i, item := range v.Items {
		if i > 0 {
			b.WriteString("\n")
		}
		label := fmt.Sprintf("%-*s", width+1, item.Label+":")
		b.WriteString(f.label.Render(label))
		b.WriteString(" ")
		b.WriteString(item.Value)
	}
	return b.String()
}

func (f *TextFormatter) renderTable(v Table) string {
	var b strings.Builder
	if v.Title != "" {
		b.WriteString(f.title.Render(v.Title))
		b.WriteString("\n")
	}
	if len(v.Rows) == 0 {
		empty := v.Empty
		if empty == "" {
			empty = "Nothing to show."
		}
		b.WriteString(f.muted.Render(empty))
		return b.String()
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.muted).
		Headers(v.Headers...).
		Rows(v.Rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return f.label.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	b.WriteString(t.String())
	return b.String()
}

// Compile-time verification that formatters implement Formatter
var _ Formatter = (*JSONFormatter)(nil)
var _ Formatter = (*YAMLFormatter)(nil)
var _ Formatter = (*TextFormatter)(nil)
