// Package ui renders CLI output for aarag. Styled output is used on a TTY,
// plain text everywhere else (pipes, CI, redirects).
package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/continue-ai-company/aa-rag/internal/engine"
)

// Color palette.
const (
	ColorAccent = "75"  // result headers
	ColorGray   = "245" // metadata, secondary text
	ColorGreen  = "114" // success lines
	ColorRed    = "196" // errors
)

// Styles holds the renderer's lipgloss styles.
type Styles struct {
	Header  lipgloss.Style
	Meta    lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
}

// DefaultStyles returns the styled palette for TTY output.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Meta:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGreen)),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorRed)),
	}
}

// PlainStyles returns unstyled output for non-TTY writers.
func PlainStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle(),
		Meta:    lipgloss.NewStyle(),
		Success: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
	}
}

// Renderer writes human-facing CLI output.
type Renderer struct {
	out    io.Writer
	styles Styles
}

// NewRenderer picks styled or plain output based on whether out is a TTY.
func NewRenderer(out io.Writer) *Renderer {
	styles := PlainStyles()
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		styles = DefaultStyles()
	}
	return &Renderer{out: out, styles: styles}
}

// NewRendererWithStyles creates a renderer with explicit styles, for tests.
func NewRendererWithStyles(out io.Writer, styles Styles) *Renderer {
	return &Renderer{out: out, styles: styles}
}

// Results renders ranked retrieval results.
func (r *Renderer) Results(results []engine.Result) {
	if len(results) == 0 {
		fmt.Fprintln(r.out, r.styles.Meta.Render("no results"))
		return
	}

	for i, res := range results {
		fmt.Fprintln(r.out, r.styles.Header.Render(fmt.Sprintf("--- result %d ---", i+1)))
		fmt.Fprintln(r.out, strings.TrimRight(res.Text, "\n"))
		if len(res.Metadata) > 0 {
			fmt.Fprintln(r.out, r.styles.Meta.Render(formatMetadata(res.Metadata)))
		}
		fmt.Fprintln(r.out)
	}
}

// Indexed reports an index operation's outcome.
func (r *Renderer) Indexed(table string, written []string) {
	msg := fmt.Sprintf("wrote %d chunk(s) to %s", len(written), table)
	fmt.Fprintln(r.out, r.styles.Success.Render(msg))
	for _, id := range written {
		fmt.Fprintln(r.out, r.styles.Meta.Render("  "+id))
	}
}

// Errorf reports a failure.
func (r *Renderer) Errorf(format string, args ...any) {
	fmt.Fprintln(r.out, r.styles.Error.Render(fmt.Sprintf(format, args...)))
}

// formatMetadata renders metadata as sorted key=value pairs on one line.
func formatMetadata(meta map[string]any) string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, meta[k]))
	}
	return strings.Join(pairs, " ")
}
