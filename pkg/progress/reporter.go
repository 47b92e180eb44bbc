// Package progress lets tools report what they are doing on a side channel
// (normally stderr) without touching the result returned to the model.
package progress

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	errorTag   = "❌"
	warningTag = "⚠️"
)

// ANSI colour indexes used for start lines.
const (
	colorDanger  = lipgloss.Color("1")
	colorReadOK  = lipgloss.Color("2")
	colorNetwork = lipgloss.Color("5")
	colorNeutral = lipgloss.Color("6")
)

// Reporter writes progress lines for a single tool. A nil *Reporter discards
// everything, so tools can call it unconditionally.
type Reporter struct {
	w          io.Writer
	renderer   *lipgloss.Renderer
	permission string
}

// New returns a reporter writing to w. Colours are only emitted when w is a
// terminal.
func New(w io.Writer) *Reporter {
	if w == nil {
		w = io.Discard
	}
	return &Reporter{w: w, renderer: lipgloss.NewRenderer(w)}
}

// Discard returns a reporter that drops every message.
func Discard() *Reporter {
	return New(io.Discard)
}

// ForPermission returns a copy of r whose start lines are coloured after the
// given tool permission tag.
func (r *Reporter) ForPermission(tag string) *Reporter {
	if r == nil {
		return nil
	}
	cp := *r
	cp.permission = tag
	return &cp
}

// Permission returns the permission tag the reporter was scoped to.
func (r *Reporter) Permission() string {
	if r == nil {
		return ""
	}
	return r.permission
}

// Start reports that an operation is beginning.
func (r *Reporter) Start(message string, end ...string) {
	if r == nil {
		return
	}
	r.emit(r.startStyle().Render(message), end)
}

// Progress reports an intermediate step.
func (r *Reporter) Progress(message string, end ...string) {
	r.emit(message, end)
}

// Result reports an outcome.
func (r *Reporter) Result(message string, end ...string) {
	r.emit(message, end)
}

// Error reports a failure.
func (r *Reporter) Error(message string, end ...string) {
	r.emit(errorTag+message, end)
}

// Warning reports a recoverable problem.
func (r *Reporter) Warning(message string, end ...string) {
	r.emit(warningTag+message, end)
}

func (r *Reporter) startStyle() lipgloss.Style {
	style := lipgloss.NewStyle()
	if r.renderer != nil {
		style = r.renderer.NewStyle()
	}
	p := r.permission
	switch {
	case p == "":
		return style.Foreground(colorNeutral)
	case strings.ContainsAny(p, "wx"):
		return style.Foreground(colorDanger)
	case strings.Contains(p, "n"):
		return style.Foreground(colorNetwork)
	case strings.Contains(p, "r"):
		return style.Foreground(colorReadOK)
	default:
		return style.Foreground(colorNeutral)
	}
}

// emit writes message followed by the terminator and flushes. Failures are
// swallowed: a broken progress stream must never abort a tool.
func (r *Reporter) emit(message string, end []string) {
	if r == nil || r.w == nil {
		return
	}
	defer func() { _ = recover() }()

	terminator := "\n"
	if len(end) > 0 {
		terminator = end[0]
	}
	_, _ = io.WriteString(r.w, message+terminator)
	flush(r.w)
}

func flush(w io.Writer) {
	switch f := w.(type) {
	case interface{ Sync() error }:
		_ = f.Sync()
	case interface{ Flush() error }:
		_ = f.Flush()
	case interface{ Flush() }:
		f.Flush()
	}
}
