// Package render prints the model's final answer, as terminal markdown when
// the output is a terminal and as raw text otherwise.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	loggerpkg "github.com/minhyannv/toolcall/pkg/logger"
	"golang.org/x/term"
)

// Printer writes final answers to w.
type Printer struct {
	w      io.Writer
	md     *glamour.TermRenderer
	logger loggerpkg.Logger
}

// New returns a Printer. Markdown is rendered only when markdown is true.
func New(w io.Writer, markdown bool, logger loggerpkg.Logger) *Printer {
	if logger == nil {
		logger = loggerpkg.NopLogger{}
	}
	p := &Printer{w: w, logger: logger}
	if markdown {
		if r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(0),
		); err == nil {
			p.md = r
		} else {
			logger.Warn("markdown renderer unavailable", map[string]any{"error": err.Error()})
		}
	}
	return p
}

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Print writes text followed by a single newline.
func (p *Printer) Print(text string) error {
	if p.md == nil || strings.TrimSpace(text) == "" {
		_, err := fmt.Fprintf(p.w, "%s\n", text)
		return err
	}
	rendered, err := p.md.Render(text)
	if err != nil {
		p.logger.Warn("markdown render failed", map[string]any{"error": err.Error()})
		_, err = fmt.Fprintf(p.w, "%s\n", text)
		return err
	}
	_, err = fmt.Fprint(p.w, strings.TrimRight(rendered, "\n")+"\n")
	return err
}
