// Package output renders CLI results for terminals, pipes and machines.
//
// Auto mode picks styled text on a TTY and markdown otherwise, so the
// same command reads well to a person and to a script or agent.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// OutputMode selects how results are rendered.
type OutputMode string

// Mode is shorthand used when converting a config value.
type Mode = OutputMode

// Output modes.
const (
	ModeAuto     OutputMode = "auto"
	ModeText     OutputMode = "text"
	ModeMarkdown OutputMode = "markdown"
	ModeJSON     OutputMode = "json"
)

// Renderer writes command output in the configured mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   OutputMode
	isTTY  bool
	styles *Styles
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode OutputMode) *Renderer {
	return NewRendererWithTTY(out, errOut, isTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode OutputMode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	r := &Renderer{out: out, errOut: errOut, mode: mode, isTTY: isTTY}
	r.styles = newStyles(r.EffectiveMode() == ModeText && isTTY)
	return r
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// EffectiveMode resolves auto to text or markdown.
func (r *Renderer) EffectiveMode() OutputMode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// IsTTY reports whether output goes to a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Writer returns the standard output writer.
func (r *Renderer) Writer() io.Writer { return r.out }

// Println writes a line to standard output.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted text to standard output.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Header writes a section header in the effective mode.
func (r *Renderer) Header(level int, title string) {
	if r.EffectiveMode() == ModeText {
		style := r.styles.Header1
		if level > 1 {
			style = r.styles.Header2
		}
		r.Println(style.Render(title))
		return
	}
	r.Println(FormatHeader(level, title))
	r.Println("")
}

// KeyValue writes one labelled value.
func (r *Renderer) KeyValue(key, value string) {
	if r.EffectiveMode() == ModeText {
		r.Printf("%s %s\n", r.styles.Muted.Render(key+":"), value)
		return
	}
	r.Println(FormatKeyValue(key, value))
}

// Success writes a success message to standard output.
func (r *Renderer) Success(msg string) {
	r.status(r.out, r.styles.Success, "✓", msg)
}

// Warning writes a warning to the error output.
func (r *Renderer) Warning(msg string) {
	r.status(r.errOut, r.styles.Warning, "!", msg)
}

// Error writes an error message to the error output.
func (r *Renderer) Error(msg string) {
	r.status(r.errOut, r.styles.Error, "✗", msg)
}

func (r *Renderer) status(w io.Writer, style lipgloss.Style, icon, msg string) {
	if r.EffectiveMode() == ModeText {
		_, _ = fmt.Fprintln(w, style.Render(icon+" "+msg))
		return
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", icon, msg)
}

// JSON writes v as indented JSON to standard output.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
