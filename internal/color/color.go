// Package color implements the ColorRenderer collaborator of spec.md §2:
// a thin shim around github.com/fatih/color (itself layered on
// github.com/mattn/go-isatty / go-colorable), used by the CLI layer to
// render RepoStatus and diff output. Grounded on the teacher's indirect
// dependency on these three packages for its own (unshown) colorized
// command output.
package color

import (
	"io"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Renderer renders status/diff text with file-status coloring, disabling
// color automatically when the destination isn't a terminal.
type Renderer struct {
	enabled bool
}

// New builds a Renderer for writer w, auto-detecting terminal support the
// way go-isatty does for the teacher's command output.
func New(w io.Writer) *Renderer {
	enabled := false
	if f, ok := w.(interface{ Fd() uintptr }); ok {
		enabled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Renderer{enabled: enabled}
}

// NewForced builds a Renderer with color forced on or off, for tests and
// for --color=always/never style overrides.
func NewForced(enabled bool) *Renderer {
	return &Renderer{enabled: enabled}
}

func (r *Renderer) colorize(c *color.Color, s string) string {
	if !r.enabled {
		return s
	}
	c.EnableColor()
	return c.Sprint(s)
}

// Added/Modified/Removed/Conflicted color a status line the way `git
// status` conventionally does: green for added, yellow for modified, red
// for removed/conflicted.
func (r *Renderer) Added(s string) string      { return r.colorize(color.New(color.FgGreen), s) }
func (r *Renderer) Modified(s string) string   { return r.colorize(color.New(color.FgYellow), s) }
func (r *Renderer) Removed(s string) string    { return r.colorize(color.New(color.FgRed), s) }
func (r *Renderer) Conflicted(s string) string { return r.colorize(color.New(color.FgRed, color.Bold), s) }
func (r *Renderer) Branch(s string) string     { return r.colorize(color.New(color.FgCyan, color.Bold), s) }
