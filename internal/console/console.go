// Package console prints the user-facing progress lines of a batch run.
// Diagnostics go through logrus; this is only what the user is meant to read.
package console

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mitchellh/colorstring"
)

type Console struct {
	mu    sync.Mutex
	out   io.Writer
	color colorstring.Colorize
}

// New returns a Console writing to out. A nil out means os.Stdout.
func New(out io.Writer, colored bool) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{
		out: out,
		color: colorstring.Colorize{
			Colors:  colorstring.DefaultColors,
			Disable: !colored,
			Reset:   true,
		},
	}
}

// Discard returns a Console that prints nothing.
func Discard() *Console {
	return New(io.Discard, false)
}

func (c *Console) printf(style, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	// Colorize the template only so brackets in msg are printed verbatim.
	fmt.Fprintf(c.out, c.color.Color(style+"%s")+"\n", msg)
}

// Infof prints a neutral progress line.
func (c *Console) Infof(format string, args ...any) {
	c.printf("[cyan]", format, args...)
}

// Successf prints a completed step.
func (c *Console) Successf(format string, args ...any) {
	c.printf("[green]", format, args...)
}

// Warnf prints a skipped or degraded step.
func (c *Console) Warnf(format string, args ...any) {
	c.printf("[yellow]", format, args...)
}

// Failuref prints a failed reference.
func (c *Console) Failuref(format string, args ...any) {
	c.printf("[red]", format, args...)
}
