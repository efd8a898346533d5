package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// IsInteractive reports whether w is a terminal that supports cursor
// control and progress bars, following the same isatty.IsTerminal check
// vjache-cie's CLI uses to decide between a progress bar and plain log
// lines.
func IsInteractive(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// NewHashBar builds a determinate progress bar for the file-hashing phase
// of a content_hash computation, counting files on stderr. The hashing
// code in this module does not create one.
func NewHashBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionThrottle(100),
		progressbar.OptionClearOnFinish(),
	)
}

// ColorGreen, ColorRed and ColorYellow wrap fatih/color for the small set
// of status colors; printed through Fprintln, text reads red/green/yellow
// when attached to a terminal and degrades to plain text when piped.
var (
	ColorGreen  = color.New(color.FgGreen)
	ColorRed    = color.New(color.FgRed)
	ColorYellow = color.New(color.FgYellow)
)

// Fprintln prints via c if w is a terminal, otherwise plain, since
// fatih/color only auto-detects os.Stdout/os.Stderr and this package's
// writers are sometimes buffers in tests.
func Fprintln(w io.Writer, c *color.Color, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if IsInteractive(w) {
		_, _ = c.Fprintln(w, msg)
		return
	}
	_, _ = fmt.Fprintln(w, msg)
}
