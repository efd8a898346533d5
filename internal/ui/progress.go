// Package ui renders run progress to the terminal: a lipgloss-styled
// per-check status list adapted from the teacher's internal/tui/progress.go
// (generalised from generic named "tasks" to checks moving through
// Pending/Running/Verified/Failed/Skipped), and a file-hashing progress bar
// built on schollz/progressbar, fatih/color and mattn/go-isatty, grounded
// on vjache-cie's cmd/cie/index.go which wires that same trio for its scan
// progress output.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0A0A0"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// CheckStatus is where a single check currently sits in the run.
type CheckStatus int

const (
	StatusPending CheckStatus = iota
	StatusRunning
	StatusVerified
	StatusFailed
	StatusSkipped
	StatusAggregate
)

type checkLine struct {
	Name      string
	Status    CheckStatus
	Err       error
	StartTime time.Time
	EndTime   time.Time
}

// Reporter is the interface the orchestrator drives as checks progress.
// A Reporter implementation must be safe for concurrent use: multiple
// checks in the same wave report through it at once.
type Reporter interface {
	AddCheck(name string)
	Start(name string)
	Verified(name string)
	Failed(name string, err error)
	Skipped(name string)
	Aggregate(name string)
	Begin()
	End()
	Summary()
}

// NopReporter discards every event; used by non-interactive or quiet runs.
type NopReporter struct{}

func (NopReporter) AddCheck(string)        {}
func (NopReporter) Start(string)           {}
func (NopReporter) Verified(string)        {}
func (NopReporter) Failed(string, error)   {}
func (NopReporter) Skipped(string)         {}
func (NopReporter) Aggregate(string)       {}
func (NopReporter) Begin()                 {}
func (NopReporter) End()                   {}
func (NopReporter) Summary()               {}

// TermReporter renders an animated, in-place status list, one line per
// check, the same render-by-repainting-N-lines technique as the teacher's
// Progress.render.
type TermReporter struct {
	mu           sync.Mutex
	writer       io.Writer
	title        string
	lines        []*checkLine
	byName       map[string]*checkLine
	spinnerFrame int
	ticker       *time.Ticker
	done         chan struct{}
	started      bool
}

// NewTermReporter creates a reporter that writes to w (os.Stdout if nil).
func NewTermReporter(title string, w io.Writer) *TermReporter {
	if w == nil {
		w = os.Stdout
	}
	return &TermReporter{
		writer: w,
		title:  title,
		byName: make(map[string]*checkLine),
		done:   make(chan struct{}),
	}
}

func (r *TermReporter) AddCheck(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	line := &checkLine{Name: name, Status: StatusPending}
	r.lines = append(r.lines, line)
	r.byName[name] = line
}

func (r *TermReporter) Start(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.byName[name]; ok {
		l.Status = StatusRunning
		l.StartTime = time.Now()
	}
}

func (r *TermReporter) Verified(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.byName[name]; ok {
		l.Status = StatusVerified
		l.EndTime = time.Now()
	}
}

func (r *TermReporter) Failed(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.byName[name]; ok {
		l.Status = StatusFailed
		l.Err = err
		l.EndTime = time.Now()
	}
}

func (r *TermReporter) Skipped(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.byName[name]; ok {
		l.Status = StatusSkipped
	}
}

func (r *TermReporter) Aggregate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.byName[name]; ok {
		l.Status = StatusAggregate
	}
}

func (r *TermReporter) Begin() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true

	_, _ = fmt.Fprintln(r.writer)
	_, _ = fmt.Fprintln(r.writer, titleStyle.Render(" "+r.title+" "))
	_, _ = fmt.Fprintln(r.writer)
	for _, l := range r.lines {
		_, _ = fmt.Fprintln(r.writer, formatLine(l, r.spinnerFrame))
	}
	r.mu.Unlock()

	r.ticker = time.NewTicker(100 * time.Millisecond)
	go r.animate()
}

func (r *TermReporter) animate() {
	for {
		select {
		case <-r.done:
			return
		case <-r.ticker.C:
			r.mu.Lock()
			r.spinnerFrame = (r.spinnerFrame + 1) % len(spinnerFrames)
			r.render()
			r.mu.Unlock()
		}
	}
}

func (r *TermReporter) render() {
	if len(r.lines) == 0 {
		return
	}
	_, _ = fmt.Fprint(r.writer, strings.Repeat("\033[A\033[2K", len(r.lines)))
	for _, l := range r.lines {
		_, _ = fmt.Fprintln(r.writer, formatLine(l, r.spinnerFrame))
	}
}

func formatLine(l *checkLine, spinnerFrame int) string {
	var icon, status string
	var style lipgloss.Style

	switch l.Status {
	case StatusPending:
		icon, status, style = infoStyle.Render("○"), infoStyle.Render("waiting"), infoStyle
	case StatusRunning:
		elapsed := time.Since(l.StartTime).Round(time.Second)
		icon = stepStyle.Render(spinnerFrames[spinnerFrame])
		status = stepStyle.Render(fmt.Sprintf("running %s", elapsed))
		style = stepStyle
	case StatusVerified:
		duration := l.EndTime.Sub(l.StartTime).Round(time.Millisecond)
		icon = successStyle.Render("✓")
		status = successStyle.Render(fmt.Sprintf("verified %s", duration))
		style = successStyle
	case StatusFailed:
		icon, status, style = errorStyle.Render("✗"), errorStyle.Render("failed"), errorStyle
	case StatusSkipped:
		icon, status, style = infoStyle.Render("○"), infoStyle.Render("skipped"), infoStyle
	case StatusAggregate:
		icon, status, style = infoStyle.Render("∑"), infoStyle.Render("aggregate"), infoStyle
	}

	return fmt.Sprintf("  %s %s %s", icon, style.Render(l.Name), status)
}

func (r *TermReporter) End() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	if r.ticker != nil {
		r.ticker.Stop()
	}
	close(r.done)
	r.render()
}

func (r *TermReporter) Summary() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var verified, failed, skipped int
	for _, l := range r.lines {
		switch l.Status {
		case StatusVerified, StatusAggregate:
			verified++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}

	_, _ = fmt.Fprintln(r.writer)
	_, _ = fmt.Fprintln(r.writer, strings.Repeat("─", 50))

	total := len(r.lines)
	summary := fmt.Sprintf("Verified: %d/%d", verified, total-skipped)
	if failed > 0 {
		summary += fmt.Sprintf(", Failed: %d", failed)
	}
	if skipped > 0 {
		summary += fmt.Sprintf(", Skipped: %d", skipped)
	}

	if failed == 0 {
		_, _ = fmt.Fprintf(r.writer, "%s %s\n", successStyle.Render("✓"), successStyle.Render(summary))
	} else {
		_, _ = fmt.Fprintf(r.writer, "%s %s\n", errorStyle.Render("✗"), warningStyle.Render(summary))
	}

	if failed > 0 {
		_, _ = fmt.Fprintln(r.writer)
		_, _ = fmt.Fprintln(r.writer, errorStyle.Render("Failed checks:"))
		for _, l := range r.lines {
			if l.Status == StatusFailed && l.Err != nil {
				_, _ = fmt.Fprintf(r.writer, "  %s %s: %s\n", errorStyle.Render("✗"), l.Name, l.Err.Error())
			}
		}
	}
	_, _ = fmt.Fprintln(r.writer)
}
