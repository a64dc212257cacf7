package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Reporter receives progress of a batch job such as a matching sweep.
type Reporter interface {
	Start(total int)
	Update(current int, message string)
	Finish()
}

// NewReporter returns a progress bar when stderr is a terminal and line
// output otherwise, so sweeps run from cron or CI leave readable logs.
func NewReporter(description string) Reporter {
	return newReporter(description, os.Stderr, interactive())
}

func newReporter(description string, out io.Writer, tty bool) Reporter {
	if !tty {
		return &CIReporter{description: description, out: out, every: 1}
	}
	return &TerminalReporter{description: description, out: out}
}

func interactive() bool {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// Nop discards progress.
type Nop struct{}

func (Nop) Start(int)          {}
func (Nop) Update(int, string) {}
func (Nop) Finish()            {}

// TerminalReporter draws a progress bar.
type TerminalReporter struct {
	description string
	out         io.Writer
	bar         *progressbar.ProgressBar
}

func (r *TerminalReporter) Start(total int) {
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(r.description),
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *TerminalReporter) Update(current int, message string) {
	if r.bar != nil {
		r.bar.Describe(message)
		_ = r.bar.Set(current)
	}
}

func (r *TerminalReporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

// CIReporter prints one line per step. Large runs print every tenth of
// the total so a sweep over thousands of questions stays short.
type CIReporter struct {
	description string
	out         io.Writer
	total       int
	every       int
}

func (r *CIReporter) Start(total int) {
	r.total = total
	r.every = max(1, total/10)
	fmt.Fprintf(r.out, "%s: %d questions\n", r.description, total)
}

func (r *CIReporter) Update(current int, message string) {
	if current%r.every != 0 && current != r.total {
		return
	}
	fmt.Fprintf(r.out, "[%d/%d] %s\n", current, r.total, message)
}

func (r *CIReporter) Finish() {
	fmt.Fprintf(r.out, "%s: done\n", r.description)
}
