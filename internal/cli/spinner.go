package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Progress shows a spinner while a long operation runs.
type Progress struct {
	w io.Writer
	s *spinner.Spinner
}

// StartProgress starts a spinner on w with msg. When quiet is set the
// returned Progress does nothing.
func StartProgress(w io.Writer, msg string, quiet bool) *Progress {
	if quiet {
		return &Progress{}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + msg
	s.Start()
	return &Progress{w: w, s: s}
}

// Done stops the spinner with a success line.
func (p *Progress) Done(msg string) {
	p.stop(text.FgGreen.Sprint("✓ " + msg))
}

// Fail stops the spinner with a failure line.
func (p *Progress) Fail(msg string) {
	p.stop(text.FgRed.Sprint("✗ " + msg))
}

// Stop stops the spinner without a final line.
func (p *Progress) Stop() {
	p.stop("")
}

func (p *Progress) stop(final string) {
	if p.s == nil {
		return
	}
	// The spinner stays silent when w is not a terminal, so the final
	// line is written here rather than through FinalMSG.
	p.s.Stop()
	p.s = nil
	if final != "" {
		fmt.Fprintln(p.w, final)
	}
}
