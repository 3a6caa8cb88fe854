package diagfmt

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Stats counts what a check run saw.
type Stats struct {
	Files    int
	Errors   int
	Warnings int
	// Aborted counts templates that failed to load or hit an internal error.
	Aborted  int
	Cached   int
	Duration time.Duration
}

// Failed reports whether the run should exit non-zero.
func (s Stats) Failed() bool {
	return s.Errors > 0 || s.Aborted > 0
}

// SummaryOpts configures Summary.
type SummaryOpts struct {
	Color bool
}

// Summary writes a boxed report of a run.
func Summary(w io.Writer, s Stats, opts SummaryOpts) error {
	r := lipgloss.NewRenderer(w)
	plain := r.NewStyle()
	title, bad, warn, good := plain, plain, plain, plain
	if opts.Color {
		title = r.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
		bad = r.NewStyle().Foreground(lipgloss.Color("1"))
		warn = r.NewStyle().Foreground(lipgloss.Color("3"))
		good = r.NewStyle().Foreground(lipgloss.Color("2"))
	}

	lines := []string{
		title.Render(fmt.Sprintf("checked %d %s in %s", s.Files, Plural(s.Files, "template"), s.Duration.Round(time.Millisecond))),
	}
	var counts []string
	switch {
	case s.Errors > 0:
		counts = append(counts, bad.Render(fmt.Sprintf("%d %s", s.Errors, Plural(s.Errors, "error"))))
	default:
		counts = append(counts, good.Render("no errors"))
	}
	if s.Warnings > 0 {
		counts = append(counts, warn.Render(fmt.Sprintf("%d %s", s.Warnings, Plural(s.Warnings, "warning"))))
	}
	lines = append(lines, strings.Join(counts, ", "))
	if s.Aborted > 0 {
		lines = append(lines, bad.Render(fmt.Sprintf("%d %s not compiled", s.Aborted, Plural(s.Aborted, "template"))))
	}
	if s.Cached > 0 {
		lines = append(lines, plain.Render(fmt.Sprintf("%d from cache", s.Cached)))
	}

	box := r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	_, err := fmt.Fprintln(w, box.Render(strings.Join(lines, "\n")))
	return err
}
