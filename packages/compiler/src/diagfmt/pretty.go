// Package diagfmt renders template diagnostics for terminals.
package diagfmt

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"ngc-bind/packages/compiler/src/config"
	"ngc-bind/packages/compiler/src/util"
)

// PrettyOpts configures Pretty.
type PrettyOpts struct {
	Color bool
	// Context is the number of source lines shown above the offending one.
	Context int
	// BaseDir shortens absolute URLs to paths relative to it.
	BaseDir string
	// Max caps the diagnostics printed; 0 prints all.
	Max int
}

// ColorEnabled resolves a color mode for f. Auto colors terminals unless NO_COLOR or
// a dumb terminal turned color off.
func ColorEnabled(mode config.ColorMode, f *os.File) bool {
	switch mode {
	case config.ColorOn:
		return true
	case config.ColorOff:
		return false
	}
	return f != nil && term.IsTerminal(int(f.Fd())) && !color.NoColor
}

type palette struct {
	err, warn, loc, gutter, caret *color.Color
}

func newPalette(on bool) *palette {
	p := &palette{
		err:    color.New(color.FgRed, color.Bold),
		warn:   color.New(color.FgYellow, color.Bold),
		loc:    color.New(color.Bold),
		gutter: color.New(color.FgBlue),
		caret:  color.New(color.FgGreen, color.Bold),
	}
	for _, c := range []*color.Color{p.err, p.warn, p.loc, p.gutter, p.caret} {
		if on {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p *palette) level(l util.ParseErrorLevel) *color.Color {
	if l == util.ParseErrorLevelWarning {
		return p.warn
	}
	return p.err
}

// Pretty writes each diagnostic as
//
//	<url>:<line>:<col>: <error|warning>: <msg>
//
// followed by the source line and a caret underline of the span. Lines and columns
// are one-based; columns count bytes. It returns how many diagnostics were omitted
// because of opts.Max.
func Pretty(w io.Writer, errs []*util.ParseError, opts PrettyOpts) (int, error) {
	p := newPalette(opts.Color)
	shown := errs
	if opts.Max > 0 && len(errs) > opts.Max {
		shown = errs[:opts.Max]
	}
	for _, e := range shown {
		if err := prettyOne(w, e, p, opts); err != nil {
			return 0, err
		}
	}
	omitted := len(errs) - len(shown)
	if omitted > 0 {
		if _, err := fmt.Fprintf(w, "... %d more %s not shown\n", omitted, Plural(omitted, "diagnostic")); err != nil {
			return 0, err
		}
	}
	return omitted, nil
}

func prettyOne(w io.Writer, e *util.ParseError, p *palette, opts PrettyOpts) error {
	sev := p.level(e.Level).Sprint(e.Level.String())
	if e.Span == nil || e.Span.Start == nil || e.Span.Start.File == nil {
		_, err := fmt.Fprintf(w, "%s: %s\n", sev, e.Msg)
		return err
	}

	start := e.Span.Start
	loc := fmt.Sprintf("%s:%d:%d", displayPath(start.File.URL, opts.BaseDir), start.Line+1, start.Col+1)
	msg := e.Msg
	if e.Span.Details != nil {
		msg += " (" + *e.Span.Details + ")"
	}
	if _, err := fmt.Fprintf(w, "%s: %s: %s\n", p.loc.Sprint(loc), sev, msg); err != nil {
		return err
	}

	content := start.File.Content
	if start.Offset > len(content) {
		return nil
	}
	lineStart := strings.LastIndexByte(content[:start.Offset], '\n') + 1
	lineEnd := len(content)
	if i := strings.IndexByte(content[start.Offset:], '\n'); i >= 0 {
		lineEnd = start.Offset + i
	}

	gutterWidth := len(fmt.Sprint(start.Line + 1))
	for i, line := range contextLines(content, lineStart, opts.Context) {
		n := start.Line + 1 - opts.Context + i
		if n < 1 {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s %s\n", p.gutter.Sprintf("%*d |", gutterWidth, n), line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "%s %s\n", p.gutter.Sprintf("%*d |", gutterWidth, start.Line+1), content[lineStart:lineEnd]); err != nil {
		return err
	}

	end := lineEnd
	if e.Span.End != nil && e.Span.End.Offset >= start.Offset && e.Span.End.Offset < end {
		end = e.Span.End.Offset
	}
	_, err := fmt.Fprintf(w, "%s %s%s\n",
		p.gutter.Sprint(strings.Repeat(" ", gutterWidth)+" |"),
		indentFor(content[lineStart:start.Offset]),
		p.caret.Sprint(underline(content[start.Offset:end])))
	return err
}

// contextLines returns up to n lines ending just before the line at lineStart.
func contextLines(content string, lineStart, n int) []string {
	if n <= 0 || lineStart == 0 {
		return nil
	}
	before := strings.Split(content[:lineStart-1], "\n")
	if len(before) > n {
		before = before[len(before)-n:]
	}
	// Pad so the caller can number lines from the offending one.
	out := make([]string, n-len(before), n)
	return append(out, before...)
}

// indentFor blanks prefix to its display width, keeping tabs so the caret lines up.
func indentFor(prefix string) string {
	var sb strings.Builder
	for _, r := range prefix {
		if r == '\t' {
			sb.WriteRune('\t')
			continue
		}
		sb.WriteString(strings.Repeat(" ", runewidth.RuneWidth(r)))
	}
	return sb.String()
}

func underline(text string) string {
	width := runewidth.StringWidth(text)
	if width <= 1 {
		return "^"
	}
	return "^" + strings.Repeat("~", width-1)
}

func displayPath(url, baseDir string) string {
	if baseDir == "" || !filepath.IsAbs(url) {
		return url
	}
	if rel, err := filepath.Rel(baseDir, url); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return url
}

// Plural appends an s to noun unless n is one.
func Plural(n int, noun string) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}
