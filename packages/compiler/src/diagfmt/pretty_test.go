package diagfmt_test

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"ngc-bind/packages/compiler/src/config"
	"ngc-bind/packages/compiler/src/diagfmt"
	"ngc-bind/packages/compiler/src/render3/view"
	"ngc-bind/packages/compiler/src/util"
)

func spanAt(file *util.ParseSourceFile, start, end int) *util.ParseSourceSpan {
	loc := func(offset int) *util.ParseLocation {
		line := strings.Count(file.Content[:offset], "\n")
		col := offset - (strings.LastIndexByte(file.Content[:offset], '\n') + 1)
		return util.NewParseLocation(file, offset, line, col)
	}
	return util.NewParseSourceSpan(loc(start), loc(end), nil, nil)
}

func TestPretty(t *testing.T) {
	t.Run("should print location, source line and caret", func(t *testing.T) {
		file := util.NewParseSourceFile("<div>\n  <span #r #r></span>\n</div>", "app.html")
		errs := []*util.ParseError{util.NewParseError(spanAt(file, 17, 19), `Reference "#r" is defined more than once`)}

		var buf bytes.Buffer
		omitted, err := diagfmt.Pretty(&buf, errs, diagfmt.PrettyOpts{})
		if err != nil || omitted != 0 {
			t.Fatalf("Pretty() = %d, %v", omitted, err)
		}
		want := "app.html:2:12: error: Reference \"#r\" is defined more than once\n" +
			"2 |   <span #r #r></span>\n" +
			"  | " + strings.Repeat(" ", 11) + "^~\n"
		if diff := cmp.Diff(want, buf.String()); diff != "" {
			t.Errorf("output mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should show context lines", func(t *testing.T) {
		file := util.NewParseSourceFile("a\nb\nc\nd", "x.html")
		errs := []*util.ParseError{util.NewParseWarning(spanAt(file, 4, 5), "odd")}

		var buf bytes.Buffer
		if _, err := diagfmt.Pretty(&buf, errs, diagfmt.PrettyOpts{Context: 5}); err != nil {
			t.Fatal(err)
		}
		want := "x.html:3:1: warning: odd\n" +
			"1 | a\n" +
			"2 | b\n" +
			"3 | c\n" +
			"  | ^\n"
		if diff := cmp.Diff(want, buf.String()); diff != "" {
			t.Errorf("output mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should size the caret by display width", func(t *testing.T) {
		file := util.NewParseSourceFile("<p>日本 x</p>", "w.html")
		start := len("<p>日本 ")
		errs := []*util.ParseError{util.NewParseError(spanAt(file, 3, start), "wide")}

		var buf bytes.Buffer
		if _, err := diagfmt.Pretty(&buf, errs, diagfmt.PrettyOpts{}); err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(buf.String(), "\n")
		if lines[2] != "  |    ^~~~~" {
			t.Errorf("caret line = %q", lines[2])
		}
	})

	t.Run("should cap the number of diagnostics", func(t *testing.T) {
		file := util.NewParseSourceFile("<a>", "x.html")
		var errs []*util.ParseError
		for range 4 {
			errs = append(errs, util.NewParseError(spanAt(file, 0, 3), "e"))
		}
		var buf bytes.Buffer
		omitted, err := diagfmt.Pretty(&buf, errs, diagfmt.PrettyOpts{Max: 1})
		if err != nil || omitted != 3 {
			t.Fatalf("Pretty() = %d, %v", omitted, err)
		}
		if !strings.HasSuffix(buf.String(), "... 3 more diagnostics not shown\n") {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("should print diagnostics without a span", func(t *testing.T) {
		var buf bytes.Buffer
		if _, err := diagfmt.Pretty(&buf, []*util.ParseError{{Msg: "lost", Level: util.ParseErrorLevelError}}, diagfmt.PrettyOpts{}); err != nil {
			t.Fatal(err)
		}
		if buf.String() != "error: lost\n" {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("should shorten paths under the base directory", func(t *testing.T) {
		file := util.NewParseSourceFile("<a>", "/project/src/a.html")
		var buf bytes.Buffer
		_, err := diagfmt.Pretty(&buf, []*util.ParseError{util.NewParseError(spanAt(file, 0, 1), "e")}, diagfmt.PrettyOpts{BaseDir: "/project"})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(buf.String(), "src/a.html:1:1: ") {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("should color when asked", func(t *testing.T) {
		file := util.NewParseSourceFile("<a>", "x.html")
		var buf bytes.Buffer
		if _, err := diagfmt.Pretty(&buf, []*util.ParseError{util.NewParseError(spanAt(file, 0, 1), "e")}, diagfmt.PrettyOpts{Color: true}); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "\x1b[") {
			t.Errorf("output = %q, want escape sequences", buf.String())
		}
	})

	t.Run("should render real template diagnostics", func(t *testing.T) {
		parsed := view.ParseTemplate("<p></p>\n<b #a #a></b>", "t.html")
		var buf bytes.Buffer
		if _, err := diagfmt.Pretty(&buf, parsed.Errors, diagfmt.PrettyOpts{}); err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(buf.String(), "t.html:2:") || !strings.Contains(buf.String(), ": error: ") {
			t.Errorf("output = %q", buf.String())
		}
	})
}

func TestColorEnabled(t *testing.T) {
	if !diagfmt.ColorEnabled(config.ColorOn, nil) {
		t.Error("on should color")
	}
	if diagfmt.ColorEnabled(config.ColorOff, os.Stdout) {
		t.Error("off should not color")
	}
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if diagfmt.ColorEnabled(config.ColorAuto, f) {
		t.Error("auto should not color a regular file")
	}
}

func TestSummary(t *testing.T) {
	t.Run("should box the counts", func(t *testing.T) {
		var buf bytes.Buffer
		stats := diagfmt.Stats{Files: 3, Errors: 2, Warnings: 1, Aborted: 1, Cached: 2, Duration: 1500 * time.Microsecond}
		if err := diagfmt.Summary(&buf, stats, diagfmt.SummaryOpts{}); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		for _, want := range []string{"╭", "╯", "checked 3 templates in 2ms", "2 errors, 1 warning", "1 template not compiled", "2 from cache"} {
			if !strings.Contains(out, want) {
				t.Errorf("summary %q does not contain %q", out, want)
			}
		}
		if !stats.Failed() {
			t.Error("stats with errors should fail")
		}
	})

	t.Run("should report a clean run", func(t *testing.T) {
		var buf bytes.Buffer
		stats := diagfmt.Stats{Files: 1}
		if err := diagfmt.Summary(&buf, stats, diagfmt.SummaryOpts{}); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "checked 1 template in 0s") || !strings.Contains(buf.String(), "no errors") {
			t.Errorf("summary = %q", buf.String())
		}
		if stats.Failed() {
			t.Error("a clean run should not fail")
		}
	})
}
