package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testDatabase = `
directives:
  - name: NgIf
    selector: "[ngIf]"
    inputs: [ngIf]
    structural: true
  - name: MyCmp
    selector: my-cmp
    component: true
    inputs: [value]
    exportAs: [myCmp]
`

// newProject writes a project file, a directive database and files under a temp dir.
func newProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	all := map[string]string{
		"ngc-bind.toml":   "[directives]\ndatabase = \"directives.yaml\"\n\n[output]\ncolor = \"off\"\n",
		"directives.yaml": testDatabase,
	}
	for name, content := range files {
		all[name] = content
	}
	for name, content := range all {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func assertContains(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("output %q does not contain %q", out, want)
		}
	}
}

func TestCheckCommand(t *testing.T) {
	t.Run("should pass a clean project", func(t *testing.T) {
		dir := newProject(t, map[string]string{
			"src/a.html": "<my-cmp [value]=\"1\"></my-cmp>",
			"src/b.html": "<p *ngIf=\"ok\">{{ ok }}</p>",
		})
		out, _, err := execute(t, "--config", filepath.Join(dir, "ngc-bind.toml"), "--no-cache", "check", dir)
		if err != nil {
			t.Fatalf("check failed: %v\n%s", err, out)
		}
		assertContains(t, out, "checked 2 templates", "no errors")
	})

	t.Run("should fail on template errors", func(t *testing.T) {
		dir := newProject(t, map[string]string{
			"bad.html": "<p></p>\n<b #a #a></b>",
		})
		out, _, err := execute(t, "--config", filepath.Join(dir, "ngc-bind.toml"), "--no-cache", "check")
		if !errors.Is(err, errCheckFailed) {
			t.Fatalf("check = %v, want errCheckFailed", err)
		}
		assertContains(t, out, "bad.html:2:", ": error: ", "1 error")
	})

	t.Run("should check inline templates", func(t *testing.T) {
		dir := newProject(t, map[string]string{
			"app.component.ts": "@Component({\n  selector: 'app',\n  template: `<b #x #x></b>`,\n})\nexport class AppComponent {}\n",
		})
		out, _, err := execute(t, "--config", filepath.Join(dir, "ngc-bind.toml"), "--no-cache", "check", dir)
		if !errors.Is(err, errCheckFailed) {
			t.Fatalf("check = %v, want errCheckFailed", err)
		}
		assertContains(t, out, "app.component.ts#AppComponent:1:")
	})

	t.Run("should serve the second run from the cache", func(t *testing.T) {
		dir := newProject(t, map[string]string{
			"a.html": "<a></a>",
			"b.html": "<b></b>",
		})
		cfg := filepath.Join(dir, "ngc-bind.toml")
		if _, _, err := execute(t, "--config", cfg, "check", dir); err != nil {
			t.Fatal(err)
		}
		out, _, err := execute(t, "--config", cfg, "check", dir)
		if err != nil {
			t.Fatal(err)
		}
		assertContains(t, out, "2 from cache")

		if _, _, err := execute(t, "--config", cfg, "clean"); err != nil {
			t.Fatal(err)
		}
		out, _, err = execute(t, "--config", cfg, "check", dir)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(out, "from cache") {
			t.Errorf("output %q reports cache hits after clean", out)
		}
	})

	t.Run("should reject a bad color flag", func(t *testing.T) {
		dir := newProject(t, nil)
		_, _, err := execute(t, "--config", filepath.Join(dir, "ngc-bind.toml"), "--color", "sometimes", "check", dir)
		if err == nil || !strings.Contains(err.Error(), "--color") {
			t.Errorf("check = %v, want a --color error", err)
		}
	})

	t.Run("should report a broken directive database", func(t *testing.T) {
		dir := newProject(t, map[string]string{"directives.yaml": "directives:\n  - selector: x\n"})
		_, _, err := execute(t, "--config", filepath.Join(dir, "ngc-bind.toml"), "check", dir)
		if err == nil || !strings.Contains(err.Error(), "missing name") {
			t.Errorf("check = %v, want a database error", err)
		}
	})
}

func TestBindCommand(t *testing.T) {
	t.Run("should report directives, references and expression targets", func(t *testing.T) {
		dir := newProject(t, map[string]string{
			"a.html": `<my-cmp #c="myCmp" [value]="1"></my-cmp><p *ngIf="c">{{ c }}</p>`,
		})
		out, _, err := execute(t, "--config", filepath.Join(dir, "ngc-bind.toml"), "bind", "--tree=false", filepath.Join(dir, "a.html"))
		if err != nil {
			t.Fatalf("bind failed: %v\n%s", err, out)
		}
		assertContains(t, out,
			"<my-cmp> at 1:1: MyCmp",
			"<ng-template> on <p> at ",
			": NgIf",
			"#c at 1:9: MyCmp on <my-cmp>",
			"reference #c",
			"pipes: none (eager: none)",
			"defer blocks: 0",
		)
	})

	t.Run("should take the directive database from the flag", func(t *testing.T) {
		dir := newProject(t, map[string]string{
			"a.html":     `<p></p>`,
			"other.yaml": "directives:\n  - name: Para\n    selector: p\n",
		})
		out, _, err := execute(t, "--config", filepath.Join(dir, "ngc-bind.toml"), "bind", "--tree=false",
			"--directives", filepath.Join(dir, "other.yaml"), filepath.Join(dir, "a.html"))
		if err != nil {
			t.Fatalf("bind failed: %v\n%s", err, out)
		}
		assertContains(t, out, "<p> at 1:1: Para")
	})

	t.Run("should resolve references without a directive database", func(t *testing.T) {
		dir := newProject(t, map[string]string{
			"ngc-bind.toml": "[output]\ncolor = \"off\"\n",
			"r.html":        `<div #myRef></div>@defer (on interaction(myRef)) {x} @placeholder {<span></span>}`,
		})
		out, _, err := execute(t, "--config", filepath.Join(dir, "ngc-bind.toml"), "bind", "--tree=false", filepath.Join(dir, "r.html"))
		if err != nil {
			t.Fatalf("bind failed: %v\n%s", err, out)
		}
		assertContains(t, out, "#myRef at 1:6: <div>", "interaction(myRef) -> <div> at 1:1")
	})

	t.Run("should resolve deferred trigger targets", func(t *testing.T) {
		dir := newProject(t, map[string]string{
			"d.html": `@defer (on viewport(t)) {<b></b>} @placeholder {<i></i>}<div #t></div>`,
		})
		out, _, err := execute(t, "--config", filepath.Join(dir, "ngc-bind.toml"), "bind", filepath.Join(dir, "d.html"))
		if err != nil {
			t.Fatalf("bind failed: %v\n%s", err, out)
		}
		assertContains(t, out, "@defer\n", "defer blocks: 1", "viewport(t) -> <div> at 1:")
	})
}

func TestParseCommand(t *testing.T) {
	dir := newProject(t, map[string]string{"a.html": `<div a="1">hi</div>`})
	out, _, err := execute(t, "--config", filepath.Join(dir, "ngc-bind.toml"), "parse", filepath.Join(dir, "a.html"))
	if err != nil {
		t.Fatal(err)
	}
	want := "Element div\n  Attribute a=\"1\"\n  Text \"hi\"\n"
	if out != want {
		t.Errorf("parse output = %q, want %q", out, want)
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	assertContains(t, out, `"tool": "ngc-bind"`, `"version": "dev"`)

	if _, _, err := execute(t, "version", "--format", "xml"); err == nil {
		t.Error("expected an error for an unknown format")
	}
}
