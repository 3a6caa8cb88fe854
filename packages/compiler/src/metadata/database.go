// Package metadata loads the directive database a template is bound against.
package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"ngc-bind/packages/compiler/src/css"
	"ngc-bind/packages/compiler/src/render3/view"
)

// Database is a decoded directive database.
type Database struct {
	Directives []*Directive
}

type file struct {
	Directives []directiveEntry `yaml:"directives"`
}

type directiveEntry struct {
	Name       string      `yaml:"name"`
	Selector   string      `yaml:"selector"`
	Component  bool        `yaml:"component"`
	Structural bool        `yaml:"structural"`
	Inputs     PropertyMap `yaml:"inputs"`
	Outputs    PropertyMap `yaml:"outputs"`
	ExportAs   []string    `yaml:"exportAs"`
}

// Load reads and parses the database at path.
func Load(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directive database: %w", err)
	}
	db, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return db, nil
}

// Parse decodes a YAML directive database. Unknown keys are errors.
func Parse(data []byte) (*Database, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f file
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse directive database: %w", err)
	}

	db := &Database{Directives: make([]*Directive, 0, len(f.Directives))}
	seen := make(map[string]bool, len(f.Directives))
	for i, e := range f.Directives {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("directive #%d: missing name", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("directive %s: declared twice", name)
		}
		seen[name] = true
		db.Directives = append(db.Directives, &Directive{
			name:        name,
			selector:    strings.TrimSpace(e.Selector),
			isComponent: e.Component,
			structural:  e.Structural,
			inputs:      e.Inputs,
			outputs:     e.Outputs,
			exportAs:    e.ExportAs,
		})
	}
	return db, nil
}

// Lookup returns the directive called name, or nil.
func (db *Database) Lookup(name string) *Directive {
	for _, d := range db.Directives {
		if d.name == name {
			return d
		}
	}
	return nil
}

// Matcher registers every directive with a selector, in database order. Directives
// without a selector can never match and are skipped.
func (db *Database) Matcher() (*view.DirectiveMatcher, error) {
	matcher := css.NewSelectorMatcher[view.DirectiveMeta]()
	for _, d := range db.Directives {
		if d.selector == "" {
			continue
		}
		selectors, err := css.ParseCssSelector(d.selector)
		if err != nil {
			return nil, fmt.Errorf("directive %s: %w", d.name, err)
		}
		matcher.AddSelectables(selectors, view.DirectiveMeta(d))
	}
	return matcher, nil
}
