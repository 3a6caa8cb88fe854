package driver

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// File is one template to compile. Content is read from Path unless Inline is set.
type File struct {
	Path string
	// Component is the class name owning an inline template.
	Component string
	Inline    bool
	Content   string
}

// URL is the name diagnostics are reported under.
func (f File) URL() string {
	if f.Component != "" {
		return f.Path + "#" + f.Component
	}
	return f.Path
}

// Read returns the template text.
func (f File) Read() (string, error) {
	if f.Inline {
		return f.Content, nil
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read template: %w", err)
	}
	return string(data), nil
}

// Files wraps template paths.
func Files(paths ...string) []File {
	out := make([]File, len(paths))
	for i, p := range paths {
		out[i] = File{Path: p}
	}
	return out
}

var (
	componentRe = regexp.MustCompile(`@Component\s*\(\s*\{([\s\S]*?)\}\s*\)`)
	classRe     = regexp.MustCompile(`export\s+(?:default\s+)?class\s+(\w+)`)
	templateRe  = regexp.MustCompile(`template\s*:\s*` + "`" + `([\s\S]*?)` + "`")
)

// skipDir reports whether a directory walk should not descend into name.
func skipDir(name string) bool {
	return name == "node_modules" || name == "dist" || (len(name) > 1 && strings.HasPrefix(name, "."))
}

// IsTemplateFile reports whether path is a template or may hold inline templates.
func IsTemplateFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".html" || ext == ".ts"
}

// Discover collects the templates under roots: every .html file, and the inline
// templates of components declared in .ts files. node_modules, dist and hidden
// directories are skipped. The result is sorted by URL.
func Discover(roots ...string) ([]File, error) {
	var files []File
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %q: %w", root, err)
		}
		if !info.IsDir() {
			found, err := discoverFile(root)
			if err != nil {
				return nil, err
			}
			files = append(files, found...)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && skipDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			found, err := discoverFile(path)
			if err != nil {
				return err
			}
			files = append(files, found...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %q: %w", root, err)
		}
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].URL() < files[j].URL() })
	return files, nil
}

func discoverFile(path string) ([]File, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html":
		return []File{{Path: path}}, nil
	case ".ts":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %q: %w", path, err)
		}
		return InlineTemplates(path, string(data)), nil
	}
	return nil, nil
}

// InlineTemplates finds the `template:` literals of the components in a TypeScript
// source. Components with a templateUrl are left to the .html walk.
func InlineTemplates(path, source string) []File {
	var out []File
	for _, loc := range componentRe.FindAllStringSubmatchIndex(source, -1) {
		body := source[loc[2]:loc[3]]
		m := templateRe.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		// The decorated class follows its decorator.
		className := "Component"
		if cm := classRe.FindStringSubmatch(source[loc[1]:]); cm != nil {
			className = cm[1]
		}
		out = append(out, File{Path: path, Component: className, Inline: true, Content: m[1]})
	}
	return out
}
