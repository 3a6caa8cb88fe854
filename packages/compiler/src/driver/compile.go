// Package driver compiles many templates at once: discovery, parallel parsing and
// binding, an on-disk diagnostics cache and a file watcher.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"ngc-bind/packages/compiler/src/render3/view"
	"ngc-bind/packages/compiler/src/util"
)

// ErrTemplateAborted marks a template whose compilation hit an internal error. Other
// templates of the same run are unaffected.
var ErrTemplateAborted = errors.New("template compilation aborted")

// Options controls Compile.
type Options struct {
	// Jobs bounds the templates compiled at once. Zero or less means GOMAXPROCS.
	Jobs             int
	NormalizeUnicode bool
	ParseOptions     []view.ParseTemplateOption
	// Matcher is optional; without it no directives are matched.
	Matcher *view.DirectiveMatcher
	// Cache is optional. Cache hits skip parsing, so their Result has diagnostics only.
	Cache       *Cache
	Fingerprint string
	Logger      *slog.Logger
}

func (o *Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// Result is the outcome of compiling one File.
type Result struct {
	File   File
	Source string
	// Parsed and Bound are nil when the result came from the cache or Err is set.
	Parsed      *view.ParsedTemplate
	Bound       view.BoundTarget
	Diagnostics []*util.ParseError
	Cached      bool
	// Err is a load failure or wraps ErrTemplateAborted.
	Err error
}

// Failed reports whether the template has an error-level diagnostic or did not compile.
func (r *Result) Failed() bool {
	return r.Err != nil || util.HasErrors(r.Diagnostics)
}

// Compile compiles files in parallel. Results are in the order of files. The error is
// only set when ctx is cancelled.
func Compile(ctx context.Context, files []File, opts Options) ([]*Result, error) {
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	results := make([]*Result, len(files))
	if len(files) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(files)))
	for i, f := range files {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			results[i] = CompileFile(f, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log := opts.logger()
	for _, r := range results {
		if r.Err != nil {
			log.Warn("template failed", "url", r.File.URL(), "err", r.Err)
		}
	}
	log.Debug("compiled templates", "files", len(files), "jobs", min(jobs, len(files)))
	return results, nil
}

// CompileFile loads, parses and binds a single template.
func CompileFile(f File, opts Options) *Result {
	res := &Result{File: f}
	source, err := f.Read()
	if err != nil {
		res.Err = err
		return res
	}
	if opts.NormalizeUnicode && !norm.NFC.IsNormalString(source) {
		source = norm.NFC.String(source)
	}
	res.Source = source

	log := opts.logger()
	var key CacheKey
	if opts.Cache != nil {
		key = NewCacheKey(opts.Fingerprint, source)
		diags, ok, err := opts.Cache.Get(key, util.NewParseSourceFile(source, f.URL()))
		switch {
		case err != nil:
			log.Warn("cache read failed", "url", f.URL(), "err", err)
		case ok:
			res.Diagnostics = diags
			res.Cached = true
			return res
		}
	}

	if err := compileSource(res, opts); err != nil {
		res.Err = err
		return res
	}

	if opts.Cache != nil {
		if err := opts.Cache.Put(key, res.Diagnostics); err != nil {
			log.Warn("cache write failed", "url", f.URL(), "err", err)
		}
	}
	return res
}

// compileSource turns a panic into ErrTemplateAborted so one broken template does not
// take down the run.
func compileSource(res *Result, opts Options) (err error) {
	defer func() {
		if r := recover(); r != nil {
			res.Parsed, res.Bound, res.Diagnostics = nil, nil, nil
			err = fmt.Errorf("%s: %w: %v", res.File.URL(), ErrTemplateAborted, r)
		}
	}()

	parsed := view.ParseTemplate(res.Source, res.File.URL(), opts.ParseOptions...)
	binder := view.NewR3TargetBinder(opts.Matcher).WithLogger(opts.logger())
	res.Parsed = parsed
	res.Bound = binder.Bind(&view.Target{Template: parsed.Nodes})
	res.Diagnostics = parsed.Errors
	return nil
}
