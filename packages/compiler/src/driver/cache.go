package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"

	"ngc-bind/packages/compiler/src/util"
)

// Increment when cacheRecord changes.
const cacheSchemaVersion uint16 = 1

// Cache stores the diagnostics of compiled templates on disk, keyed by content and
// settings. A nil *Cache is a valid cache that never hits. Safe for concurrent use.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// CacheKey is the SHA-256 of a template's settings fingerprint and content.
type CacheKey [sha256.Size]byte

func NewCacheKey(fingerprint, content string) CacheKey {
	h := sha256.New()
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(content))
	var k CacheKey
	h.Sum(k[:0])
	return k
}

type cacheRecord struct {
	Schema      uint16
	Diagnostics []cachedDiagnostic
}

type cachedDiagnostic struct {
	Msg   string
	Level uint8
	// HasSpan is false for diagnostics without a location.
	HasSpan             bool
	Start, End          uint32
	StartLine, StartCol uint32
	EndLine, EndCol     uint32
	Details             string
	HasDetails          bool
}

// OpenCache creates dir when needed.
func OpenCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) pathFor(key CacheKey) string {
	hexKey := hex.EncodeToString(key[:])
	return filepath.Join(c.dir, hexKey[:2], hexKey+".mp")
}

// Put records the diagnostics of a template.
func (c *Cache) Put(key CacheKey, diags []*util.ParseError) error {
	if c == nil {
		return nil
	}
	rec, err := packDiagnostics(diags)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	renamed := false
	defer func() {
		if !renamed {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if err := msgpack.NewEncoder(f).Encode(rec); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(f.Name(), p); err != nil {
		return err
	}
	renamed = true
	return nil
}

// Get returns the diagnostics recorded for key, rebuilt against file. Records of an
// older schema are misses.
func (c *Cache) Get(key CacheKey, file *util.ParseSourceFile) ([]*util.ParseError, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var rec cacheRecord
	if err := msgpack.NewDecoder(f).Decode(&rec); err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry: %w", err)
	}
	if rec.Schema != cacheSchemaVersion {
		return nil, false, nil
	}
	diags, err := unpackDiagnostics(rec.Diagnostics, file)
	if err != nil {
		return nil, false, err
	}
	return diags, true, nil
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.RemoveAll(c.dir); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}

func packDiagnostics(diags []*util.ParseError) (*cacheRecord, error) {
	rec := &cacheRecord{Schema: cacheSchemaVersion, Diagnostics: make([]cachedDiagnostic, 0, len(diags))}
	for _, d := range diags {
		level, err := safecast.Conv[uint8](int(d.Level))
		if err != nil {
			return nil, err
		}
		cd := cachedDiagnostic{Msg: d.Msg, Level: level}
		if d.Span != nil && d.Span.Start != nil && d.Span.End != nil {
			cd.HasSpan = true
			fields := []struct {
				dst *uint32
				src int
			}{
				{&cd.Start, d.Span.Start.Offset},
				{&cd.End, d.Span.End.Offset},
				{&cd.StartLine, d.Span.Start.Line},
				{&cd.StartCol, d.Span.Start.Col},
				{&cd.EndLine, d.Span.End.Line},
				{&cd.EndCol, d.Span.End.Col},
			}
			for _, f := range fields {
				v, err := safecast.Conv[uint32](f.src)
				if err != nil {
					return nil, fmt.Errorf("span out of range: %w", err)
				}
				*f.dst = v
			}
			if d.Span.Details != nil {
				cd.HasDetails = true
				cd.Details = *d.Span.Details
			}
		}
		rec.Diagnostics = append(rec.Diagnostics, cd)
	}
	return rec, nil
}

func unpackDiagnostics(cached []cachedDiagnostic, file *util.ParseSourceFile) ([]*util.ParseError, error) {
	out := make([]*util.ParseError, 0, len(cached))
	for _, cd := range cached {
		d := &util.ParseError{Msg: cd.Msg, Level: util.ParseErrorLevel(cd.Level)}
		if cd.HasSpan {
			if int(cd.End) > len(file.Content) || cd.Start > cd.End {
				return nil, fmt.Errorf("cached span %d..%d outside of %s", cd.Start, cd.End, file.URL)
			}
			start := util.NewParseLocation(file, int(cd.Start), int(cd.StartLine), int(cd.StartCol))
			end := util.NewParseLocation(file, int(cd.End), int(cd.EndLine), int(cd.EndCol))
			var details *string
			if cd.HasDetails {
				details = &cd.Details
			}
			d.Span = util.NewParseSourceSpan(start, end, start, details)
		}
		out = append(out, d)
	}
	return out, nil
}
