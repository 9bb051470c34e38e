package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"io/fs"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neurodesk/stencil/pkg/template"
)

// Hash is the short content hash used to validate cached entries.
func Hash(source string) string {
	sum := sha1.Sum([]byte(source))
	return hex.EncodeToString(sum[:])[:10]
}

// Stats counts lookups of one cache.
type Stats struct {
	hits, misses atomic.Int64
}

func (s *Stats) record(ok bool) {
	if ok {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
}

// Hits returns the number of successful lookups.
func (s *Stats) Hits() int64 { return s.hits.Load() }

// Misses returns the number of failed lookups.
func (s *Stats) Misses() int64 { return s.misses.Load() }

// LoaderCache keeps template sources by path. When reloading, an entry is
// stale once the file's modification time moves past the recorded one.
type LoaderCache struct {
	Stats

	fsys   fs.FS
	reload bool

	mu     sync.RWMutex
	data   map[string]string
	mtimes map[string]time.Time
}

// NewLoaderCache returns a loader cache over fsys.
func NewLoaderCache(fsys fs.FS, reload bool) *LoaderCache {
	return &LoaderCache{
		fsys:   fsys,
		reload: reload,
		data:   make(map[string]string),
		mtimes: make(map[string]time.Time),
	}
}

// Get returns the cached source of path.
func (c *LoaderCache) Get(path string) (string, bool) {
	c.mu.RLock()
	src, ok := c.data[path]
	recorded := c.mtimes[path]
	c.mu.RUnlock()
	if ok && c.reload {
		info, err := fs.Stat(c.fsys, path)
		if err != nil || info.ModTime().After(recorded) {
			ok = false
		}
	}
	c.record(ok)
	if !ok {
		return "", false
	}
	return src, true
}

// Set stores the source of path along with its current modification time.
func (c *LoaderCache) Set(path, source string) {
	var mtime time.Time
	if info, err := fs.Stat(c.fsys, path); err == nil {
		mtime = info.ModTime()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[path] = source
	c.mtimes[path] = mtime
}

// ModTime returns the modification time recorded when path was stored.
func (c *LoaderCache) ModTime(path string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.mtimes[path]
	return t, ok
}

// Invalidate drops path.
func (c *LoaderCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, path)
	delete(c.mtimes, path)
}

// HashCache keeps values by template name. When reloading, an entry is only
// returned while the source it was built from hashes the same; otherwise the
// first stored value wins whatever the source.
type HashCache[T any] struct {
	Stats

	reload bool

	mu     sync.RWMutex
	data   map[string]T
	hashes map[string]string
}

// NewHashCache returns an empty cache.
func NewHashCache[T any](reload bool) *HashCache[T] {
	return &HashCache[T]{
		reload: reload,
		data:   make(map[string]T),
		hashes: make(map[string]string),
	}
}

// Get returns the value stored for name if it is still valid for source.
func (c *HashCache[T]) Get(name, source string) (T, bool) {
	v, ok := c.lookup(name, source)
	c.record(ok)
	return v, ok
}

func (c *HashCache[T]) lookup(name, source string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[name]
	if !ok || (c.reload && c.hashes[name] != Hash(source)) {
		var zero T
		return zero, false
	}
	return v, true
}

// Set stores v for name.
func (c *HashCache[T]) Set(name, source string, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[name] = v
	if c.reload {
		c.hashes[name] = Hash(source)
	}
}

// Invalidate drops name.
func (c *HashCache[T]) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, name)
	delete(c.hashes, name)
}

// Len returns the number of entries.
func (c *HashCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// ParseCache keeps compiled programs. When reloading, a program is also
// stale once any of its dependencies changed on disk since the loader cache
// read it.
type ParseCache struct {
	*HashCache[*template.Program]

	fsys   fs.FS
	loader *LoaderCache
}

// NewParseCache returns a parse cache checking dependencies against loader.
func NewParseCache(fsys fs.FS, loader *LoaderCache, reload bool) *ParseCache {
	return &ParseCache{
		HashCache: NewHashCache[*template.Program](reload),
		fsys:      fsys,
		loader:    loader,
	}
}

// Get returns the program stored for name if its source and dependencies are
// unchanged.
func (c *ParseCache) Get(name, source string) (*template.Program, bool) {
	prog, ok := c.lookup(name, source)
	if ok && c.reload {
		for _, dep := range prog.Dependencies {
			if c.expired(dep) {
				prog, ok = nil, false
				break
			}
		}
	}
	c.record(ok)
	return prog, ok
}

func (c *ParseCache) expired(dep string) bool {
	recorded, ok := c.loader.ModTime(dep)
	if !ok {
		return true
	}
	info, err := fs.Stat(c.fsys, dep)
	return err != nil || !info.ModTime().Equal(recorded)
}

// Set stores prog. Programs whose names were computed from render data are
// not stored.
func (c *ParseCache) Set(name, source string, prog *template.Program) {
	if !prog.Cacheable {
		return
	}
	c.HashCache.Set(name, source, prog)
}

// Dependents returns the cached names that are path or depend on it.
func (c *ParseCache) Dependents(path string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for name, prog := range c.data {
		if name == path || slices.Contains(prog.Dependencies, path) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// Set bundles the caches of one engine.
type Set struct {
	Load      *LoaderCache
	Prerender *HashCache[string]
	Parse     *ParseCache
}

// New returns the caches for templates read from fsys.
func New(fsys fs.FS, reload bool) *Set {
	load := NewLoaderCache(fsys, reload)
	return &Set{
		Load:      load,
		Prerender: NewHashCache[string](reload),
		Parse:     NewParseCache(fsys, load, reload),
	}
}

// Invalidate drops path and every program depending on it. It returns the
// dropped program names.
func (s *Set) Invalidate(path string) []string {
	s.Load.Invalidate(path)
	s.Prerender.Invalidate(path)
	names := s.Parse.Dependents(path)
	for _, name := range names {
		s.Parse.Invalidate(name)
	}
	return names
}
