package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/neurodesk/stencil/pkg/template"
)

// Disk is a persistent store of compiled programs. Entries are keyed by the
// template name and the hash of its source, and carry the hashes of the
// dependencies they were compiled against.
type Disk struct {
	Dir string
}

// NewDisk returns a store rooted at dir.
func NewDisk(dir string) *Disk {
	return &Disk{Dir: dir}
}

type entry struct {
	Name    string            `json:"name"`
	Hash    string            `json:"hash"`
	Deps    map[string]string `json:"deps,omitempty"`
	Program *template.Program `json:"program"`
}

// SourceFunc reads the current source of a dependency.
type SourceFunc func(path string) (string, error)

// Get returns the stored program for name when source and every dependency
// still hash the same as when it was stored.
func (d *Disk) Get(name, source string, read SourceFunc) (*template.Program, bool) {
	path := d.path(name, source)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var e entry
	if err := json.Unmarshal(b, &e); err != nil || e.Program == nil || e.Name != name {
		d.logf("discarding unreadable entry", "path", path)
		return nil, false
	}
	for dep, hashed := range e.Deps {
		src, err := read(dep)
		if err != nil || Hash(src) != hashed {
			d.logf("stale entry", "template", name, "dependency", dep)
			return nil, false
		}
	}
	d.logf("hit", "template", name)
	return e.Program, true
}

// Put stores prog. Programs that are not cacheable are skipped.
func (d *Disk) Put(name, source string, prog *template.Program, read SourceFunc) error {
	if !prog.Cacheable {
		return nil
	}
	e := entry{Name: name, Hash: Hash(source), Program: prog}
	if len(prog.Dependencies) > 0 {
		e.Deps = make(map[string]string, len(prog.Dependencies))
		for _, dep := range prog.Dependencies {
			src, err := read(dep)
			if err != nil {
				return fmt.Errorf("hashing dependency %s: %w", dep, err)
			}
			e.Deps[dep] = Hash(src)
		}
	}
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(d.path(name, source), b)
}

// Clear removes every stored entry.
func (d *Disk) Clear() error {
	entries, err := os.ReadDir(d.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, de := range entries {
		if !de.IsDir() && strings.HasSuffix(de.Name(), ".json") {
			if err := os.Remove(filepath.Join(d.Dir, de.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Disk) path(name, source string) string {
	return filepath.Join(d.Dir, hash(name+"\x00"+Hash(source))+".json")
}

func (d *Disk) logf(msg string, args ...any) {
	if verboseEnabled() {
		slog.Info("disk cache: "+msg, args...)
		return
	}
	slog.Debug("disk cache: "+msg, args...)
}

func writeFile(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	_, err = f.Write(b)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// verboseEnabled reports whether verbose output is enabled.
// It is controlled by the environment variable STENCIL_VERBOSE.
func verboseEnabled() bool {
	v := os.Getenv("STENCIL_VERBOSE")
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
