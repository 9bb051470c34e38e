package engine

import (
	"io/fs"
	"os"
	"path/filepath"
)

// HybridFS implements fs.FS and tries to open files from disk first (relative to baseDir),
// then falls back to an embedded fs.FS if provided.
type HybridFS struct {
	baseDir  string
	embedded fs.FS
}

// NewHybridFS creates a HybridFS rooted at baseDir. If embedded is nil, it behaves like disk FS.
func NewHybridFS(baseDir string, embedded fs.FS) *HybridFS {
	return &HybridFS{baseDir: baseDir, embedded: embedded}
}

// Open tries disk first, then embedded. Names escaping the root are rejected.
func (h *HybridFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	diskPath := filepath.Join(h.baseDir, filepath.FromSlash(name))
	f, err := os.Open(diskPath)
	if err == nil {
		return f, nil
	}
	if h.embedded != nil {
		return h.embedded.Open(name)
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}
