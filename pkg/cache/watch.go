package cache

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to template files under a directory tree.
type Watcher struct {
	watcher    *fsnotify.Watcher
	root       string
	extensions []string
	onChange   func(path string)
}

// NewWatcher watches root recursively. onChange receives the slash
// separated path of every changed template relative to root. With no
// extensions every file is a template.
func NewWatcher(root string, extensions []string, onChange func(path string)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:    watcher,
		root:       root,
		extensions: extensions,
		onChange:   onChange,
	}
	if err := w.addRecursive(root); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// Run delivers events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				slog.Warn("watching new directory", "path", event.Name, "error", err)
			}
			return
		}
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Create) {
		return
	}
	if !w.isTemplate(event.Name) {
		return
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		slog.Warn("watcher event outside root", "path", event.Name)
		return
	}
	slog.Debug("template changed", "path", rel, "op", event.Op.String())
	w.onChange(filepath.ToSlash(rel))
}

func (w *Watcher) isTemplate(name string) bool {
	return len(w.extensions) == 0 || slices.Contains(w.extensions, filepath.Ext(name))
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
