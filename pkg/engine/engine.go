package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/neurodesk/stencil/pkg/cache"
	sl "github.com/neurodesk/stencil/pkg/starlark"
	"github.com/neurodesk/stencil/pkg/template"
	"go.starlark.net/starlark"
)

// StringName is the template name of sources rendered with RenderString.
const StringName = "<string>"

// Options configure an Engine.
type Options struct {
	// Path is the template root on disk. It defaults to the working
	// directory and is ignored when FS is set.
	Path string
	// FS overrides the template root.
	FS fs.FS
	// Fallback is consulted for templates missing under Path.
	Fallback fs.FS

	Mode         sl.Mode
	Escape       sl.Escape
	AdjustIndent bool
	// Reload revalidates cached sources and programs on every use.
	Reload bool
	// Debug implies Reload and logs every compiled program.
	Debug      bool
	Delimiters template.Delimiters
	// CacheDir enables the persistent program cache.
	CacheDir string
	// MaxSteps bounds the computation of one render.
	MaxSteps uint64
}

// Engine loads, compiles and renders templates.
type Engine struct {
	opts   Options
	fsys   fs.FS
	caches *cache.Set
	disk   *cache.Disk
	flight cache.Flight[*template.Program]
	eval   *sl.Evaluator

	extensions   []Extension
	envs         map[string]map[string]any
	loaders      map[string][]FileLoader
	prerenderers []Prerenderer
	injectors    []ContextInjector
	directives   template.Registry
	builtins     starlark.StringDict
}

// New creates an engine.
func New(opts Options) *Engine {
	if opts.Debug {
		opts.Reload = true
	}
	fsys := opts.FS
	if fsys == nil {
		root := opts.Path
		if root == "" {
			root = "."
		}
		fsys = NewHybridFS(root, opts.Fallback)
	}
	e := &Engine{
		opts:       opts,
		fsys:       fsys,
		caches:     cache.New(fsys, opts.Reload),
		envs:       make(map[string]map[string]any),
		loaders:    make(map[string][]FileLoader),
		directives: template.DefaultDirectives(),
		builtins:   make(starlark.StringDict),
	}
	if opts.CacheDir != "" {
		e.disk = cache.NewDisk(opts.CacheDir)
	}
	e.configure()
	return e
}

func (e *Engine) configure() {
	e.eval = sl.NewEvaluator(sl.Options{
		Mode:     e.opts.Mode,
		Escape:   e.opts.Escape,
		Builtins: e.builtins,
		MaxSteps: e.opts.MaxSteps,
	})
}

// FS returns the template root.
func (e *Engine) FS() fs.FS { return e.fsys }

// Caches returns the in-memory caches.
func (e *Engine) Caches() *cache.Set { return e.caches }

// Preload resolves the file a template name refers to by running the file
// loaders registered for its file extension.
func (e *Engine) Preload(name string) string {
	dir := "."
	for _, l := range e.loaders[path.Ext(name)] {
		dir, name = l.Load(dir, name)
	}
	return path.Join(dir, name)
}

// Load reads the template file p through the loader cache.
func (e *Engine) Load(p string) (string, error) {
	if src, ok := e.caches.Load.Get(p); ok {
		return src, nil
	}
	b, err := fs.ReadFile(e.fsys, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			return "", &template.MissingError{Path: p}
		}
		return "", fmt.Errorf("reading %s: %w", p, err)
	}
	src := string(b)
	e.caches.Load.Set(p, src)
	return src, nil
}

// Prerender runs the registered prerenderers over source.
func (e *Engine) Prerender(source, name string) (string, error) {
	if out, ok := e.caches.Prerender.Get(name, source); ok {
		return out, nil
	}
	out := source
	for _, p := range e.prerenderers {
		var err error
		out, err = p.Prerender(out, name)
		if err != nil {
			return "", fmt.Errorf("prerendering %s with %s: %w", name, p.Namespace(), err)
		}
	}
	e.caches.Prerender.Set(name, source, out)
	return out, nil
}

// Inject runs the registered context injectors over data.
func (e *Engine) Inject(data map[string]any) {
	for _, c := range e.injectors {
		c.Inject(data)
	}
}

// source reads and prerenders the file p.
func (e *Engine) source(p string) (string, error) {
	src, err := e.Load(p)
	if err != nil {
		return "", err
	}
	return e.Prerender(src, p)
}

type fsLoader struct{ e *Engine }

func (l fsLoader) Load(name, dir string) (string, string, error) {
	file := l.e.Preload(template.Resolve(name, dir))
	src, err := l.e.source(file)
	if err != nil {
		return "", "", err
	}
	return file, src, nil
}

func (e *Engine) templateOptions(data map[string]any) template.Options {
	return template.Options{
		Delimiters:   e.opts.Delimiters,
		Directives:   e.directives,
		Loader:       fsLoader{e},
		Args:         e.eval.Args(data),
		AdjustIndent: e.opts.AdjustIndent,
	}
}

// Compile returns the program of the template name. data is only consulted
// for include and extend names computed at compile time.
func (e *Engine) Compile(name string, data map[string]any) (*template.Program, error) {
	file := e.Preload(name)
	src, err := e.source(file)
	if err != nil {
		return nil, err
	}
	return e.compile(file, src, data)
}

// CompileTree compiles the template name without consulting the program
// caches. Programs read back from the disk cache carry no content tree, so
// callers that need Program.Tree use this instead of Compile.
func (e *Engine) CompileTree(name string, data map[string]any) (*template.Program, error) {
	file := e.Preload(name)
	src, err := e.source(file)
	if err != nil {
		return nil, err
	}
	return template.Compile(file, src, e.templateOptions(data))
}

func (e *Engine) compile(name, source string, data map[string]any) (*template.Program, error) {
	key := name
	if name == StringName {
		// Sources rendered from strings share a name, so they are told apart
		// by content even without reloading.
		key = name + "#" + cache.Hash(source)
	}
	if prog, ok := e.caches.Parse.Get(key, source); ok {
		slog.Debug("parse cache hit", "template", name)
		return prog, nil
	}
	prog, shared, err := e.flight.Do(key+"\x00"+cache.Hash(source), func() (*template.Program, error) {
		return e.build(name, key, source, data)
	})
	if err != nil {
		return nil, err
	}
	if shared && !prog.Cacheable {
		// Another caller's data decided the included names.
		return e.build(name, key, source, data)
	}
	return prog, nil
}

func (e *Engine) build(name, key, source string, data map[string]any) (*template.Program, error) {
	if e.disk != nil {
		if prog, ok := e.disk.Get(name, source, e.source); ok {
			e.caches.Parse.Set(key, source, prog)
			return prog, nil
		}
	}
	start := time.Now()
	prog, err := template.Compile(name, source, e.templateOptions(data))
	if err != nil {
		return nil, err
	}
	slog.Debug("compiled template", "template", name, "lines", len(prog.Lines), "elapsed", time.Since(start))
	if e.opts.Debug {
		slog.Debug("program", "template", name, "source", prog.Source)
	}
	e.caches.Parse.Set(key, source, prog)
	if e.disk != nil {
		if err := e.disk.Put(name, source, prog, e.source); err != nil {
			slog.Warn("writing program cache", "template", name, "error", err)
		}
	}
	return prog, nil
}

// RenderTo renders the template name with data into w.
func (e *Engine) RenderTo(ctx context.Context, w io.Writer, name string, data map[string]any) error {
	prog, err := e.Compile(name, data)
	if err != nil {
		return err
	}
	return e.exec(ctx, w, prog, data)
}

// Render renders the template name with data.
func (e *Engine) Render(name string, data map[string]any) (string, error) {
	var b strings.Builder
	if err := e.RenderTo(context.Background(), &b, name, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// RenderString renders source as a template named StringName. Includes and
// extends resolve against the template root.
func (e *Engine) RenderString(source string, data map[string]any) (string, error) {
	prog, err := e.compile(StringName, source, data)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := e.exec(context.Background(), &b, prog, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (e *Engine) exec(ctx context.Context, w io.Writer, prog *template.Program, data map[string]any) error {
	data = maps.Clone(data)
	if data == nil {
		data = make(map[string]any)
	}
	e.Inject(data)
	return e.eval.ExecTo(ctx, w, prog, data)
}

// Templates lists the files under the template root whose extension is one
// of exts, or every file when exts is empty.
func (e *Engine) Templates(exts ...string) ([]string, error) {
	var out []string
	err := fs.WalkDir(e.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if len(exts) == 0 || slices.Contains(exts, path.Ext(p)) {
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

// Invalidate drops the cached state of the template file p and every
// program including or extending it.
func (e *Engine) Invalidate(p string) {
	names := e.caches.Invalidate(p)
	slog.Debug("invalidated template", "path", p, "programs", names)
}

// Watch invalidates changed templates until ctx is done. It needs a disk
// template root.
func (e *Engine) Watch(ctx context.Context, exts ...string) error {
	if e.opts.FS != nil {
		return errors.New("watching needs a template path on disk")
	}
	root := e.opts.Path
	if root == "" {
		root = "."
	}
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("watching templates: %w", err)
	}
	w, err := cache.NewWatcher(root, exts, e.Invalidate)
	if err != nil {
		return fmt.Errorf("watching templates: %w", err)
	}
	defer w.Close()
	w.Run(ctx)
	return nil
}
