package engine

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/neurodesk/stencil/pkg/template"
	"go.starlark.net/starlark"
)

// Extension is the base interface of engine extensions. An extension adds
// behavior by also implementing any of the interfaces below.
type Extension interface {
	Namespace() string
}

// FileLoader rewrites the location of templates with a given file
// extension before they are read. Loaders of the same file extension run in
// registration order, each receiving the result of the previous one.
type FileLoader interface {
	Extension
	FileExtension() string
	Load(dir, name string) (string, string)
}

// Prerenderer transforms template sources after they are read and before
// they are compiled.
type Prerenderer interface {
	Extension
	Prerender(source, name string) (string, error)
}

// ContextInjector adds values to the render data.
type ContextInjector interface {
	Extension
	Inject(data map[string]any)
}

// DirectiveProvider registers template directives.
type DirectiveProvider interface {
	Extension
	Directives() template.Registry
}

// BuiltinProvider predeclares functions or values in every program.
type BuiltinProvider interface {
	Extension
	Builtins() starlark.StringDict
}

// Loadable is notified once the extension is registered. env is the
// key/value store shared by extensions of the same namespace.
type Loadable interface {
	Extension
	OnLoad(e *Engine, env map[string]any) error
}

// UseExtension registers ext with every hook it implements. It must not be
// called concurrently with rendering.
func (e *Engine) UseExtension(ext Extension) error {
	ns := ext.Namespace()
	if ns == "" {
		return fmt.Errorf("extension %T has no namespace", ext)
	}
	env, ok := e.envs[ns]
	if !ok {
		env = make(map[string]any)
		e.envs[ns] = env
	}
	if l, ok := ext.(FileLoader); ok {
		fext := l.FileExtension()
		if fext != "" && fext[0] != '.' {
			fext = "." + fext
		}
		e.loaders[fext] = append(e.loaders[fext], l)
	}
	if p, ok := ext.(Prerenderer); ok {
		e.prerenderers = append(e.prerenderers, p)
	}
	if c, ok := ext.(ContextInjector); ok {
		e.injectors = append(e.injectors, c)
	}
	if d, ok := ext.(DirectiveProvider); ok {
		e.directives = e.directives.With(d.Directives())
	}
	if b, ok := ext.(BuiltinProvider); ok {
		for k, v := range b.Builtins() {
			e.builtins[k] = v
		}
	}
	e.extensions = append(e.extensions, ext)
	if l, ok := ext.(Loadable); ok {
		if err := l.OnLoad(e, env); err != nil {
			return fmt.Errorf("loading extension %s: %w", ns, err)
		}
	}
	e.configure()
	slog.Debug("extension loaded", "namespace", ns)
	return nil
}

// Extensions returns the registered extensions in registration order.
func (e *Engine) Extensions() []Extension {
	return e.extensions
}

// AliasExtension is a FileLoader mapping templates with one file extension
// to files with another, for example .htm to .html.
type AliasExtension struct {
	From, To string
}

func (a AliasExtension) Namespace() string     { return "alias" + a.From }
func (a AliasExtension) FileExtension() string { return a.From }

func (a AliasExtension) Load(dir, name string) (string, string) {
	return dir, strings.TrimSuffix(name, a.From) + a.To
}
