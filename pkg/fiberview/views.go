package fiberview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/neurodesk/stencil/pkg/engine"
	sl "github.com/neurodesk/stencil/pkg/starlark"
	"github.com/neurodesk/stencil/pkg/template"
)

// EmbedKey is the name under which a layout receives the rendered page.
const EmbedKey = "embed"

// Views implements fiber.Views by delegating to an Engine.
type Views struct {
	Engine *engine.Engine
	// Extension is appended to view names that have none.
	Extension string
}

var _ fiber.Views = (*Views)(nil)

// New returns views rendering templates with the given file extension.
func New(e *engine.Engine, extension string) *Views {
	return &Views{Engine: e, Extension: extension}
}

func (v *Views) name(name string) string {
	name = strings.TrimPrefix(name, "/")
	if v.Extension != "" && path.Ext(name) == "" {
		name += v.Extension
	}
	return name
}

// Load compiles every template under the root. Templates that need render
// data to resolve their includes are skipped with a warning.
func (v *Views) Load() error {
	var exts []string
	if v.Extension != "" {
		exts = append(exts, v.Extension)
	}
	names, err := v.Engine.Templates(exts...)
	if err != nil {
		return fmt.Errorf("listing templates: %w", err)
	}
	var errs []error
	for _, name := range names {
		if _, err := v.Engine.Compile(name, nil); err != nil {
			var ce *template.CompileError
			if errors.As(err, &ce) && ce.Err != nil {
				slog.Warn("template needs render data to compile", "template", name, "error", err)
				continue
			}
			errs = append(errs, err)
		}
	}
	slog.Debug("views loaded", "templates", len(names), "errors", len(errs))
	return errors.Join(errs...)
}

// Render renders the view name with binding. When a layout is given, it is
// rendered afterwards with the page available as embed.
func (v *Views) Render(w io.Writer, name string, binding interface{}, layout ...string) error {
	data := bindingData(binding)
	if len(layout) == 0 || layout[0] == "" {
		return v.Engine.RenderTo(context.Background(), w, v.name(name), data)
	}
	var page strings.Builder
	if err := v.Engine.RenderTo(context.Background(), &page, v.name(name), data); err != nil {
		return err
	}
	withPage := make(map[string]any, len(data)+1)
	for k, val := range data {
		withPage[k] = val
	}
	withPage[EmbedKey] = sl.Markup(page.String())
	return v.Engine.RenderTo(context.Background(), w, v.name(layout[0]), withPage)
}

func bindingData(binding interface{}) map[string]any {
	switch b := binding.(type) {
	case nil:
		return nil
	case map[string]any:
		return b
	case fiber.Map:
		return b
	case map[string]string:
		m := make(map[string]any, len(b))
		for k, val := range b {
			m[k] = val
		}
		return m
	default:
		return map[string]any{"data": b}
	}
}

// Handler renders the view named by the request path, with the query
// parameters as data. The root path renders index.
func (v *Views) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		name := strings.TrimPrefix(c.Path(), "/")
		if name == "" || strings.HasSuffix(name, "/") {
			name += "index"
		}
		data := make(map[string]any)
		c.Context().QueryArgs().VisitAll(func(k, val []byte) {
			data[string(k)] = string(val)
		})
		var b strings.Builder
		if err := v.Render(&b, name, data); err != nil {
			return statusError(err)
		}
		c.Type("html", "utf-8")
		return c.SendString(b.String())
	}
}

func statusError(err error) error {
	var me *template.MissingError
	if errors.As(err, &me) && me.File == "" {
		return fiber.NewError(fiber.StatusNotFound, me.Error())
	}
	slog.Error("rendering view", "error", err)
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
