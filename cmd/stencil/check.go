package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/neurodesk/stencil/pkg/engine"
	"github.com/neurodesk/stencil/pkg/template"
)

// check compiles every template with one of exts and reports each failure
// on w. Templates whose names depend on render data are skipped.
func check(e *engine.Engine, exts []string, w io.Writer) (int, error) {
	names, err := e.Templates(exts...)
	if err != nil {
		return 0, fmt.Errorf("listing templates: %w", err)
	}
	failed := 0
	for _, name := range names {
		_, err := e.Compile(name, nil)
		if err == nil {
			continue
		}
		var ce *template.CompileError
		if errors.As(err, &ce) && ce.Err != nil {
			slog.Debug("skipping template with computed names", "template", name)
			continue
		}
		var located template.Located
		if !errors.As(err, &located) {
			return failed, err
		}
		failed++
		fmt.Fprintln(w, located.Error())
	}
	slog.Debug("checked templates", "templates", len(names), "failed", failed)
	return failed, nil
}
