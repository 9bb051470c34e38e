package starlark

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strings"

	"github.com/neurodesk/stencil/pkg/template"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Options configure an Evaluator.
type Options struct {
	Mode   Mode
	Escape Escape
	// Writer is the name the program uses for its output sink.
	Writer string
	// Builtins are predeclared in every program next to markup.
	Builtins starlark.StringDict
	// MaxSteps bounds the computation of one render. Zero means no limit.
	MaxSteps uint64
}

// fileOptions allow the statement forms templates rely on: control flow at
// the top level and rebinding names across regions.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Evaluator executes compiled template programs.
type Evaluator struct {
	opts     Options
	builtins starlark.StringDict
}

// NewEvaluator creates a new evaluator.
func NewEvaluator(opts Options) *Evaluator {
	if opts.Writer == "" {
		opts.Writer = template.DefaultWriter
	}
	builtins := starlark.StringDict{
		"markup": starlark.NewBuiltin("markup", markupBuiltin),
	}
	maps.Copy(builtins, opts.Builtins)
	return &Evaluator{opts: opts, builtins: builtins}
}

func (e *Evaluator) newThread(name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			slog.Debug("template print", "template", name, "msg", msg)
		},
	}
	if e.opts.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(e.opts.MaxSteps)
	}
	return thread
}

func (e *Evaluator) predeclared(data map[string]any) starlark.StringDict {
	predeclared := make(starlark.StringDict, len(e.builtins)+len(data)+1)
	maps.Copy(predeclared, e.builtins)
	maps.Copy(predeclared, WrapContext(data))
	return predeclared
}

// ExecTo runs prog with data as its globals and writes the output to w.
// Errors raised by the program carry the template file and line that
// produced the failing statement.
func (e *Evaluator) ExecTo(ctx context.Context, w io.Writer, prog *template.Program, data map[string]any) error {
	thread := e.newThread(prog.Name)
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	sink := NewWriter(w, e.opts.Mode, e.opts.Escape)
	predeclared := e.predeclared(data)
	predeclared[e.opts.Writer] = sink

	if _, err := starlark.ExecFileOptions(fileOptions, thread, prog.Name, prog.Source, predeclared); err != nil {
		if sink.err != nil {
			return sink.err
		}
		return locate(prog, err)
	}
	return nil
}

// Exec runs prog and returns its output.
func (e *Evaluator) Exec(ctx context.Context, prog *template.Program, data map[string]any) (string, error) {
	var b strings.Builder
	if err := e.ExecTo(ctx, &b, prog, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Eval evaluates a single expression against data.
func (e *Evaluator) Eval(expr string, data map[string]any) (any, error) {
	val, err := starlark.Eval(e.newThread("<eval>"), "<eval>", expr, e.predeclared(data))
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", expr, err)
	}
	return ConvertFromStarlark(val), nil
}

// Args returns an evaluator for computed include and extend names, bound to
// the render data.
func (e *Evaluator) Args(data map[string]any) template.ArgEvaluator {
	return &argEvaluator{e: e, globals: e.predeclared(data)}
}

type argEvaluator struct {
	e       *Evaluator
	globals starlark.StringDict
}

func (a *argEvaluator) EvalName(expr string) (string, error) {
	val, err := starlark.Eval(a.e.newThread("<arg>"), "<arg>", expr, a.globals)
	if err != nil {
		return "", fmt.Errorf("evaluating template name %q: %w", expr, err)
	}
	s, ok := starlark.AsString(val)
	if !ok {
		return "", fmt.Errorf("template name %q evaluated to %s, want string", expr, val.Type())
	}
	return s, nil
}
