package starlark

import (
	"errors"
	"fmt"

	"github.com/neurodesk/stencil/pkg/template"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// RenderError is a failure of a running program, attributed to the template
// line that generated the failing statement.
type RenderError struct {
	File string
	Line int
	Err  error
}

func (e *RenderError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("render: %v", e.Err)
	}
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

func (e *RenderError) Location() (string, int) { return e.File, e.Line }

var _ template.Located = (*RenderError)(nil)

// locate wraps err with the template position of the innermost program
// frame it carries.
func locate(prog *template.Program, err error) error {
	line, msg := programLine(prog.Name, err)
	if line == 0 {
		return &RenderError{File: prog.Name, Err: err}
	}
	ref, ok := prog.Locate(line)
	if !ok {
		return &RenderError{File: prog.Name, Err: err}
	}
	return &RenderError{File: ref.File, Line: ref.Line, Err: msg}
}

func programLine(filename string, err error) (int, error) {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		for i := 0; i < len(evalErr.CallStack); i++ {
			fr := evalErr.CallStack.At(i)
			if fr.Pos.Filename() == filename && fr.Pos.Line > 0 {
				return int(fr.Pos.Line), errors.New(evalErr.Msg)
			}
		}
		return 0, err
	}
	var synErr syntax.Error
	if errors.As(err, &synErr) {
		return int(synErr.Pos.Line), errors.New(synErr.Msg)
	}
	var resErrs resolve.ErrorList
	if errors.As(err, &resErrs) && len(resErrs) > 0 {
		return int(resErrs[0].Pos.Line), errors.New(resErrs[0].Msg)
	}
	return 0, err
}
