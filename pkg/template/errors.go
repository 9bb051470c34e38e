package template

import (
	"fmt"
	"strings"
)

// Located is implemented by every compile error so callers can report the
// template file and line that produced it.
type Located interface {
	error
	Location() (file string, line int)
}

// MissingError reports a template file that could not be resolved or read.
// File and Line point at the directive that asked for it, when there is one.
type MissingError struct {
	Path string
	File string
	Line int
}

func (e *MissingError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("template %s not found", e.Path)
	}
	return fmt.Sprintf("%s:%d: template %s not found", e.File, e.Line, e.Path)
}

func (e *MissingError) Location() (string, int) {
	if e.File == "" {
		return e.Path, 0
	}
	return e.File, e.Line
}

// SyntaxError reports a malformed directive, an unterminated scope or an
// unbalanced statement nesting.
type SyntaxError struct {
	Message string
	File    string
	Line    int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
}

func (e *SyntaxError) Location() (string, int) { return e.File, e.Line }

// CompileError reports a structural inconsistency, such as a super call
// targeting a block that no ancestor declares. Err is set when a computed
// template name could not be evaluated.
type CompileError struct {
	Message string
	File    string
	Line    int
	Err     error
}

func (e *CompileError) Unwrap() error { return e.Err }

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
}

func (e *CompileError) Location() (string, int) { return e.File, e.Line }

// CycleError reports an include or extend chain that loads a file which is
// already being loaded.
type CycleError struct {
	Chain []string
	File  string
	Line  int
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s:%d: include cycle detected: %s", e.File, e.Line, strings.Join(e.Chain, " -> "))
}

func (e *CycleError) Location() (string, int) { return e.File, e.Line }

var (
	_ Located = (*MissingError)(nil)
	_ Located = (*SyntaxError)(nil)
	_ Located = (*CompileError)(nil)
	_ Located = (*CycleError)(nil)
)
