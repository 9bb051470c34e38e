package starlark

import (
	"fmt"
	"io"
	"strings"

	"go.starlark.net/starlark"
)

// Mode selects how escape() treats its argument.
type Mode string

const (
	ModeHTML  Mode = "html"
	ModePlain Mode = "plain"
)

// Escape selects the html escaping policy.
type Escape string

const (
	// EscapeCommon replaces & < > " and '.
	EscapeCommon Escape = "common"
	// EscapeAll also replaces every non-ASCII character with a numeric
	// character reference.
	EscapeAll Escape = "all"
)

var htmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeHTML escapes s according to the policy.
func EscapeHTML(s string, policy Escape) string {
	s = htmlReplacer.Replace(s)
	if policy != EscapeAll {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x80 {
			b.WriteRune(r)
			continue
		}
		fmt.Fprintf(&b, "&#%d;", r)
	}
	return b.String()
}

// Markup is a string that escape() writes verbatim.
type Markup string

var _ starlark.Value = Markup("")

func (m Markup) String() string        { return string(m) }
func (m Markup) Type() string          { return "markup" }
func (m Markup) Freeze()               {}
func (m Markup) Truth() starlark.Bool  { return len(m) > 0 }
func (m Markup) Hash() (uint32, error) { return starlark.String(m).Hash() }

func markupBuiltin(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	return Markup(text(v)), nil
}

// text is the str() form of v, without quotes for strings.
func text(v starlark.Value) string {
	switch t := v.(type) {
	case starlark.String:
		return string(t)
	case Markup:
		return string(t)
	}
	return v.String()
}

// Writer is the output sink of a running program. It exposes write and
// escape to the program.
type Writer struct {
	w      io.Writer
	mode   Mode
	escape Escape
	err    error
}

var _ starlark.HasAttrs = (*Writer)(nil)

// NewWriter returns a sink writing to w.
func NewWriter(w io.Writer, mode Mode, escape Escape) *Writer {
	if mode == "" {
		mode = ModeHTML
	}
	if escape == "" {
		escape = EscapeCommon
	}
	return &Writer{w: w, mode: mode, escape: escape}
}

func (w *Writer) String() string        { return "<writer>" }
func (w *Writer) Type() string          { return "writer" }
func (w *Writer) Freeze()               {}
func (w *Writer) Truth() starlark.Bool  { return starlark.True }
func (w *Writer) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: writer") }

func (w *Writer) AttrNames() []string { return []string{"escape", "write"} }

func (w *Writer) Attr(name string) (starlark.Value, error) {
	switch name {
	case "write":
		return starlark.NewBuiltin("write", func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var v starlark.Value
			if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &v); err != nil {
				return nil, err
			}
			return starlark.None, w.Write(v)
		}), nil
	case "escape":
		return starlark.NewBuiltin("escape", func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var v starlark.Value
			if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &v); err != nil {
				return nil, err
			}
			return starlark.None, w.Escape(v)
		}), nil
	}
	return nil, nil
}

// Write writes the str() form of v.
func (w *Writer) Write(v starlark.Value) error {
	return w.put(text(v))
}

// Escape writes v escaped for the writer's mode. Markup values and plain
// mode output are written as is.
func (w *Writer) Escape(v starlark.Value) error {
	if _, ok := v.(Markup); ok || w.mode == ModePlain {
		return w.Write(v)
	}
	return w.put(EscapeHTML(text(v), w.escape))
}

func (w *Writer) put(s string) error {
	if w.err != nil {
		return w.err
	}
	if _, err := io.WriteString(w.w, s); err != nil {
		w.err = fmt.Errorf("writing output: %w", err)
	}
	return w.err
}
