package template

import (
	"slices"
	"strings"

	"go.starlark.net/syntax"
)

// Options configure a compile.
type Options struct {
	Delimiters Delimiters
	Directives Registry
	Loader     Loader
	Args       ArgEvaluator
	// AdjustIndent moves the leading spaces of literal lines into node
	// indents, so relocated blocks and included files follow the indentation
	// of the place they end up in.
	AdjustIndent bool
	// Writer is the name of the output sink in the generated program.
	Writer string
}

// DefaultWriter is the sink name used when Options.Writer is empty.
const DefaultWriter = "_out"

// ArgEvaluator evaluates a non-literal include or extend argument to a
// template name.
type ArgEvaluator interface {
	EvalName(expr string) (string, error)
}

// Reference is the template position a program line was generated from.
type Reference struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// Program is the compiled form of a template: host language source with one
// reference per source line.
type Program struct {
	Name         string      `json:"name"`
	Source       string      `json:"source"`
	Lines        []Reference `json:"lines"`
	Dependencies []string    `json:"dependencies"`
	Cacheable    bool        `json:"cacheable"`

	Tree *Group `json:"-"`
}

// Locate maps a 1-based program line to the template position that produced
// it.
func (p *Program) Locate(line int) (Reference, bool) {
	if line < 1 || line > len(p.Lines) {
		return Reference{}, false
	}
	return p.Lines[line-1], true
}

// Unit is one parsed template with every include and extend resolved.
type Unit struct {
	Name         string
	Root         *Group
	Blocks       map[string]string
	Dependencies []string
	// Cacheable is false when a template name was computed from render data.
	Cacheable bool

	opts Options
}

// Parse builds the content tree of the template name with the given source.
func Parse(name, source string, opts Options) (*Unit, error) {
	p := newParser(name, source, opts)
	if err := p.Parse(); err != nil {
		return nil, err
	}
	root := p.scope
	deps := slices.Clone(root.Deps)
	slices.Sort(deps)
	return &Unit{
		Name:         name,
		Root:         &Group{ID: root.ID, Name: name, Children: root.content},
		Blocks:       p.effectiveBlocks(root),
		Dependencies: slices.Compact(deps),
		Cacheable:    !p.dynamic,
		opts:         p.opts,
	}, nil
}

// Lines flattens the tree into unindented program lines.
func (u *Unit) Lines() []Line {
	writer := u.opts.Writer
	if writer == "" {
		writer = DefaultWriter
	}
	var out []Line
	emit := func(text string, s Span) {
		out = append(out, Line{Text: text, Ref: Reference{File: s.Source, Line: s.Start}})
	}
	_ = Walk(VisitorFunc(func(n Node) error {
		switch t := n.(type) {
		case *Literal:
			text := t.Text()
			if text == "" {
				return nil
			}
			if u.opts.AdjustIndent && t.LineStart && t.Indent > 0 && text != "\n" {
				text = strings.Repeat(" ", t.Indent) + text
			}
			emit(writer+".write("+syntax.Quote(text, false)+")", t.Pos)
		case *Output:
			if u.opts.AdjustIndent && t.LineStart && t.Indent > 0 {
				emit(writer+".write("+syntax.Quote(strings.Repeat(" ", t.Indent), false)+")", t.Pos)
			}
			method := "write"
			if t.Escape {
				method = "escape"
			}
			emit(writer+"."+method+"("+t.Expr+")", t.Pos)
		case *Statement:
			emit(t.Text, t.Pos)
		}
		return nil
	}), u.Root)
	return out
}

// Program linearizes and reindents the unit.
func (u *Unit) Program() (*Program, error) {
	lines, err := Reindent(u.Lines())
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	refs := make([]Reference, len(lines))
	for i, l := range lines {
		b.WriteString(l.Text)
		b.WriteByte('\n')
		refs[i] = l.Ref
	}
	return &Program{
		Name:         u.Name,
		Source:       b.String(),
		Lines:        refs,
		Dependencies: u.Dependencies,
		Cacheable:    u.Cacheable,
		Tree:         u.Root,
	}, nil
}

// Compile parses source and returns its program.
func Compile(name, source string, opts Options) (*Program, error) {
	u, err := Parse(name, source, opts)
	if err != nil {
		return nil, err
	}
	return u.Program()
}
