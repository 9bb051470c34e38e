package template

import (
	"github.com/google/uuid"
)

// LineRange is the span of the element a scope is currently processing.
type LineRange struct {
	Start int
	End   int
}

// Settings are scope-local options. A child scope starts from a copy of its
// parent's settings; the record is never shared.
type Settings struct {
	// Isolated scopes have their own region and line numbering and do not
	// publish their block names to the parent.
	Isolated bool
	// Block marks a scope opened by the block directive.
	Block bool
	// ExtendSrc is the id of the extending scope whose content is parsed in
	// this scope, if any.
	ExtendSrc string
}

// Scope is one frame of the parse stack.
type Scope struct {
	ID       string
	Name     string
	Source   string
	InCode   bool
	Lines    LineRange
	Indent   int
	NewLine  bool
	Blocks   map[string]string
	Deps     []string
	Settings Settings

	begin   int
	ended   bool
	file    bool
	queue   *queue
	content []Node
}

// UpdateLines moves the line cursor past an element spanning n newlines.
func (s *Scope) UpdateLines(n int) {
	s.Lines = LineRange{Start: s.Lines.End, End: s.Lines.End + n}
}

func (s *Scope) span() Span {
	return Span{Source: s.Source, Start: s.Lines.Start, End: s.Lines.End}
}

// PushOptions configure a child scope. A nil Region makes the child continue
// its parent (alternating region, shared line cursor); a non-nil Region makes
// it isolated.
type PushOptions struct {
	Elements  []*Element
	Region    *bool
	Source    string
	LineStart int
	Block     bool
	ExtendSrc string

	q *queue
}

// Push suspends the current scope and makes a new child scope current.
func (p *Parser) Push(name string, o PushOptions) *Scope {
	parent := p.scope
	s := &Scope{
		ID:       uuid.NewString(),
		Name:     name,
		Source:   parent.Source,
		NewLine:  true,
		Blocks:   map[string]string{},
		Settings: parent.Settings,
		queue:    parent.queue,
	}
	switch {
	case o.q != nil:
		s.queue = o.q
	case o.Elements != nil:
		s.queue = &queue{items: o.Elements}
	}
	if o.Source != "" {
		s.Source = o.Source
	}
	s.Settings.Block = o.Block
	if o.ExtendSrc != "" {
		s.Settings.ExtendSrc = o.ExtendSrc
	}
	start := o.LineStart
	if o.Region == nil {
		parent.InCode = !parent.InCode
		s.InCode = parent.InCode
		s.Settings.Isolated = false
		if start == 0 {
			start = parent.Lines.End
		}
	} else {
		s.InCode = *o.Region
		s.Settings.Isolated = true
		if start == 0 {
			start = 1
		}
	}
	s.Lines = LineRange{Start: start, End: start}
	s.begin = start
	p.stack = append(p.stack, parent)
	p.scope = s
	return s
}

// Pop closes the current scope and attaches its content to the parent as a
// group, which is returned.
func (p *Parser) Pop() *Group {
	child := p.scope
	child.InCode = !child.InCode
	parent := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	p.scope = parent

	g := &Group{ID: child.ID, Name: child.Name, Children: child.content, Indent: parent.Indent}
	parent.content = append(parent.content, g)
	p.groups[child.ID] = g

	if !child.Settings.Isolated {
		parent.InCode = child.InCode
		parent.Lines = LineRange{Start: child.Lines.End, End: child.Lines.End}
		for name, id := range child.Blocks {
			parent.Blocks[name] = id
		}
	}
	if child.Settings.Block {
		parent.Blocks[child.Name] = child.ID
	}
	parent.Deps = append(parent.Deps, child.Deps...)
	if child.file {
		p.loading = p.loading[:len(p.loading)-1]
	}
	return g
}

// End stops the current scope: the rest of the shared element queue is left
// to the parent.
func (p *Parser) End() error {
	s := p.scope
	if s.Settings.Isolated {
		return p.syntaxErrorf("end without an open block")
	}
	s.queue = &queue{}
	s.ended = true
	return nil
}

// Scope returns the current scope.
func (p *Parser) Scope() *Scope { return p.scope }

// Literal appends literal text to the current scope.
func (p *Parser) Literal(value string) {
	s := p.scope
	p.appendNode(&Literal{Value: value, Indent: s.Indent, LineStart: p.lineStart(), Pos: s.span()})
}

// Output appends an expression whose value is written to the output.
func (p *Parser) Output(expr string, escape bool) {
	s := p.scope
	p.appendNode(&Output{Expr: expr, Escape: escape, Indent: s.Indent, LineStart: p.lineStart(), Pos: s.span()})
}

// Statement appends an opaque host-language line.
func (p *Parser) Statement(text string) {
	p.appendNode(&Statement{Text: text, Pos: p.scope.span()})
}

// Group appends an empty group that can be filled later and registers it in
// the indirection table.
func (p *Parser) Group() *Group {
	g := &Group{ID: uuid.NewString(), Indent: p.scope.Indent}
	p.groups[g.ID] = g
	p.appendNode(g)
	return g
}

// Lookup resolves a group id through the indirection table.
func (p *Parser) Lookup(id string) (*Group, bool) {
	g, ok := p.groups[id]
	return g, ok
}

func (p *Parser) appendNode(n Node) {
	p.scope.content = append(p.scope.content, n)
}

// lineStart reports whether the next node starts an output line. It only
// matters when indentation is adjusted.
func (p *Parser) lineStart() bool {
	if !p.opts.AdjustIndent {
		return false
	}
	s := p.scope
	ls := s.NewLine
	s.NewLine = false
	return ls
}
