package template

// Span is the provenance of a node: the file it came from and the line range
// of the element that produced it.
type Span struct {
	Source string
	Start  int
	End    int
}

// Node is any node of the content tree built by the parser.
type Node interface {
	node()
	IncrementIndent(n int)
	ChangeIndent(n int)
	Span() Span
}

// Literal is text written to the output as is. Literals created from a plain
// element read the element text when the program is built, so a tag stripping
// its line after the literal was parsed is still honored.
type Literal struct {
	Value     string
	Indent    int
	LineStart bool
	Pos       Span

	elem *Element
}

func (*Literal) node() {}

// Text returns the literal text without indentation.
func (l *Literal) Text() string {
	if l.elem != nil {
		return l.elem.Text
	}
	return l.Value
}

func (l *Literal) IncrementIndent(n int) { l.Indent += n }
func (l *Literal) ChangeIndent(n int)    { l.Indent = n }
func (l *Literal) Span() Span            { return l.Pos }

// Output is an expression whose value is written, escaped or not.
type Output struct {
	Expr      string
	Escape    bool
	Indent    int
	LineStart bool
	Pos       Span
}

func (*Output) node() {}

func (o *Output) IncrementIndent(n int) { o.Indent += n }
func (o *Output) ChangeIndent(n int)    { o.Indent = n }
func (o *Output) Span() Span            { return o.Pos }

// Statement is an opaque line of the host language. Its nesting is recovered
// by the reindentation pass, so it carries no indent.
type Statement struct {
	Text string
	Pos  Span
}

func (*Statement) node() {}

func (s *Statement) IncrementIndent(int) {}
func (s *Statement) ChangeIndent(int)    {}
func (s *Statement) Span() Span          { return s.Pos }

// Group is the content of one scope. An evicted group produces no output but
// stays addressable through its id.
type Group struct {
	ID       string
	Name     string
	Children []Node
	Indent   int
	Evicted  bool
}

func (*Group) node() {}

// IncrementChildrenIndent shifts every child by n without touching the
// group's own indent.
func (g *Group) IncrementChildrenIndent(n int) {
	for _, c := range g.Children {
		c.IncrementIndent(n)
	}
}

func (g *Group) IncrementIndent(n int) {
	g.IncrementChildrenIndent(n)
	g.Indent += n
}

func (g *Group) ChangeIndent(n int) {
	g.IncrementChildrenIndent(n - g.Indent)
	g.Indent = n
}

// Evict marks the group as empty. Its children are dropped from the output
// but the group itself remains in the tree and in the indirection table.
func (g *Group) Evict() { g.Evicted = true }

func (g *Group) Span() Span {
	for _, c := range g.Children {
		if s := c.Span(); s.Source != "" {
			return s
		}
	}
	return Span{}
}
