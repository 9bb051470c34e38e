package template

import (
	"bytes"
	"fmt"
)

type Visitor interface {
	Visit(n Node) error
}

// VisitorFunc adapts a function to the Visitor interface.
type VisitorFunc func(n Node) error

func (f VisitorFunc) Visit(n Node) error { return f(n) }

// Walk visits n and, for groups that are not evicted, every child in order.
func Walk(v Visitor, n Node) error {
	if err := v.Visit(n); err != nil {
		return err
	}
	if g, ok := n.(*Group); ok && !g.Evicted {
		for _, c := range g.Children {
			if err := Walk(v, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// Pretty returns a line-oriented dump of the content tree, evicted groups
// included.
func Pretty(n Node) string {
	if g, ok := n.(*Group); n == nil || (ok && g == nil) {
		return "<no tree>\n"
	}
	var buf bytes.Buffer
	ppNode(&buf, 0, n)
	return buf.String()
}

func ppNode(buf *bytes.Buffer, indent int, n Node) {
	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}
	switch t := n.(type) {
	case *Group:
		fmt.Fprintf(buf, "Group(%s indent=%d", t.Name, t.Indent)
		if t.Evicted {
			buf.WriteString(" evicted")
		}
		buf.WriteString(")\n")
		for _, c := range t.Children {
			ppNode(buf, indent+2, c)
		}
	case *Literal:
		fmt.Fprintf(buf, "Literal(%q indent=%d) %s:%d\n", t.Text(), t.Indent, t.Pos.Source, t.Pos.Start)
	case *Output:
		fmt.Fprintf(buf, "Output(%q escape=%t) %s:%d\n", t.Expr, t.Escape, t.Pos.Source, t.Pos.Start)
	case *Statement:
		fmt.Fprintf(buf, "Statement(%q) %s:%d\n", t.Text, t.Pos.Source, t.Pos.Start)
	default:
		fmt.Fprintf(buf, "%T\n", n)
	}
}
