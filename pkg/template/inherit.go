package template

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
)

func superDirective(p *Parser, arg string) error {
	s := p.scope
	target := arg
	if target == "" {
		if !s.Settings.Block {
			return p.syntaxErrorf("super outside of a block requires a block name")
		}
		target = s.Name
	}
	inj, ok := p.injections[s.Settings.ExtendSrc]
	if !ok {
		return p.compileErrorf("super used in a template that does not extend another")
	}
	g := p.Group()
	inj[target] = append(inj[target], injection{group: g, pos: s.span()})
	return nil
}

func includeDirective(p *Parser, arg string) error {
	indent := p.scope.Indent
	if arg == "" {
		return includeExtending(p, indent)
	}
	if _, err := p.Load(arg); err != nil {
		return err
	}
	if err := p.Parse(); err != nil {
		return err
	}
	p.Pop().IncrementChildrenIndent(indent)
	return nil
}

// includeExtending parses the rest of the template extending the current one
// at the position of a bare include.
func includeExtending(p *Parser, indent int) error {
	src, ok := p.extendMap[p.scope.Source]
	if !ok {
		return p.compileErrorf("include without a name in a template that is not extended")
	}
	if !p.implicit[src.ID] {
		return p.compileErrorf("%s is already included", src.Source)
	}
	p.StripLine()
	g, err := p.insertExtending(src, "__include__")
	if err != nil {
		return err
	}
	delete(p.implicit, src.ID)
	g.IncrementChildrenIndent(indent)
	return nil
}

// insertExtending parses the remaining elements of src in an isolated scope
// under the current one. The blocks it declares are recorded for the extend
// that src started.
func (p *Parser) insertExtending(src *Scope, name string) (*Group, error) {
	region := !src.InCode
	s := p.Push(name, PushOptions{
		q:         src.queue,
		Region:    &region,
		Source:    src.Source,
		LineStart: src.Lines.End,
		ExtendSrc: src.ID,
	})
	if err := p.Parse(); err != nil {
		return nil, err
	}
	maps.Copy(p.blocksMap[src.ID], s.Blocks)
	src.Lines = LineRange{Start: s.Lines.End, End: s.Lines.End}
	return p.Pop(), nil
}

func extendDirective(p *Parser, arg string) error {
	child := p.scope
	if _, ok := p.blocksMap[child.ID]; ok || child.Settings.ExtendSrc != "" {
		return p.syntaxErrorf("template already extends another")
	}
	parent, err := p.Load(arg)
	if err != nil {
		return err
	}
	p.blocksMap[child.ID] = map[string]string{}
	p.extendMap[parent.Source] = child
	p.implicit[child.ID] = true
	p.injections[child.ID] = map[string][]injection{}
	if err := p.Parse(); err != nil {
		return err
	}
	if p.implicit[child.ID] {
		g, err := p.insertExtending(child, "__implicit__")
		if err != nil {
			return err
		}
		g.Evict()
		delete(p.implicit, child.ID)
	}

	pBlocks := p.effectiveBlocks(parent)
	if err := p.injectSupers(child, pBlocks); err != nil {
		return err
	}
	chBlocks := maps.Clone(child.Blocks)
	maps.Copy(chBlocks, p.blocksMap[child.ID])
	p.replaceBlocks(parent, pBlocks, chBlocks)

	exported := maps.Clone(pBlocks)
	maps.Copy(exported, chBlocks)
	p.exported[child.ID] = exported

	delete(p.injections, child.ID)
	delete(p.extendMap, parent.Source)
	p.Pop()
	return nil
}

// effectiveBlocks is the block map of a scope including the blocks of every
// template it extends itself.
func (p *Parser) effectiveBlocks(s *Scope) map[string]string {
	out := maps.Clone(s.Blocks)
	maps.Copy(out, p.exported[s.ID])
	return out
}

// injectSupers fills the super placeholders of child with a copy of the
// parent's content for the same block, shifted to the placeholder indent.
func (p *Parser) injectSupers(child *Scope, pBlocks map[string]string) error {
	inj := p.injections[child.ID]
	for _, name := range slices.Sorted(maps.Keys(inj)) {
		phs := inj[name]
		src, ok := p.groups[pBlocks[name]]
		if !ok {
			return &CompileError{
				Message: fmt.Sprintf("super: block %s is not declared by the extended template", name),
				File:    phs[0].pos.Source,
				Line:    phs[0].pos.Start,
			}
		}
		orig := src.Indent
		for _, ph := range phs {
			src.ChangeIndent(ph.group.Indent)
			ph.group.Children = cloneNodes(src.Children)
		}
		src.ChangeIndent(orig)
	}
	return nil
}

type replacement struct {
	name  string
	srcID string
	src   *Group
	dst   *Group
	depth int
}

// replaceBlocks moves the child's blocks into the parent's matching blocks.
// Outer blocks go first; an inner destination that an earlier replacement
// removed from the tree is skipped, so the content written by the nearest
// descendant wins.
func (p *Parser) replaceBlocks(parent *Scope, pBlocks, chBlocks map[string]string) {
	root := &Group{Children: parent.content}
	depths := groupDepths(root)
	var todo []replacement
	for name, srcID := range chBlocks {
		dst, ok := p.groups[pBlocks[name]]
		if !ok {
			continue
		}
		src := p.groups[srcID]
		if src == nil || src == dst {
			continue
		}
		d, ok := depths[dst]
		if !ok {
			continue
		}
		todo = append(todo, replacement{name: name, srcID: srcID, src: src, dst: dst, depth: d})
	}
	slices.SortFunc(todo, func(a, b replacement) int {
		return cmp.Or(cmp.Compare(a.depth, b.depth), cmp.Compare(a.name, b.name))
	})
	for i, r := range todo {
		if i > 0 {
			if _, ok := groupDepths(root)[r.dst]; !ok {
				continue
			}
		}
		r.src.ChangeIndent(r.dst.Indent)
		r.dst.Children = slices.Clone(r.src.Children)
		r.src.Evict()
		p.groups[r.srcID] = r.dst
	}
}

// groupDepths maps every group reachable from root without crossing an
// evicted group to its nesting depth.
func groupDepths(root *Group) map[*Group]int {
	out := map[*Group]int{}
	var walk func(g *Group, d int)
	walk = func(g *Group, d int) {
		out[g] = d
		if g.Evicted {
			return
		}
		for _, c := range g.Children {
			if cg, ok := c.(*Group); ok {
				walk(cg, d+1)
			}
		}
	}
	walk(root, 0)
	return out
}

func cloneNodes(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		switch t := n.(type) {
		case *Literal:
			c := *t
			out[i] = &c
		case *Output:
			c := *t
			out[i] = &c
		case *Statement:
			c := *t
			out[i] = &c
		case *Group:
			c := *t
			c.Children = cloneNodes(t.Children)
			out[i] = &c
		default:
			out[i] = n
		}
	}
	return out
}
