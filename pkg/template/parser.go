package template

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Parser drives the scope stack over the elements of one compile request.
// Directives receive it to push, pop and emit nodes.
type Parser struct {
	opts   Options
	delims Delimiters

	scope *Scope
	stack []*Scope

	// groups is the indirection table: a scope id resolves to the group
	// currently holding that scope's content.
	groups map[string]*Group

	blocksMap  map[string]map[string]string
	extendMap  map[string]*Scope
	implicit   map[string]bool
	injections map[string]map[string][]injection
	exported   map[string]map[string]string

	loading []string
	dynamic bool
	elem    *Element
}

type injection struct {
	group *Group
	pos   Span
}

func newParser(name, source string, opts Options) *Parser {
	p := &Parser{
		opts:       opts,
		delims:     opts.Delimiters,
		groups:     map[string]*Group{},
		blocksMap:  map[string]map[string]string{},
		extendMap:  map[string]*Scope{},
		implicit:   map[string]bool{},
		injections: map[string]map[string][]injection{},
		exported:   map[string]map[string]string{},
		loading:    []string{name},
	}
	if p.delims.Open == "" || p.delims.Close == "" {
		p.delims = DefaultDelimiters
	}
	if p.opts.Directives == nil {
		p.opts.Directives = DefaultDirectives()
	}
	root := &Scope{
		ID:       "root",
		Name:     name,
		Source:   name,
		NewLine:  true,
		Blocks:   map[string]string{},
		Settings: Settings{Isolated: true},
		Lines:    LineRange{Start: 1, End: 1},
		begin:    1,
		queue:    &queue{items: NewStream(SplitTags(source, p.delims))},
	}
	p.scope = root
	return p
}

// Parse consumes the current scope's elements until its queue is empty or an
// end directive closes it.
func (p *Parser) Parse() error {
	return p.consume(p.parseCode)
}

// Ignore is Parse for raw regions: code elements are kept as text and only a
// bare end is recognized.
func (p *Parser) Ignore() error {
	return p.consume(p.parseRaw)
}

func (p *Parser) consume(code func(*Element) error) error {
	for {
		e, ok := p.scope.queue.pop()
		if !ok {
			return nil
		}
		if p.scope.InCode {
			if err := code(e); err != nil {
				return err
			}
		} else {
			p.parsePlain(e)
		}
		p.scope.InCode = !p.scope.InCode
	}
}

func (p *Parser) parsePlain(e *Element) {
	s := p.scope
	s.UpdateLines(e.Lines)
	if !p.opts.AdjustIndent {
		if e.Text != "" {
			p.appendNode(&Literal{Pos: s.span(), elem: e})
		}
		return
	}
	if e.headStripped {
		s.NewLine = true
		s.Indent = 0
	}
	if e.Text == "" {
		return
	}
	lines := strings.Split(e.Text, "\n")
	last := len(lines) - 1
	for i, line := range lines {
		pos := Span{Source: s.Source, Start: s.Lines.Start + i, End: s.Lines.Start + i}
		if i == last {
			if line == "" {
				return
			}
			if s.NewLine && blank(line) {
				s.Indent += len(line)
				return
			}
		} else {
			line += "\n"
		}
		lit := &Literal{Value: line, LineStart: s.NewLine, Pos: pos}
		if s.NewLine {
			trimmed := strings.TrimLeft(line, " ")
			lit.Indent = s.Indent + len(line) - len(trimmed)
			lit.Value = trimmed
		}
		p.appendNode(lit)
		if i < last {
			s.NewLine = true
			s.Indent = 0
		} else {
			s.NewLine = false
		}
	}
}

var multiline = regexp.MustCompile(`(?s)(""".*?""")|('''.*?''')`)

// codeText removes the delimiters of a code element and reports how many
// newlines preceded the first non-blank character.
func (p *Parser) codeText(e *Element) (string, int) {
	inner := e.Text[len(p.delims.Open) : len(e.Text)-len(p.delims.Close)]
	text := strings.TrimSpace(inner)
	if text == "" {
		return "", 0
	}
	lead := strings.Count(inner[:strings.Index(inner, text)], "\n")
	return text, lead
}

func (p *Parser) parseCode(e *Element) error {
	s := p.scope
	s.UpdateLines(e.Lines)
	text, lead := p.codeText(e)
	if text == "" {
		return nil
	}
	text = multiline.ReplaceAllStringFunc(text, func(m string) string {
		return strings.ReplaceAll(m, "\n", `\n`)
	})
	base := s.Lines
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// statements on later lines of a multi-line tag get their own line
		if s.Lines.End == base.End {
			s.Lines.Start = base.Start + lead + i
		}
		p.elem = e
		kw, arg := splitDirective(line)
		if d, ok := p.opts.Directives[kw]; ok && !strings.HasPrefix(arg, "=") {
			if d.RemovesLine() {
				e.Strip()
			}
			if err := d.Process(p, arg); err != nil {
				return err
			}
			continue
		}
		e.Strip()
		p.Statement(line)
	}
	return nil
}

func (p *Parser) parseRaw(e *Element) error {
	s := p.scope
	s.UpdateLines(e.Lines)
	text, _ := p.codeText(e)
	if text == "" {
		return nil
	}
	if text == "end" {
		if d, ok := p.opts.Directives["end"]; ok {
			if d.RemovesLine() {
				e.Strip()
			}
			return d.Process(p, "")
		}
	}
	p.Literal(e.Text)
	return nil
}

// StripLine removes the line of the tag being processed when nothing else
// stands on it.
func (p *Parser) StripLine() {
	if p.elem != nil {
		p.elem.Strip()
	}
}

func (p *Parser) syntaxErrorf(format string, args ...any) error {
	return &SyntaxError{Message: fmt.Sprintf(format, args...), File: p.scope.Source, Line: p.scope.Lines.Start}
}

func (p *Parser) compileErrorf(format string, args ...any) error {
	return &CompileError{Message: fmt.Sprintf(format, args...), File: p.scope.Source, Line: p.scope.Lines.Start}
}

// EvalName turns a directive argument into a template name. String literals
// are decoded directly; anything else goes through the configured evaluator
// and makes the result depend on render data.
func (p *Parser) EvalName(arg string) (string, error) {
	if arg == "" {
		return "", p.syntaxErrorf("missing template name")
	}
	if s, err := strconv.Unquote(arg); err == nil && (arg[0] == '"' || arg[0] == '\'') {
		return s, nil
	}
	if arg[0] == '\'' && len(arg) >= 2 && arg[len(arg)-1] == '\'' && !strings.ContainsAny(arg[1:len(arg)-1], `'\`) {
		return arg[1 : len(arg)-1], nil
	}
	if p.opts.Args == nil {
		return "", p.compileErrorf("invalid template name %s", arg)
	}
	name, err := p.opts.Args.EvalName(arg)
	if err != nil {
		ce := p.compileErrorf("invalid template name %s: %v", arg, err).(*CompileError)
		ce.Err = err
		return "", ce
	}
	p.dynamic = true
	return name, nil
}

// Load resolves and reads the template named by arg and pushes an isolated
// scope over its elements. The caller parses and pops it.
func (p *Parser) Load(arg string) (*Scope, error) {
	name, err := p.EvalName(arg)
	if err != nil {
		return nil, err
	}
	cur := p.scope
	if p.opts.Loader == nil {
		return nil, &MissingError{Path: name, File: cur.Source, Line: cur.Lines.Start}
	}
	file, text, err := p.opts.Loader.Load(name, path.Dir(cur.Source))
	if err != nil {
		var me *MissingError
		if errors.As(err, &me) {
			if me.File == "" {
				me.File, me.Line = cur.Source, cur.Lines.Start
			}
			return nil, me
		}
		return nil, fmt.Errorf("%s:%d: loading %s: %w", cur.Source, cur.Lines.Start, name, err)
	}
	if slices.Contains(p.loading, file) {
		chain := append(slices.Clone(p.loading), file)
		return nil, &CycleError{Chain: chain, File: cur.Source, Line: cur.Lines.Start}
	}
	cur.Deps = append(cur.Deps, file)
	p.loading = append(p.loading, file)
	region := false
	s := p.Push(name, PushOptions{
		Elements: NewStream(SplitTags(text, p.delims)),
		Region:   &region,
		Source:   file,
	})
	s.Settings.ExtendSrc = ""
	s.file = true
	return s, nil
}
