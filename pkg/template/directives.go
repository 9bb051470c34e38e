package template

import (
	"maps"
	"strings"
)

// Directive handles one keyword found at the start of a code line. The
// argument is the rest of the line with surrounding spaces removed.
type Directive interface {
	Process(p *Parser, arg string) error
	// RemovesLine reports whether the tag should take its whole line with it
	// when it stands alone on that line.
	RemovesLine() bool
}

// DirectiveFunc adapts a function to the Directive interface.
type DirectiveFunc struct {
	Fn         func(p *Parser, arg string) error
	RemoveLine bool
}

func (d DirectiveFunc) Process(p *Parser, arg string) error { return d.Fn(p, arg) }
func (d DirectiveFunc) RemovesLine() bool                   { return d.RemoveLine }

// Registry maps directive keywords to their handlers.
type Registry map[string]Directive

// DefaultDirectives returns a fresh registry with the built-in directives.
func DefaultDirectives() Registry {
	return Registry{
		"=":       DirectiveFunc{Fn: outputDirective},
		"block":   DirectiveFunc{Fn: blockDirective, RemoveLine: true},
		"end":     DirectiveFunc{Fn: endDirective, RemoveLine: true},
		"super":   DirectiveFunc{Fn: superDirective, RemoveLine: true},
		"include": DirectiveFunc{Fn: includeDirective},
		"extend":  DirectiveFunc{Fn: extendDirective, RemoveLine: true},
		"raw":     DirectiveFunc{Fn: rawDirective, RemoveLine: true},
	}
}

// With returns a copy of r with extra added on top.
func (r Registry) With(extra Registry) Registry {
	out := make(Registry, len(r)+len(extra))
	maps.Copy(out, r)
	maps.Copy(out, extra)
	return out
}

// splitDirective splits a code line into keyword and argument. A leading
// "=" is its own keyword so "=x" and "= x" both output x.
func splitDirective(line string) (string, string) {
	if strings.HasPrefix(line, "=") {
		return "=", strings.TrimSpace(line[1:])
	}
	kw, arg, _ := strings.Cut(line, " ")
	return kw, strings.TrimSpace(arg)
}

// outputDirective emits an escaped output node; the writer mode decides
// whether escaping actually happens.
func outputDirective(p *Parser, arg string) error {
	p.Output(arg, true)
	return nil
}

func blockDirective(p *Parser, arg string) error {
	if arg == "" {
		return p.syntaxErrorf("block requires a name")
	}
	s := p.Push(arg, PushOptions{Block: true})
	if err := p.Parse(); err != nil {
		return err
	}
	if !s.ended {
		return &SyntaxError{
			Message: "missing end for block " + arg,
			File:    s.Source,
			Line:    s.begin,
		}
	}
	p.Pop()
	return nil
}

func endDirective(p *Parser, _ string) error {
	return p.End()
}

func rawDirective(p *Parser, _ string) error {
	s := p.Push("raw", PushOptions{})
	if err := p.Ignore(); err != nil {
		return err
	}
	if !s.ended {
		return &SyntaxError{
			Message: "missing end for raw",
			File:    s.Source,
			Line:    s.begin,
		}
	}
	p.Pop()
	return nil
}
