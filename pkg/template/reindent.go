package template

import (
	"regexp"
	"strings"
)

// Line is one line of a linearized program with the template position it was
// generated from.
type Line struct {
	Text string
	Ref  Reference
}

var (
	reAutoDedent = regexp.MustCompile(`^(elif |else:|except:|except |finally:)`)
	reDedent     = regexp.MustCompile(`^(return|continue|break|raise)( .*)?$`)
	rePass       = regexp.MustCompile(`^pass( .*)?$`)
)

// Reindent recomputes the nesting of program lines from lexical cues: a line
// ending in ':' opens a block, pass closes one, return, continue, break and
// raise close one after themselves, and elif, else, except and finally sit
// one level above their body. Blank lines are dropped.
func Reindent(lines []Line) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	var openers []Reference
	indent, dedented := 0, 0
	for _, l := range lines {
		text := strings.TrimSpace(l.Text)
		if text == "" {
			continue
		}
		if reAutoDedent.MatchString(text) {
			indent = indent + dedented - 1
		}
		dedented = 0
		if indent < 0 {
			return nil, tooMany(l.Ref)
		}
		openers = openers[:min(indent, len(openers))]
		out = append(out, Line{Text: strings.Repeat(" ", 4*indent) + text, Ref: l.Ref})
		if rePass.MatchString(text) {
			indent--
		}
		if reDedent.MatchString(text) {
			dedented = 1
			indent--
		}
		if strings.HasSuffix(text, ":") && !strings.HasPrefix(text, "#") {
			indent++
			for len(openers) < indent {
				openers = append(openers, l.Ref)
			}
		}
		if indent < 0 {
			return nil, tooMany(l.Ref)
		}
	}
	if indent > 0 {
		ref := Reference{}
		if len(openers) > 0 {
			ref = openers[min(indent, len(openers))-1]
		}
		return nil, &SyntaxError{Message: "missing block terminator", File: ref.File, Line: ref.Line}
	}
	return out, nil
}

func tooMany(ref Reference) error {
	return &SyntaxError{Message: "too many block terminators", File: ref.File, Line: ref.Line}
}
