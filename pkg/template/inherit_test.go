package template

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"kr.dev/diff"
)

var writeCall = regexp.MustCompile(`^\s*_out\.write\((".*")\)$`)

// literalOutput concatenates the literal writes of a program whose only
// statements are writes, which is what a template without code renders to.
func literalOutput(t *testing.T, p *Program) string {
	t.Helper()
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimSuffix(p.Source, "\n"), "\n") {
		m := writeCall.FindStringSubmatch(line)
		if m == nil {
			t.Fatalf("unexpected program line %q", line)
		}
		s, err := strconv.Unquote(m[1])
		if err != nil {
			t.Fatalf("unquote %s: %v", m[1], err)
		}
		b.WriteString(s)
	}
	return b.String()
}

func TestInheritance(t *testing.T) {
	files := MemoryLoader{
		"layout.html":   "<html>\n{{block body}}\ndefault\n{{end}}\n</html>\n",
		"page.html":     "{{extend 'layout.html'}}\n{{block body}}\nhello\n{{end}}\n",
		"empty.html":    "{{extend 'layout.html'}}\n",
		"frame.html":    "<body>\n{{include}}\n</body>\n",
		"framed.html":   "{{extend 'frame.html'}}\ncontent\n",
		"base.html":     "{{block title}}Base{{end}}\n",
		"super.html":    "{{extend 'base.html'}}\n{{block title}}{{super}} - Child{{end}}\n",
		"c.html":        "<{{block x}}C{{end}}|{{block y}}Y{{end}}>\n",
		"b.html":        "{{extend 'c.html'}}\n{{block x}}B{{end}}\n",
		"a.html":        "{{extend 'b.html'}}\n{{block x}}A[{{super}}]{{end}}\n",
		"a2.html":       "{{extend 'b.html'}}\n{{block y}}Z{{end}}\n",
		"nested.html":   "[{{block outer}}({{block inner}}i{{end}}){{end}}]\n",
		"inner.html":    "{{extend 'nested.html'}}\n{{block inner}}I{{end}}\n",
		"outer.html":    "{{extend 'nested.html'}}\n{{block outer}}O{{block inner}}X{{end}}{{end}}\n",
		"dir/p.html":    "{{extend '../layout.html'}}\n{{block body}}\n{{include './part.html'}}{{end}}\n",
		"dir/part.html": "part\n",
	}
	tests := []struct {
		name string
		want string
	}{
		{name: "page.html", want: "<html>\nhello\n</html>\n"},
		{name: "empty.html", want: "<html>\ndefault\n</html>\n"},
		{name: "framed.html", want: "<body>\ncontent\n</body>\n"},
		{name: "super.html", want: "Base - Child\n"},
		{name: "b.html", want: "<B|Y>\n"},
		{name: "a.html", want: "<A[B]|Y>\n"},
		{name: "a2.html", want: "<B|Z>\n"},
		{name: "inner.html", want: "[(I)]\n"},
		{name: "outer.html", want: "[OX]\n"},
		{name: "dir/p.html", want: "<html>\npart\n</html>\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(tt.name, files[tt.name], Options{Loader: files})
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			diff.Test(t, t.Errorf, literalOutput(t, p), tt.want)
		})
	}
}

func TestInheritanceDependencies(t *testing.T) {
	files := MemoryLoader{
		"c.html": "{{block x}}C{{end}}",
		"b.html": "{{extend 'c.html'}}{{block x}}B{{end}}",
		"a.html": "{{extend 'b.html'}}{{include 'c.html'}}",
	}
	u, err := Parse("a.html", files["a.html"], Options{Loader: files})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"b.html", "c.html"}, u.Dependencies); diff != "" {
		t.Errorf("dependencies mismatch (-want +got):\n%s", diff)
	}
}

func TestInheritanceAdjustIndent(t *testing.T) {
	files := MemoryLoader{
		"layout.html": "<div>\n  {{block body}}\n  <p>default</p>\n  {{end}}\n</div>\n",
		"page.html":   "{{extend 'layout.html'}}\n{{block body}}\n<p>page</p>\n<p>two</p>\n{{end}}\n",
		"list.html":   "<ul>\n    {{include 'item.html'}}\n</ul>\n",
		"item.html":   "<li>x</li>\n<li>y</li>\n",
	}
	tests := []struct {
		name string
		want string
	}{
		{name: "page.html", want: "<div>\n  <p>page</p>\n  <p>two</p>\n</div>\n"},
		{name: "list.html", want: "<ul>\n    <li>x</li>\n    <li>y</li>\n\n</ul>\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(tt.name, files[tt.name], Options{Loader: files, AdjustIndent: true})
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			diff.Test(t, t.Errorf, literalOutput(t, p), tt.want)
		})
	}
}

func TestInheritanceErrors(t *testing.T) {
	files := MemoryLoader{
		"base.html":    "{{block a}}A{{end}}",
		"nosuper.html": "{{extend 'base.html'}}\n{{block z}}{{super}}{{end}}",
		"twice.html":   "{{extend 'base.html'}}{{extend 'base.html'}}",
		"frame.html":   "{{include}}{{include}}",
		"framed.html":  "{{extend 'frame.html'}}x",
		"loop1.html":   "{{include 'loop2.html'}}",
		"loop2.html":   "\n{{include 'loop1.html'}}",
		"self.html":    "{{extend 'self.html'}}",
		"lost.html":    "{{extend 'nowhere.html'}}",
	}
	tests := []struct {
		name  string
		check func(error) bool
		file  string
		line  int
	}{
		{name: "nosuper.html", check: isCompile, file: "nosuper.html", line: 2},
		{name: "twice.html", check: isSyntax, file: "twice.html", line: 1},
		{name: "framed.html", check: isCompile, file: "frame.html", line: 1},
		{name: "loop1.html", check: isCycle, file: "loop2.html", line: 2},
		{name: "self.html", check: isCycle, file: "self.html", line: 1},
		{name: "lost.html", check: isMissing, file: "lost.html", line: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.name, files[tt.name], Options{Loader: files})
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected error %T: %v", err, err)
			}
			var loc Located
			if !errors.As(err, &loc) {
				t.Fatalf("error %v has no location", err)
			}
			if file, line := loc.Location(); file != tt.file || line != tt.line {
				t.Fatalf("error at %s:%d, want %s:%d (%v)", file, line, tt.file, tt.line, err)
			}
		})
	}
}

func TestCycleChain(t *testing.T) {
	files := MemoryLoader{
		"a.html": "{{include 'b.html'}}",
		"b.html": "{{extend 'a.html'}}",
	}
	_, err := Compile("a.html", files["a.html"], Options{Loader: files})
	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("want *CycleError, got %v", err)
	}
	if diff := cmp.Diff([]string{"a.html", "b.html", "a.html"}, ce.Chain); diff != "" {
		t.Errorf("chain mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(err.Error(), "a.html -> b.html -> a.html") {
		t.Errorf("error message %q does not show the chain", err)
	}
}

func isCycle(err error) bool {
	var e *CycleError
	return errors.As(err, &e)
}
