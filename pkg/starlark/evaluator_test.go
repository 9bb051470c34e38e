package starlark

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/neurodesk/stencil/pkg/template"
	"go.starlark.net/starlark"
	"kr.dev/diff"
)

func compile(t *testing.T, source string, opts template.Options) *template.Program {
	t.Helper()
	prog, err := template.Compile("t.html", source, opts)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return prog
}

func TestExec(t *testing.T) {
	branches := "{{if a == 1:}}\nfoo\n{{elif a == 2:}}\nbar\n{{else:}}\nfoobar\n{{pass}}"
	tests := []struct {
		name   string
		source string
		data   map[string]any
		want   string
	}{
		{name: "if", source: branches, data: map[string]any{"a": 1}, want: "foo\n"},
		{name: "elif", source: branches, data: map[string]any{"a": 2}, want: "bar\n"},
		{name: "else", source: branches, data: map[string]any{"a": 99}, want: "foobar\n"},
		{
			name:   "for",
			source: "{{for i in range(0,5):}}\n{{=i}}\n{{pass}}",
			want:   "0\n1\n2\n3\n4\n",
		},
		{
			name:   "none",
			source: "{{=x}}",
			data:   map[string]any{"x": nil},
			want:   "None",
		},
		{
			name:   "raw",
			source: "{{raw}}{{=1}}{{end}}",
			want:   "{{=1}}",
		},
		{
			name:   "def",
			source: "{{def greet(n):}}\n{{return 'hi ' + n}}\n{{=greet(name)}}\n",
			data:   map[string]any{"name": "bob"},
			want:   "hi bob\n",
		},
		{
			name:   "struct fields",
			source: "{{=user.name}} {{=user.Age}}",
			data: map[string]any{"user": struct {
				Name string `json:"name"`
				Age  int
			}{Name: "ann", Age: 7}},
			want: "ann 7",
		},
		{
			name:   "nested data",
			source: "{{for k in sorted(m):}}{{=k}}={{=m[k][0]}};{{pass}}",
			data:   map[string]any{"m": map[string][]int{"b": {2}, "a": {1}}},
			want:   "a=1;b=2;",
		},
		{
			name:   "json numbers",
			source: "{{for i in range(n):}}{{=i}}{{pass}}|{{=f}}",
			data:   map[string]any{"n": json.Number("3"), "f": json.Number("1.5")},
			want:   "012|1.5",
		},
	}
	ev := NewEvaluator(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ev.Exec(context.Background(), compile(t, tt.source, template.Options{}), tt.data)
			if err != nil {
				t.Fatalf("Exec: %v", err)
			}
			diff.Test(t, t.Errorf, got, tt.want)
		})
	}
}

func TestEscaping(t *testing.T) {
	data := map[string]any{"s": `<a href='x'>&"`, "u": "à"}
	tests := []struct {
		name   string
		opts   Options
		source string
		want   string
	}{
		{name: "common", source: "{{=s}}", want: "&lt;a href=&#39;x&#39;&gt;&amp;&quot;"},
		{name: "markup", source: "{{=markup(s)}}", want: `<a href='x'>&"`},
		{name: "plain", opts: Options{Mode: ModePlain}, source: "{{=s}}", want: `<a href='x'>&"`},
		{name: "common keeps non ascii", source: "{{=u}}", want: "à"},
		{name: "all", opts: Options{Escape: EscapeAll}, source: "{{=u}}<{{=s}}", want: "&#224;<&lt;a href=&#39;x&#39;&gt;&amp;&quot;"},
		{name: "literal text untouched", opts: Options{Escape: EscapeAll}, source: "à&", want: "à&"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewEvaluator(tt.opts).Exec(context.Background(), compile(t, tt.source, template.Options{}), data)
			if err != nil {
				t.Fatalf("Exec: %v", err)
			}
			diff.Test(t, t.Errorf, got, tt.want)
		})
	}
}

func TestCustomWriterName(t *testing.T) {
	prog := compile(t, "a{{=b}}", template.Options{Writer: "w"})
	got, err := NewEvaluator(Options{Writer: "w"}).Exec(context.Background(), prog, map[string]any{"b": 1})
	if err != nil {
		t.Fatal(err)
	}
	diff.Test(t, t.Errorf, got, "a1")
}

func TestExtraBuiltins(t *testing.T) {
	upper := starlark.NewBuiltin("upper", func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var s string
		if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &s); err != nil {
			return nil, err
		}
		return starlark.String(strings.ToUpper(s)), nil
	})
	ev := NewEvaluator(Options{Builtins: starlark.StringDict{"upper": upper}})
	got, err := ev.Exec(context.Background(), compile(t, "{{=upper(x)}}", template.Options{}), map[string]any{"x": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	diff.Test(t, t.Errorf, got, "HI")
}

func TestRenderErrors(t *testing.T) {
	files := template.MemoryLoader{
		"base.html": "<p>\n{{block body}}{{end}}\n</p>\n",
	}
	tests := []struct {
		name   string
		source string
		file   string
		line   int
	}{
		{name: "runtime", source: "{{x = 1}}\n\n{{=x / 0}}\n", file: "t.html", line: 3},
		{name: "undefined name", source: "a\nb\n{{=missing}}", file: "t.html", line: 3},
		{name: "syntax", source: "ok\n{{x = = 1}}", file: "t.html", line: 2},
		{name: "inside block", source: "{{extend 'base.html'}}\n{{block body}}\n{{=len(1)}}\n{{end}}", file: "t.html", line: 3},
	}
	ev := NewEvaluator(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := compile(t, tt.source, template.Options{Loader: files})
			_, err := ev.Exec(context.Background(), prog, nil)
			var re *RenderError
			if !errors.As(err, &re) {
				t.Fatalf("want *RenderError, got %v", err)
			}
			if re.File != tt.file || re.Line != tt.line {
				t.Fatalf("error at %s:%d, want %s:%d (%v)", re.File, re.Line, tt.file, tt.line, err)
			}
		})
	}
}

func TestExecCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	prog := compile(t, "{{while True:}}\n{{pass}}", template.Options{})
	_, err := NewEvaluator(Options{}).Exec(ctx, prog, nil)
	if err == nil || !strings.Contains(err.Error(), "cancel") {
		t.Fatalf("want cancellation error, got %v", err)
	}
}

func TestArgs(t *testing.T) {
	files := template.MemoryLoader{"part.html": "part {{=n}}"}
	ev := NewEvaluator(Options{})
	data := map[string]any{"which": "part", "n": 3}
	prog := compile(t, "{{include which + '.html'}}", template.Options{Loader: files, Args: ev.Args(data)})
	if prog.Cacheable {
		t.Error("computed include should not be cacheable")
	}
	got, err := ev.Exec(context.Background(), prog, data)
	if err != nil {
		t.Fatal(err)
	}
	diff.Test(t, t.Errorf, got, "part 3")

	if _, err := ev.Args(data).EvalName("n"); err == nil {
		t.Error("non-string name should fail")
	}
}

func TestEval(t *testing.T) {
	got, err := NewEvaluator(Options{}).Eval("[x * 2 for x in xs]", map[string]any{"xs": []any{1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{int64(2), int64(4)}, got); diff != "" {
		t.Errorf("Eval mismatch (-want +got):\n%s", diff)
	}
}
