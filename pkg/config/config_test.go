package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/neurodesk/stencil/pkg/engine"
	sl "github.com/neurodesk/stencil/pkg/starlark"
	"github.com/neurodesk/stencil/pkg/template"
)

func TestDecode(t *testing.T) {
	src := `
path: templates
mode: plain
escape: all
adjust_indent: true
delimiters: ["<%", "%>"]
cache_dir: /tmp/stencil
extensions:
  - {ext: htm, target: .html}
templates: [html, .txt]
`
	c, err := Decode(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		Path:         "templates",
		Mode:         "plain",
		Escape:       "all",
		AdjustIndent: true,
		Delimiters:   []string{"<%", "%>"},
		CacheDir:     "/tmp/stencil",
		Listen:       ":8080",
		Extensions:   []Alias{{Ext: "htm", Target: ".html"}},
		Templates:    []string{".html", ".txt"},
	}
	if d := cmp.Diff(want, c); d != "" {
		t.Errorf("config mismatch (-want +got):\n%s", d)
	}

	opts := c.EngineOptions()
	wantOpts := engine.Options{
		Path:         "templates",
		Mode:         sl.ModePlain,
		Escape:       sl.EscapeAll,
		AdjustIndent: true,
		CacheDir:     "/tmp/stencil",
		Delimiters:   template.Delimiters{Open: "<%", Close: "%>"},
	}
	if d := cmp.Diff(wantOpts, opts); d != "" {
		t.Errorf("engine options mismatch (-want +got):\n%s", d)
	}
}

func TestDecodeEmpty(t *testing.T) {
	c, err := Decode(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(Default(), c); d != "" {
		t.Errorf("config mismatch (-want +got):\n%s", d)
	}
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "unknown field", src: "pth: x\n", want: "field pth not found"},
		{name: "mode", src: "mode: xml\n", want: "mode must be one of"},
		{name: "escape", src: "escape: some\n", want: "escape must be one of"},
		{name: "delimiters", src: "delimiters: [\"<%\"]\n", want: "delimiters must be a pair"},
		{name: "empty delimiter", src: "delimiters: [\"<%\", \"\"]\n", want: "delimiters[1] must not be empty"},
		{name: "duplicate alias", src: "extensions: [{ext: .htm, target: .html}, {ext: htm, target: .xhtml}]\n", want: "duplicate value: .htm"},
		{name: "self alias", src: "extensions: [{ext: .htm, target: htm}]\n", want: "aliases itself"},
		{name: "alias target", src: "extensions: [{ext: .htm}]\n", want: "extensions.target must not be empty"},
		{name: "duplicate templates", src: "templates: [.html, html]\n", want: "templates contains duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.src))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Decode error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(p, []byte("mode: plain\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if c.Mode != "plain" {
		t.Errorf("mode = %q", c.Mode)
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing explicit config loaded")
	}
}

func TestNewEngineAliases(t *testing.T) {
	c := Default()
	c.Extensions = []Alias{{Ext: ".htm", Target: ".html"}}
	e, err := c.NewEngine()
	if err != nil {
		t.Fatal(err)
	}
	if got := e.Preload("page.htm"); got != "page.html" {
		t.Errorf("Preload = %q, want page.html", got)
	}
}
