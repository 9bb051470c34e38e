package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/neurodesk/stencil/pkg/engine"
	"kr.dev/diff"
)

func TestSetValue(t *testing.T) {
	data := make(map[string]any)
	for _, kv := range []string{"n=3", "ok=true", "s=hello world", "empty=", "eq=a=b"} {
		if err := setValue(data, kv); err != nil {
			t.Fatal(err)
		}
	}
	want := map[string]any{"n": 3, "ok": true, "s": "hello world", "empty": "", "eq": "a=b"}
	if d := cmp.Diff(want, data); d != "" {
		t.Errorf("data mismatch (-want +got):\n%s", d)
	}
	for _, kv := range []string{"novalue", "=x"} {
		if err := setValue(data, kv); err == nil {
			t.Errorf("setValue(%q) succeeded", kv)
		}
	}
}

func TestReadData(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"data.yaml": "name: ann\nitems: [1, 2]\n",
		"data.json": `{"name": "ann", "items": [1, 2]}`,
	}
	want := map[string]map[string]any{
		"data.yaml": {"name": "ann", "items": []any{1, 2}},
		"data.json": {"name": "ann", "items": []any{json.Number("1"), json.Number("2")}},
	}
	for name, src := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
		got, err := readData(p)
		if err != nil {
			t.Fatal(err)
		}
		if d := cmp.Diff(want[name], got); d != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", name, d)
		}
	}
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"ok.html":      "{{=x}}",
		"bad.html":     "<p>\n{{if x:}}\n",
		"dyn.html":     "{{include name}}",
		"notes.txt":    "{{if",
		"sub/bad.html": "{{super}}",
	}
	for name, src := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	var out strings.Builder
	failed, err := check(engine.New(engine.Options{Path: dir}), []string{".html"}, &out)
	if err != nil {
		t.Fatal(err)
	}
	if failed != 2 {
		t.Errorf("failed = %d, want 2\n%s", failed, out.String())
	}
	diff.Test(t, t.Errorf, out.String(), "bad.html:2: missing block terminator\nsub/bad.html:1: super outside of a block requires a block name\n")
}
