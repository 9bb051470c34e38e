package cache

import (
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/neurodesk/stencil/pkg/template"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestHash(t *testing.T) {
	if got := Hash("abc"); got != "a9993e3647" {
		t.Fatalf("Hash(abc) = %q", got)
	}
}

func TestLoaderCache(t *testing.T) {
	tests := []struct {
		name   string
		reload bool
		want   bool
	}{
		{name: "cached", reload: false, want: true},
		{name: "reload", reload: true, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{"a.html": {Data: []byte("a"), ModTime: t0}}
			c := NewLoaderCache(fsys, tt.reload)
			if _, ok := c.Get("a.html"); ok {
				t.Fatal("empty cache hit")
			}
			c.Set("a.html", "a")
			if src, ok := c.Get("a.html"); !ok || src != "a" {
				t.Fatalf("Get = %q, %v", src, ok)
			}
			fsys["a.html"].ModTime = t0.Add(time.Second)
			if _, ok := c.Get("a.html"); ok != tt.want {
				t.Fatalf("Get after touch: ok = %v, want %v", ok, tt.want)
			}
			if c.Hits() < 1 || c.Misses() < 1 {
				t.Errorf("stats hits=%d misses=%d", c.Hits(), c.Misses())
			}
		})
	}
}

func TestHashCache(t *testing.T) {
	tests := []struct {
		name   string
		reload bool
		want   bool
	}{
		{name: "first entry wins", reload: false, want: true},
		{name: "reload", reload: true, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewHashCache[string](tt.reload)
			c.Set("t.html", "v1", "out1")
			if v, ok := c.Get("t.html", "v1"); !ok || v != "out1" {
				t.Fatalf("Get = %q, %v", v, ok)
			}
			if _, ok := c.Get("t.html", "v2"); ok != tt.want {
				t.Fatalf("Get with changed source: ok = %v, want %v", ok, tt.want)
			}
			c.Invalidate("t.html")
			if c.Len() != 0 {
				t.Fatalf("Len after Invalidate = %d", c.Len())
			}
		})
	}
}

func TestParseCacheDependencies(t *testing.T) {
	fsys := fstest.MapFS{
		"base.html": {Data: []byte("base"), ModTime: t0},
		"page.html": {Data: []byte("page"), ModTime: t0},
	}
	set := New(fsys, true)
	set.Load.Set("base.html", "base")
	prog := &template.Program{Name: "page.html", Dependencies: []string{"base.html"}, Cacheable: true}
	set.Parse.Set("page.html", "page", prog)

	if got, ok := set.Parse.Get("page.html", "page"); !ok || got != prog {
		t.Fatalf("Get = %v, %v", got, ok)
	}
	fsys["base.html"].ModTime = t0.Add(time.Minute)
	if _, ok := set.Parse.Get("page.html", "page"); ok {
		t.Fatal("program with a modified dependency should be stale")
	}
	if set.Parse.Hits() != 1 || set.Parse.Misses() != 1 {
		t.Errorf("stats hits=%d misses=%d", set.Parse.Hits(), set.Parse.Misses())
	}
}

func TestParseCacheSkipsDynamic(t *testing.T) {
	c := New(fstest.MapFS{}, false).Parse
	c.Set("t.html", "x", &template.Program{Cacheable: false})
	if c.Len() != 0 {
		t.Fatal("dynamic program was cached")
	}
}

func TestSetInvalidate(t *testing.T) {
	set := New(fstest.MapFS{}, false)
	set.Parse.Set("a.html", "a", &template.Program{Cacheable: true, Dependencies: []string{"base.html"}})
	set.Parse.Set("b.html", "b", &template.Program{Cacheable: true, Dependencies: []string{"other.html"}})
	set.Parse.Set("base.html", "base", &template.Program{Cacheable: true})
	set.Prerender.Set("base.html", "base", "base")

	got := set.Invalidate("base.html")
	if diff := cmp.Diff([]string{"a.html", "base.html"}, got); diff != "" {
		t.Errorf("invalidated mismatch (-want +got):\n%s", diff)
	}
	if set.Parse.Len() != 1 || set.Prerender.Len() != 0 {
		t.Errorf("parse=%d prerender=%d entries left", set.Parse.Len(), set.Prerender.Len())
	}
}

func TestFlight(t *testing.T) {
	var f Flight[int]
	var mu sync.Mutex
	calls := 0
	fn := func() (int, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return 42, nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := f.Do("k", fn)
			if err != nil || v != 42 {
				t.Errorf("Do = %d, %v", v, err)
			}
		}()
	}
	wg.Wait()
	if calls < 1 || calls > 8 {
		t.Fatalf("calls = %d", calls)
	}

	var nilFlight Flight[*template.Program]
	p, _, err := nilFlight.Do("k", func() (*template.Program, error) { return nil, nil })
	if p != nil || err != nil {
		t.Fatalf("Do = %v, %v", p, err)
	}
}
