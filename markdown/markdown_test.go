package markdown

import (
	"strings"
	"testing"
)

func TestRenderBasics(t *testing.T) {
	r := New(nil)

	out, err := r.Render("# Title\n\nA **bold** [link](https://example.com).")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{`<h1 id="title">Title</h1>`, "<strong>bold</strong>", `href="https://example.com"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderGFMTable(t *testing.T) {
	r := New(nil)

	out, err := r.Render("| a | b |\n|---|---|\n| 1 | 2 |")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "<table>") {
		t.Fatalf("table extension inactive:\n%s", out)
	}
}

func TestRenderPassesRawHTML(t *testing.T) {
	r := New(nil)

	out, err := r.Render("before <figure>x</figure> after")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "<figure>") {
		t.Fatalf("raw HTML was escaped:\n%s", out)
	}
}

type mapCache map[string]string

func (m mapCache) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m mapCache) Put(key, html string) { m[key] = html }

func TestRenderUsesCache(t *testing.T) {
	cache := mapCache{}
	r := New(cache)

	first, err := r.Render("some *text*")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(cache) != 1 {
		t.Fatalf("cache entries = %d, want 1", len(cache))
	}

	// Poison the cached entry; a hit must return it verbatim.
	for k := range cache {
		cache[k] = "cached"
	}
	second, err := r.Render("some *text*")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if second != "cached" {
		t.Fatalf("second render = %q, want cache hit", second)
	}
	if first == second {
		t.Fatalf("sanity: poisoned value should differ")
	}
}
