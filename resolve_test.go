package flathill

import (
	"os"
	"path/filepath"
	"testing"
)

func testMenu() []Route {
	return []Route{
		{Label: "Home", Path: "index", PathAliases: []string{""}},
		{
			Label: "About", Path: "about",
			Children: []Route{{Label: "Team", Path: "team"}},
		},
		{
			Label: "Gallery", Path: "gallery", ContentType: "gallery",
			ViewPath: "gallery-view",
		},
		{Label: "Blog", Path: "blog", ContentType: "post"},
	}
}

func TestSanitizePath(t *testing.T) {
	cases := map[string]string{
		"/blog/":          "blog",
		"//blog//5-a//":   "blog//5-a",
		"blog/5-first":    "blog/5-first",
		"weird path!":     "weird-path-",
		"ok_under-score9": "ok_under-score9",
	}
	for in, want := range cases {
		if got := sanitizePath(in); got != want {
			t.Fatalf("sanitizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveDeclaredRoutes(t *testing.T) {
	r := NewResolver(testMenu(), "")

	rr := r.Resolve("about")
	if rr.Route == nil || rr.Route.Label != "About" || rr.Path != "about" {
		t.Fatalf("about = %+v", rr)
	}

	// Alias resolves to the canonical path.
	rr = r.Resolve("")
	if rr.Route == nil || rr.Route.Label != "Home" || rr.Path != "index" {
		t.Fatalf("alias = %+v", rr)
	}

	// Static child keeps the full nested path.
	rr = r.Resolve("about/team")
	if rr.Route == nil || rr.Route.Label != "About" || rr.Path != "about/team" {
		t.Fatalf("child = %+v", rr)
	}
}

func TestResolveContentActions(t *testing.T) {
	r := NewResolver(testMenu(), "")

	cases := []struct {
		in     string
		action Action
		id     int
		stub   string
		path   string
	}{
		{"blog/view/5-first-post", ActionView, 5, "5-first-post", "blog"},
		{"blog/view/5", ActionView, 5, "5", "blog"},
		{"blog/5-first-post", ActionView, 5, "5-first-post", "blog"},
		{"blog/first-post", ActionView, 0, "first-post", "blog"},
		{"blog/edit/5", ActionEdit, 5, "", "blog/edit"},
		{"blog/edit/5-first-post", ActionEdit, 5, "", "blog/edit"},
		{"blog/delete/5", ActionDelete, 5, "", "blog/delete"},
		{"blog/add", ActionAdd, 0, "", "blog/add"},
		{"blog/save", ActionSave, 0, "", "blog/save"},
		{"gallery/3-trip", ActionView, 3, "3-trip", "gallery-view"},
	}

	for _, tc := range cases {
		rr := r.Resolve(tc.in)
		if rr.Route == nil {
			t.Fatalf("%s: no route", tc.in)
		}
		if rr.Action != tc.action || rr.ContentID != tc.id || rr.Stub != tc.stub || rr.Path != tc.path {
			t.Fatalf("%s: got action=%v id=%d stub=%q path=%q, want action=%v id=%d stub=%q path=%q",
				tc.in, rr.Action, rr.ContentID, rr.Stub, rr.Path, tc.action, tc.id, tc.stub, tc.path)
		}
		if rr.OriginalPath != tc.in {
			t.Fatalf("%s: original path = %q", tc.in, rr.OriginalPath)
		}
	}
}

func TestResolveGenericFallback(t *testing.T) {
	r := NewResolver(testMenu(), "")

	rr := r.Resolve("nothing/here")
	if !rr.Generic || rr.Route != nil || rr.Path != "nothing/here" {
		t.Fatalf("generic = %+v", rr)
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	r := NewResolver(testMenu(), "")
	a := r.Resolve("blog/5-first")
	b := r.Resolve("blog/5-first")
	if a.Action != b.Action || a.ContentID != b.ContentID || a.Stub != b.Stub || a.Path != b.Path {
		t.Fatalf("resolution not deterministic: %+v vs %+v", a, b)
	}
}

func TestLookupTemplate(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "blog"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "blog", "content.html"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(testMenu(), dir)

	rr := &ResolvedRoute{Path: "index"}
	r.LookupTemplate(rr)
	if rr.Template != "index.html" || rr.Err != "" {
		t.Fatalf("index = %+v", rr)
	}

	// Falls back to the directory content template.
	rr = &ResolvedRoute{Path: "blog"}
	r.LookupTemplate(rr)
	if rr.Template != "blog/content.html" || rr.Err != "" {
		t.Fatalf("blog = %+v", rr)
	}

	rr = &ResolvedRoute{Path: "missing"}
	r.LookupTemplate(rr)
	if rr.Err != routeErrFileNotFound {
		t.Fatalf("missing = %+v", rr)
	}
}
