package flathill

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eringen/flathill/markdown"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()

	cfg := &SiteConfig{
		ContentDir: filepath.Join(dir, "content"),
		CachePath:  filepath.Join(dir, "cache", "test.db"),
		Locale:     "en",
		Menu: []Route{
			{Label: "Blog", Path: "blog", ContentType: "post", ContentChildren: "post"},
		},
		ContentTypes: map[string]ContentTypeConfig{
			"post": {
				Label:          "Post",
				Roles:          []string{"admin"},
				RequiredFields: []string{"title", "stub", "date", "content"},
				Preprocess:     []string{"content", "abstract", "keywords", "siblings"},
				AbstractLength: 120,
			},
		},
	}

	cache, err := OpenCache(cfg.CachePath)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	return NewStore(cfg, cache, markdown.New(nil), nil)
}

func postForm(title, stub, date, content string) url.Values {
	return url.Values{
		"title":   {title},
		"stub":    {stub},
		"date":    {date},
		"content": {content},
	}
}

func mustSave(t *testing.T, s *Store, form url.Values) SaveResult {
	t.Helper()
	res, err := s.Save("post", form)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	return res
}

func TestSaveCreateAssignsSequentialIDs(t *testing.T) {
	s := newTestStore(t)

	first := mustSave(t, s, postForm("First", "first", "2024-01-01", "Body one."))
	second := mustSave(t, s, postForm("Second", "second", "2024-01-02", "Body two."))

	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("ids = %d, %d, want 1, 2", first.ID, second.ID)
	}
	if _, err := os.Stat(filepath.Join(s.typeDir("post"), "2-second.md")); err != nil {
		t.Fatalf("expected 2-second.md on disk: %v", err)
	}
}

func TestSaveCreateAfterMiddleDeleteDoesNotBackfill(t *testing.T) {
	s := newTestStore(t)

	mustSave(t, s, postForm("One", "one", "2024-01-01", "a"))
	mustSave(t, s, postForm("Two", "two", "2024-01-02", "b"))
	mustSave(t, s, postForm("Three", "three", "2024-01-03", "c"))

	if err := s.Delete("post", 2); err != nil {
		t.Fatalf("delete: %v", err)
	}

	res := mustSave(t, s, postForm("Four", "four", "2024-01-04", "d"))
	if res.ID != 4 {
		t.Fatalf("id after middle delete = %d, want 4", res.ID)
	}
}

func TestSaveMissingRequiredField(t *testing.T) {
	s := newTestStore(t)

	form := postForm("", "stub", "2024-01-01", "body")
	_, err := s.Save("post", form)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if ve.Field != "title" {
		t.Fatalf("field = %q, want title", ve.Field)
	}
}

func TestSaveGeneratesAbstract(t *testing.T) {
	s := newTestStore(t)

	long := strings.Repeat("word after word ", 30)
	res := mustSave(t, s, postForm("Long", "long", "2024-01-01", "# Heading\n\n"+long))

	rec, err := s.Get("post", "1-long", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	abstract := rec.Extra["abstract"]
	if abstract == "" {
		t.Fatalf("no abstract generated for record %d", res.ID)
	}
	if strings.Contains(abstract, "#") {
		t.Fatalf("abstract kept markdown syntax: %q", abstract)
	}
	if !strings.HasSuffix(abstract, "...") {
		t.Fatalf("abstract not truncated: %q", abstract)
	}
}

func TestSaveExplicitAbstractWins(t *testing.T) {
	s := newTestStore(t)

	form := postForm("T", "t", "2024-01-01", "body")
	form.Set("abstract", "Hand-written summary.")
	mustSave(t, s, form)

	rec, err := s.Get("post", "1", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Extra["abstract"] != "Hand-written summary." {
		t.Fatalf("abstract = %q", rec.Extra["abstract"])
	}
}

func TestSaveStickyNormalizedToOne(t *testing.T) {
	s := newTestStore(t)

	form := postForm("A", "a", "2024-01-01", "x")
	form.Set("sticky", "on")
	mustSave(t, s, form)

	form = postForm("B", "b", "2024-01-02", "y")
	form.Set("sticky", "")
	mustSave(t, s, form)

	recA, _ := s.Get("post", "1", 0)
	recB, _ := s.Get("post", "2", 0)
	if recA.Extra["sticky"] != "1" {
		t.Fatalf("sticky = %q, want 1", recA.Extra["sticky"])
	}
	if _, ok := recB.Extra["sticky"]; ok {
		t.Fatalf("empty sticky value was persisted")
	}
}

func TestSaveUpdateRenamesFile(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, postForm("Original", "original", "2024-01-01", "body"))

	form := postForm("Renamed", "renamed", "2024-01-01", "body")
	form.Set("content_id", "1")
	res := mustSave(t, s, form)

	if res.ID != 1 || res.Stub != "renamed" {
		t.Fatalf("update result = %+v", res)
	}
	dir := s.typeDir("post")
	if _, err := os.Stat(filepath.Join(dir, "1-renamed.md")); err != nil {
		t.Fatalf("renamed file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "1-original.md")); !os.IsNotExist(err) {
		t.Fatalf("old file still present")
	}

	rec, err := s.GetByStub("post", "renamed", 0)
	if err != nil {
		t.Fatalf("get by new stub: %v", err)
	}
	if rec.Title != "Renamed" {
		t.Fatalf("title = %q", rec.Title)
	}
}

func TestSaveUpdateRenameConflict(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, postForm("Keep", "keep", "2024-01-01", "body"))

	// A file already occupying the rename target.
	blocker := filepath.Join(s.typeDir("post"), "1-taken.md")
	if err := os.WriteFile(blocker, []byte("---\ntitle: x\n---\nbody"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	if err := s.cache.InvalidateListing("post"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	form := postForm("Keep", "taken", "2024-01-01", "body")
	form.Set("content_id", "1")
	if _, err := s.Save("post", form); !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestGetAcceptsCompositeAndBareID(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, postForm("Post", "the-stub", "2024-01-01", "body"))

	for _, ref := range []string{"1", "1-the-stub", "1-wrong-stub"} {
		rec, err := s.Get("post", ref, 0)
		if err != nil {
			t.Fatalf("get %q: %v", ref, err)
		}
		if rec.ID != 1 {
			t.Fatalf("get %q returned id %d", ref, rec.ID)
		}
	}

	if _, err := s.Get("post", "no-digits", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("non-numeric ref should be not found")
	}
}

func TestGetRendersMarkdown(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, postForm("Post", "p", "2024-01-01", "# Heading\n\nWith **bold**."))

	rec, err := s.Get("post", "1", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(rec.ContentHTML, "<h1") || !strings.Contains(rec.ContentHTML, "<strong>bold</strong>") {
		t.Fatalf("ContentHTML = %q", rec.ContentHTML)
	}
	if rec.URL != "/blog/1-p" {
		t.Fatalf("URL = %q", rec.URL)
	}
}

func TestListOrdersByDateDescending(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, postForm("Old", "old", "2023-01-01", "a"))
	mustSave(t, s, postForm("New", "new", "2025-01-01", "b"))
	mustSave(t, s, postForm("Mid", "mid", "2024-01-01", "c"))

	l, err := s.List("post")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := []string{l.Records[0].Stub, l.Records[1].Stub, l.Records[2].Stub}
	want := []string{"new", "mid", "old"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestListAggregatesKeywords(t *testing.T) {
	s := newTestStore(t)

	form := postForm("A", "a", "2024-01-01", "x")
	form.Set("keywords", "go, web")
	mustSave(t, s, form)

	form = postForm("B", "b", "2024-01-02", "y")
	form.Set("keywords", "web, cms")
	mustSave(t, s, form)

	l, err := s.List("post")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"cms", "go", "web"}
	if len(l.Keywords) != len(want) {
		t.Fatalf("keywords = %v, want %v", l.Keywords, want)
	}
	for i := range want {
		if l.Keywords[i] != want[i] {
			t.Fatalf("keywords = %v, want sorted unique %v", l.Keywords, want)
		}
	}
}

func TestListCacheServesStaleUntilInvalidated(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, postForm("A", "a", "2024-01-01", "x"))

	if l, _ := s.List("post"); len(l.Records) != 1 {
		t.Fatalf("expected 1 record")
	}

	// A file written behind the store's back is invisible until the next
	// explicit invalidation.
	outside := filepath.Join(s.typeDir("post"), "9-outside.md")
	if err := os.WriteFile(outside, []byte("---\nid: 9\ntitle: Outside\nstub: outside\ndate: 2024-02-01\n---\nbody"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if l, _ := s.List("post"); len(l.Records) != 1 {
		t.Fatalf("cached listing should not see the outside file")
	}

	mustSave(t, s, postForm("B", "b", "2024-03-01", "y"))
	l, _ := s.List("post")
	if len(l.Records) != 3 {
		t.Fatalf("after invalidation, records = %d, want 3", len(l.Records))
	}
}

func TestSaveMigratesStagedImages(t *testing.T) {
	s := newTestStore(t)

	staging := s.imagesDir("post", "_new")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		t.Fatalf("mkdir staging: %v", err)
	}
	if err := os.WriteFile(filepath.Join(staging, "photo.jpg"), []byte("jpg"), 0o644); err != nil {
		t.Fatalf("write staged image: %v", err)
	}

	body := "Look: ![photo](/content/post/images/_new/photo.jpg)"
	res := mustSave(t, s, postForm("Pic", "pic", "2024-01-01", body))

	moved := filepath.Join(s.imagesDir("post", "1"), "photo.jpg")
	if _, err := os.Stat(moved); err != nil {
		t.Fatalf("staged image not migrated: %v", err)
	}
	if _, err := os.Stat(staging); !os.IsNotExist(err) {
		t.Fatalf("empty staging directory should be removed")
	}

	rec, err := s.Get("post", "1", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := "/content/post/images/1/photo.jpg"
	if !strings.Contains(rec.Content, want) {
		t.Fatalf("body not rewritten, content = %q (record %d)", rec.Content, res.ID)
	}
}

func TestDeleteUnknownRecord(t *testing.T) {
	s := newTestStore(t)
	if err := s.Delete("post", 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteRemovesFileAndInvalidates(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, postForm("Gone", "gone", "2024-01-01", "x"))

	if err := s.Delete("post", 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.typeDir("post"), "1-gone.md")); !os.IsNotExist(err) {
		t.Fatalf("file still present after delete")
	}
	if l, _ := s.List("post"); len(l.Records) != 0 {
		t.Fatalf("listing still has records after delete")
	}
}

func TestScanAssignsSyntheticIDsToForeignFiles(t *testing.T) {
	s := newTestStore(t)

	dir := s.typeDir("post")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# Plain markdown, no frontmatter"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	l, err := s.List("post")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(l.Records) != 1 || l.Records[0].ID >= 0 {
		t.Fatalf("records = %+v, want one synthetic negative id", l.Records)
	}
}
