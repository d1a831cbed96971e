package flathill

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	raw := `
name: "My Site"
url: "https://example.com"
locale: "hu"
menu:
  - label: "Home"
    path: "index"
    path_aliases: [""]
  - label: "Blog"
    path: "blog"
    content_type: "post"
    auth_required: true
    roles: ["admin"]
content_types:
  post:
    label: "Post"
    required_fields: ["title", "stub", "date", "content"]
    preprocess: ["content", "abstract", "keywords"]
    abstract_length: 200
    serve_files:
      "content/(post/images/.+)": "$1"
users:
  admin@example.com:
    roles: ["admin"]
    password_hash: "$2a$10$x"
`
	path := filepath.Join(t.TempDir(), "site.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Name != "My Site" || cfg.Locale != "hu" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.Menu) != 2 || cfg.Menu[1].ContentType != "post" || !cfg.Menu[1].AuthRequired {
		t.Fatalf("menu = %+v", cfg.Menu)
	}
	pt := cfg.ContentTypes["post"]
	if pt.AbstractLength != 200 || !pt.preprocessHas("abstract") || pt.preprocessHas("gallery") {
		t.Fatalf("post type = %+v", pt)
	}
	if pt.ServeFiles["content/(post/images/.+)"] != "$1" {
		t.Fatalf("serve_files = %+v", pt.ServeFiles)
	}

	u := cfg.Users["admin@example.com"]
	if u.Email != "admin@example.com" || !u.HasRole("admin") {
		t.Fatalf("user = %+v", u)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSetDefaults(t *testing.T) {
	cfg := SiteConfig{}
	cfg.setDefaults()

	if cfg.Addr != ":3000" || cfg.ContentDir != "content" || cfg.ErrorPath != "index" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.Locale != "hu" || cfg.FeedType != "post" || cfg.MaxUploadSize != 5<<20 {
		t.Fatalf("defaults = %+v", cfg)
	}
}
