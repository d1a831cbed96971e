package flathill

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SiteConfig holds all configuration for a flathill site.
type SiteConfig struct {
	Name string `yaml:"name"` // Site name (default "Site")
	URL  string `yaml:"url"`  // Canonical URL (default "http://localhost:3000")
	Meta Meta   `yaml:"meta"` // Author/description meta tags

	Addr         string `yaml:"addr"`          // Listen address (default ":3000")
	PagesDir     string `yaml:"pages_dir"`     // Static page templates (default "pages")
	TemplatesDir string `yaml:"templates_dir"` // Shared partials/layouts (default "templates")
	ContentDir   string `yaml:"content_dir"`   // Markdown content root (default "content")
	StaticDir    string `yaml:"static_dir"`    // Public assets (default "public")
	CachePath    string `yaml:"cache_path"`    // SQLite cache path (default "cache/flathill.db")

	ErrorPath string `yaml:"error_path"` // Page served for unroutable paths (default "index")
	Debug     bool   `yaml:"debug"`      // Verbose operation logging
	Locale    string `yaml:"locale"`     // Collation locale for keyword sorting (default "hu")
	FeedType  string `yaml:"feed_type"`  // Content type exposed via RSS (default "post")

	SessionSecret string `yaml:"session_secret"` // Required: session encryption secret
	CookieSecure  bool   `yaml:"cookie_secure"`  // Set true for HTTPS

	MaxUploadSize int64          `yaml:"max_upload_size"` // Upload limit in bytes (default 5MB)
	Markdown      MarkdownConfig `yaml:"markdown"`

	Menu         []Route                      `yaml:"menu"`
	ContentTypes map[string]ContentTypeConfig `yaml:"content_types"`
	Users        map[string]User              `yaml:"users"`
}

// Meta carries site-wide author/description metadata into templates.
type Meta struct {
	Author      string `yaml:"author"`
	Description string `yaml:"description"`
}

// MarkdownConfig controls the markdown-to-HTML collaborator.
type MarkdownConfig struct {
	// Disabled turns off preprocessing of content/abstract fields into
	// HTML; templates then receive raw markdown only.
	Disabled bool `yaml:"disabled"`
	// CacheDisabled turns off the content-hash HTML cache.
	CacheDisabled bool `yaml:"cache_disabled"`
}

// ContentTypeConfig declares one content type: who may mutate it, what a
// record must carry, and which load-time behaviors apply. Immutable after
// process start.
type ContentTypeConfig struct {
	Label          string            `yaml:"label"`
	Roles          []string          `yaml:"roles"`
	RequiredFields []string          `yaml:"required_fields"`
	Preprocess     []string          `yaml:"preprocess"` // content, abstract, keywords, gallery, siblings
	ServeFiles     map[string]string `yaml:"serve_files"`
	Relations      map[string]string `yaml:"relations"` // field name -> related content type
	AbstractLength int               `yaml:"abstract_length"`
}

func (c ContentTypeConfig) preprocessHas(name string) bool {
	for _, p := range c.Preprocess {
		if p == name {
			return true
		}
	}
	return false
}

func (c ContentTypeConfig) requires(field string) bool {
	for _, f := range c.RequiredFields {
		if f == field {
			return true
		}
	}
	return false
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Site"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.PagesDir == "" {
		c.PagesDir = "pages"
	}
	if c.TemplatesDir == "" {
		c.TemplatesDir = "templates"
	}
	if c.ContentDir == "" {
		c.ContentDir = "content"
	}
	if c.StaticDir == "" {
		c.StaticDir = "public"
	}
	if c.CachePath == "" {
		c.CachePath = "cache/flathill.db"
	}
	if c.ErrorPath == "" {
		c.ErrorPath = "index"
	}
	if c.Locale == "" {
		c.Locale = "hu"
	}
	if c.FeedType == "" {
		c.FeedType = "post"
	}
	if c.MaxUploadSize == 0 {
		c.MaxUploadSize = 5 << 20
	}
}

// LoadConfig reads a YAML site configuration file.
func LoadConfig(path string) (SiteConfig, error) {
	var cfg SiteConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("flathill: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("flathill: parse config %s: %w", path, err)
	}
	for email, u := range cfg.Users {
		u.Email = email
		cfg.Users[email] = u
	}
	return cfg, nil
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithHandler registers a per-type content handler before startup.
func WithHandler(contentType string, h ContentHandler) Option {
	return func(a *App) {
		a.handlers[contentType] = h
	}
}

// WithPreprocess registers a named serve-preprocess hook referenced by a
// route's preprocess key.
func WithPreprocess(name string, fn PreprocessFunc) Option {
	return func(a *App) {
		a.preprocess[name] = fn
	}
}
