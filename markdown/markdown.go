// Package markdown renders markdown to HTML through goldmark, with an
// optional content-hash keyed cache in front of the converter.
package markdown

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// Cache stores rendered HTML keyed by content hash. Implementations decide
// persistence; a nil Cache disables caching.
type Cache interface {
	Get(key string) (string, bool)
	Put(key, html string)
}

// Renderer converts markdown to HTML. It is stateless apart from the cache
// and safe for concurrent use.
type Renderer struct {
	md    goldmark.Markdown
	cache Cache
}

// New builds a Renderer with GFM extensions and auto heading IDs. Raw HTML
// in source files is passed through, matching the trusted-author model of a
// flat-file site.
func New(cache Cache) *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		cache: cache,
	}
}

// Render converts src to HTML, serving from the cache when the same source
// text was rendered before.
func (r *Renderer) Render(src string) (string, error) {
	key := hashKey(src)
	if r.cache != nil {
		if out, ok := r.cache.Get(key); ok {
			return out, nil
		}
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("markdown render: %w", err)
	}
	out := buf.String()

	if r.cache != nil {
		r.cache.Put(key, out)
	}
	return out, nil
}

func hashKey(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}
