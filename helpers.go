package flathill

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Slugify converts a title to a URL-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// BuildURL joins a base URL with path segments.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	return u.String()
}

// FilterEmpty removes empty/whitespace-only strings from a slice.
func FilterEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SortKeywords sorts keywords with locale collation: case-insensitive,
// accent-folded, digits compared numerically ("file2" before "file10").
func SortKeywords(keywords []string, locale string) []string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Hungarian
	}
	col := collate.New(tag, collate.Loose, collate.Numeric)
	sorted := make([]string, len(keywords))
	copy(sorted, keywords)
	col.SortStrings(sorted)
	return sorted
}

var (
	reAbsCodeBlock  = regexp.MustCompile("(?s)```.*?```")
	reAbsInlineCode = regexp.MustCompile("`[^`]*`")
	reAbsImage      = regexp.MustCompile(`!\[[^\]]*\]\([^\)]*\)`)
	reAbsImageRef   = regexp.MustCompile(`!\[[^\]]*\]\[[^\]]*\]`)
	reAbsLink       = regexp.MustCompile(`\[([^\]]+)\]\([^\)]*\)`)
	reAbsLinkRef    = regexp.MustCompile(`\[([^\]]+)\]\[[^\]]*\]`)
	reAbsLinkDef    = regexp.MustCompile(`(?m)^\s*\[[^\]]+\]:\s*.*$`)
	reAbsHeader     = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	reAbsHRule      = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)
	reAbsQuote      = regexp.MustCompile(`(?m)^>\s+(.+)$`)
	reAbsBullet     = regexp.MustCompile(`(?m)^\s*[-*+]\s+(.+)$`)
	reAbsNumbered   = regexp.MustCompile(`(?m)^\s*\d+\.\s+(.+)$`)
	reAbsBold       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	reAbsItalic     = regexp.MustCompile(`\*([^*]+)\*`)
	reAbsBoldUnder  = regexp.MustCompile(`__([^_]+)__`)
	reAbsItalUnder  = regexp.MustCompile(`_([^_]+)_`)
	reAbsStrike     = regexp.MustCompile(`~~([^~]+)~~`)
	reAbsHTMLTag    = regexp.MustCompile(`<[^>]*>`)
	reAbsSpace      = regexp.MustCompile(`\s+`)
)

// GenerateAbstract strips markdown syntax from content and truncates the
// remaining plain text at a word boundary, appending an ellipsis. Used when
// a record has no explicit abstract but the type configures abstract_length.
func GenerateAbstract(markdown string, length int) string {
	if markdown == "" || length <= 0 {
		return ""
	}

	plain := markdown
	plain = reAbsCodeBlock.ReplaceAllString(plain, "")
	plain = reAbsInlineCode.ReplaceAllString(plain, "")
	plain = reAbsImage.ReplaceAllString(plain, "")
	plain = reAbsImageRef.ReplaceAllString(plain, "")
	plain = reAbsLink.ReplaceAllString(plain, "$1")
	plain = reAbsLinkRef.ReplaceAllString(plain, "$1")
	plain = reAbsLinkDef.ReplaceAllString(plain, "")
	plain = reAbsHeader.ReplaceAllString(plain, "$1")
	plain = reAbsHRule.ReplaceAllString(plain, "")
	plain = reAbsQuote.ReplaceAllString(plain, "$1")
	plain = reAbsBullet.ReplaceAllString(plain, "$1")
	plain = reAbsNumbered.ReplaceAllString(plain, "$1")
	plain = reAbsBold.ReplaceAllString(plain, "$1")
	plain = reAbsItalic.ReplaceAllString(plain, "$1")
	plain = reAbsBoldUnder.ReplaceAllString(plain, "$1")
	plain = reAbsItalUnder.ReplaceAllString(plain, "$1")
	plain = reAbsStrike.ReplaceAllString(plain, "$1")
	plain = reAbsHTMLTag.ReplaceAllString(plain, "")
	plain = strings.TrimSpace(reAbsSpace.ReplaceAllString(plain, " "))

	runes := []rune(plain)
	if len(runes) <= length {
		return plain
	}

	truncated := string(runes[:length])
	// Break at the last word boundary unless that would cut off more than
	// half the target length.
	if idx := strings.LastIndex(truncated, " "); idx > length/2 {
		truncated = truncated[:idx]
	}
	return strings.TrimSpace(truncated) + "..."
}

var reGalleryImage = regexp.MustCompile(`!\[([^\]]*)\]\(([^\)\s]+)(?:\s+["']([^"']*)["'])?\)`)

// ExtractGalleryImages collects every markdown image from content as a
// gallery entry. The image title wins over alt text as the subtitle.
func ExtractGalleryImages(markdown string) []GalleryImage {
	var images []GalleryImage
	for _, m := range reGalleryImage.FindAllStringSubmatch(markdown, -1) {
		alt := strings.TrimSpace(m[1])
		u := strings.TrimSpace(m[2])
		title := strings.TrimSpace(m[3])
		if u == "" {
			continue
		}
		subtitle := title
		if subtitle == "" {
			subtitle = alt
		}
		images = append(images, GalleryImage{URL: u, Subtitle: subtitle})
	}
	return images
}
