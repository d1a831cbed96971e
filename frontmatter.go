package flathill

import (
	"regexp"
	"strings"
)

var (
	reFrontmatterBlock = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*\n(.*)$`)
	reFrontmatterLine  = regexp.MustCompile(`^([^:]+):\s*(.*)$`)
	reNeedsQuoting     = regexp.MustCompile("[:|&*!%#@\\[\\]{}<>,\n]")
)

// Fields is an ordered frontmatter field mapping. Every field is a scalar
// string except "keywords", which is list-valued. Insertion order is
// preserved so serialized files stay stable across edits.
type Fields struct {
	keys     []string
	scalars  map[string]string
	keywords []string
}

// NewFields returns an empty field mapping.
func NewFields() *Fields {
	return &Fields{scalars: make(map[string]string)}
}

// Set stores a scalar field, appending the key on first write.
func (f *Fields) Set(key, value string) {
	if !f.Has(key) {
		f.keys = append(f.keys, key)
	}
	f.scalars[key] = value
}

// Get returns the scalar value for key, or "" when absent.
func (f *Fields) Get(key string) string {
	if key == "keywords" {
		return strings.Join(f.keywords, ", ")
	}
	return f.scalars[key]
}

// Has reports whether key is present.
func (f *Fields) Has(key string) bool {
	if key == "keywords" {
		return f.keywords != nil
	}
	_, ok := f.scalars[key]
	return ok
}

// Keys returns the field names in insertion order.
func (f *Fields) Keys() []string {
	return f.keys
}

// SetKeywords stores the list-valued keywords field.
func (f *Fields) SetKeywords(kw []string) {
	if !f.Has("keywords") {
		f.keys = append(f.keys, "keywords")
	}
	f.keywords = kw
}

// Keywords returns the keyword list, nil when absent.
func (f *Fields) Keywords() []string {
	return f.keywords
}

// parseFrontmatter splits raw file text into its frontmatter fields and
// markdown body. A missing or malformed frontmatter block is not an error:
// the whole text becomes the body and the field set stays empty, so plain
// markdown files keep working.
func parseFrontmatter(raw string) (*Fields, string) {
	fields := NewFields()

	m := reFrontmatterBlock.FindStringSubmatch(raw)
	if m == nil {
		return fields, raw
	}

	for _, line := range strings.Split(strings.TrimSpace(m[1]), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lm := reFrontmatterLine.FindStringSubmatch(line)
		if lm == nil {
			continue
		}
		key := strings.TrimSpace(lm[1])
		value := strings.TrimSpace(lm[2])

		// Strip one layer of matching quotes and undo serialize escaping.
		if len(value) >= 2 {
			first, last := value[0], value[len(value)-1]
			if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
				value = quoteUnescaper.Replace(value[1 : len(value)-1])
			}
		}

		if key == "keywords" {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			fields.SetKeywords(parts)
			continue
		}
		fields.Set(key, value)
	}

	return fields, m[2]
}

// serializeFrontmatter emits "key: value" lines in field order. Empty values
// are skipped, keywords are re-joined with ", ", and values containing
// characters that would confuse a YAML reader are double-quoted with
// backslash escaping.
func serializeFrontmatter(f *Fields) string {
	var lines []string
	for _, key := range f.Keys() {
		value := f.Get(key)
		if value == "" {
			continue
		}
		if reNeedsQuoting.MatchString(value) || value != strings.TrimSpace(value) ||
			strings.HasPrefix(value, `"`) || strings.HasPrefix(value, `'`) {
			value = `"` + quoteEscaper.Replace(value) + `"`
		}
		lines = append(lines, key+": "+value)
	}
	return strings.Join(lines, "\n")
}

var (
	quoteEscaper   = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `'`, `\'`)
	quoteUnescaper = strings.NewReplacer(`\\`, `\`, `\"`, `"`, `\'`, `'`)
)

// renderMarkdownFile assembles the on-disk file format from serialized
// frontmatter and a markdown body.
func renderMarkdownFile(frontmatter, body string) string {
	return "---\n" + frontmatter + "\n---\n\n" + body
}
