package flathill

// ContentRecord is one markdown file's parsed representation. Listings carry
// summaries (no Content); Get fills the body and any derived fields the
// type's preprocess config asks for.
type ContentRecord struct {
	ID       int      `json:"id"`
	Type     string   `json:"type"`
	Path     string   `json:"path"`
	Stub     string   `json:"stub"`
	Title    string   `json:"title"`
	Date     string   `json:"date,omitempty"`
	Keywords []string `json:"keywords,omitempty"`

	// Extra holds type-specific frontmatter fields (image, abstract,
	// sticky, location, gallery JSON, ...) keyed by field name.
	Extra map[string]string `json:"extra,omitempty"`

	// Loaded on Get only.
	Content      string `json:"-"`
	ContentHTML  string `json:"-"`
	AbstractHTML string `json:"-"`

	// Derived, never persisted.
	URL      string                    `json:"-"`
	ImageURL string                    `json:"-"`
	Siblings *Siblings                 `json:"-"`
	Related  map[string]*ContentRecord `json:"-"`
}

// Field returns a frontmatter field by name, covering both the typed
// attributes and the type-specific extras.
func (r *ContentRecord) Field(name string) string {
	switch name {
	case "title":
		return r.Title
	case "stub":
		return r.Stub
	case "date":
		return r.Date
	}
	return r.Extra[name]
}

// Siblings holds the previous/next neighbors of a record in its type's
// date-ordered listing.
type Siblings struct {
	Previous *ContentRecord
	Next     *ContentRecord
}

// GalleryImage is one entry of a gallery JSON field.
type GalleryImage struct {
	URL      string `json:"url"`
	Subtitle string `json:"subtitle"`
}

// SaveResult identifies the record a successful save produced.
type SaveResult struct {
	ID   int
	Stub string
}

// User is the authentication contract the engine consumes: an identity plus
// a role set. Password hashes are bcrypt.
type User struct {
	Email        string   `yaml:"-"`
	Roles        []string `yaml:"roles"`
	PasswordHash string   `yaml:"password_hash"`
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the user carries at least one of the required
// roles. An empty requirement always passes.
func (u *User) HasAnyRole(required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if u.HasRole(r) {
			return true
		}
	}
	return false
}
