package flathill

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ContentHandler is the per-type extension point. New content types plug in
// by implementing this interface and registering it (WithHandler); the store
// never dispatches on type names.
type ContentHandler interface {
	// DefaultStructure returns the template record backing an empty add form.
	DefaultStructure() *ContentRecord
	// Validate runs type-specific checks on submitted form data.
	Validate(form url.Values) error
	// OptionalMetadata contributes extra frontmatter fields on save.
	OptionalMetadata(meta *Fields, form url.Values)
	// PreprocessSave runs after the metadata set is assembled, before the
	// file is written.
	PreprocessSave(meta *Fields, form url.Values, cfg ContentTypeConfig)
	// PostprocessImageURLs rewrites staged image references once a new
	// record's id is known.
	PostprocessImageURLs(meta *Fields, contentType string, id int)
	// PrepareForEdit adjusts a loaded record for the edit form.
	PrepareForEdit(rec *ContentRecord, s *Store)
	// RedirectAfterSave computes the post-save redirect target.
	RedirectAfterSave(res SaveResult, basePath string) string
	// ProcessList may take over list-view post-processing; returning true
	// short-circuits the default per-record processing.
	ProcessList(l *Listing, rr *ResolvedRoute, vars map[string]any) bool
}

// BaseHandler is the no-op handler every type without a custom registration
// gets. Custom handlers usually embed it and override selectively.
type BaseHandler struct {
	ContentType string
}

func (h BaseHandler) DefaultStructure() *ContentRecord {
	return &ContentRecord{Type: h.ContentType}
}

func (h BaseHandler) Validate(form url.Values) error {
	return nil
}

func (h BaseHandler) OptionalMetadata(meta *Fields, form url.Values) {}

// PreprocessSave extracts a gallery JSON field from the markdown body for
// types with the gallery preprocess behavior.
func (h BaseHandler) PreprocessSave(meta *Fields, form url.Values, cfg ContentTypeConfig) {
	if !cfg.preprocessHas("gallery") || !cfg.requires("content") {
		return
	}
	body := form.Get("content")
	if body == "" {
		return
	}
	images := ExtractGalleryImages(body)
	if len(images) == 0 {
		return
	}
	encoded, err := json.Marshal(images)
	if err != nil {
		return
	}
	meta.Set("gallery", string(encoded))
}

// PostprocessImageURLs rewrites _new-staged image URLs inside the gallery
// JSON to the freshly assigned record id.
func (h BaseHandler) PostprocessImageURLs(meta *Fields, contentType string, id int) {
	gallery := meta.Get("gallery")
	if gallery == "" {
		return
	}
	meta.Set("gallery", rewriteStagedImageURLs(gallery, contentType, id))
}

func (h BaseHandler) PrepareForEdit(rec *ContentRecord, s *Store) {}

func (h BaseHandler) RedirectAfterSave(res SaveResult, basePath string) string {
	return "/" + basePath + "/" + strconv.Itoa(res.ID) + "-" + res.Stub
}

func (h BaseHandler) ProcessList(l *Listing, rr *ResolvedRoute, vars map[string]any) bool {
	return false
}

// PostHandler customizes the post content type: it stamps an edit date on
// every save and recovers the raw body for edit forms.
type PostHandler struct {
	BaseHandler
	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewPostHandler returns the handler registered for the post type.
func NewPostHandler() *PostHandler {
	return &PostHandler{BaseHandler: BaseHandler{ContentType: "post"}, Now: time.Now}
}

func (h *PostHandler) OptionalMetadata(meta *Fields, form url.Values) {
	meta.Set("edit_date", h.Now().Format("2006-01-02 15:04:05"))
}

// PrepareForEdit re-reads the raw unprocessed body text from the file so the
// edit form shows exactly what is on disk.
func (h *PostHandler) PrepareForEdit(rec *ContentRecord, s *Store) {
	body, err := s.rawBody(rec.Type, rec.Path)
	if err != nil {
		s.debug("prepare_for_edit", "raw body read failed", rec.Type, rec.Path, err)
		return
	}
	rec.Content = body
	rec.ContentHTML = ""
}

// rewriteStagedImageURLs replaces references to the _new staging image
// directory with the record's final id directory.
func rewriteStagedImageURLs(s, contentType string, id int) string {
	old := "/content/" + contentType + "/images/_new/"
	replacement := fmt.Sprintf("/content/%s/images/%d/", contentType, id)
	return strings.ReplaceAll(s, old, replacement)
}
