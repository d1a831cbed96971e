package flathill

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/eringen/flathill/markdown"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("flathill: content not found")

// ErrConflict is returned when a save would overwrite a file owned by
// another record (id collision or stub rename onto an occupied name).
var ErrConflict = errors.New("flathill: file conflict")

// ValidationError reports a missing required field on save.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fieldLabel(e.Field) + " is required"
}

func fieldLabel(field string) string {
	switch field {
	case "title":
		return "Title"
	case "date":
		return "Date"
	case "stub":
		return "Stub"
	case "content":
		return "Content"
	}
	return field
}

// Listing is the cached summary view of one content type: records ordered
// by date descending plus the aggregate keyword set when the type's
// preprocess config requests it.
type Listing struct {
	Records  []ContentRecord `json:"records"`
	Keywords []string        `json:"keywords,omitempty"`
}

// Store lists, retrieves, creates, updates, and deletes markdown content
// records on disk, backed by the listing cache.
type Store struct {
	cfg      *SiteConfig
	cache    *Cache
	md       *markdown.Renderer
	handlers map[string]ContentHandler
}

// NewStore creates a Store over the configured content directory.
func NewStore(cfg *SiteConfig, cache *Cache, md *markdown.Renderer, handlers map[string]ContentHandler) *Store {
	if handlers == nil {
		handlers = make(map[string]ContentHandler)
	}
	return &Store{cfg: cfg, cache: cache, md: md, handlers: handlers}
}

func (s *Store) debug(op string, args ...any) {
	if s.cfg.Debug {
		log.Printf("%s: %v", op, args)
	}
}

func (s *Store) handlerFor(contentType string) ContentHandler {
	if h, ok := s.handlers[contentType]; ok {
		return h
	}
	return BaseHandler{ContentType: contentType}
}

func (s *Store) typeDir(contentType string) string {
	return filepath.Join(s.cfg.ContentDir, contentType)
}

func (s *Store) imagesDir(contentType, dirID string) string {
	return filepath.Join(s.cfg.ContentDir, contentType, "images", dirID)
}

// List returns the summary listing for a content type, serving from the
// cache when present and rebuilding it from the content directory otherwise.
func (s *Store) List(contentType string) (*Listing, error) {
	if l, ok := s.cache.Listing(contentType); ok {
		return l, nil
	}

	records, err := s.scanType(contentType)
	if err != nil {
		return nil, err
	}

	l := &Listing{Records: records}
	if cfg, ok := s.cfg.ContentTypes[contentType]; ok && cfg.preprocessHas("keywords") {
		seen := make(map[string]struct{})
		var keywords []string
		for _, rec := range records {
			for _, kw := range rec.Keywords {
				if _, dup := seen[kw]; dup || kw == "" {
					continue
				}
				seen[kw] = struct{}{}
				keywords = append(keywords, kw)
			}
		}
		l.Keywords = SortKeywords(keywords, s.cfg.Locale)
	}

	if err := s.cache.PutListing(contentType, l); err != nil {
		s.debug("list_content", "cache write failed", contentType, err)
	}
	return l, nil
}

// scanType parses every markdown file of a content type into a summary
// record, sorted by date descending (undated records sort last).
func (s *Store) scanType(contentType string) ([]ContentRecord, error) {
	dir := s.typeDir(contentType)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", contentType, err)
	}
	sort.Strings(paths)

	var records []ContentRecord
	synthetic := 0
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			s.debug("list_content", "unreadable file skipped", p, err)
			continue
		}
		fields, _ := parseFrontmatter(string(data))
		rec := recordFromFields(contentType, filepath.Base(p), fields)
		if rec.ID <= 0 {
			// Files saved outside the engine have no id; give them a
			// synthetic one so lookups by listing position still work.
			synthetic--
			rec.ID = synthetic
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return dateKey(records[i].Date) > dateKey(records[j].Date)
	})
	return records, nil
}

func dateKey(date string) string {
	if date == "" {
		return "1970-01-01"
	}
	return date
}

func recordFromFields(contentType, filename string, fields *Fields) ContentRecord {
	rec := ContentRecord{
		Type:     contentType,
		Path:     filename,
		Title:    fields.Get("title"),
		Stub:     fields.Get("stub"),
		Date:     fields.Get("date"),
		Keywords: fields.Keywords(),
	}
	if id, err := strconv.Atoi(fields.Get("id")); err == nil {
		rec.ID = id
	}
	for _, key := range fields.Keys() {
		switch key {
		case "id", "title", "stub", "date", "keywords":
			continue
		}
		if rec.Extra == nil {
			rec.Extra = make(map[string]string)
		}
		rec.Extra[key] = fields.Get(key)
	}
	return rec
}

var reCompositeID = regexp.MustCompile(`^(\d+)-.+$`)

// parseContentID extracts the numeric id from a bare number or an
// "{id}-{stub}" composite.
func parseContentID(s string) (int, bool) {
	if id, err := strconv.Atoi(s); err == nil {
		return id, true
	}
	if m := reCompositeID.FindStringSubmatch(s); m != nil {
		id, err := strconv.Atoi(m[1])
		return id, err == nil
	}
	return 0, false
}

// Get loads the full record for a bare numeric id or an {id}-{stub}
// composite, applying markdown preprocessing and resolving relations up to
// relationDepth hops.
func (s *Store) Get(contentType, idOrComposite string, relationDepth int) (*ContentRecord, error) {
	id, ok := parseContentID(idOrComposite)
	if !ok {
		s.debug("get_content", "id is not numeric", idOrComposite)
		return nil, ErrNotFound
	}
	return s.getByID(contentType, id, relationDepth)
}

func (s *Store) getByID(contentType string, id, relationDepth int) (*ContentRecord, error) {
	listing, err := s.List(contentType)
	if err != nil {
		return nil, err
	}

	for _, summary := range listing.Records {
		if summary.ID != id {
			continue
		}
		path := filepath.Join(s.typeDir(contentType), summary.Path)
		data, err := os.ReadFile(path)
		if err != nil {
			s.debug("get_content", "content file not found", path, err)
			return nil, ErrNotFound
		}

		fields, body := parseFrontmatter(string(data))
		rec := recordFromFields(contentType, summary.Path, fields)
		if rec.ID <= 0 {
			rec.ID = id
		}
		rec.Content = body

		cfg := s.cfg.ContentTypes[contentType]
		s.processMarkdown(&rec, cfg)
		if relationDepth > 0 {
			s.processRelations(&rec, cfg, relationDepth)
		}
		s.computeURLs(&rec)
		return &rec, nil
	}

	s.debug("get_content", "content not found in list", contentType, id)
	return nil, ErrNotFound
}

// GetByStub scans the cached summary list for a stub match and delegates to
// getByID for the full load.
func (s *Store) GetByStub(contentType, stub string, relationDepth int) (*ContentRecord, error) {
	listing, err := s.List(contentType)
	if err != nil {
		return nil, err
	}
	for _, summary := range listing.Records {
		if summary.Stub == stub {
			return s.getByID(contentType, summary.ID, relationDepth)
		}
	}
	return nil, ErrNotFound
}

// processMarkdown renders the HTML variants the type's preprocess config
// asks for.
func (s *Store) processMarkdown(rec *ContentRecord, cfg ContentTypeConfig) {
	if s.cfg.Markdown.Disabled || s.md == nil {
		return
	}
	if cfg.preprocessHas("content") && rec.Content != "" {
		if html, err := s.md.Render(rec.Content); err == nil {
			rec.ContentHTML = html
		} else {
			s.debug("process_markdown", "content render failed", rec.Type, rec.ID, err)
		}
	}
	if cfg.preprocessHas("abstract") {
		if abstract := rec.Extra["abstract"]; abstract != "" {
			if html, err := s.md.Render(abstract); err == nil {
				rec.AbstractHTML = html
			}
		}
		if cn := rec.Extra["abstract_cn"]; cn != "" {
			if html, err := s.md.Render(cn); err == nil {
				rec.Extra["abstract_cn_html"] = html
			}
		}
	}
}

// processRelations resolves one related record per configured relation
// field, recursing with a decremented depth. The hard decrement-to-zero stop
// bounds self-referential chains.
func (s *Store) processRelations(rec *ContentRecord, cfg ContentTypeConfig, depth int) {
	for field, relType := range cfg.Relations {
		ref := rec.Field(field)
		if ref == "" {
			continue
		}
		related, err := s.Get(relType, ref, depth-1)
		if err != nil {
			s.debug("process_relations", "relation load failed", rec.Type, rec.ID, field, err)
			continue
		}
		if rec.Related == nil {
			rec.Related = make(map[string]*ContentRecord)
		}
		rec.Related[relType] = related
	}
}

// computeURLs fills the derived view URL (from the route table) and the
// record's image URL.
func (s *Store) computeURLs(rec *ContentRecord) {
	if route := routeForContentType(s.cfg.Menu, rec.Type); route != nil {
		rec.URL = "/" + route.Path + "/" + strconv.Itoa(rec.ID) + "-" + rec.Stub
	}
	if img := rec.Extra["image"]; img != "" {
		rec.ImageURL = fmt.Sprintf("/content/%s/images/%d/%s", rec.Type, rec.ID, img)
	}
}

// rawBody re-reads a record's file and returns the unprocessed markdown body.
func (s *Store) rawBody(contentType, filename string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.typeDir(contentType), filename))
	if err != nil {
		return "", err
	}
	_, body := parseFrontmatter(string(data))
	return body, nil
}

// Save validates and persists form data as a content record, creating a new
// record when no content_id is supplied and updating in place otherwise.
func (s *Store) Save(contentType string, form url.Values) (SaveResult, error) {
	cfg, ok := s.cfg.ContentTypes[contentType]
	if !ok {
		return SaveResult{}, fmt.Errorf("flathill: unknown content type %q", contentType)
	}

	for _, field := range cfg.RequiredFields {
		if strings.TrimSpace(form.Get(field)) == "" {
			s.debug("content_save", "validation failed - missing required field", field)
			return SaveResult{}, &ValidationError{Field: field}
		}
	}

	handler := s.handlerFor(contentType)
	if err := handler.Validate(form); err != nil {
		return SaveResult{}, err
	}

	if err := os.MkdirAll(s.typeDir(contentType), 0o755); err != nil {
		return SaveResult{}, fmt.Errorf("content_save: create content dir: %w", err)
	}

	meta := s.prepareMetadata(contentType, form, cfg, handler)

	body := ""
	if cfg.requires("content") {
		body = form.Get("content")
	}
	stub := form.Get("stub")

	if form.Get("content_id") == "" {
		return s.create(contentType, meta, body, stub, handler)
	}
	return s.update(contentType, meta, body, stub, form.Get("content_id"))
}

// prepareMetadata assembles the frontmatter field set for a save: required
// fields minus the body, handler-contributed fields, and the shared optional
// fields every type understands.
func (s *Store) prepareMetadata(contentType string, form url.Values, cfg ContentTypeConfig, handler ContentHandler) *Fields {
	meta := NewFields()
	for _, field := range cfg.RequiredFields {
		if field == "content" {
			continue
		}
		if field == "keywords" {
			meta.SetKeywords(FilterEmpty(strings.Split(form.Get("keywords"), ",")))
			continue
		}
		meta.Set(field, form.Get(field))
	}

	handler.OptionalMetadata(meta, form)

	if !meta.Has("keywords") {
		if kw := FilterEmpty(strings.Split(form.Get("keywords"), ",")); len(kw) > 0 {
			meta.SetKeywords(kw)
		}
	}
	if v := form.Get("image"); v != "" {
		meta.Set("image", v)
	}
	if v := form.Get("abstract_cn"); v != "" {
		meta.Set("abstract_cn", v)
	}

	if v := form.Get("abstract"); v != "" {
		meta.Set("abstract", v)
	} else if cfg.AbstractLength > 0 {
		meta.Set("abstract", GenerateAbstract(form.Get("content"), cfg.AbstractLength))
	}

	if _, present := form["sticky"]; present && form.Get("sticky") != "" {
		meta.Set("sticky", "1")
	}
	if _, present := form["location"]; present {
		meta.Set("location", strings.TrimSpace(form.Get("location")))
	}

	handler.PreprocessSave(meta, form, cfg)
	return meta
}

// create assigns the next sequential id and writes the new file. The id is
// reserved by exclusive file creation, so two racing creates cannot both
// claim the same filename.
func (s *Store) create(contentType string, meta *Fields, body, stub string, handler ContentHandler) (SaveResult, error) {
	listing, err := s.List(contentType)
	if err != nil {
		return SaveResult{}, err
	}
	newID := 1
	for _, rec := range listing.Records {
		if rec.ID >= newID {
			newID = rec.ID + 1
		}
	}

	meta.Set("id", strconv.Itoa(newID))
	if body != "" {
		body = rewriteStagedImageURLs(body, contentType, newID)
	}
	handler.PostprocessImageURLs(meta, contentType, newID)

	filename := fmt.Sprintf("%d-%s.md", newID, stub)
	path := filepath.Join(s.typeDir(contentType), filename)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			s.debug("content_save", "id collision, file exists", path)
			return SaveResult{}, ErrConflict
		}
		return SaveResult{}, fmt.Errorf("content_save: create %s: %w", path, err)
	}
	_, werr := f.WriteString(renderMarkdownFile(serializeFrontmatter(meta), body))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		os.Remove(path)
		if werr == nil {
			werr = cerr
		}
		return SaveResult{}, fmt.Errorf("content_save: write %s: %w", path, werr)
	}

	s.migrateStagedImages(contentType, newID)
	if err := s.cache.InvalidateListing(contentType); err != nil {
		s.debug("content_save", "cache invalidation failed", contentType, err)
	}
	s.debug("content_save", "created", contentType, newID, filename)
	return SaveResult{ID: newID, Stub: stub}, nil
}

// update rewrites an existing record, renaming the file when its stub
// changed. The rename fails rather than overwrite a file another record
// already occupies.
func (s *Store) update(contentType string, meta *Fields, body, stub, contentID string) (SaveResult, error) {
	id, ok := parseContentID(contentID)
	if !ok {
		return SaveResult{}, ErrNotFound
	}
	meta.Set("id", strconv.Itoa(id))

	listing, err := s.List(contentType)
	if err != nil {
		return SaveResult{}, err
	}
	var existing *ContentRecord
	for i := range listing.Records {
		if listing.Records[i].ID == id {
			existing = &listing.Records[i]
			break
		}
	}
	if existing == nil {
		s.debug("content_save", "content not found", contentType, id)
		return SaveResult{}, ErrNotFound
	}

	dir := s.typeDir(contentType)
	path := filepath.Join(dir, existing.Path)
	newFilename := fmt.Sprintf("%d-%s.md", id, stub)

	if existing.Path != newFilename {
		newPath := filepath.Join(dir, newFilename)
		if _, err := os.Stat(newPath); err == nil {
			s.debug("content_save", "cannot rename - target file exists", newPath)
			return SaveResult{}, ErrConflict
		}
		if err := os.Rename(path, newPath); err != nil {
			return SaveResult{}, fmt.Errorf("content_save: rename %s: %w", newPath, err)
		}
		path = newPath
		s.debug("content_save", "file renamed", path)
	}

	content := renderMarkdownFile(serializeFrontmatter(meta), body)
	if err := atomic.WriteFile(path, strings.NewReader(content)); err != nil {
		return SaveResult{}, fmt.Errorf("content_save: write %s: %w", path, err)
	}

	if err := s.cache.InvalidateListing(contentType); err != nil {
		s.debug("content_save", "cache invalidation failed", contentType, err)
	}
	s.debug("content_save", "updated", contentType, id, newFilename)
	return SaveResult{ID: id, Stub: stub}, nil
}

// migrateStagedImages moves files uploaded before the record had an id from
// the _new staging directory into the record's own directory. Individual
// move failures are logged, not fatal; the staging directory is removed only
// once empty.
func (s *Store) migrateStagedImages(contentType string, id int) {
	staging := s.imagesDir(contentType, "_new")
	entries, err := os.ReadDir(staging)
	if err != nil {
		return
	}

	target := s.imagesDir(contentType, strconv.Itoa(id))
	if err := os.MkdirAll(target, 0o755); err != nil {
		s.debug("content_save", "failed to create images directory", target, err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(staging, entry.Name())
		dst := filepath.Join(target, entry.Name())
		if err := os.Rename(src, dst); err != nil {
			s.debug("content_save", "failed to move image", entry.Name(), err)
			continue
		}
		s.debug("content_save", "moved image from _new", entry.Name(), id)
	}

	// Remove fails while files remain, which is the intended behavior.
	if err := os.Remove(staging); err == nil {
		s.debug("content_save", "removed empty _new directory", contentType)
	}
}

// Delete removes a record's file and invalidates the type's cache. A file
// already absent on disk is logged but still counts as a successful delete;
// the record's image directory is left behind.
func (s *Store) Delete(contentType string, id int) error {
	listing, err := s.List(contentType)
	if err != nil {
		return err
	}

	var existing *ContentRecord
	for i := range listing.Records {
		if listing.Records[i].ID == id {
			existing = &listing.Records[i]
			break
		}
	}
	if existing == nil {
		s.debug("content_delete", "content not found", contentType, id)
		return ErrNotFound
	}

	path := filepath.Join(s.typeDir(contentType), existing.Path)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			s.debug("content_delete", "file already absent", path)
		} else {
			return fmt.Errorf("content_delete: remove %s: %w", path, err)
		}
	} else {
		s.debug("content_delete", "file deleted", path)
	}

	if err := s.cache.InvalidateListing(contentType); err != nil {
		s.debug("content_delete", "cache invalidation failed", contentType, err)
	}
	return nil
}

// routeForContentType finds the declared route owning a content type.
func routeForContentType(menu []Route, contentType string) *Route {
	for i := range menu {
		if menu[i].ContentType == contentType {
			return &menu[i]
		}
	}
	return nil
}
