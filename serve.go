package flathill

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// PreprocessFunc is a named serve hook a route can reference to contribute
// page-specific variables before rendering.
type PreprocessFunc func(a *App, c echo.Context, rr *ResolvedRoute, vars map[string]any) error

const (
	msgPageNotFound     = "The page was not found."
	msgContentNotFound  = "The content was not found."
	msgContentListEmpty = "There is no content to show yet."
)

// relationDepthFull bounds recursive relation joins on single-record views.
const relationDepthFull = 3

// serveContent assembles the render variables for a resolved content route,
// branching on the synthesized action. Not-found conditions mark the route
// instead of erroring; the dispatch loop turns markers into the error page.
func (a *App) serveContent(c echo.Context, rr *ResolvedRoute, vars map[string]any) {
	if rr.Route == nil || rr.Route.ContentType == "" {
		a.debugLog("content_preprocess", "content type not found", rr.Path)
		rr.Err = routeErrContentNotFound
		vars["message"] = msgContentNotFound
		return
	}

	contentType := rr.Route.ContentType
	vars["content_type"] = contentType

	switch rr.Action {
	case ActionEdit, ActionAdd:
		a.serveEditForm(c, rr, vars)
		return
	case ActionDelete:
		a.serveDeleteConfirm(c, rr, vars)
		return
	}

	// Single record view by stub or composite.
	if rr.Stub != "" {
		rec, err := a.loadByRef(contentType, rr.Stub)
		if err == nil {
			a.processSiblings(rec)
			vars["content"] = rec
			return
		}
		a.debugLog("content_preprocess", "content not found", contentType, rr.Stub)
		vars["message"] = msgContentNotFound
	}

	// Fallback: filtered, type-processed list view.
	listing, err := a.Store.List(contentType)
	if err != nil {
		a.Echo.Logger.Errorf("content list %s: %v", contentType, err)
		rr.Err = routeErrContentNotFound
		vars["message"] = msgContentNotFound
		return
	}

	view := &Listing{Records: listing.Records, Keywords: listing.Keywords}
	if filter := parseListFilter(c.QueryParams()); filter != nil {
		view.Records = filterRecords(view.Records, filter)
	}

	handler := a.Store.handlerFor(contentType)
	if handler.ProcessList(view, rr, vars) {
		return
	}

	cfg := a.Config.ContentTypes[contentType]
	processed := make([]ContentRecord, len(view.Records))
	for i, rec := range view.Records {
		a.Store.computeURLs(&rec)
		a.Store.processRelations(&rec, cfg, 1)
		processed[i] = rec
	}
	view.Records = processed

	if len(view.Records) == 0 {
		vars["message"] = msgContentListEmpty
	}
	vars["content_list"] = view
}

// loadByRef loads a full record by {id}-{stub} composite, bare id, or bare
// stub, with full relation depth.
func (a *App) loadByRef(contentType, ref string) (*ContentRecord, error) {
	if _, ok := parseContentID(ref); ok {
		return a.Store.Get(contentType, ref, relationDepthFull)
	}
	return a.Store.GetByStub(contentType, ref, relationDepthFull)
}

func (a *App) serveEditForm(c echo.Context, rr *ResolvedRoute, vars map[string]any) {
	contentType := rr.Route.ContentType
	vars["action"] = rr.Action.String()
	vars["type_config"] = a.Config.ContentTypes[contentType]
	if msg := c.QueryParam("error"); msg != "" {
		vars["error"] = msg
	}

	handler := a.Store.handlerFor(contentType)

	if rr.Action == ActionAdd {
		vars["content"] = handler.DefaultStructure()
		return
	}

	if rr.ContentID == 0 {
		a.debugLog("content_preprocess_edit", "content id not found", rr.Path)
		rr.Err = routeErrContentNotFound
		vars["message"] = msgContentNotFound
		return
	}

	rec, err := a.Store.Get(contentType, strconv.Itoa(rr.ContentID), relationDepthFull)
	if err != nil {
		a.debugLog("content_preprocess_edit", "content not found", contentType, rr.ContentID)
		rr.Err = routeErrContentNotFound
		vars["message"] = msgContentNotFound
		return
	}
	handler.PrepareForEdit(rec, a.Store)
	vars["content"] = rec
}

func (a *App) serveDeleteConfirm(c echo.Context, rr *ResolvedRoute, vars map[string]any) {
	contentType := rr.Route.ContentType
	vars["action"] = "delete"
	if msg := c.QueryParam("error"); msg != "" {
		vars["error"] = msg
	}

	if rr.ContentID == 0 {
		a.debugLog("content_preprocess_delete", "content id not found", rr.Path)
		rr.Err = routeErrContentNotFound
		vars["message"] = msgContentNotFound
		return
	}

	rec, err := a.Store.Get(contentType, strconv.Itoa(rr.ContentID), relationDepthFull)
	if err != nil {
		a.debugLog("content_preprocess_delete", "content not found", contentType, rr.ContentID)
		rr.Err = routeErrContentNotFound
		vars["message"] = msgContentNotFound
		return
	}
	vars["content"] = rec
}

// processSiblings attaches previous/next neighbors from the type's
// date-ordered listing for types with the siblings preprocess behavior.
func (a *App) processSiblings(rec *ContentRecord) {
	cfg, ok := a.Config.ContentTypes[rec.Type]
	if !ok || !cfg.preprocessHas("siblings") {
		return
	}
	listing, err := a.Store.List(rec.Type)
	if err != nil {
		return
	}

	siblings := &Siblings{}
	for i := range listing.Records {
		if listing.Records[i].ID != rec.ID {
			continue
		}
		if i > 0 {
			prev := listing.Records[i-1]
			a.Store.computeURLs(&prev)
			siblings.Previous = &prev
		}
		if i+1 < len(listing.Records) {
			next := listing.Records[i+1]
			a.Store.computeURLs(&next)
			siblings.Next = &next
		}
		break
	}
	rec.Siblings = siblings
}

// ListFilter restricts a listing by keyword intersection and date range.
type ListFilter struct {
	Keywords []string
	DateFrom string
	DateTo   string
}

// parseListFilter reads filter[...] query parameters; nil means unfiltered.
func parseListFilter(query map[string][]string) *ListFilter {
	f := &ListFilter{}
	for _, v := range query["filter[keywords]"] {
		f.Keywords = append(f.Keywords, FilterEmpty(strings.Split(v, ","))...)
	}
	if v := query["filter[date_from]"]; len(v) > 0 {
		f.DateFrom = v[0]
	}
	if v := query["filter[date_to]"]; len(v) > 0 {
		f.DateTo = v[0]
	}
	if len(f.Keywords) == 0 && f.DateFrom == "" && f.DateTo == "" {
		return nil
	}
	return f
}

func filterRecords(records []ContentRecord, f *ListFilter) []ContentRecord {
	var out []ContentRecord
	for _, rec := range records {
		if matchesFilter(&rec, f) {
			out = append(out, rec)
		}
	}
	return out
}

func matchesFilter(rec *ContentRecord, f *ListFilter) bool {
	if len(f.Keywords) > 0 {
		if len(rec.Keywords) == 0 {
			return false
		}
		hit := false
		for _, want := range f.Keywords {
			if containsString(rec.Keywords, want) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}

	recDate := parseFilterDate(rec.Date)
	if f.DateFrom != "" {
		if from := parseFilterDate(f.DateFrom); !from.IsZero() && from.After(recDate) {
			return false
		}
	}
	if f.DateTo != "" {
		if to := parseFilterDate(f.DateTo); !to.IsZero() && to.Before(recDate) {
			return false
		}
	}
	return true
}

func parseFilterDate(s string) time.Time {
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
