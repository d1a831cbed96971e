package flathill

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Action is what a resolved route asks the dispatch loop to do.
type Action int

const (
	ActionNone Action = iota
	ActionView
	ActionEdit
	ActionAdd
	ActionSave
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionView:
		return "view"
	case ActionEdit:
		return "edit"
	case ActionAdd:
		return "add"
	case ActionSave:
		return "save"
	case ActionDelete:
		return "delete"
	}
	return ""
}

// Route error markers carried on a resolved route instead of hard errors,
// handled uniformly by the dispatch loop's error redirect.
const (
	routeErrContentNotFound = "content_not_found"
	routeErrFileNotFound    = "file_not_found"
)

// ResolvedRoute is the per-request result of path resolution: either a
// declared route projection, a synthesized content-action variant, or the
// generic fallback for unroutable paths.
type ResolvedRoute struct {
	// Route is the declared node backing this resolution; nil for the
	// generic fallback.
	Route *Route

	Path         string // canonical resolved path, the template lookup key
	OriginalPath string // the raw requested path

	Action    Action
	ContentID int
	Stub      string

	Generic  bool
	Err      string
	Template string // template file relative to the pages dir
}

// Resolver maps URL paths onto the declared route table.
type Resolver struct {
	menu     []Route
	pagesDir string
}

// NewResolver creates a Resolver over the declared route table.
func NewResolver(menu []Route, pagesDir string) *Resolver {
	return &Resolver{menu: menu, pagesDir: pagesDir}
}

var reUnsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9/_\-]+`)

// sanitizePath normalizes a raw URL path into a route path: leading and
// trailing slashes trimmed, disallowed characters collapsed to "-".
func sanitizePath(raw string) string {
	p := strings.Trim(raw, "/")
	return reUnsafePathChars.ReplaceAllString(p, "-")
}

var (
	reActionView   = regexp.MustCompile(`^view/((\d+)(?:-(.+))?)$`)
	reActionEdit   = regexp.MustCompile(`^edit/(\d+)(?:-.+)?$`)
	reActionDelete = regexp.MustCompile(`^delete/(\d+)(?:-.+)?$`)
)

// Resolve maps a sanitized path to a route descriptor.
func (r *Resolver) Resolve(path string) *ResolvedRoute {
	// Exact or alias match against declared routes.
	for i := range r.menu {
		route := &r.menu[i]
		if route.Path == path || containsString(route.PathAliases, path) {
			return &ResolvedRoute{Route: route, Path: route.Path, OriginalPath: path}
		}
	}

	if idx := strings.Index(path, "/"); idx > 0 {
		parent, child := path[:idx], path[idx+1:]

		// Nested static page declared as a child of a parent route.
		for i := range r.menu {
			route := &r.menu[i]
			if route.Path != parent && !containsString(route.PathAliases, parent) {
				continue
			}
			for j := range route.Children {
				if route.Children[j].Path == child {
					return &ResolvedRoute{Route: route, Path: path, OriginalPath: path}
				}
			}
		}

		// Content-type route: synthesize the action sub-route.
		for i := range r.menu {
			route := &r.menu[i]
			if route.ContentType == "" {
				continue
			}
			if route.Path != parent && !containsString(route.PathAliases, parent) {
				continue
			}
			return r.resolveContentChild(route, child, path)
		}
	}

	return &ResolvedRoute{Generic: true, Path: path, OriginalPath: path}
}

// resolveContentChild pattern-matches the sub-path of a content-type route
// into a synthesized action descriptor.
func (r *Resolver) resolveContentChild(route *Route, child, original string) *ResolvedRoute {
	rr := &ResolvedRoute{Route: route, OriginalPath: original}

	switch {
	case reActionView.MatchString(child):
		m := reActionView.FindStringSubmatch(child)
		rr.Action = ActionView
		rr.ContentID, _ = strconv.Atoi(m[2])
		rr.Stub = m[1]
		rr.Path = route.viewPathOrDefault()
	case reActionEdit.MatchString(child):
		m := reActionEdit.FindStringSubmatch(child)
		rr.Action = ActionEdit
		rr.ContentID, _ = strconv.Atoi(m[1])
		rr.Path = route.Path + "/edit"
	case reActionDelete.MatchString(child):
		m := reActionDelete.FindStringSubmatch(child)
		rr.Action = ActionDelete
		rr.ContentID, _ = strconv.Atoi(m[1])
		rr.Path = route.Path + "/delete"
	case child == "add":
		rr.Action = ActionAdd
		rr.Path = route.Path + "/add"
	case child == "save":
		rr.Action = ActionSave
		rr.Path = route.Path + "/save"
	default:
		// Shorthand view: the whole segment is a stub (or {id}-{stub}).
		rr.Action = ActionView
		rr.Stub = child
		if id, ok := parseContentID(child); ok {
			rr.ContentID = id
		}
		rr.Path = route.viewPathOrDefault()
	}
	return rr
}

// LookupTemplate finds the template file backing a resolved route, trying
// "{path}.html" then "{path}/content.html" under the pages directory. A
// missing template marks the route file_not_found regardless of whether the
// route itself resolved.
func (r *Resolver) LookupTemplate(rr *ResolvedRoute) {
	for _, candidate := range []string{rr.Path + ".html", rr.Path + "/content.html"} {
		if _, err := os.Stat(filepath.Join(r.pagesDir, filepath.FromSlash(candidate))); err == nil {
			rr.Template = candidate
			return
		}
	}
	rr.Err = routeErrFileNotFound
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
