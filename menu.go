package flathill

import (
	"regexp"
	"strconv"
)

// Route is one declared node of the route table: a static page, a
// content-type index, or an auth/action rule. Declared routes are immutable
// configuration; per-request variants are synthesized by the resolver.
type Route struct {
	Label       string   `yaml:"label"`
	Path        string   `yaml:"path"`
	PathAliases []string `yaml:"path_aliases"`

	// Children holds nested static pages. ContentChildren names a content
	// type whose records become the dynamic children instead.
	Children        []Route `yaml:"children"`
	ContentChildren string  `yaml:"content_children"`

	ContentType string `yaml:"content_type"`
	Action      string `yaml:"action"` // declared action, e.g. "login"
	ErrorPath   string `yaml:"error_path"`
	ViewPath    string `yaml:"view_path"`
	Preprocess  string `yaml:"preprocess"`

	AuthRequired bool     `yaml:"auth_required"`
	Roles        []string `yaml:"roles"`
	ShowFor      []string `yaml:"show_for"` // roles plus _guest/_user tokens

	Hidden      bool     `yaml:"hidden"`
	HideOnPaths []string `yaml:"hide_on_paths"`
}

// matchesPath reports whether the route's canonical path, an alias, or its
// view path equals p.
func (r *Route) matchesPath(p string) bool {
	if r.Path == p || r.ViewPath == p {
		return true
	}
	for _, alias := range r.PathAliases {
		if alias == p {
			return true
		}
	}
	return false
}

func (r *Route) viewPathOrDefault() string {
	if r.ViewPath != "" {
		return r.ViewPath
	}
	return r.Path
}

// MenuItem is one processed navigation entry handed to templates.
type MenuItem struct {
	Label   string
	Path    string
	URL     string
	Active  bool
	Classes []string
}

var reExternalURL = regexp.MustCompile(`^(https?:/)?/`)

func processMenuItem(route Route, rr *ResolvedRoute, parent *Route) MenuItem {
	path := route.Path
	if parent != nil && !reExternalURL.MatchString(path) {
		path = parent.Path + "/" + path
	}

	item := MenuItem{Label: route.Label, Path: path}
	item.Active = path == rr.Path ||
		route.ViewPath == rr.Path ||
		(rr.OriginalPath != "" && path == rr.OriginalPath)
	if !item.Active {
		for _, alias := range route.PathAliases {
			if alias == rr.Path {
				item.Active = true
				break
			}
		}
	}
	if item.Active {
		item.Classes = append(item.Classes, "active")
	}

	if reExternalURL.MatchString(path) {
		item.URL = path
	} else {
		item.URL = "/" + path
	}
	return item
}

// BuildMenu returns the primary navigation for the current path and user,
// filtering hidden entries and entries whose show_for the caller fails.
func BuildMenu(menu []Route, rr *ResolvedRoute, user *User) []MenuItem {
	var items []MenuItem
	for _, route := range menu {
		if route.Hidden {
			continue
		}
		hidden := false
		for _, p := range route.HideOnPaths {
			if p == rr.Path {
				hidden = true
				break
			}
		}
		if hidden {
			continue
		}
		if len(route.ShowFor) > 0 && !showForAllows(route.ShowFor, user) {
			continue
		}
		items = append(items, processMenuItem(route, rr, nil))
	}
	return items
}

// BuildSecondaryMenu returns the children of the route owning the current
// path: either its declared static subpages, or one entry per record of its
// content type.
func (a *App) BuildSecondaryMenu(rr *ResolvedRoute) []MenuItem {
	var parent *Route
	for i := range a.Config.Menu {
		route := &a.Config.Menu[i]
		if len(route.Children) == 0 && route.ContentChildren == "" {
			continue
		}
		if route.matchesPath(rr.Path) {
			parent = route
			break
		}
	}
	if parent == nil {
		return nil
	}

	if len(parent.Children) > 0 {
		items := make([]MenuItem, 0, len(parent.Children))
		for _, child := range parent.Children {
			items = append(items, processMenuItem(child, rr, parent))
		}
		return items
	}

	listing, err := a.Store.List(parent.ContentChildren)
	if err != nil {
		a.Echo.Logger.Errorf("secondary menu: list %s: %v", parent.ContentChildren, err)
		return nil
	}
	items := make([]MenuItem, 0, len(listing.Records))
	for _, rec := range listing.Records {
		label := rec.Title
		if label == "" {
			label = "N/A"
		}
		stub := rec.Stub
		if stub == "" {
			stub = strconv.Itoa(rec.ID)
		}
		items = append(items, processMenuItem(Route{
			Label: label,
			Path:  stub,
		}, rr, parent))
	}
	return items
}
