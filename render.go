package flathill

import (
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Renderer executes page templates from the pages directory with the shared
// partials from the templates directory available to every page. Parsed
// pages are cached; debug mode reparses on every request.
type Renderer struct {
	pagesDir     string
	templatesDir string
	debug        bool
	extra        template.FuncMap

	mu    sync.Mutex
	cache map[string]*template.Template
}

// NewRenderer creates a Renderer over the pages and templates directories.
func NewRenderer(pagesDir, templatesDir string, debug bool) *Renderer {
	return &Renderer{
		pagesDir:     pagesDir,
		templatesDir: templatesDir,
		debug:        debug,
		cache:        make(map[string]*template.Template),
	}
}

// Funcs adds template functions on top of the built-in set. Must be called
// before the first render.
func (r *Renderer) Funcs(fm template.FuncMap) {
	if r.extra == nil {
		r.extra = make(template.FuncMap, len(fm))
	}
	for name, fn := range fm {
		r.extra[name] = fn
	}
}

var templateFuncs = template.FuncMap{
	"safe": func(s string) template.HTML { return template.HTML(s) },
	"date": func(layout, value string) string {
		for _, in := range []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339} {
			if t, err := time.Parse(in, value); err == nil {
				return t.Format(layout)
			}
		}
		return value
	},
	"join":  strings.Join,
	"lower": strings.ToLower,
	"now":   time.Now,
}

// Page executes the page template named by its path relative to the pages
// directory (as set by template lookup during resolution).
func (r *Renderer) Page(w http.ResponseWriter, page string, vars map[string]any) error {
	tmpl, err := r.load(page)
	if err != nil {
		return err
	}
	return tmpl.ExecuteTemplate(w, filepath.Base(page), vars)
}

func (r *Renderer) load(page string) (*template.Template, error) {
	if !r.debug {
		r.mu.Lock()
		cached, ok := r.cache[page]
		r.mu.Unlock()
		if ok {
			return cached, nil
		}
	}

	tmpl := template.New(filepath.Base(page)).Funcs(templateFuncs)
	if len(r.extra) > 0 {
		tmpl = tmpl.Funcs(r.extra)
	}

	partials, err := filepath.Glob(filepath.Join(r.templatesDir, "*.html"))
	if err != nil {
		return nil, err
	}
	if len(partials) > 0 {
		if tmpl, err = tmpl.ParseFiles(partials...); err != nil {
			return nil, fmt.Errorf("flathill: parse templates: %w", err)
		}
	}

	if tmpl, err = tmpl.ParseFiles(filepath.Join(r.pagesDir, filepath.FromSlash(page))); err != nil {
		return nil, fmt.Errorf("flathill: parse page %s: %w", page, err)
	}

	if !r.debug {
		r.mu.Lock()
		r.cache[page] = tmpl
		r.mu.Unlock()
	}
	return tmpl, nil
}

// render writes a page template as an HTML response with the given status.
func (a *App) render(c echo.Context, code int, page string, vars map[string]any) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return a.Renderer.Page(c.Response().Writer, page, vars)
}

// baseVars assembles the variables every page render receives.
func (a *App) baseVars(c echo.Context, rr *ResolvedRoute, user *User) map[string]any {
	vars := map[string]any{
		"site_name":  a.Config.Name,
		"site_url":   a.Config.URL,
		"meta":       a.Config.Meta,
		"path":       rr.Path,
		"menu":       BuildMenu(a.Config.Menu, rr, user),
		"csrf_token": CsrfToken(c),
	}
	if secondary := a.BuildSecondaryMenu(rr); len(secondary) > 0 {
		vars["secondary_menu"] = secondary
	}
	if user != nil {
		vars["user"] = user
	}
	return vars
}
