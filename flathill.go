// Package flathill is a flat-file content management engine built with Go
// and Echo. Content lives as markdown files with frontmatter under a content
// directory; a declarative route table maps URL paths onto page templates
// and content types, with create/edit/delete flows, role-gated access, and
// an SQLite-backed listing cache out of the box.
package flathill

import (
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/eringen/flathill/markdown"
)

// App is the central flathill application. It wires together the config,
// store, cache, resolver, renderer, and the HTTP layer.
type App struct {
	Config   SiteConfig
	Echo     *echo.Echo
	Store    *Store
	Cache    *Cache
	Resolver *Resolver
	Renderer *Renderer
	Markdown *markdown.Renderer

	handlers     map[string]ContentHandler
	preprocess   map[string]PreprocessFunc
	customRoutes []func(*App)
	loginLimiter *LoginLimiter

	mu            sync.Mutex
	servePatterns map[string]*regexp.Regexp
}

// New creates a flathill App with the given configuration. Options may
// register custom content handlers, serve hooks, and extra routes.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:        cfg,
		Echo:          echo.New(),
		handlers:      make(map[string]ContentHandler),
		preprocess:    make(map[string]PreprocessFunc),
		servePatterns: make(map[string]*regexp.Regexp),
	}

	a.handlers["post"] = NewPostHandler()
	a.preprocess["content"] = func(a *App, c echo.Context, rr *ResolvedRoute, vars map[string]any) error {
		a.serveContent(c, rr, vars)
		return nil
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// initialize opens the cache and wires the store, resolver, and renderer.
func (a *App) initialize() error {
	cache, err := OpenCache(a.Config.CachePath)
	if err != nil {
		return fmt.Errorf("flathill: open cache: %w", err)
	}
	a.Cache = cache

	var rendered markdown.Cache
	if !a.Config.Markdown.CacheDisabled {
		rendered = renderedCache{c: cache}
	}
	a.Markdown = markdown.New(rendered)

	a.Store = NewStore(&a.Config, a.Cache, a.Markdown, a.handlers)
	a.Resolver = NewResolver(a.Config.Menu, a.Config.PagesDir)
	a.Renderer = NewRenderer(a.Config.PagesDir, a.Config.TemplatesDir, a.Config.Debug)
	a.Renderer.Funcs(template.FuncMap{
		"markdown": func(src string) template.HTML {
			out, err := a.Markdown.Render(src)
			if err != nil {
				a.Echo.Logger.Errorf("markdown template func: %v", err)
				return ""
			}
			return template.HTML(out)
		},
	})
	a.loginLimiter = NewLoginLimiter(5, time.Minute)
	return nil
}

// Start initializes the cache, store, resolver, renderer, middleware, and
// routes, then starts the HTTP server.
func (a *App) Start() error {
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("flathill: SessionSecret is required")
	}

	if err := a.initialize(); err != nil {
		return err
	}

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}

	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.Cache != nil {
		return a.Cache.Close()
	}
	return nil
}

func (a *App) debugLog(op string, args ...any) {
	if a.Config.Debug {
		log.Printf("%s: %v", op, args)
	}
}

func (a *App) setupMiddleware() {
	e := a.Echo

	e.IPExtractor = echo.ExtractIPFromXFFHeader(
		echo.TrustLoopback(true),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(true),
	)

	e.HTTPErrorHandler = a.httpErrorHandler

	e.Pre(middleware.RemoveTrailingSlashWithConfig(middleware.TrailingSlashConfig{
		RedirectCode: http.StatusMovedPermanently,
	}))

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			c.Logger().Infof("%s %s -> %d (%s)", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	e.Use(middleware.Recover())

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasPrefix(path, "/public/") || strings.HasPrefix(path, "/content/")
		},
	}))

	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' https: data:; font-src 'self'; connect-src 'self' data: blob:",
		HSTSMaxAge:            31536000,
		HSTSExcludeSubdomains: false,
	}))

	e.Use(session.Middleware(a.newSessionStore()))

	e.Use(middleware.CSRFWithConfig(middleware.CSRFConfig{
		ContextKey:  middleware.DefaultCSRFConfig.ContextKey,
		TokenLookup: "header:X-CSRF-Token,form:_csrf",
		CookieName:  "_csrf",
		CookiePath:  "/",
		CookieSameSite: func() http.SameSite {
			return http.SameSiteLaxMode
		}(),
		CookieSecure: a.Config.CookieSecure,
		ErrorHandler: func(err error, c echo.Context) error {
			return c.String(http.StatusForbidden, "Forbidden")
		},
	}))

	e.Use(cacheControlMiddleware)
}

func cacheControlMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := c.Request().URL.Path
		switch {
		case strings.HasPrefix(path, "/public/"):
			c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		case path == "/sitemap.xml" || path == "/feed.xml" || path == "/robots.txt":
			c.Response().Header().Set("Cache-Control", "public, max-age=86400")
		case strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/login"):
			c.Response().Header().Set("Cache-Control", "no-store")
		default:
			c.Response().Header().Set("Cache-Control", "public, max-age=3600")
		}
		return next(c)
	}
}

func (a *App) newSessionStore() *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(a.Config.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		MaxAge:   60 * 60 * 12,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.Config.CookieSecure,
	}
	return store
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/public", a.Config.StaticDir)
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)

	e.GET("/login", a.handleLoginForm)
	e.POST("/login", a.handleLogin)
	e.GET("/logout", a.handleLogout)
	e.POST("/logout", a.handleLogout)

	e.POST("/api/upload", a.handleImageUpload)
	e.GET("/api/list-images", a.handleImageList)

	e.GET("/*", a.handlePage)
	e.POST("/*", a.handlePage)
}

func (a *App) handleRobots(c echo.Context) error {
	body := "User-agent: *\nAllow: /\n\nSitemap: " + a.Config.URL + "/sitemap.xml\n"
	return c.String(http.StatusOK, body)
}

// httpErrorHandler renders 404s through the site error page and answers
// other failures plainly.
func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he, ok := err.(*echo.HTTPError)
	if ok && he.Code == http.StatusNotFound {
		rr := &ResolvedRoute{
			Path:         sanitizePath(c.Request().URL.Path),
			OriginalPath: sanitizePath(c.Request().URL.Path),
			Err:          routeErrFileNotFound,
			Generic:      true,
		}
		vars := map[string]any{"message": msgPageNotFound}
		if rerr := a.renderErrorPage(c, rr, a.currentUser(c), vars); rerr != nil {
			c.Logger().Errorf("error page render: %v", rerr)
			_ = c.String(http.StatusNotFound, "Not found")
		}
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		c.Logger().Errorf("server error: %v", err)
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}

// CsrfToken extracts the CSRF token from the Echo context for form renders.
func CsrfToken(c echo.Context) string {
	token, _ := c.Get(middleware.DefaultCSRFConfig.ContextKey).(string)
	return token
}

// EnvOr returns the value of the environment variable key, or fallback if
// empty. A convenience for scaffolded main.go files.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
