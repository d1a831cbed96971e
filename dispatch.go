package flathill

import (
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	msgSaveFailed   = "Could not save the content."
	msgDeleteFailed = "Could not delete the content."
	msgConflict     = "Another record already uses this address. Pick a different stub."
)

// handlePage is the catch-all request handler: sanitize, resolve, authorize,
// apply side effects, assemble variables, render. Every unroutable or failed
// request funnels into the error page render instead of a bare HTTP error.
func (a *App) handlePage(c echo.Context) error {
	rawPath := c.Request().URL.Path

	if handled, err := a.serveTypedFile(c, rawPath); handled {
		return err
	}

	path := sanitizePath(rawPath)
	rr := a.Resolver.Resolve(path)
	user := a.currentUser(c)

	switch Authorize(a.Config.Menu, rr, user) {
	case AuthRedirectLogin:
		stashReturnURL(c, "/"+path)
		return c.Redirect(http.StatusFound, "/login")
	case AuthForbidden:
		return echo.NewHTTPError(http.StatusForbidden)
	}

	if c.Request().Method == http.MethodPost && isMutatingAction(rr.Action) {
		return a.handleMutation(c, rr)
	}

	vars := a.baseVars(c, rr, user)
	a.runPreprocess(c, rr, vars)

	a.Resolver.LookupTemplate(rr)
	if rr.Err != "" {
		return a.renderErrorPage(c, rr, user, vars)
	}
	return a.render(c, http.StatusOK, rr.Template, vars)
}

// runPreprocess runs the route's named serve hook. Routes with a content
// type but no explicit hook get the content pipeline.
func (a *App) runPreprocess(c echo.Context, rr *ResolvedRoute, vars map[string]any) {
	if rr.Route == nil {
		return
	}
	name := rr.Route.Preprocess
	if name == "" && rr.Route.ContentType != "" {
		name = "content"
	}
	if name == "" {
		return
	}
	fn, ok := a.preprocess[name]
	if !ok {
		a.debugLog("dispatch", "unknown preprocess", name, rr.Path)
		return
	}
	if err := fn(a, c, rr, vars); err != nil {
		a.Echo.Logger.Errorf("preprocess %s on %s: %v", name, rr.Path, err)
		rr.Err = routeErrContentNotFound
	}
}

// handleMutation applies a POST save or delete and answers with a redirect,
// never a rendered page. Failures bounce back to the originating form with
// a user-facing message in the error query parameter.
func (a *App) handleMutation(c echo.Context, rr *ResolvedRoute) error {
	contentType := rr.Route.ContentType
	handler := a.Store.handlerFor(contentType)

	form, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest)
	}

	switch rr.Action {
	case ActionSave:
		res, err := a.Store.Save(contentType, form)
		if err != nil {
			a.Echo.Logger.Errorf("save %s: %v", contentType, err)
			return a.redirectToForm(c, rr, form, saveErrorMessage(err))
		}
		target := handler.RedirectAfterSave(res, rr.Route.Path)
		if override := form.Get("redirect"); override != "" {
			target = override
		}
		return c.Redirect(http.StatusSeeOther, target)

	case ActionDelete:
		id := rr.ContentID
		if id == 0 {
			id, _ = strconv.Atoi(form.Get("content_id"))
		}
		if err := a.Store.Delete(contentType, id); err != nil {
			a.Echo.Logger.Errorf("delete %s/%d: %v", contentType, id, err)
			target := "/" + rr.Route.Path + "/delete/" + strconv.Itoa(id)
			return c.Redirect(http.StatusSeeOther, target+"?error="+url.QueryEscape(msgDeleteFailed))
		}
		return c.Redirect(http.StatusSeeOther, "/"+rr.Route.Path)
	}
	return echo.NewHTTPError(http.StatusBadRequest)
}

func (a *App) redirectToForm(c echo.Context, rr *ResolvedRoute, form url.Values, msg string) error {
	target := "/" + rr.Route.Path + "/add"
	if id := form.Get("content_id"); id != "" {
		target = "/" + rr.Route.Path + "/edit/" + id
	}
	return c.Redirect(http.StatusSeeOther, target+"?error="+url.QueryEscape(msg))
}

func saveErrorMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error() + "."
	}
	if errors.Is(err, ErrConflict) {
		return msgConflict
	}
	return msgSaveFailed
}

// renderErrorPage serves the error page declared for the failed route, or
// the site default. A visited set guards against error pages that
// themselves fail to resolve, ending in a plain 404.
func (a *App) renderErrorPage(c echo.Context, failed *ResolvedRoute, user *User, vars map[string]any) error {
	visited := map[string]bool{failed.Path: true}

	errPath := a.Config.ErrorPath
	if failed.Route != nil && failed.Route.ErrorPath != "" {
		errPath = failed.Route.ErrorPath
	}

	for {
		if visited[errPath] {
			if errPath == a.Config.ErrorPath {
				return c.String(http.StatusNotFound, "Not found")
			}
			errPath = a.Config.ErrorPath
			continue
		}
		visited[errPath] = true

		rr := a.Resolver.Resolve(errPath)
		rr.OriginalPath = failed.OriginalPath
		a.Resolver.LookupTemplate(rr)
		if rr.Err != "" {
			a.debugLog("dispatch", "error page unresolvable", errPath)
			errPath = a.Config.ErrorPath
			continue
		}

		errVars := a.baseVars(c, rr, user)
		if msg, ok := vars["message"]; ok {
			errVars["message"] = msg
		}
		a.runPreprocess(c, rr, errVars)
		return a.render(c, http.StatusNotFound, rr.Template, errVars)
	}
}

// serveTypedFile answers direct asset requests declared by a content type's
// serve_files patterns, mapping the URL onto a content directory file.
func (a *App) serveTypedFile(c echo.Context, rawPath string) (bool, error) {
	p := strings.TrimPrefix(rawPath, "/")
	for contentType, cfg := range a.Config.ContentTypes {
		for pattern, replacement := range cfg.ServeFiles {
			re, err := a.serveFilePattern(contentType, pattern)
			if err != nil {
				continue
			}
			if !re.MatchString(p) {
				continue
			}
			rel := re.ReplaceAllString(p, replacement)
			if strings.Contains(rel, "..") {
				return true, echo.NewHTTPError(http.StatusNotFound)
			}
			return true, c.File(filepath.Join(a.Config.ContentDir, filepath.FromSlash(rel)))
		}
	}
	return false, nil
}

// serveFilePattern compiles and memoizes one serve_files pattern.
func (a *App) serveFilePattern(contentType, pattern string) (*regexp.Regexp, error) {
	key := contentType + "\x00" + pattern
	a.mu.Lock()
	defer a.mu.Unlock()
	if re, ok := a.servePatterns[key]; ok {
		return re, nil
	}
	re, err := regexp.Compile("^" + pattern + "$")
	if err != nil {
		a.Echo.Logger.Errorf("serve_files pattern %q for %s: %v", pattern, contentType, err)
		return nil, err
	}
	a.servePatterns[key] = re
	return re, nil
}

// handleLoginForm serves the login page; authenticated users are sent home.
func (a *App) handleLoginForm(c echo.Context) error {
	if a.currentUser(c) != nil {
		return c.Redirect(http.StatusFound, "/")
	}
	rr := &ResolvedRoute{Path: "login", OriginalPath: "login"}
	a.Resolver.LookupTemplate(rr)
	if rr.Err != "" {
		return a.renderErrorPage(c, rr, nil, map[string]any{})
	}
	vars := a.baseVars(c, rr, nil)
	if msg := c.QueryParam("error"); msg != "" {
		vars["error"] = msg
	}
	return a.render(c, http.StatusOK, rr.Template, vars)
}

// handleLogin processes a login attempt behind the failure limiter.
func (a *App) handleLogin(c echo.Context) error {
	email := strings.TrimSpace(c.FormValue("email"))
	if email == "" {
		email = strings.TrimSpace(c.FormValue("username"))
	}
	password := c.FormValue("password")

	if !a.loginLimiter.Check(c.RealIP()) {
		a.Echo.Logger.Warnf("login throttled for %s", c.RealIP())
		return c.Redirect(http.StatusSeeOther, "/login?error="+url.QueryEscape("Too many attempts. Try again later."))
	}

	user, err := a.login(email, password)
	if err != nil {
		a.loginLimiter.Record(c.RealIP())
		return c.Redirect(http.StatusSeeOther, "/login?error="+url.QueryEscape("Invalid email or password."))
	}

	if err := setUserSession(c, user.Email); err != nil {
		a.Echo.Logger.Errorf("login session for %s: %v", email, err)
		return c.Redirect(http.StatusSeeOther, "/login?error="+url.QueryEscape("Login failed. Try again."))
	}
	a.loginLimiter.Reset(c.RealIP())
	return c.Redirect(http.StatusSeeOther, takeReturnURL(c))
}

// handleLogout clears the session and returns to the front page.
func (a *App) handleLogout(c echo.Context) error {
	if err := clearUserSession(c); err != nil {
		a.Echo.Logger.Errorf("logout: %v", err)
	}
	return c.Redirect(http.StatusSeeOther, "/")
}
