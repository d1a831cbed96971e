package flathill

import (
	"errors"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

const sessionName = "flathill_session"

// AuthDecision is the outcome of the access control gate.
type AuthDecision int

const (
	AuthAllow AuthDecision = iota
	AuthRedirectLogin
	AuthForbidden
)

// Special show_for tokens: _guest admits unauthenticated visitors only,
// _user any authenticated user.
const (
	showForGuest = "_guest"
	showForUser  = "_user"
)

// showForAllows evaluates a show_for requirement with ANY-of semantics over
// the special guest/user tokens plus literal roles.
func showForAllows(showFor []string, user *User) bool {
	for _, cond := range showFor {
		switch cond {
		case showForGuest:
			if user == nil {
				return true
			}
		case showForUser:
			if user != nil {
				return true
			}
		default:
			if user.HasRole(cond) {
				return true
			}
		}
	}
	return false
}

// resolveShowFor computes the effective show_for requirement for a resolved
// route: the declared route owning its content type wins, then the declared
// route matching the resolved path, then the descriptor's own rule.
func resolveShowFor(menu []Route, rr *ResolvedRoute) []string {
	if rr.Route != nil && rr.Route.ContentType != "" {
		if owner := routeForContentType(menu, rr.Route.ContentType); owner != nil && len(owner.ShowFor) > 0 {
			return owner.ShowFor
		}
	}
	for i := range menu {
		if menu[i].matchesPath(rr.Path) && len(menu[i].ShowFor) > 0 {
			return menu[i].ShowFor
		}
	}
	if rr.Route != nil {
		return rr.Route.ShowFor
	}
	return nil
}

func isMutatingAction(a Action) bool {
	switch a {
	case ActionEdit, ActionAdd, ActionSave, ActionDelete:
		return true
	}
	return false
}

// Authorize evaluates a resolved route's visibility and mutation rules
// against the caller. show_for applies to any access, not just menu
// visibility; auth_required/roles gate only the mutating content actions,
// leaving view and list public even on protected types.
func Authorize(menu []Route, rr *ResolvedRoute, user *User) AuthDecision {
	if showFor := resolveShowFor(menu, rr); len(showFor) > 0 && !showForAllows(showFor, user) {
		if user == nil && requiresMoreThanGuest(showFor) {
			return AuthRedirectLogin
		}
		return AuthForbidden
	}

	if rr.Route != nil && rr.Route.ContentType != "" && isMutatingAction(rr.Action) {
		if rr.Route.AuthRequired || len(rr.Route.Roles) > 0 {
			if user == nil || !user.HasAnyRole(rr.Route.Roles) {
				return AuthRedirectLogin
			}
		}
	}
	return AuthAllow
}

func requiresMoreThanGuest(showFor []string) bool {
	for _, cond := range showFor {
		if cond != showForGuest {
			return true
		}
	}
	return false
}

// ErrBadCredentials is returned for an unknown user or wrong password.
var ErrBadCredentials = errors.New("flathill: invalid username or password")

// lookupUser finds a configured user by email.
func (a *App) lookupUser(email string) *User {
	if u, ok := a.Config.Users[email]; ok {
		u.Email = email
		return &u
	}
	return nil
}

// login verifies credentials against the user registry.
func (a *App) login(email, password string) (*User, error) {
	if email == "" || password == "" {
		return nil, ErrBadCredentials
	}
	u := a.lookupUser(email)
	if u == nil || u.PasswordHash == "" {
		return nil, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}
	return u, nil
}

// currentUser reads the session and returns the authenticated user, or nil.
func (a *App) currentUser(c echo.Context) *User {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return nil
	}
	email, ok := sess.Values["user_email"].(string)
	if !ok || email == "" {
		return nil
	}
	return a.lookupUser(email)
}

func setUserSession(c echo.Context, email string) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	sess.Values["user_email"] = email
	return sess.Save(c.Request(), c.Response())
}

func clearUserSession(c echo.Context) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	sess.Options.MaxAge = -1
	return sess.Save(c.Request(), c.Response())
}

// stashReturnURL remembers where to send the user after a successful login.
func stashReturnURL(c echo.Context, target string) {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return
	}
	sess.Values["return_url"] = target
	_ = sess.Save(c.Request(), c.Response())
}

// takeReturnURL pops the stashed post-login target, defaulting to "/".
func takeReturnURL(c echo.Context) string {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return "/"
	}
	target, _ := sess.Values["return_url"].(string)
	delete(sess.Values, "return_url")
	_ = sess.Save(c.Request(), c.Response())
	if target == "" {
		return "/"
	}
	return target
}
