// Package guard decides, from session cookies alone, whether a page request
// may proceed or must be redirected. It performs no I/O.
package guard

import (
	"strings"

	"github.com/jrsteele09/dashboard-gateway/session"
)

// LoginPath is the shared login page.
const LoginPath = "/login"

// Input is everything the guard looks at.
type Input struct {
	Path       string
	HasAccess  bool
	HasRefresh bool
	Role       session.Role
}

// InputFromSession builds an Input for path from a request's session.
func InputFromSession(path string, s session.Session) Input {
	return Input{
		Path:       path,
		HasAccess:  s.AccessToken != "",
		HasRefresh: s.RefreshToken != "",
		Role:       s.Role,
	}
}

// Decision is the guard outcome. An empty Redirect means allow.
type Decision struct {
	Redirect string
}

func (d Decision) Allowed() bool {
	return d.Redirect == ""
}

var allow = Decision{}

// Evaluate applies the routing rules:
//   - an authenticated user on the login page goes to their role's home;
//   - a role-prefixed path requires an authenticated session of that role;
//   - everything else is allowed.
func Evaluate(in Input) Decision {
	authenticated := in.Role.Valid() && (in.HasAccess || in.HasRefresh)

	if isUnder(in.Path, LoginPath) {
		if authenticated {
			return Decision{Redirect: in.Role.Home()}
		}
		return allow
	}

	required, ok := RoleForPath(in.Path)
	if !ok {
		return allow
	}
	if !authenticated || in.Role != required {
		return Decision{Redirect: LoginPath}
	}
	return allow
}

// RoleForPath returns the role owning a role-prefixed path.
func RoleForPath(path string) (session.Role, bool) {
	for _, role := range session.Roles {
		if isUnder(path, role.PathPrefix()) {
			return role, true
		}
	}
	return "", false
}

// Matches reports whether the guard applies to path at all.
func Matches(path string) bool {
	if isUnder(path, LoginPath) {
		return true
	}
	_, ok := RoleForPath(path)
	return ok
}

func isUnder(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
