package session

import (
	"net/http"
	"strings"
)

// Cookie names shared by the browser, the page renderer and the gateway.
const (
	CookieAccessToken  = "accessToken"
	CookieRefreshToken = "refreshToken"
	CookieRole         = "userRole"
)

// Role is the dashboard a user navigates to. It is advisory and only used for
// routing; the upstream API makes every authorization decision.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleSekolah Role = "sekolah" // school
	RoleSPPG    Role = "sppg"    // meal provider
)

// Roles lists the closed set of dashboard roles.
var Roles = []Role{RoleAdmin, RoleSekolah, RoleSPPG}

// ParseRole maps a stored role value onto the closed role set.
func ParseRole(value string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(value)))
	return r, r.Valid()
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSekolah, RoleSPPG:
		return true
	}
	return false
}

// PathPrefix is the route prefix owned by the role, e.g. "/sekolah".
func (r Role) PathPrefix() string {
	return "/" + string(r)
}

// Home is the landing page for the role.
func (r Role) Home() string {
	return r.PathPrefix() + "/dashboard"
}

func (r Role) String() string {
	return string(r)
}

// Session is the credential triple written at login and cleared at logout.
type Session struct {
	AccessToken  string
	RefreshToken string
	Role         Role
}

// FromRequest reads the session cookies carried by a request.
// Unknown role values are dropped.
func FromRequest(r *http.Request) Session {
	var s Session
	if c, err := r.Cookie(CookieAccessToken); err == nil {
		s.AccessToken = c.Value
	}
	if c, err := r.Cookie(CookieRefreshToken); err == nil {
		s.RefreshToken = c.Value
	}
	if c, err := r.Cookie(CookieRole); err == nil {
		if role, ok := ParseRole(c.Value); ok {
			s.Role = role
		}
	}
	return s
}

// HasCredential reports whether either credential is present.
func (s Session) HasCredential() bool {
	return s.AccessToken != "" || s.RefreshToken != ""
}

// IsAuthenticated reports whether the session carries a role and a credential
// that can still be used or renewed.
func (s Session) IsAuthenticated() bool {
	return s.Role.Valid() && s.HasCredential()
}
