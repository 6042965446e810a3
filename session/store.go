package session

import (
	"net/http"
	"time"
)

// TokenStore is the single access path to session credentials.
// A missing or unreadable value is reported as absent.
type TokenStore interface {
	Get(name string) (string, bool)
	Set(name, value string, maxAge time.Duration)
	Clear(name string)
}

// ScriptReadable reports whether page scripts may read the named cookie.
// The refresh credential is transport-only.
func ScriptReadable(name string) bool {
	return name != CookieRefreshToken
}

// Load reads the session triple from a store.
func Load(store TokenStore) Session {
	var s Session
	s.AccessToken, _ = store.Get(CookieAccessToken)
	s.RefreshToken, _ = store.Get(CookieRefreshToken)
	if v, ok := store.Get(CookieRole); ok {
		if role, valid := ParseRole(v); valid {
			s.Role = role
		}
	}
	return s
}

// Save writes every non-empty field of the session. The role shares the
// access credential's lifetime.
func Save(store TokenStore, s Session, accessMaxAge, refreshMaxAge time.Duration) {
	if s.AccessToken != "" {
		store.Set(CookieAccessToken, s.AccessToken, accessMaxAge)
	}
	if s.RefreshToken != "" {
		store.Set(CookieRefreshToken, s.RefreshToken, refreshMaxAge)
	}
	if s.Role.Valid() {
		store.Set(CookieRole, string(s.Role), accessMaxAge)
	}
}

// ClearAll removes the three session cookies.
func ClearAll(store TokenStore) {
	store.Clear(CookieAccessToken)
	store.Clear(CookieRefreshToken)
	store.Clear(CookieRole)
}

// CookieStore is the server-side TokenStore for a single request. Reads see
// the request cookies overlaid with any writes already made on this store.
type CookieStore struct {
	w       http.ResponseWriter
	r       *http.Request
	secure  bool
	pending map[string]*string // nil marks a cleared cookie
}

var _ TokenStore = (*CookieStore)(nil)

func NewCookieStore(w http.ResponseWriter, r *http.Request, secure bool) *CookieStore {
	return &CookieStore{
		w:       w,
		r:       r,
		secure:  secure,
		pending: make(map[string]*string),
	}
}

func (c *CookieStore) Get(name string) (string, bool) {
	if v, ok := c.pending[name]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}
	cookie, err := c.r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func (c *CookieStore) Set(name, value string, maxAge time.Duration) {
	http.SetCookie(c.w, c.cookie(name, value, int(maxAge.Seconds())))
	c.pending[name] = &value
}

// Clear expires the cookie with both Max-Age and a past Expires so that
// stores ignoring one of them still drop it.
func (c *CookieStore) Clear(name string) {
	cookie := c.cookie(name, "", -1)
	cookie.Expires = time.Unix(0, 0)
	http.SetCookie(c.w, cookie)
	c.pending[name] = nil
}

func (c *CookieStore) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: !ScriptReadable(name),
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
}
