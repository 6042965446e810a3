package session_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/dashboard-gateway/session"
	"github.com/stretchr/testify/require"
)

func responseCookies(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	cookies := make(map[string]*http.Cookie)
	for _, c := range rec.Result().Cookies() {
		cookies[c.Name] = c
	}
	return cookies
}

func TestCookieStoreRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	store := session.NewCookieStore(rec, req, false)

	_, ok := store.Get(session.CookieAccessToken)
	require.False(t, ok)

	store.Set(session.CookieAccessToken, "header.payload.signature", 15*time.Minute)
	got, ok := store.Get(session.CookieAccessToken)
	require.True(t, ok)
	require.Equal(t, "header.payload.signature", got)
}

func TestCookieStoreAttributes(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	store := session.NewCookieStore(rec, req, true)

	session.Save(store, session.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Role:         session.RoleSPPG,
	}, 24*time.Hour, 7*24*time.Hour)

	cookies := responseCookies(rec)
	require.Len(t, cookies, 3)

	access := cookies[session.CookieAccessToken]
	require.False(t, access.HttpOnly)
	require.True(t, access.Secure)
	require.Equal(t, http.SameSiteLaxMode, access.SameSite)
	require.Equal(t, 86400, access.MaxAge)
	require.Equal(t, "/", access.Path)

	refresh := cookies[session.CookieRefreshToken]
	require.True(t, refresh.HttpOnly)
	require.Equal(t, 604800, refresh.MaxAge)

	role := cookies[session.CookieRole]
	require.False(t, role.HttpOnly)
	require.Equal(t, "sppg", role.Value)
	require.Equal(t, access.MaxAge, role.MaxAge)
}

func TestCookieStoreClear(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieAccessToken, Value: "access"})
	req.AddCookie(&http.Cookie{Name: session.CookieRole, Value: "admin"})
	store := session.NewCookieStore(rec, req, false)

	require.Equal(t, session.RoleAdmin, session.Load(store).Role)

	session.ClearAll(store)
	require.Equal(t, session.Session{}, session.Load(store))

	cookies := responseCookies(rec)
	require.Len(t, cookies, 3)
	for name, c := range cookies {
		require.Empty(t, c.Value, name)
		require.Less(t, c.MaxAge, 0, name)
		require.True(t, c.Expires.Before(time.Now()), name)
	}
}

func TestFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/sekolah/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieRefreshToken, Value: "refresh"})
	req.AddCookie(&http.Cookie{Name: session.CookieRole, Value: "superuser"})

	s := session.FromRequest(req)
	require.Equal(t, "refresh", s.RefreshToken)
	require.Empty(t, s.AccessToken)
	require.Equal(t, session.Role(""), s.Role)
	require.True(t, s.HasCredential())
	require.False(t, s.IsAuthenticated())
}

func TestRoles(t *testing.T) {
	role, ok := session.ParseRole(" Sekolah ")
	require.True(t, ok)
	require.Equal(t, session.RoleSekolah, role)
	require.Equal(t, "/sekolah/dashboard", role.Home())

	_, ok = session.ParseRole("orang-tua")
	require.False(t, ok)
}
