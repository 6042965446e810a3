package apiclient

import (
	"net/http"
	"net/url"
	"time"

	"github.com/jrsteele09/dashboard-gateway/session"
)

// JarStore is the client-side TokenStore. It reads and writes the cookie jar
// used for every gateway call, so cookies set by the gateway and values set
// locally are the same state. Like a page script, it cannot read the refresh
// credential: the jar only ever sends it back to the gateway.
type JarStore struct {
	jar http.CookieJar
	url *url.URL
}

var _ session.TokenStore = (*JarStore)(nil)

func NewJarStore(jar http.CookieJar, gatewayURL *url.URL) *JarStore {
	return &JarStore{jar: jar, url: gatewayURL}
}

func (j *JarStore) Get(name string) (string, bool) {
	if !session.ScriptReadable(name) {
		return "", false
	}
	for _, c := range j.jar.Cookies(j.url) {
		if c.Name == name && c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}

func (j *JarStore) Set(name, value string, maxAge time.Duration) {
	j.jar.SetCookies(j.url, []*http.Cookie{{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: !session.ScriptReadable(name),
		SameSite: http.SameSiteLaxMode,
	}})
}

func (j *JarStore) Clear(name string) {
	j.jar.SetCookies(j.url, []*http.Cookie{{
		Name:    name,
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	}})
}
