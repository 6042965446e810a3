package server

import (
	"fmt"
	"html/template"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/jrsteele09/dashboard-gateway/guard"
	"github.com/jrsteele09/dashboard-gateway/session"
	"github.com/rs/zerolog/log"
)

var placeholderPage = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.AppName}}</title></head>
<body><p>{{.Path}}</p></body>
</html>
`))

// SessionGuardMiddleware redirects page requests the session may not see.
// It only reads cookies and runs before any page content is produced.
func (s *Server) SessionGuardMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !guard.Matches(r.URL.Path) {
			next(w, r)
			return
		}
		decision := guard.Evaluate(guard.InputFromSession(r.URL.Path, session.FromRequest(r)))
		if !decision.Allowed() {
			http.Redirect(w, r, decision.Redirect, http.StatusTemporaryRedirect)
			return
		}
		next(w, r)
	}
}

// PagesHandler serves dashboard pages. With a frontend configured, pages are
// reverse-proxied there without the refresh cookie; otherwise a placeholder
// page is rendered.
func (s *Server) PagesHandler() (http.HandlerFunc, error) {
	frontend := s.config.GetFrontendURL()
	if frontend == "" {
		appName := s.config.GetAppName()
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", contentTypeHTML)
			if err := placeholderPage.Execute(w, map[string]string{"AppName": appName, "Path": r.URL.Path}); err != nil {
				log.Ctx(r.Context()).Err(err).Msg("failed to render placeholder page")
			}
		}, nil
	}

	target, err := url.Parse(frontend)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("[Server PagesHandler] invalid frontend URL %q", frontend)
	}
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Header.Del("Cookie")
			for _, c := range pr.In.Cookies() {
				if c.Name == session.CookieRefreshToken {
					continue
				}
				pr.Out.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Ctx(r.Context()).Err(err).Msg("frontend unavailable")
			w.Header().Set("Content-Type", contentTypeHTML)
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<!DOCTYPE html><title>Unavailable</title><p>The dashboard is temporarily unavailable.</p>"))
		},
	}
	return proxy.ServeHTTP, nil
}
