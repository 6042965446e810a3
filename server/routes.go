package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	// SESSION
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	// GATEWAY
	for _, method := range proxyMethods {
		s.RegisterRouteHandler(method+" "+RouteProxy, ChainMiddleware(s.ProxyHandler(), s.APIMiddleware()...))
	}
	s.RegisterRouteHandler("POST "+RouteScanProxy, ChainMiddleware(s.ScanProxyHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPI, ChainMiddleware(s.APINotFoundHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS "+RouteAPI, ChainMiddleware(s.APINotFoundHandler(), s.APIMiddleware()...)) // CORS preflight, answered by CorsMiddleware

	// OPERATIONAL
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	// PAGES
	s.RegisterRouteHandler("GET "+RoutePages, ChainMiddleware(s.pages, s.HTMLMiddleWare(s.SessionGuardMiddleware)...))
}

// HealthHandler reports liveness without touching the upstream.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// APINotFoundHandler answers unknown API paths with JSON instead of a page.
func (s *Server) APINotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "Not Found")
	}
}
