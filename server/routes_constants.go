package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Session Routes
	RouteAuthLogin   = "/api/auth/login"
	RouteAuthRefresh = "/api/auth/refresh"
	RouteAuthLogout  = "/api/auth/logout"

	// Gateway Routes
	RouteProxyPrefix = "/api/proxy/"
	RouteProxy       = RouteProxyPrefix + "{path...}"
	RouteScanProxy   = "/api/scan-proxy"
	RouteAPI         = "/api/"

	// Operational Routes
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"

	// Page Routes (guarded by the session guard, rendered by the frontend)
	RoutePages = "/"
)

// proxyMethods are the methods accepted by the API proxy.
var proxyMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE"}
