package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/dashboard-gateway/internal/config"
	"github.com/jrsteele09/dashboard-gateway/upstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

// Server is the same-origin gateway in front of the upstream API.
type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	upstream  *upstream.Client
	refresher upstream.Refresher
	pages     http.HandlerFunc
	registry  *prometheus.Registry
	metrics   *metrics
}

type Option func(*Server)

// WithUpstreamClient replaces the server-to-server client built from config.
func WithUpstreamClient(c *upstream.Client) Option {
	return func(s *Server) {
		s.upstream = c
	}
}

// WithRefresher replaces the refresh protocol selected by config.
func WithRefresher(r upstream.Refresher) Option {
	return func(s *Server) {
		s.refresher = r
	}
}

// WithRegistry registers the gateway metrics on an existing registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = r
	}
}

func New(cfg config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		env:    cfg.GetEnv(),
		mux:    http.NewServeMux(),
		config: cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.upstream == nil {
		s.upstream = upstream.New(cfg)
	}
	if s.refresher == nil {
		refresher, err := newRefresher(cfg, s.upstream)
		if err != nil {
			return nil, fmt.Errorf("[Server New] %w", err)
		}
		s.refresher = refresher
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m, err := newMetrics(s.registry)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to register metrics: %w", err)
	}
	s.metrics = m

	pages, err := s.PagesHandler()
	if err != nil {
		return nil, fmt.Errorf("[Server New] %w", err)
	}
	s.pages = pages

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func newRefresher(cfg config.Config, client *upstream.Client) (upstream.Refresher, error) {
	if cfg.GetRefreshMode() != config.RefreshModeOAuth2 {
		return client, nil
	}
	if cfg.GetOAuth2TokenURL() == "" {
		return nil, fmt.Errorf("refresh mode %q requires %s", config.RefreshModeOAuth2, config.OAuth2TokenURLEnvVar)
	}
	return upstream.NewOAuth2Refresher(cfg.GetOAuth2TokenURL(), cfg.GetOAuth2ClientID(), cfg.GetOAuth2ClientSecret(), client.HTTPClient()), nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes returns the registered patterns in registration order.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Debug().Msgf("[%-19s] %s", displayMethod, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
