package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/dashboard-gateway/internal/config"
	"github.com/jrsteele09/dashboard-gateway/session"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json"
)

// messageBody is the error/confirmation shape shared with the upstream API.
type messageBody struct {
	Message string `json:"message"`
}

// secureCookies decides the Secure attribute for session cookies on this request.
func (s *Server) secureCookies(r *http.Request) bool {
	switch s.config.GetCookieSecure() {
	case config.SecureAlways:
		return true
	case config.SecureNever:
		return false
	default:
		return getScheme(r) == "https"
	}
}

// cookieStore is the request's view of the session cookies.
func (s *Server) cookieStore(w http.ResponseWriter, r *http.Request) *session.CookieStore {
	return session.NewCookieStore(w, r, s.secureCookies(r))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageBody{Message: message})
}
