package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/dashboard-gateway/internal/errors"
	"github.com/jrsteele09/dashboard-gateway/session"
	"github.com/jrsteele09/dashboard-gateway/upstream"
	"github.com/rs/zerolog/log"
)

const proxyErrorMessage = "Proxy Error"

// forwardedHeaders is the allow-list of caller headers relayed upstream.
// Cookie is deliberately absent: the refresh credential never leaves the gateway
// through the proxy.
var forwardedHeaders = []string{"Accept", "Accept-Language", "Content-Type", headerRequestID}

// ProxyHandler relays any API call under /api/proxy/ to the upstream API,
// injecting the caller's credential. The upstream status and body are
// returned verbatim.
func (s *Server) ProxyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := copyHeaders(r.Header, forwardedHeaders)
		if authorization := resolveAuthorization(r, session.FromRequest(r)); authorization != "" {
			header.Set("Authorization", authorization)
		}
		if hasBody(r.Method) && header.Get("Content-Type") == "" {
			header.Set("Content-Type", contentTypeJSON)
		}

		resp, err := s.upstream.Forward(r.Context(), upstream.ForwardRequest{
			Method:        r.Method,
			Path:          "/" + strings.TrimPrefix(r.URL.EscapedPath(), RouteProxyPrefix),
			RawQuery:      r.URL.RawQuery,
			Header:        header,
			Body:          r.Body,
			ContentLength: r.ContentLength,
		})
		if err != nil {
			log.Ctx(r.Context()).Err(err).Str("path", r.URL.Path).Msg("proxy request failed")
			s.metrics.proxyError(RouteProxy)
			writeMessage(w, http.StatusInternalServerError, proxyErrorMessage)
			return
		}
		relay(w, resp)
	}
}

// ScanProxyHandler forwards a multipart upload to the fixed upstream upload
// operation. The caller's Authorization and Content-Type (with its multipart
// boundary) are passed through untouched.
func (s *Server) ScanProxyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := r.Header.Get("Authorization")
		if authorization == "" {
			log.Ctx(r.Context()).Debug().Err(errors.ErrMissingAuthorization).Msg("upload rejected")
			writeMessage(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		header := copyHeaders(r.Header, forwardedHeaders)
		header.Set("Authorization", authorization)

		resp, err := s.upstream.Forward(r.Context(), upstream.ForwardRequest{
			Method:        http.MethodPost,
			Path:          s.upstream.UploadPath(),
			Header:        header,
			Body:          r.Body,
			ContentLength: r.ContentLength,
		})
		if err != nil {
			log.Ctx(r.Context()).Err(err).Msg("upload proxy request failed")
			s.metrics.proxyError(RouteScanProxy)
			writeMessage(w, http.StatusInternalServerError, proxyErrorMessage)
			return
		}
		relay(w, resp)
	}
}

// resolveAuthorization prefers an explicit Authorization header over the
// access credential cookie. A client that has just refreshed sends the new
// credential in the header, which must win over a cookie that may be stale.
func resolveAuthorization(r *http.Request, s session.Session) string {
	if authorization := strings.TrimSpace(r.Header.Get("Authorization")); authorization != "" {
		return authorization
	}
	if s.AccessToken != "" {
		return "Bearer " + s.AccessToken
	}
	return ""
}

func copyHeaders(src http.Header, names []string) http.Header {
	dst := http.Header{}
	for _, name := range names {
		for _, v := range src.Values(name) {
			dst.Add(name, v)
		}
	}
	return dst
}

func hasBody(method string) bool {
	return method != http.MethodGet && method != http.MethodHead
}

func relay(w http.ResponseWriter, resp *upstream.ForwardResponse) {
	contentType := resp.ContentType
	if contentType == "" {
		contentType = contentTypeJSON
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}
