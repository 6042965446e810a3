package server

import (
	"io"
	"net/http"

	"github.com/jrsteele09/dashboard-gateway/internal/errors"
	"github.com/jrsteele09/dashboard-gateway/session"
	"github.com/jrsteele09/dashboard-gateway/upstream"
	"github.com/rs/zerolog/log"
)

const maxLoginBodyBytes = 1 << 20

// LoginHandler forwards the credentials to the upstream login operation and
// writes the three session cookies. Only the access credential and role are
// returned in the body.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxLoginBodyBytes))
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		sess, err := s.upstream.Login(r.Context(), body)
		if err != nil {
			var failure *upstream.Failure
			switch {
			case errors.As(err, &failure):
				writeMessage(w, failure.Status, failure.Message)
			case errors.Is(err, errors.ErrUnsupportedRole):
				log.Ctx(r.Context()).Warn().Err(err).Msg("login for unsupported role")
				writeMessage(w, http.StatusForbidden, "Role not permitted")
			case errors.Is(err, errors.ErrMalformedResponse):
				log.Ctx(r.Context()).Err(err).Msg("malformed login response")
				writeMessage(w, http.StatusBadGateway, "Login Error")
			default:
				log.Ctx(r.Context()).Err(err).Msg("login failed")
				writeMessage(w, http.StatusInternalServerError, "Login Error")
			}
			return
		}

		session.Save(s.cookieStore(w, r), sess, s.config.GetLoginAccessMaxAge(), s.config.GetRefreshMaxAge())
		writeJSON(w, http.StatusOK, upstream.Envelope[upstream.AccessTokenData]{
			Data: &upstream.AccessTokenData{AccessToken: sess.AccessToken, Role: sess.Role.String()},
		})
	}
}

// RefreshHandler renews the access credential using the refresh cookie.
// The refresh credential is only ever read from the cookie, never the body.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store := s.cookieStore(w, r)
		refreshToken, ok := store.Get(session.CookieRefreshToken)
		if !ok {
			s.metrics.refresh(refreshOutcomeMissing)
			writeMessage(w, http.StatusUnauthorized, "No refresh token")
			return
		}

		tok, err := s.refresher.Refresh(r.Context(), refreshToken)
		if err != nil {
			if errors.Is(err, errors.ErrRefreshRejected) {
				log.Ctx(r.Context()).Info().Err(err).Msg("refresh token rejected, clearing session")
				s.metrics.refresh(refreshOutcomeRejected)
				store.Clear(session.CookieAccessToken)
				store.Clear(session.CookieRefreshToken)
				writeMessage(w, http.StatusUnauthorized, "Session expired")
				return
			}
			log.Ctx(r.Context()).Err(err).Msg("refresh failed")
			s.metrics.refresh(refreshOutcomeError)
			writeMessage(w, http.StatusInternalServerError, "Refresh Error")
			return
		}

		store.Set(session.CookieAccessToken, tok.AccessToken, s.config.GetRefreshedAccessMaxAge())
		outcome := refreshOutcomeSuccess
		if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
			store.Set(session.CookieRefreshToken, tok.RefreshToken, s.config.GetRefreshMaxAge())
			outcome = refreshOutcomeRotated
		}
		s.metrics.refresh(outcome)

		writeJSON(w, http.StatusOK, upstream.Envelope[upstream.AccessTokenData]{
			Data: &upstream.AccessTokenData{AccessToken: tok.AccessToken},
		})
	}
}

// LogoutHandler revokes the refresh credential upstream on a best-effort
// basis and always clears the session cookies.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store := s.cookieStore(w, r)
		sess := session.Load(store)

		outcome := logoutUpstreamSkipped
		if sess.HasCredential() {
			outcome = logoutUpstreamOK
			if err := s.upstream.Revoke(r.Context(), sess); err != nil {
				log.Ctx(r.Context()).Warn().Err(err).Msg("upstream logout failed, clearing session anyway")
				outcome = logoutUpstreamFailed
			}
		}
		s.metrics.logout(outcome)

		session.ClearAll(store)
		writeMessage(w, http.StatusOK, "Logged out")
	}
}
