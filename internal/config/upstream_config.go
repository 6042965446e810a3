package config

import (
	"strings"
	"time"
)

const (
	UpstreamBaseURLEnvVar     = "UPSTREAM_BASE_URL"
	UpstreamUploadPathEnvVar  = "UPSTREAM_UPLOAD_PATH"
	UpstreamLoginPathEnvVar   = "UPSTREAM_LOGIN_PATH"
	UpstreamRefreshPathEnvVar = "UPSTREAM_REFRESH_PATH"
	UpstreamLogoutPathEnvVar  = "UPSTREAM_LOGOUT_PATH"
	UpstreamTimeoutEnvVar     = "UPSTREAM_TIMEOUT"
	RefreshModeEnvVar         = "UPSTREAM_REFRESH_MODE"
	OAuth2TokenURLEnvVar      = "OAUTH2_TOKEN_URL"
	OAuth2ClientIDEnvVar      = "OAUTH2_CLIENT_ID"
	OAuth2ClientSecretEnvVar  = "OAUTH2_CLIENT_SECRET"
)

// RefreshMode selects the upstream refresh protocol.
type RefreshMode string

const (
	// RefreshModeEnvelope posts {"refresh_token"} and expects {"data":{"access_token"}}.
	RefreshModeEnvelope RefreshMode = "envelope"
	// RefreshModeOAuth2 uses the RFC 6749 refresh_token grant.
	RefreshModeOAuth2 RefreshMode = "oauth2"
)

type Upstream struct {
	src source
}

var _ UpstreamConfig = Upstream{}

// GetUpstreamBaseURL returns the upstream API base (e.g. "https://api.example.com/api/v1").
// It is only used server side and must never be echoed to clients.
func (u Upstream) GetUpstreamBaseURL() string {
	return strings.TrimRight(u.src.get(UpstreamBaseURLEnvVar, "http://localhost:9000/api/v1"), "/")
}

func (u Upstream) GetUpstreamUploadPath() string {
	return u.src.get(UpstreamUploadPathEnvVar, "/scan")
}

func (u Upstream) GetUpstreamLoginPath() string {
	return u.src.get(UpstreamLoginPathEnvVar, "/auth/login")
}

func (u Upstream) GetUpstreamRefreshPath() string {
	return u.src.get(UpstreamRefreshPathEnvVar, "/auth/refresh")
}

func (u Upstream) GetUpstreamLogoutPath() string {
	return u.src.get(UpstreamLogoutPathEnvVar, "/auth/logout")
}

func (u Upstream) GetUpstreamTimeout() time.Duration {
	return u.src.duration(UpstreamTimeoutEnvVar, 30*time.Second)
}

func (u Upstream) GetRefreshMode() RefreshMode {
	if RefreshMode(strings.ToLower(u.src.get(RefreshModeEnvVar, ""))) == RefreshModeOAuth2 {
		return RefreshModeOAuth2
	}
	return RefreshModeEnvelope
}

func (u Upstream) GetOAuth2TokenURL() string {
	return u.src.get(OAuth2TokenURLEnvVar, "")
}

func (u Upstream) GetOAuth2ClientID() string {
	return u.src.get(OAuth2ClientIDEnvVar, "")
}

func (u Upstream) GetOAuth2ClientSecret() string {
	return u.src.get(OAuth2ClientSecretEnvVar, "")
}
