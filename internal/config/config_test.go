package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/dashboard-gateway/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv(config.PortEnvVar, "")
	t.Setenv(config.UpstreamBaseURLEnvVar, "")
	t.Setenv(config.RefreshModeEnvVar, "")
	t.Setenv(config.UpstreamTimeoutEnvVar, "")

	c := config.New()
	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "http://localhost:9000/api/v1", c.GetUpstreamBaseURL())
	require.Equal(t, config.RefreshModeEnvelope, c.GetRefreshMode())
	require.Equal(t, 30*time.Second, c.GetUpstreamTimeout())
	require.Equal(t, 15*time.Minute, c.GetRefreshedAccessMaxAge())
	require.Equal(t, 7*24*time.Hour, c.GetRefreshMaxAge())
}

func TestEnvironmentAndOverrides(t *testing.T) {
	t.Setenv(config.PortEnvVar, "9090")
	t.Setenv(config.UpstreamBaseURLEnvVar, "https://api.example.com/v1/")
	t.Setenv(config.AllowedOriginsEnvVar, "https://a.example.com, https://b.example.com")
	t.Setenv(config.UpstreamTimeoutEnvVar, "nonsense")

	c := config.New(config.Override{Name: config.PortEnvVar, Value: ":7000"}, config.Override{Name: config.FrontendURLEnvVar})
	require.Equal(t, ":7000", c.GetPort())
	require.Equal(t, "https://api.example.com/v1", c.GetUpstreamBaseURL())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://b.example.com"))
	require.False(t, c.GetAllowedOrigins().IsAllowedOrigin("https://c.example.com"))
	require.Equal(t, 30*time.Second, c.GetUpstreamTimeout(), "invalid durations fall back to the default")
}

func TestCookieSecureMode(t *testing.T) {
	t.Setenv(config.CookieSecureEnvVar, "TRUE")
	require.Equal(t, config.SecureAlways, config.New().GetCookieSecure())

	t.Setenv(config.CookieSecureEnvVar, "whatever")
	require.Equal(t, config.SecureAuto, config.New().GetCookieSecure())
}
