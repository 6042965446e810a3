package config

import "time"

type Config interface {
	EnvConfig
	CorsConfig
	CookieConfig
	UpstreamConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetFrontendURL() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type CookieConfig interface {
	GetLoginAccessMaxAge() time.Duration
	GetRefreshedAccessMaxAge() time.Duration
	GetRefreshMaxAge() time.Duration
	GetCookieSecure() SecureMode
}

type UpstreamConfig interface {
	GetUpstreamBaseURL() string
	GetUpstreamUploadPath() string
	GetUpstreamLoginPath() string
	GetUpstreamRefreshPath() string
	GetUpstreamLogoutPath() string
	GetUpstreamTimeout() time.Duration
	GetRefreshMode() RefreshMode
	GetOAuth2TokenURL() string
	GetOAuth2ClientID() string
	GetOAuth2ClientSecret() string
}

// Override replaces the environment value of a single variable, e.g. from a CLI flag.
type Override struct {
	Name  string
	Value string
}

type mainConfig struct {
	EnvVars
	Cors
	Cookies
	Upstream
}

func New(overrides ...Override) Config {
	src := source{overrides: make(map[string]string, len(overrides))}
	for _, o := range overrides {
		if o.Value == "" {
			continue
		}
		src.overrides[o.Name] = o.Value
	}
	return mainConfig{
		EnvVars:  EnvVars{src: src},
		Cors:     Cors{src: src},
		Cookies:  Cookies{src: src},
		Upstream: Upstream{src: src},
	}
}

type source struct {
	overrides map[string]string
}

func (s source) get(name, defaultValue string) string {
	if v, ok := s.overrides[name]; ok {
		return v
	}
	return GetEnv(name, defaultValue)
}

func (s source) duration(name string, defaultValue time.Duration) time.Duration {
	raw := s.get(name, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}
