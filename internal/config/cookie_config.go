package config

import (
	"strings"
	"time"
)

const CookieSecureEnvVar = "COOKIE_SECURE"

// SecureMode controls the Secure attribute on session cookies.
type SecureMode string

const (
	SecureAuto   SecureMode = "auto" // follow the request scheme
	SecureAlways SecureMode = "true"
	SecureNever  SecureMode = "false"
)

type Cookies struct {
	src source
}

var _ CookieConfig = Cookies{}

func (Cookies) GetLoginAccessMaxAge() time.Duration {
	return 24 * time.Hour
}

func (Cookies) GetRefreshedAccessMaxAge() time.Duration {
	return 15 * time.Minute
}

func (Cookies) GetRefreshMaxAge() time.Duration {
	return 7 * 24 * time.Hour
}

func (c Cookies) GetCookieSecure() SecureMode {
	switch SecureMode(strings.ToLower(c.src.get(CookieSecureEnvVar, string(SecureAuto)))) {
	case SecureAlways:
		return SecureAlways
	case SecureNever:
		return SecureNever
	default:
		return SecureAuto
	}
}
