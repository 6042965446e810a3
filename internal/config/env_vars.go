package config

import (
	"os"
	"strings"
)

const (
	PortEnvVar        = "PORT"
	AppNameEnvVar     = "APP_NAME"
	EnvEnvVar         = "ENV"
	LogLevelEnvVar    = "LOG_LEVEL"
	FrontendURLEnvVar = "FRONTEND_URL"
)

type EnvVars struct {
	src source
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.src.get(PortEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.src.get(AppNameEnvVar, "Dashboard Gateway")
}

func (e EnvVars) GetEnv() string {
	return e.src.get(EnvEnvVar, "DEV")
}

func (e EnvVars) GetLogLevel() string {
	if e.GetEnv() == "DEV" {
		return e.src.get(LogLevelEnvVar, "debug")
	}
	return e.src.get(LogLevelEnvVar, "info")
}

// GetFrontendURL returns the origin that renders the dashboard pages.
// Empty means guarded page routes answer with a placeholder.
func (e EnvVars) GetFrontendURL() string {
	return strings.TrimRight(e.src.get(FrontendURLEnvVar, ""), "/")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
