package config

import (
	"os"
)

const (
	appNameVar     = "APP_NAME"
	envVar         = "ENV"
	logLevelVar    = "LOG_LEVEL"
	metricsAddrVar = "METRICS_ADDR"
)

type appFile struct {
	Name        string `toml:"name"`
	Env         string `toml:"env"`
	LogLevel    string `toml:"log_level"`
	MetricsAddr string `toml:"metrics_addr"`
}

type EnvVars struct {
	file *appFile
}

var _ EnvConfig = EnvVars{file: &appFile{}}

func (e EnvVars) GetAppName() string {
	return GetEnv(appNameVar, e.file.Name, "Session Daemon")
}

func (e EnvVars) GetEnv() string {
	return GetEnv(envVar, e.file.Env, "DEV")
}

func (e EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, e.file.LogLevel, "info")
}

// GetMetricsAddr is the listen address for /metrics; empty disables it.
func (e EnvVars) GetMetricsAddr() string {
	return GetEnv(metricsAddrVar, e.file.MetricsAddr)
}

// GetEnv returns the first non-empty value of the environment variable and the fallbacks.
func GetEnv(envVar string, fallbacks ...string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	for _, v := range fallbacks {
		if v != "" {
			return v
		}
	}
	return ""
}
