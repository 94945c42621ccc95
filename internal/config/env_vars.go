package config

import (
	"os"
	"strings"
)

const (
	appNameVar      = "APP_NAME"
	apiURLVar       = "API_URL"
	folderEnvVar    = "FOLDER"
	logLevelVar     = "LOG_LEVEL"
	profileStoreVar = "PROFILE_STORE"
	redisURLVar     = "REDIS_URL"
	callbackAddrVar = "CALLBACK_ADDR"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Hotspot")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetAPIBaseURL returns the backend base URL without a trailing slash.
func (EnvVars) GetAPIBaseURL() string {
	return strings.TrimRight(GetEnv(apiURLVar, "http://localhost:3001"), "/")
}

// GetDataFolder is where the cookie files and the file profile store live.
func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, defaultDataFolder())
}

// GetProfileStore selects the durable profile backend: "file" or "redis".
func (EnvVars) GetProfileStore() string {
	return strings.ToLower(GetEnv(profileStoreVar, "file"))
}

func (EnvVars) GetRedisURL() string {
	return GetEnv(redisURLVar, "redis://localhost:6379/0")
}

// GetCallbackAddr is the loopback listen address for the social login callback.
func (EnvVars) GetCallbackAddr() string {
	return GetEnv(callbackAddrVar, "127.0.0.1:3000")
}

func defaultDataFolder() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "./data"
	}
	return dir + string(os.PathSeparator) + "hotspot"
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
