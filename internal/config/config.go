package config

type Config interface {
	EnvConfig
	SessionConfig
	RouteConfig
	PushConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetAPIBaseURL() string
	GetDataFolder() string
	GetProfileStore() string
	GetRedisURL() string
	GetCallbackAddr() string
}

type mainConfig struct {
	EnvVars
	Session
	Routes
	Push
}

func New() Config {
	return mainConfig{}
}
