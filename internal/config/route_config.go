package config

import "strings"

type RouteConfig interface {
	GetPublicPathPrefixes() []string
	GetBypassPathPrefixes() []string
	GetLoginPath() string
	GetHomePath() string
}

type Routes struct{}

var _ RouteConfig = Routes{}

var defaultPublicPrefixes = []string{"/auth", "/offline", "/api/auth", "/error"}

// GetPublicPathPrefixes reads PUBLIC_PATHS as a comma separated list.
func (Routes) GetPublicPathPrefixes() []string {
	raw := GetEnv("PUBLIC_PATHS", "")
	if raw == "" {
		return append([]string(nil), defaultPublicPrefixes...)
	}
	var prefixes []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}

// GetBypassPathPrefixes are paths the HTTP middleware never guards.
func (Routes) GetBypassPathPrefixes() []string {
	return []string{"/static", "/icons", "/fonts", "/favicon.ico", "/manifest.json"}
}

func (Routes) GetLoginPath() string {
	return "/auth"
}

func (Routes) GetHomePath() string {
	return "/"
}
