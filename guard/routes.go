package guard

import (
	"strings"

	"github.com/jrsteele09/go-hotspot-client/internal/config"
)

// Routes classifies paths. Prefixes match whole segments: "/auth" covers
// "/auth" and "/auth/otp" but not "/authority".
type Routes struct {
	PublicPrefixes []string
	// BypassPrefixes are never guarded (static assets and the like).
	BypassPrefixes []string
	LoginPath      string
	HomePath       string
}

func RoutesFromConfig(cfg config.RouteConfig) Routes {
	return Routes{
		PublicPrefixes: cfg.GetPublicPathPrefixes(),
		BypassPrefixes: cfg.GetBypassPathPrefixes(),
		LoginPath:      cfg.GetLoginPath(),
		HomePath:       cfg.GetHomePath(),
	}
}

func (r Routes) IsPublic(path string) bool {
	return matchAny(r.PublicPrefixes, path)
}

// IsAuthScreen reports whether path is one of the login/signup screens an
// authenticated user should be sent away from.
func (r Routes) IsAuthScreen(path string) bool {
	return hasSegmentPrefix(path, r.LoginPath)
}

func (r Routes) IsBypassed(path string) bool {
	return matchAny(r.BypassPrefixes, path)
}

func matchAny(prefixes []string, path string) bool {
	for _, p := range prefixes {
		if hasSegmentPrefix(path, p) {
			return true
		}
	}
	return false
}

func hasSegmentPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	if prefix == "/" || path == prefix {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/")
}
