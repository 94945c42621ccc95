package app

import (
	"github.com/jrsteele09/go-hotspot-client/internal/utils"
	"github.com/jrsteele09/go-hotspot-client/session"
)

// displayName picks the friendliest identifier the profile carries.
func displayName(user session.UserProfile) string {
	for _, key := range []string{"fullname", "name", "email", "id"} {
		if v, ok := user[key]; ok {
			if s := utils.ToString(v); s != "" {
				return s
			}
		}
	}
	return "unknown user"
}

func profileStrings(v any) []string {
	switch vv := v.(type) {
	case []any:
		return utils.ToStringSlice(vv)
	case string:
		return []string{vv}
	default:
		return nil
	}
}
