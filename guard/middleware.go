package guard

import (
	"net/http"
)

// Middleware is the request-time version of the guard for pages served over
// HTTP. It cannot refresh, so it only looks at whether the access token
// cookie is present: protected pages without it go to the login path, login
// pages with it go home.
func Middleware(routes Routes, cookieName string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if routes.IsBypassed(path) {
				next(w, r)
				return
			}

			hasToken := false
			if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
				hasToken = true
			}

			if hasToken && routes.IsAuthScreen(path) {
				http.Redirect(w, r, routes.HomePath, http.StatusTemporaryRedirect)
				return
			}
			if !hasToken && !routes.IsPublic(path) {
				http.Redirect(w, r, routes.LoginPath, http.StatusTemporaryRedirect)
				return
			}
			next(w, r)
		}
	}
}
