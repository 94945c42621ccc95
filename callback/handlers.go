package callback

import (
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-hotspot-client/api"
	"github.com/rs/zerolog/log"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
  <head><title>{{.Title}}</title></head>
  <body>
    <h1>{{.Title}}</h1>
    <p>{{.Message}}</p>
  </body>
</html>
`))

type page struct {
	Title   string
	Message string
}

func renderPage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, page{Title: title, Message: message}); err != nil {
		log.Err(err).Msg("Failed to render callback page")
	}
}

// CallbackHandler exchanges the provider code with the backend, commits the
// session and sends the browser home with the access token cookie set.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := strings.ToLower(r.PathValue("provider"))
		if !s.providers[provider] {
			http.NotFound(w, r)
			return
		}

		if errParam := r.FormValue("error"); errParam != "" {
			err := errors.New("provider returned " + errParam)
			s.publish(Result{Provider: provider, Err: err})
			renderPage(w, http.StatusBadRequest, "Login Failed", "Login failed: "+errParam)
			return
		}

		code := r.FormValue("code")
		if code == "" {
			renderPage(w, http.StatusBadRequest, "Invalid Request", "No authorization code provided")
			return
		}

		res, err := s.exchanger.ExchangeSocialCode(r.Context(), provider, code)
		if err != nil {
			log.Err(err).Str("provider", provider).Msg("Social code exchange failed")
			s.publish(Result{Provider: provider, Err: err})
			renderPage(w, http.StatusInternalServerError, "Login Error", "Error during login: "+exchangeMessage(err))
			return
		}

		if err := s.session.Login(res.AccessToken, res.User); err != nil {
			s.publish(Result{Provider: provider, Err: err})
			renderPage(w, http.StatusInternalServerError, "Login Error", "Error during login: "+err.Error())
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     s.cookieName,
			Value:    res.AccessToken,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		s.publish(Result{Provider: provider})
		http.Redirect(w, r, s.guard.HomePath, http.StatusSeeOther)
	}
}

func (s *Server) pageHandler(status int, title, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderPage(w, status, title, message)
	}
}

func exchangeMessage(err error) string {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return statusErr.Message
	}
	return "Failed to exchange code for tokens"
}
