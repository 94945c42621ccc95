// Package callback serves the loopback endpoint a social login provider
// redirects back to, and turns the provider code into a session.
package callback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-hotspot-client/api"
	"github.com/jrsteele09/go-hotspot-client/guard"
	"github.com/jrsteele09/go-hotspot-client/session"
	"github.com/rs/zerolog/log"
)

const (
	RouteCallback = "GET /api/auth/{provider}/callback"
	RouteHome     = "GET /{$}"
	RouteLogin    = "GET /auth"
)

// Exchanger trades a provider authorization code for a session.
type Exchanger interface {
	ExchangeSocialCode(ctx context.Context, provider, code string) (*api.AuthResult, error)
}

type SessionLogin interface {
	Login(accessToken string, user session.UserProfile) error
}

// Result is published once per completed callback.
type Result struct {
	Provider string
	Err      error
}

type Server struct {
	env        string
	mux        *http.ServeMux
	routes     []string
	exchanger  Exchanger
	session    SessionLogin
	guard      guard.Routes
	cookieName string
	providers  map[string]bool
	results    chan Result
}

type ServerOption func(*Server)

// WithProviders limits the accepted providers. The default is google and github.
func WithProviders(providers ...string) ServerOption {
	return func(s *Server) {
		s.providers = make(map[string]bool, len(providers))
		for _, p := range providers {
			s.providers[strings.ToLower(p)] = true
		}
	}
}

func WithEnv(env string) ServerOption {
	return func(s *Server) {
		s.env = env
	}
}

func New(exchanger Exchanger, sess SessionLogin, routes guard.Routes, cookieName string, options ...ServerOption) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		exchanger:  exchanger,
		session:    sess,
		guard:      routes,
		cookieName: cookieName,
		providers:  map[string]bool{"google": true, "github": true},
		results:    make(chan Result, 1),
	}
	for _, opt := range options {
		opt(s)
	}
	s.initRoutes()
	return s
}

func (s *Server) initRoutes() {
	edge := guard.Middleware(s.guard, s.cookieName)
	s.RegisterRouteFunc(RouteCallback, ChainMiddleware(s.CallbackHandler(), s.StdMiddleware()...))
	s.RegisterRouteFunc(RouteHome, ChainMiddleware(s.pageHandler(http.StatusOK, "Login successful", "You are signed in. This window can be closed."), s.StdMiddleware(edge)...))
	s.RegisterRouteFunc(RouteLogin, ChainMiddleware(s.pageHandler(http.StatusOK, "Not signed in", "Return to the terminal and try again."), s.StdMiddleware(edge)...))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

// Results delivers the outcome of each callback. Outcomes nobody is waiting
// for are dropped.
func (s *Server) Results() <-chan Result {
	return s.results
}

func (s *Server) publish(res Result) {
	select {
	case s.results <- res:
	default:
	}
}

// Serve listens on addr until ctx is done. ready, if non-nil, receives the
// bound address once the listener is open.
func (s *Server) Serve(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("[callback Serve] listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Debug().Str("addr", ln.Addr().String()).Msg("Callback server listening")
	if ready != nil {
		ready(ln.Addr())
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("[callback Serve] %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("[callback Serve] shutdown: %w", err)
	}
	return nil
}
