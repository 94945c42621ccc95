// Package app is the hotspot command line client: it builds the session
// layer from configuration and routes each command through the guard.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jrsteele09/go-hotspot-client/api"
	"github.com/jrsteele09/go-hotspot-client/guard"
	"github.com/jrsteele09/go-hotspot-client/internal/config"
	apperrors "github.com/jrsteele09/go-hotspot-client/internal/errors"
	"github.com/jrsteele09/go-hotspot-client/notify"
	"github.com/jrsteele09/go-hotspot-client/session"
	"github.com/jrsteele09/go-hotspot-client/storage"
	"github.com/jrsteele09/go-hotspot-client/storage/redisstore"
	"github.com/rs/zerolog/log"
)

const (
	sessionCookieFile = "session.cookies.json"
	backendCookieFile = "backend.cookies.json"
)

// ErrUsage marks an invalid command line.
var ErrUsage = errors.New("usage error")

type App struct {
	cfg      config.Config
	out      io.Writer
	routes   guard.Routes
	cookies  storage.CookieStore
	local    storage.LocalStore
	jar      http.CookieJar
	backend  *api.Backend
	client   *api.Client
	session  *session.Store
	checker  *guard.Checker
	registry *notify.Registry
	sender   notify.Sender
	closers  []io.Closer
	commands map[string]command
}

type Option func(*App)

// WithCookieStore replaces the file cookie store that holds the access token.
func WithCookieStore(cookies storage.CookieStore) Option {
	return func(a *App) {
		a.cookies = cookies
	}
}

func WithLocalStore(local storage.LocalStore) Option {
	return func(a *App) {
		a.local = local
	}
}

// WithCookieJar replaces the jar that carries the backend refresh cookie.
func WithCookieJar(jar http.CookieJar) Option {
	return func(a *App) {
		a.jar = jar
	}
}

func WithPushSender(sender notify.Sender) Option {
	return func(a *App) {
		a.sender = sender
	}
}

// New wires the client. Stores not supplied by options are created under the
// configured data folder, or in Redis for the profile when configured.
func New(ctx context.Context, cfg config.Config, out io.Writer, options ...Option) (*App, error) {
	a := &App{cfg: cfg, out: out, routes: guard.RoutesFromConfig(cfg)}
	for _, opt := range options {
		opt(a)
	}

	if err := a.initStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	httpClient := &http.Client{Jar: a.jar, Timeout: cfg.GetRequestTimeout()}
	a.backend = api.NewBackend(cfg.GetAPIBaseURL(), httpClient)

	store, err := session.New(a.cookies, a.local, a.backend, session.WithSessionConfig(cfg))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("[app New] %w", err)
	}
	a.session = store
	a.client = api.NewClient(cfg.GetAPIBaseURL(), httpClient, store)
	a.checker = guard.NewChecker(a.routes, store)

	registry, err := notify.LoadRegistry(a.local)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("[app New] %w", err)
	}
	a.registry = registry

	a.commands = a.commandTable()
	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	dataDir := a.cfg.GetDataFolder()

	if a.cookies == nil {
		cookies, err := storage.NewFileCookies(filepath.Join(dataDir, sessionCookieFile))
		if err != nil {
			return fmt.Errorf("[app New] session cookies: %w", err)
		}
		a.cookies = cookies
	}

	if a.jar == nil {
		jar, err := storage.NewFileCookies(filepath.Join(dataDir, backendCookieFile))
		if err != nil {
			return fmt.Errorf("[app New] backend cookies: %w", err)
		}
		a.jar = jar
	}

	if a.local == nil {
		switch a.cfg.GetProfileStore() {
		case "redis":
			rs, err := redisstore.Connect(ctx, a.cfg.GetRedisURL())
			if err != nil {
				return fmt.Errorf("[app New] %w", err)
			}
			a.local = rs
			a.closers = append(a.closers, rs)
		case "file", "":
			a.local = storage.NewFileLocal(dataDir)
		default:
			return fmt.Errorf("[app New] unknown profile store %q", a.cfg.GetProfileStore())
		}
	}
	return nil
}

// Session exposes the store, mainly for embedding programs.
func (a *App) Session() *session.Store {
	return a.session
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Run executes one command line.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		a.printUsage()
		return nil
	}

	cmd, ok := a.commands[args[0]]
	if !ok {
		a.printUsage()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}

	if path := cmd.path(args[1:]); path != "" {
		decision := a.checker.Check(ctx, path)
		log.Debug().Str("command", args[0]).Str("path", path).Str("state", decision.State.String()).
			Bool("refreshed", decision.Refreshed).Msg("Route checked")
		if decision.State == guard.Redirecting {
			return a.redirected(decision.Redirect)
		}
	}

	err := cmd.run(ctx, args[1:])
	if apperrors.Is(err, api.ErrSessionExpired) {
		fmt.Fprintln(a.out, "Your session has expired. Run `hotspot login` to sign in again.")
	}
	return err
}

func (a *App) redirected(to string) error {
	switch to {
	case a.routes.LoginPath:
		fmt.Fprintln(a.out, "You are not signed in. Run `hotspot login` first.")
		return apperrors.Wrapf(apperrors.ErrNotAuthenticated, "[app Run]")
	case a.routes.HomePath:
		fmt.Fprintf(a.out, "Already signed in as %s.\n", displayName(a.session.User()))
		return nil
	default:
		return fmt.Errorf("[app Run] redirected to %s", to)
	}
}

func (a *App) printUsage() {
	names := make([]string, 0, len(a.commands))
	for name := range a.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "Usage: hotspot <command> [flags]\n\nCommands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %-14s %s\n", name, a.commands[name].summary)
	}
	fmt.Fprint(a.out, b.String())
}
