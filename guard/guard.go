// Package guard decides, for the current path and session, whether the user
// may stay or must be redirected: to the login screen when a protected path
// is opened without a session, or to the home screen when an authenticated
// user opens a login screen.
package guard

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

type State int

const (
	Allowed State = iota
	Redirecting
)

func (s State) String() string {
	if s == Redirecting {
		return "redirecting"
	}
	return "allowed"
}

// Authenticator is what a one-off Check needs from the session.
type Authenticator interface {
	IsAuthenticated() bool
	RefreshToken(ctx context.Context) bool
}

// Session is the part of session.Store a mounted Guard reads.
type Session interface {
	Authenticator
	AccessToken() string
	Subscribe(listener func()) (unsubscribe func())
}

// Navigator performs redirects.
type Navigator interface {
	Redirect(path string)
}

type NavigatorFunc func(path string)

func (f NavigatorFunc) Redirect(path string) { f(path) }

// Scheduler runs fn after the current call stack unwinds. It must not run fn
// before Defer returns.
type Scheduler interface {
	Defer(fn func())
}

type SchedulerFunc func(fn func())

func (f SchedulerFunc) Defer(fn func()) { f(fn) }

// GoScheduler defers to a new goroutine.
var GoScheduler Scheduler = SchedulerFunc(func(fn func()) { go fn() })

// Decision is the outcome of one evaluation.
type Decision struct {
	State     State
	Redirect  string
	Refreshed bool
}

// Guard re-evaluates on Mount, on Navigate and whenever the session's token
// changes. Evaluations are deferred by one Scheduler tick so a session that is
// still being restored is not redirected away from, and are serialised so a
// newer evaluation supersedes an older one.
type Guard struct {
	*Checker
	session Session
	nav     Navigator
	sched   Scheduler

	mu        sync.Mutex
	ctx       context.Context
	path      string
	gen       uint64
	lastToken string
	state     State
	unsub     func()

	evalMu sync.Mutex
}

type Option func(*Guard)

// WithScheduler replaces GoScheduler (primarily for testing).
func WithScheduler(s Scheduler) Option {
	return func(g *Guard) {
		g.sched = s
	}
}

func New(routes Routes, s Session, nav Navigator, opts ...Option) *Guard {
	g := &Guard{
		Checker: NewChecker(routes, s),
		session: s,
		nav:     nav,
		sched:   GoScheduler,
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Checker evaluates the rules on demand, for callers such as a command
// router that act on the Decision themselves and never mount.
type Checker struct {
	routes Routes
	auth   Authenticator
}

func NewChecker(routes Routes, auth Authenticator) *Checker {
	return &Checker{routes: routes, auth: auth}
}

// Check applies the rules to path right now. A protected path without a
// session gets one silent refresh before it is refused.
func (c *Checker) Check(ctx context.Context, path string) Decision {
	if c.routes.IsBypassed(path) {
		return Decision{State: Allowed}
	}
	public := c.routes.IsPublic(path)
	authed := c.auth.IsAuthenticated()

	switch {
	case !public && !authed:
		if c.auth.RefreshToken(ctx) {
			return Decision{State: Allowed, Refreshed: true}
		}
		return Decision{State: Redirecting, Redirect: c.routes.LoginPath}
	case public && authed && c.routes.IsAuthScreen(path):
		return Decision{State: Redirecting, Redirect: c.routes.HomePath}
	}
	return Decision{State: Allowed}
}

// Mount starts guarding path. ctx is used for the silent refreshes of every
// later evaluation. The returned function stops reacting to session changes.
func (g *Guard) Mount(ctx context.Context, path string) (unmount func()) {
	g.mu.Lock()
	g.ctx = ctx
	g.path = path
	g.lastToken = g.session.AccessToken()
	if g.unsub != nil {
		g.unsub()
	}
	g.unsub = g.session.Subscribe(g.sessionChanged)
	g.mu.Unlock()

	g.schedule()
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.unsub != nil {
			g.unsub()
			g.unsub = nil
		}
		g.gen++
	}
}

// Navigate records a path change and re-evaluates.
func (g *Guard) Navigate(path string) {
	g.mu.Lock()
	g.path = path
	g.mu.Unlock()
	g.schedule()
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Guard) Path() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.path
}

// sessionChanged ignores notifications that leave the token as it was, such
// as the logout that follows a failed silent refresh when already logged out.
func (g *Guard) sessionChanged() {
	token := g.session.AccessToken()
	g.mu.Lock()
	if token == g.lastToken {
		g.mu.Unlock()
		return
	}
	g.lastToken = token
	g.mu.Unlock()
	g.schedule()
}

func (g *Guard) schedule() {
	g.mu.Lock()
	g.gen++
	gen := g.gen
	g.mu.Unlock()

	g.sched.Defer(func() { g.evaluate(gen) })
}

func (g *Guard) evaluate(gen uint64) {
	g.evalMu.Lock()
	defer g.evalMu.Unlock()

	g.mu.Lock()
	if gen != g.gen {
		g.mu.Unlock()
		return
	}
	ctx, path := g.ctx, g.path
	g.mu.Unlock()

	d := g.Check(ctx, path)

	g.mu.Lock()
	if gen != g.gen {
		// A newer evaluation is queued; let it decide.
		g.mu.Unlock()
		return
	}
	g.state = d.State
	g.lastToken = g.session.AccessToken()
	g.mu.Unlock()

	if d.State == Redirecting {
		log.Debug().Str("from", path).Str("to", d.Redirect).Msg("Route guard redirect")
		g.nav.Redirect(d.Redirect)
	}
}
