// Package session holds the process-wide authentication state of the client:
// whether a user is signed in, the bearer access token and the user profile.
//
// A Store is the single writer of that state. It persists the access token to
// a cookie store and the profile to a local store, notifies subscribers after
// every login and logout, and collapses concurrent token refreshes into one
// backend call.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-hotspot-client/internal/config"
	apperrors "github.com/jrsteele09/go-hotspot-client/internal/errors"
	"github.com/jrsteele09/go-hotspot-client/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

// UserProfile is the user object as the backend returns it (id, fullname,
// email, roles, ...). It is stored and handed back without interpretation.
type UserProfile map[string]any

// Clone deep-copies the profile, including nested objects and arrays, so a
// caller can modify what it was given without touching the committed state.
func (p UserProfile) Clone() UserProfile {
	if p == nil {
		return nil
	}
	return UserProfile(cloneObject(p))
}

func cloneObject(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return cloneObject(vv)
	case UserProfile:
		return vv.Clone()
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), vv...)
	default:
		return v
	}
}

// State is an immutable view of the session. IsAuthenticated is true exactly
// when AccessToken is non-empty.
type State struct {
	IsAuthenticated bool
	AccessToken     string
	User            UserProfile
}

// RefreshResult is what a successful refresh call yields. A nil User leaves
// the current profile in place.
type RefreshResult struct {
	AccessToken string
	User        UserProfile
}

// Refresher exchanges ambient credentials (the backend's refresh cookie) for a
// new access token.
type Refresher interface {
	Refresh(ctx context.Context) (*RefreshResult, error)
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.Mutex // serialises mutations and the refresh join check
	state atomic.Pointer[State]

	cookies   storage.CookieStore
	local     storage.LocalStore
	refresher Refresher
	flight    singleflight.Group

	subsMu      sync.RWMutex
	subscribers map[uuid.UUID]func()

	cookieName   string
	cookiePath   string
	cookieMaxAge time.Duration
	profileKey   string
	nowTime      func() time.Time
}

// StoreOption defines a function type to modify the Store instance.
type StoreOption func(*Store)

// WithSessionConfig takes cookie and profile settings from configuration.
func WithSessionConfig(cfg config.SessionConfig) StoreOption {
	return func(s *Store) {
		s.cookieName = cfg.GetAccessTokenCookieName()
		s.cookiePath = cfg.GetCookiePath()
		s.cookieMaxAge = cfg.GetCookieMaxAge()
		s.profileKey = cfg.GetProfileKey()
	}
}

// WithCookieMaxAge bounds the lifetime of the persisted token cookie.
func WithCookieMaxAge(maxAge time.Duration) StoreOption {
	return func(s *Store) {
		s.cookieMaxAge = maxAge
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// New builds a Store and restores any persisted session. Restoring never
// touches the network: a persisted token is trusted until a request proves
// otherwise.
func New(cookies storage.CookieStore, local storage.LocalStore, refresher Refresher, options ...StoreOption) (*Store, error) {
	if cookies == nil {
		return nil, errors.New("[session New] cookie store is required")
	}
	if local == nil {
		return nil, errors.New("[session New] local store is required")
	}
	if refresher == nil {
		return nil, errors.New("[session New] refresher is required")
	}

	s := &Store{
		cookies:      cookies,
		local:        local,
		refresher:    refresher,
		subscribers:  make(map[uuid.UUID]func()),
		cookieName:   "accessToken",
		cookiePath:   "/",
		cookieMaxAge: time.Hour,
		profileKey:   "user",
		nowTime:      time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	s.state.Store(s.restore())
	return s, nil
}

func (s *Store) restore() *State {
	token, ok := s.cookies.Get(s.cookieName)
	if !ok || token == "" {
		return &State{}
	}

	st := &State{IsAuthenticated: true, AccessToken: token}
	var user UserProfile
	if err := s.local.Load(s.profileKey, &user); err != nil {
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			log.Err(err).Msg("Session restore: failed to load user profile")
		}
		return st
	}
	st.User = user
	return st
}

// Snapshot returns the latest committed state.
func (s *Store) Snapshot() State {
	st := *s.state.Load()
	st.User = st.User.Clone()
	return st
}

func (s *Store) IsAuthenticated() bool {
	return s.state.Load().IsAuthenticated
}

func (s *Store) AccessToken() string {
	return s.state.Load().AccessToken
}

func (s *Store) User() UserProfile {
	return s.state.Load().User.Clone()
}

// Login commits a new session, persists it and notifies subscribers.
// A nil user keeps the profile already held.
func (s *Store) Login(accessToken string, user UserProfile) error {
	if accessToken == "" {
		return apperrors.Wrapf(apperrors.ErrEmptyToken, "[session Login]")
	}

	s.mu.Lock()
	next := &State{IsAuthenticated: true, AccessToken: accessToken, User: user.Clone()}
	if user == nil {
		next.User = s.state.Load().User
	}
	s.state.Store(next)

	if err := s.cookies.Set(s.cookieName, accessToken,
		storage.WithPath(s.cookiePath),
		storage.WithMaxAge(s.tokenCookieMaxAge(accessToken)),
	); err != nil {
		log.Err(err).Msg("Login: failed to persist access token")
	}
	if user != nil {
		if err := s.local.Save(s.profileKey, user); err != nil {
			log.Err(err).Msg("Login: failed to persist user profile")
		}
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// Logout clears the session and its persisted copy. Persistence failures are
// logged and otherwise ignored.
func (s *Store) Logout() {
	s.mu.Lock()
	s.state.Store(&State{})
	if err := s.cookies.Delete(s.cookieName); err != nil {
		log.Err(err).Msg("Logout: failed to clear access token")
	}
	if err := s.local.Remove(s.profileKey); err != nil {
		log.Err(err).Msg("Logout: failed to clear user profile")
	}
	s.mu.Unlock()

	s.notify()
}

// RefreshToken asks the backend for a new access token. Concurrent callers
// share a single backend call and all receive its outcome. On success the new
// token is committed through Login; on any failure the session is logged out.
//
// The backend call is detached from ctx cancellation: once started it always
// runs to completion.
func (s *Store) RefreshToken(ctx context.Context) bool {
	s.mu.Lock()
	ch := s.startRefreshLocked(ctx)
	s.mu.Unlock()
	return s.awaitRefresh(ch)
}

// RefreshStale is RefreshToken for a caller whose request was rejected while
// using usedToken. If the session already holds a different token, someone
// else refreshed in the meantime and no backend call is made.
func (s *Store) RefreshStale(ctx context.Context, usedToken string) bool {
	s.mu.Lock()
	if cur := s.state.Load(); cur.IsAuthenticated && cur.AccessToken != usedToken {
		s.mu.Unlock()
		return true
	}
	ch := s.startRefreshLocked(ctx)
	s.mu.Unlock()
	return s.awaitRefresh(ch)
}

// startRefreshLocked joins the in-flight refresh or starts one. The flight
// commits through Login/Logout, which need s.mu, so a caller holding s.mu
// either sees the committed token or joins a flight that has not finished.
func (s *Store) startRefreshLocked(ctx context.Context) <-chan singleflight.Result {
	detached := context.WithoutCancel(ctx)
	return s.flight.DoChan(refreshKey, func() (any, error) {
		return s.doRefresh(detached), nil
	})
}

func (s *Store) awaitRefresh(ch <-chan singleflight.Result) bool {
	res := <-ch
	ok, _ := res.Val.(bool)
	log.Debug().Bool("refreshed", ok).Bool("shared", res.Shared).Msg("Session refresh finished")
	return ok
}

func (s *Store) doRefresh(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Session refresh panicked")
			s.Logout()
			ok = false
		}
	}()

	res, err := s.refresher.Refresh(ctx)
	if err != nil {
		log.Err(err).Msg("Session refresh failed")
		s.Logout()
		return false
	}
	if res == nil || res.AccessToken == "" {
		log.Warn().Msg("Session refresh returned no access token")
		s.Logout()
		return false
	}
	if err := s.Login(res.AccessToken, res.User); err != nil {
		log.Err(err).Msg("Session refresh: login failed")
		s.Logout()
		return false
	}
	return true
}

// Subscribe registers listener to run after every login and logout. Each call
// returns its own unsubscribe function; calling it more than once is harmless.
// Listeners run synchronously on the mutating goroutine and must not wait on
// RefreshToken.
func (s *Store) Subscribe(listener func()) (unsubscribe func()) {
	id := uuid.New()

	s.subsMu.Lock()
	s.subscribers[id] = listener
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subscribers, id)
			s.subsMu.Unlock()
		})
	}
}

func (s *Store) notify() {
	s.subsMu.RLock()
	listeners := make([]func(), 0, len(s.subscribers))
	for _, l := range s.subscribers {
		listeners = append(listeners, l)
	}
	s.subsMu.RUnlock()

	for _, l := range listeners {
		s.callListener(l)
	}
}

// callListener keeps a panicking listener from unwinding into Login, Logout
// or a refresh flight.
func (s *Store) callListener(l func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Session listener panicked")
		}
	}()
	l()
}

// Token makes the Store an oauth2.TokenSource.
func (s *Store) Token() (*oauth2.Token, error) {
	token := s.AccessToken()
	if token == "" {
		return nil, apperrors.ErrNotAuthenticated
	}
	t := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	if exp, ok := tokenExpiry(token); ok {
		t.Expiry = exp
	}
	return t, nil
}

var _ oauth2.TokenSource = (*Store)(nil)

// tokenCookieMaxAge is the configured max age, shortened to the token's own
// expiry when the token is a JWT that carries one.
func (s *Store) tokenCookieMaxAge(token string) time.Duration {
	exp, ok := tokenExpiry(token)
	if !ok {
		return s.cookieMaxAge
	}
	if until := exp.Sub(s.nowTime()); until > 0 && until < s.cookieMaxAge {
		return until
	}
	return s.cookieMaxAge
}

// tokenExpiry reads the exp claim without verifying the signature; the
// client holds no key and only uses it to size the cookie.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
