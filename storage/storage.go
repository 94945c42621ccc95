// Package storage persists the small amount of client state the session layer
// needs: named cookie values (the access token and the backend's refresh
// cookie) and durable key/value records (the user profile).
//
// Every store is safe for concurrent use. Stores that have no persistent
// medium behind them, such as Unavailable, accept writes and forget them.
package storage

import (
	"time"
)

// CookieStore gets, sets and deletes named string values.
type CookieStore interface {
	Get(name string) (string, bool)
	Set(name, value string, opts ...Option) error
	Delete(name string) error
}

// LocalStore keeps JSON-serialisable records under fixed keys.
// Load returns errors.ErrNotFound when the key has no record.
type LocalStore interface {
	Load(key string, v any) error
	Save(key string, v any) error
	Remove(key string) error
}

// Cookie is a single persisted value. Host is set only for cookies received
// through the http.CookieJar side of FileCookies; such a cookie is sent back
// to that exact host (port included) and nowhere else.
type Cookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path"`
	Host    string    `json:"host,omitempty"`
	Secure  bool      `json:"secure,omitempty"`
	Expires time.Time `json:"expires,omitzero"`
}

// cookieKey separates jar cookies of different hosts from each other and from
// the host-less values managed through CookieStore.
func cookieKey(host, name string) string {
	if host == "" {
		return name
	}
	return host + "\x00" + name
}

func (c Cookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !now.Before(c.Expires)
}

// Options configures cookie attributes for Set.
type Options struct {
	Path string
	// MaxAge of zero keeps the cookie until it is deleted. Negative values
	// delete the cookie immediately.
	MaxAge time.Duration

	host   string
	secure bool
}

// Option is a functional option for configuring cookie options.
type Option func(*Options)

// WithPath sets the cookie path attribute.
func WithPath(path string) Option {
	return func(o *Options) {
		o.Path = path
	}
}

// WithMaxAge sets how long the cookie lives.
func WithMaxAge(maxAge time.Duration) Option {
	return func(o *Options) {
		o.MaxAge = maxAge
	}
}

func applyOptions(opts []Option) Options {
	o := Options{Path: "/"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Path == "" {
		o.Path = "/"
	}
	return o
}
