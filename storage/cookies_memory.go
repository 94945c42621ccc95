package storage

import (
	"sync"
	"time"
)

var _ CookieStore = (*MemoryCookies)(nil)

// MemoryCookies is an in-process CookieStore. It is also the base the file
// backed store builds on.
type MemoryCookies struct {
	mu      sync.RWMutex
	cookies map[string]Cookie
	now     func() time.Time
}

// NewMemoryCookies creates an empty in-memory cookie store.
func NewMemoryCookies() *MemoryCookies {
	return &MemoryCookies{
		cookies: make(map[string]Cookie),
		now:     time.Now,
	}
}

// SetNowFunc replaces the clock (primarily for testing).
func (m *MemoryCookies) SetNowFunc(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryCookies) Get(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cookies[name]
	if !ok || c.expired(m.now()) {
		return "", false
	}
	return c.Value, true
}

func (m *MemoryCookies) Set(name, value string, opts ...Option) error {
	o := applyOptions(opts)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(name, value, o)
	return nil
}

func (m *MemoryCookies) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cookies, name)
	return nil
}

// Cookie returns the full record for name, including expired ones.
func (m *MemoryCookies) Cookie(name string) (Cookie, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cookies[name]
	return c, ok
}

func (m *MemoryCookies) setLocked(name, value string, o Options) {
	key := cookieKey(o.host, name)
	if o.MaxAge < 0 {
		delete(m.cookies, key)
		return
	}
	c := Cookie{Name: name, Value: value, Path: o.Path, Host: o.host, Secure: o.secure}
	if o.MaxAge > 0 {
		c.Expires = m.now().Add(o.MaxAge)
	}
	m.cookies[key] = c
}

// snapshot returns the live cookies and drops expired ones.
func (m *MemoryCookies) snapshotLocked() []Cookie {
	now := m.now()
	out := make([]Cookie, 0, len(m.cookies))
	for key, c := range m.cookies {
		if c.expired(now) {
			delete(m.cookies, key)
			continue
		}
		out = append(out, c)
	}
	return out
}
