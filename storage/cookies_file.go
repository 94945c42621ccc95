package storage

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-hotspot-client/internal/errors"
)

var (
	_ CookieStore    = (*FileCookies)(nil)
	_ http.CookieJar = (*FileCookies)(nil)
)

// FileCookies is a CookieStore persisted as a JSON file. Every mutation
// rewrites the file.
//
// FileCookies also satisfies http.CookieJar. Jar cookies are host-only: a
// cookie is returned only for the exact host and port that set it, whatever
// its Domain attribute says, and Secure cookies only over https. Redirects
// and absolute URLs to other hosts therefore never carry the backend's
// refresh cookie.
type FileCookies struct {
	*MemoryCookies
	path string
}

// NewFileCookies loads path if it exists. A missing file is an empty store.
func NewFileCookies(path string) (*FileCookies, error) {
	fc := &FileCookies{
		MemoryCookies: NewMemoryCookies(),
		path:          path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fc, nil
		}
		return nil, fmt.Errorf("[NewFileCookies] read %s: %w", path, err)
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, apperrors.Wrapf(err, "[NewFileCookies] decode %s", path)
	}
	now := fc.now()
	for _, c := range cookies {
		if !c.expired(now) {
			fc.cookies[cookieKey(c.Host, c.Name)] = c
		}
	}
	return fc, nil
}

func (f *FileCookies) Set(name, value string, opts ...Option) error {
	o := applyOptions(opts)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.setLocked(name, value, o)
	return f.flushLocked()
}

func (f *FileCookies) Delete(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.cookies[name]; !ok {
		return nil
	}
	delete(f.cookies, name)
	return f.flushLocked()
}

// SetCookies implements http.CookieJar.
func (f *FileCookies) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 || u == nil || u.Host == "" {
		return
	}
	host := strings.ToLower(u.Host)

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	for _, hc := range cookies {
		o := Options{Path: hc.Path, host: host, secure: hc.Secure}
		if o.Path == "" {
			o.Path = "/"
		}
		switch {
		case hc.MaxAge < 0:
			o.MaxAge = -1
		case hc.MaxAge > 0:
			o.MaxAge = time.Duration(hc.MaxAge) * time.Second
		case !hc.Expires.IsZero():
			o.MaxAge = hc.Expires.Sub(now)
			if o.MaxAge <= 0 {
				o.MaxAge = -1
			}
		}
		f.setLocked(hc.Name, hc.Value, o)
	}
	// The jar interface has no error path; a failed flush keeps the cookies
	// in memory for the life of the process.
	_ = f.flushLocked()
}

// Cookies implements http.CookieJar. Longer paths sort first.
func (f *FileCookies) Cookies(u *url.URL) []*http.Cookie {
	if u == nil || u.Host == "" {
		return nil
	}
	host := strings.ToLower(u.Host)
	https := u.Scheme == "https"
	reqPath := u.Path
	if reqPath == "" {
		reqPath = "/"
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	now := f.now()
	var matched []Cookie
	for _, c := range f.cookies {
		if c.Host == "" || c.Host != host || (c.Secure && !https) {
			continue
		}
		if c.expired(now) || !pathMatch(c.Path, reqPath) {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool {
		if len(matched[i].Path) != len(matched[j].Path) {
			return len(matched[i].Path) > len(matched[j].Path)
		}
		return matched[i].Name < matched[j].Name
	})

	out := make([]*http.Cookie, 0, len(matched))
	for _, c := range matched {
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

func (f *FileCookies) flushLocked() error {
	cookies := f.snapshotLocked()
	sort.Slice(cookies, func(i, j int) bool {
		if cookies[i].Host != cookies[j].Host {
			return cookies[i].Host < cookies[j].Host
		}
		return cookies[i].Name < cookies[j].Name
	})

	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("[FileCookies] encode: %w", err)
	}
	return writeFileAtomic(f.path, data)
}

// pathMatch follows the RFC 6265 path-match rule.
func pathMatch(cookiePath, reqPath string) bool {
	if cookiePath == reqPath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("[writeFileAtomic] mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("[writeFileAtomic] create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("[writeFileAtomic] write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("[writeFileAtomic] close: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("[writeFileAtomic] chmod: %w", err)
	}
	return os.Rename(tmpName, path)
}
