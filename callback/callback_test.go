package callback_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-hotspot-client/api"
	"github.com/jrsteele09/go-hotspot-client/callback"
	"github.com/jrsteele09/go-hotspot-client/guard"
	"github.com/jrsteele09/go-hotspot-client/session"
	"github.com/jrsteele09/go-hotspot-client/session/refresherfake"
	"github.com/jrsteele09/go-hotspot-client/storage"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	server  *callback.Server
	store   *session.Store
	backend *httptest.Server

	mu    sync.Mutex
	codes []string
}

func (f *testFixture) exchangedCodes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.codes...)
}

var routes = guard.Routes{
	PublicPrefixes: []string{"/auth", "/api/auth"},
	LoginPath:      "/auth",
	HomePath:       "/",
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/google/callback", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.codes = append(f.codes, body["code"])
		f.mu.Unlock()
		if body["code"] == "bad" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"invalid grant"}`))
			return
		}
		w.Write([]byte(`{"data":{"accessToken":"tok-social","user":{"email":"a@b.c"}}}`))
	})
	f.backend = httptest.NewServer(mux)
	t.Cleanup(f.backend.Close)

	store, err := session.New(storage.NewMemoryCookies(), storage.NewMemoryLocal(), refresherfake.Failing())
	require.NoError(t, err)
	f.store = store

	backend := api.NewBackend(f.backend.URL, f.backend.Client())
	f.server = callback.New(backend, store, routes, "accessToken", callback.WithEnv("DEV"))
	return f
}

func get(t *testing.T, h http.Handler, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCallback_Success(t *testing.T) {
	f := setupTestFixture(t)

	rec := get(t, f.server, "/api/auth/google/callback?code=abc")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))
	require.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, []string{"abc"}, f.exchangedCodes())

	snap := f.store.Snapshot()
	require.True(t, snap.IsAuthenticated)
	require.Equal(t, "tok-social", snap.AccessToken)
	require.Equal(t, "a@b.c", snap.User["email"])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "accessToken", cookies[0].Name)

	select {
	case res := <-f.server.Results():
		require.Equal(t, "google", res.Provider)
		require.NoError(t, res.Err)
	default:
		t.Fatal("expected a result")
	}

	home := get(t, f.server, "/", cookies[0])
	require.Equal(t, http.StatusOK, home.Code)
	require.Contains(t, home.Body.String(), "Login successful")
}

func TestCallback_Failures(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantBody   string
		wantResult bool
	}{
		{name: "provider error", target: "/api/auth/google/callback?error=access_denied", wantStatus: http.StatusBadRequest, wantBody: "access_denied", wantResult: true},
		{name: "missing code", target: "/api/auth/google/callback", wantStatus: http.StatusBadRequest, wantBody: "No authorization code provided"},
		{name: "exchange rejected", target: "/api/auth/google/callback?code=bad", wantStatus: http.StatusInternalServerError, wantBody: "invalid grant", wantResult: true},
		{name: "unknown provider", target: "/api/auth/myspace/callback?code=abc", wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			rec := get(t, f.server, tt.target)
			require.Equal(t, tt.wantStatus, rec.Code)
			require.Contains(t, rec.Body.String(), tt.wantBody)
			require.False(t, f.store.IsAuthenticated())

			select {
			case res := <-f.server.Results():
				require.True(t, tt.wantResult)
				require.Error(t, res.Err)
			default:
				require.False(t, tt.wantResult)
			}
		})
	}
}

func TestCallback_EdgeRedirects(t *testing.T) {
	f := setupTestFixture(t)

	rec := get(t, f.server, "/")
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	require.Equal(t, "/auth", rec.Header().Get("Location"))

	rec = get(t, f.server, "/auth", &http.Cookie{Name: "accessToken", Value: "tok"})
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))

	rec = get(t, f.server, "/auth")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	f := setupTestFixture(t)
	h := callback.ChainMiddleware(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}, f.server.StdMiddleware()...)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	f := setupTestFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	addrCh := make(chan net.Addr, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- f.server.Serve(ctx, "127.0.0.1:0", func(a net.Addr) { addrCh <- a })
	}()

	addr := <-addrCh
	resp, err := http.Get("http://" + addr.String() + "/auth")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
