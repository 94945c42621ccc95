package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-hotspot-client/api"
	apperrors "github.com/jrsteele09/go-hotspot-client/internal/errors"
	"github.com/jrsteele09/go-hotspot-client/session"
	"github.com/jrsteele09/go-hotspot-client/storage"
	"github.com/stretchr/testify/require"
)

// fakeBackend issues tok2 on refresh and accepts only tok2 on protected routes
// unless a route handler says otherwise.
type fakeBackend struct {
	refreshCalls atomic.Int32
	refreshOK    atomic.Bool
	refreshDelay time.Duration
	mux          *http.ServeMux
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	fb := &fakeBackend{mux: http.NewServeMux()}
	fb.refreshOK.Store(true)
	fb.mux.HandleFunc("POST "+api.EndpointRefresh, func(w http.ResponseWriter, r *http.Request) {
		fb.refreshCalls.Add(1)
		time.Sleep(fb.refreshDelay)
		if !fb.refreshOK.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"refresh token expired"}`))
			return
		}
		w.Write([]byte(`{"result":{"data":{"accessToken":"tok2"}}}`))
	})
	srv := httptest.NewServer(fb.mux)
	t.Cleanup(srv.Close)
	return fb, srv
}

func newClient(t *testing.T, srv *httptest.Server, token string) (*api.Client, *session.Store) {
	t.Helper()
	backend := api.NewBackend(srv.URL, srv.Client())
	store, err := session.New(storage.NewMemoryCookies(), storage.NewMemoryLocal(), backend)
	require.NoError(t, err)
	if token != "" {
		require.NoError(t, store.Login(token, session.UserProfile{"id": "u1"}))
	}
	return api.NewClient(srv.URL, srv.Client(), store), store
}

func TestRequest_SetsHeaders(t *testing.T) {
	fb, srv := newFakeBackend(t)
	var gotAuth, gotType, gotCustom string
	fb.mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotCustom = r.Header.Get("X-Device")
		w.Write([]byte(`{}`))
	})
	client, _ := newClient(t, srv, "tok1")

	resp, err := client.Request(context.Background(), srv.URL+"/echo", api.Options{
		Headers: map[string]string{"X-Device": "kiosk-1", "Authorization": "Bearer spoofed"},
	})
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "Bearer tok1", gotAuth)
	require.Equal(t, "application/json", gotType)
	require.Equal(t, "kiosk-1", gotCustom)
}

func TestRequest_NoTokenNoAuthorization(t *testing.T) {
	fb, srv := newFakeBackend(t)
	var hadAuth bool
	fb.mux.HandleFunc("/public", func(w http.ResponseWriter, r *http.Request) {
		_, hadAuth = r.Header["Authorization"]
		w.Write([]byte(`{}`))
	})
	client, _ := newClient(t, srv, "")

	resp, err := client.Request(context.Background(), srv.URL+"/public", api.Options{})
	require.NoError(t, err)
	resp.Body.Close()
	require.False(t, hadAuth)
}

func TestRequest_RefreshesOn401AndRetries(t *testing.T) {
	fb, srv := newFakeBackend(t)
	var attempts atomic.Int32
	var bodies []string
	var mu sync.Mutex
	fb.mux.HandleFunc("POST /invoice/create", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer tok2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	})
	client, store := newClient(t, srv, "tok1")

	resp, err := client.Request(context.Background(), srv.URL+"/invoice/create", api.Options{
		Method: http.MethodPost,
		Body:   []byte(`{"packageId":"p1"}`),
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 2, attempts.Load())
	require.EqualValues(t, 1, fb.refreshCalls.Load())
	require.Equal(t, []string{`{"packageId":"p1"}`, `{"packageId":"p1"}`}, bodies)
	require.Equal(t, "tok2", store.AccessToken())
	require.Equal(t, "u1", store.User()["id"])
}

func TestRequest_EmbeddedCodeTriggersRefresh(t *testing.T) {
	fb, srv := newFakeBackend(t)
	var attempts atomic.Int32
	fb.mux.HandleFunc("/package/show", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok2" {
			w.Write([]byte(`{"code":401,"message":"token expired"}`))
			return
		}
		w.Write([]byte(`{"result":{"data":[{"id":1,"name":"Daily"}]}}`))
	})
	client, _ := newClient(t, srv, "tok1")

	pkgs, err := client.ListPackages(context.Background())
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	require.Equal(t, "Daily", pkgs[0].Name)
	require.EqualValues(t, 2, attempts.Load())
	require.EqualValues(t, 1, fb.refreshCalls.Load())
}

func TestRequest_RetriesAtMostOnce(t *testing.T) {
	fb, srv := newFakeBackend(t)
	var attempts atomic.Int32
	fb.mux.HandleFunc("/always", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"nope"}`))
	})
	client, _ := newClient(t, srv, "tok1")

	resp, err := client.Request(context.Background(), srv.URL+"/always", api.Options{})
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.EqualValues(t, 2, attempts.Load())
	require.EqualValues(t, 1, fb.refreshCalls.Load())
}

func TestRequest_RetriesAtMostOnceForEmbeddedCode(t *testing.T) {
	fb, srv := newFakeBackend(t)
	var attempts atomic.Int32
	fb.mux.HandleFunc("/always", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Write([]byte(`{"code":401}`))
	})
	client, _ := newClient(t, srv, "tok1")

	resp, err := client.Request(context.Background(), srv.URL+"/always", api.Options{})
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	require.JSONEq(t, `{"code":401}`, string(body))
	require.EqualValues(t, 2, attempts.Load())
}

func TestRequest_RefreshFailureIsSessionExpired(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.refreshOK.Store(false)
	var attempts atomic.Int32
	fb.mux.HandleFunc("/package/show", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	client, store := newClient(t, srv, "tok1")

	_, err := client.ListPackages(context.Background())
	require.ErrorIs(t, err, api.ErrSessionExpired)
	require.EqualValues(t, 1, attempts.Load())
	require.False(t, store.IsAuthenticated())
}

func TestRequest_BodyIsNotConsumedByInspection(t *testing.T) {
	fb, srv := newFakeBackend(t)
	payload := `{"code":200,"result":{"data":{"id":"inv-1","status":"pending"}}}`
	fb.mux.HandleFunc("/invoice/find/inv-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	})
	client, _ := newClient(t, srv, "tok1")

	resp, err := client.Request(context.Background(), srv.URL+"/invoice/find/inv-1", api.Options{})
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, payload, string(body))
	require.Zero(t, fb.refreshCalls.Load())
}

func TestRequest_TransportFailure(t *testing.T) {
	_, srv := newFakeBackend(t)
	client, store := newClient(t, srv, "tok1")
	srv.Close()

	_, err := client.Request(context.Background(), srv.URL+"/package/show", api.Options{})
	require.Error(t, err)
	require.NotErrorIs(t, err, api.ErrSessionExpired)
	require.True(t, store.IsAuthenticated())
}

func TestRequest_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.refreshDelay = 20 * time.Millisecond

	var firstAttempts sync.WaitGroup
	firstAttempts.Add(2)
	var attempts atomic.Int32
	fb.mux.HandleFunc("/package/show", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		if r.Header.Get("Authorization") == "Bearer tok2" {
			w.Write([]byte(`{"data":[{"id":"p1","name":"Weekly"}]}`))
			return
		}
		firstAttempts.Done()
		firstAttempts.Wait()
		w.WriteHeader(http.StatusUnauthorized)
	})
	client, store := newClient(t, srv, "tok1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = client.ListPackages(context.Background())
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.EqualValues(t, 1, fb.refreshCalls.Load())
	require.EqualValues(t, 4, attempts.Load())
	require.Equal(t, "tok2", store.AccessToken())
}

func TestClient_StatusError(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.mux.HandleFunc("/invoice/find/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"invoice not found"}`))
	})
	client, _ := newClient(t, srv, "tok1")

	_, err := client.FindInvoice(context.Background(), "missing")
	var statusErr *api.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.Equal(t, "invoice not found", statusErr.Message)
	require.ErrorIs(t, err, apperrors.ErrUnexpectedStatus)
}

func TestClient_CreateInvoice(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.mux.HandleFunc("POST /invoice/create", func(w http.ResponseWriter, r *http.Request) {
		var req api.CreateInvoiceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Write([]byte(`{"result":{"data":{"id":7,"packageId":"` + req.PackageID.String() + `","amount":5000,"status":"pending"}}}`))
	})
	client, _ := newClient(t, srv, "tok1")

	inv, err := client.CreateInvoice(context.Background(), api.CreateInvoiceRequest{PackageID: "p1"})
	require.NoError(t, err)
	require.Equal(t, api.ID("7"), inv.ID)
	require.Equal(t, api.ID("p1"), inv.PackageID)
	require.Equal(t, api.InvoicePending, inv.Status)
}

func TestClient_Notifications(t *testing.T) {
	fb, srv := newFakeBackend(t)
	var readPath string
	fb.mux.HandleFunc("GET "+api.EndpointNotificationList, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":1,"title":"Paid","body":"Invoice paid","isRead":false}]}`))
	})
	fb.mux.HandleFunc("PATCH /v1/notification/read/{id}", func(w http.ResponseWriter, r *http.Request) {
		readPath = r.URL.Path
		w.Write([]byte(`{"result":{"message":"ok"}}`))
	})
	client, _ := newClient(t, srv, "tok1")

	ns, err := client.ListNotifications(context.Background())
	require.NoError(t, err)
	require.Len(t, ns, 1)
	require.Equal(t, "Paid", ns[0].Title)

	require.NoError(t, client.MarkNotificationRead(context.Background(), "1"))
	require.Equal(t, "/v1/notification/read/1", readPath)
}

func TestBackend_LoginAndRefreshUseCookieJar(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+api.EndpointLogin, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"invalid credentials"}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: "r1", Path: "/auth", HttpOnly: true})
		w.Write([]byte(`{"result":{"data":{"accessToken":"tok1","user":{"id":"u1","email":"` + body["email"] + `"}}}}`))
	})
	mux.HandleFunc("POST "+api.EndpointRefresh, func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("refreshToken")
		if err != nil || c.Value != "r1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"accessToken":"tok2"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	jarPath := filepath.Join(t.TempDir(), "backend.cookies.json")
	jar, err := storage.NewFileCookies(jarPath)
	require.NoError(t, err)
	hc := srv.Client()
	hc.Jar = jar
	backend := api.NewBackend(srv.URL, hc)

	_, err = backend.Login(context.Background(), "a@b.c", "wrong")
	var statusErr *api.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, "invalid credentials", statusErr.Message)

	res, err := backend.Login(context.Background(), "a@b.c", "secret")
	require.NoError(t, err)
	require.Equal(t, "tok1", res.AccessToken)
	require.Equal(t, "a@b.c", res.User["email"])

	// A new process reloads the jar from disk.
	reloaded, err := storage.NewFileCookies(jarPath)
	require.NoError(t, err)
	hc2 := srv.Client()
	hc2.Jar = reloaded
	refreshed, err := api.NewBackend(srv.URL, hc2).Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok2", refreshed.AccessToken)
	require.Nil(t, refreshed.User)
}

func TestBackend_VerifyOTPAndSocialCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+api.EndpointVerifyOTP, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"data":{"accessToken":"otp-tok","refreshToken":"ignored","user":{"id":"u5"}}}}`))
	})
	mux.HandleFunc("POST /auth/google/callback", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"accessToken":"social-` + body["code"] + `"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	backend := api.NewBackend(srv.URL, srv.Client())

	res, err := backend.VerifyOTP(context.Background(), "a@b.c", "123456")
	require.NoError(t, err)
	require.Equal(t, "otp-tok", res.AccessToken)
	require.Equal(t, "u5", res.User["id"])

	res, err = backend.ExchangeSocialCode(context.Background(), "google", "abc")
	require.NoError(t, err)
	require.Equal(t, "social-abc", res.AccessToken)
}
