package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/go-hotspot-client/api"
	"github.com/jrsteele09/go-hotspot-client/internal/app"
	"github.com/jrsteele09/go-hotspot-client/internal/config"
	apperrors "github.com/jrsteele09/go-hotspot-client/internal/errors"
	"github.com/stretchr/testify/require"
)

// fakeBackend hands out tok1 at login and tok2 on refresh. Protected routes
// accept only the token in accepted.
type fakeBackend struct {
	srv          *httptest.Server
	accepted     atomic.Value
	refreshCalls atomic.Int32

	mu       sync.Mutex
	invoices []api.CreateInvoiceRequest
	pushSubs []api.PushSubscription
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	fb.accepted.Store("tok1")

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+api.EndpointLogin, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"invalid credentials"}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: "r1", Path: "/"})
		w.Write([]byte(`{"result":{"data":{"accessToken":"tok1","user":{"fullname":"Ada Lovelace","email":"ada@example.com","roles":["admin","user"]}}}}`))
	})
	mux.HandleFunc("POST "+api.EndpointRefresh, func(w http.ResponseWriter, r *http.Request) {
		fb.refreshCalls.Add(1)
		if c, err := r.Cookie("refreshToken"); err != nil || c.Value != "r1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"data":{"accessToken":"tok2"}}`))
	})
	mux.HandleFunc("POST "+api.EndpointLogout, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: "", Path: "/", MaxAge: -1})
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("GET "+api.EndpointPackageList, fb.protected(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":1,"name":"Daily","price":5000,"duration":1},{"id":"p-7","name":"Weekly","price":30000,"duration":7}]}`))
	}))
	mux.HandleFunc("POST "+api.EndpointInvoiceCreate, fb.protected(func(w http.ResponseWriter, r *http.Request) {
		var req api.CreateInvoiceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		fb.mu.Lock()
		fb.invoices = append(fb.invoices, req)
		fb.mu.Unlock()
		w.Write([]byte(`{"result":{"data":{"id":12,"packageId":"` + string(req.PackageID) + `","amount":5000,"status":"pending","paymentUrl":"https://pay.example/12"}}}`))
	}))
	mux.HandleFunc("POST "+api.EndpointPushSubscription, fb.protected(func(w http.ResponseWriter, r *http.Request) {
		var sub api.PushSubscription
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sub))
		fb.mu.Lock()
		fb.pushSubs = append(fb.pushSubs, sub)
		fb.mu.Unlock()
		w.Write([]byte(`{}`))
	}))

	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) recorded() ([]api.CreateInvoiceRequest, []api.PushSubscription) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]api.CreateInvoiceRequest(nil), fb.invoices...), append([]api.PushSubscription(nil), fb.pushSubs...)
}

func (fb *fakeBackend) protected(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+fb.accepted.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"token expired"}`))
			return
		}
		next(w, r)
	}
}

type pushRecorder struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (p *pushRecorder) Send(_ context.Context, _ api.PushSubscription, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

type testFixture struct {
	backend *fakeBackend
	dataDir string
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{backend: newFakeBackend(t), dataDir: t.TempDir()}
	t.Setenv("API_URL", f.backend.srv.URL)
	t.Setenv("FOLDER", f.dataDir)
	t.Setenv("ENV", "TEST")
	t.Setenv("PROFILE_STORE", "file")
	t.Setenv("HOTSPOT_PASSWORD", "")
	return f
}

// newApp builds a fresh App over the same data folder, as a new process would.
func (f *testFixture) newApp(t *testing.T, opts ...app.Option) (*app.App, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	a, err := app.New(context.Background(), config.New(), out, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, out
}

func TestApp_ProtectedCommandWithoutSession(t *testing.T) {
	f := setupTestFixture(t)
	a, out := f.newApp(t)

	err := a.Run(context.Background(), []string{"packages"})
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
	require.Contains(t, out.String(), "not signed in")
	require.Equal(t, int32(1), f.backend.refreshCalls.Load())
}

func TestApp_LoginPersistsAcrossRuns(t *testing.T) {
	f := setupTestFixture(t)
	a, out := f.newApp(t)

	err := a.Run(context.Background(), []string{"login", "--email", "ada@example.com", "--password", "wrong"})
	require.Error(t, err)
	var statusErr *api.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, "invalid credentials", statusErr.Message)

	require.NoError(t, a.Run(context.Background(), []string{"login", "--email", "ada@example.com", "--password", "secret"}))
	require.Contains(t, out.String(), "Signed in as Ada Lovelace.")

	next, out := f.newApp(t)
	require.True(t, next.Session().IsAuthenticated())
	require.Equal(t, "tok1", next.Session().AccessToken())

	require.NoError(t, next.Run(context.Background(), []string{"whoami"}))
	require.Contains(t, out.String(), "Ada Lovelace")
	require.Contains(t, out.String(), "admin, user")

	out.Reset()
	require.NoError(t, next.Run(context.Background(), []string{"login", "--email", "x", "--password", "y"}))
	require.Contains(t, out.String(), "Already signed in as Ada Lovelace.")
}

func TestApp_ExpiredTokenRefreshesThroughPersistedCookie(t *testing.T) {
	f := setupTestFixture(t)
	a, _ := f.newApp(t)
	require.NoError(t, a.Run(context.Background(), []string{"login", "--email", "ada@example.com", "--password", "secret"}))

	// tok1 is now stale; a new process must refresh with the stored refresh cookie.
	f.backend.accepted.Store("tok2")
	next, out := f.newApp(t)

	require.NoError(t, next.Run(context.Background(), []string{"packages"}))
	require.Equal(t, int32(1), f.backend.refreshCalls.Load())
	require.Equal(t, "tok2", next.Session().AccessToken())
	require.Contains(t, out.String(), "Daily")
	require.Contains(t, out.String(), "p-7")
	require.Equal(t, "Ada Lovelace", next.Session().User()["fullname"])
}

func TestApp_SessionExpired(t *testing.T) {
	f := setupTestFixture(t)
	a, out := f.newApp(t)
	require.NoError(t, a.Run(context.Background(), []string{"login", "--email", "ada@example.com", "--password", "secret"}))
	require.NoError(t, a.Run(context.Background(), []string{"logout"}))
	require.False(t, a.Session().IsAuthenticated())

	out.Reset()
	err := a.Run(context.Background(), []string{"packages"})
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)

	// A token the backend no longer accepts and a refresh cookie it revoked.
	require.NoError(t, a.Session().Login("stale", nil))
	out.Reset()
	err = a.Run(context.Background(), []string{"packages"})
	require.ErrorIs(t, err, api.ErrSessionExpired)
	require.Contains(t, out.String(), "session has expired")
	require.False(t, a.Session().IsAuthenticated())
}

func TestApp_InvoiceAndPush(t *testing.T) {
	f := setupTestFixture(t)
	sender := &pushRecorder{}
	a, out := f.newApp(t, app.WithPushSender(sender))
	require.NoError(t, a.Run(context.Background(), []string{"login", "--email", "ada@example.com", "--password", "secret"}))

	require.NoError(t, a.Run(context.Background(), []string{"invoice", "create", "--package", "1"}))
	require.Contains(t, out.String(), "https://pay.example/12")
	invoices, _ := f.backend.recorded()
	require.Equal(t, []api.CreateInvoiceRequest{{PackageID: "1"}}, invoices)

	subscribe := []string{"push", "subscribe", "--endpoint", "https://push.example/a", "--p256dh", "key", "--auth", "secret"}
	require.NoError(t, a.Run(context.Background(), subscribe))
	require.NoError(t, a.Run(context.Background(), subscribe))
	require.Contains(t, out.String(), "Already subscribed")
	_, pushSubs := f.backend.recorded()
	require.Len(t, pushSubs, 2)

	out.Reset()
	require.NoError(t, a.Run(context.Background(), []string{"push", "send", "--title", "Paid", "--body", "Enjoy"}))
	require.Contains(t, out.String(), "Sent 1, failed 0, removed 0.")
	require.Len(t, sender.payloads, 1)
	require.JSONEq(t, `{"title":"Paid","body":"Enjoy"}`, string(sender.payloads[0]))
}

func TestApp_Usage(t *testing.T) {
	f := setupTestFixture(t)
	a, out := f.newApp(t)

	require.NoError(t, a.Run(context.Background(), nil))
	require.Contains(t, out.String(), "social-login")

	require.ErrorIs(t, a.Run(context.Background(), []string{"teleport"}), app.ErrUsage)
	require.ErrorIs(t, a.Run(context.Background(), []string{"login"}), app.ErrUsage)
	require.ErrorIs(t, a.Run(context.Background(), []string{"login", "--bogus"}), app.ErrUsage)
	require.NoError(t, a.Run(context.Background(), []string{"login", "--help"}))
}
