package apiclient

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/dashboard-gateway/internal/config"
	"github.com/jrsteele09/dashboard-gateway/internal/errors"
	"github.com/jrsteele09/dashboard-gateway/server"
	"github.com/jrsteele09/dashboard-gateway/session"
	"github.com/jrsteele09/dashboard-gateway/upstream/fakeupstream"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	fake    *fakeupstream.Upstream
	gateway *httptest.Server
	hits    atomic.Int32
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv(config.FrontendURLEnvVar, "")
	t.Setenv(config.RefreshModeEnvVar, "")

	env := &testEnv{fake: fakeupstream.New()}
	env.fake.AddAccount("admin", "secret", "admin")
	env.fake.AddAccount("kepala-sekolah", "secret", "sekolah")
	upstreamSrv := httptest.NewServer(env.fake)
	t.Cleanup(upstreamSrv.Close)

	gw, err := server.New(config.New(
		config.Override{Name: config.EnvEnvVar, Value: "TEST"},
		config.Override{Name: config.UpstreamBaseURLEnvVar, Value: upstreamSrv.URL},
		config.Override{Name: config.UpstreamLoginPathEnvVar, Value: fakeupstream.PathLogin},
		config.Override{Name: config.UpstreamRefreshPathEnvVar, Value: fakeupstream.PathRefresh},
		config.Override{Name: config.UpstreamLogoutPathEnvVar, Value: fakeupstream.PathLogout},
		config.Override{Name: config.UpstreamUploadPathEnvVar, Value: fakeupstream.PathUpload},
	))
	require.NoError(t, err)
	env.gateway = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.hits.Add(1)
		gw.ServeHTTP(w, r)
	}))
	t.Cleanup(env.gateway.Close)
	return env
}

func (e *testEnv) client(t *testing.T) *Client {
	t.Helper()
	c, err := New(e.gateway.URL, WithHTTPClient(e.gateway.Client()))
	require.NoError(t, err)
	return c
}

func (e *testEnv) login(t *testing.T, username string) *Client {
	t.Helper()
	c := e.client(t)
	_, err := c.Login(context.Background(), map[string]string{"username": username, "password": "secret"})
	require.NoError(t, err)
	e.hits.Store(0)
	return c
}

func authorizationsFor(fake *fakeupstream.Upstream, path string) []string {
	var out []string
	for _, r := range fake.Requests() {
		if r.Path == path {
			out = append(out, r.Header.Get("Authorization"))
		}
	}
	return out
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	role, err := c.Login(context.Background(), map[string]string{"username": "kepala-sekolah", "password": "secret"})
	require.NoError(t, err)
	require.Equal(t, session.RoleSekolah, role)

	s := c.Session()
	require.NotEmpty(t, s.AccessToken)
	require.Empty(t, s.RefreshToken, "refresh credential is not readable by the client")
	require.Equal(t, session.RoleSekolah, s.Role)

	_, err = env.client(t).Login(context.Background(), map[string]string{"username": "kepala-sekolah", "password": "wrong"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Equal(t, "invalid credentials", apiErr.Message)
}

func TestCallWithValidCredential(t *testing.T) {
	env := newTestEnv(t)
	c := env.login(t, "admin")

	resp, err := c.Call(context.Background(), http.MethodGet, "/schools?page=2", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, int32(1), env.hits.Load())
	require.Equal(t, 0, env.fake.RefreshCalls())
	require.Equal(t, 1, env.fake.APICalls())

	last, _ := env.fake.LastRequest()
	require.Equal(t, "/schools", last.Path)
	require.Equal(t, "page=2", last.Query)
	require.Equal(t, "Bearer "+c.Session().AccessToken, last.Header.Get("Authorization"))
}

func TestCallWithExpiredCredentialRefreshesFirst(t *testing.T) {
	env := newTestEnv(t)
	c := env.login(t, "admin")
	expired, err := env.fake.AccessToken("admin", "admin", -time.Minute)
	require.NoError(t, err)
	c.Store().Set(session.CookieAccessToken, expired, time.Hour)

	resp, err := c.Call(context.Background(), http.MethodGet, "/menus", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, 1, env.fake.RefreshCalls())
	require.Equal(t, 1, env.fake.APICalls(), "first attempt carries the new credential")

	fresh := c.Session().AccessToken
	require.NotEqual(t, expired, fresh)
	require.Equal(t, []string{"Bearer " + fresh}, authorizationsFor(env.fake, "/menus"))
}

func TestCallRetriesOnceAfterRejection(t *testing.T) {
	env := newTestEnv(t)
	c := env.login(t, "admin")
	env.fake.RejectAll(true)

	resp, err := c.Call(context.Background(), http.MethodGet, "/menus", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.Equal(t, 1, env.fake.RefreshCalls())
	require.Equal(t, 2, env.fake.APICalls())
}

func TestCallRecoversAfterRejection(t *testing.T) {
	env := newTestEnv(t)
	c := env.login(t, "admin")
	rejected := c.Session().AccessToken
	env.fake.Reject(rejected)

	resp, err := c.Call(context.Background(), http.MethodPost, "/menus", bytes.NewReader([]byte(`{"name":"nasi"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, 1, env.fake.RefreshCalls())
	auths := authorizationsFor(env.fake, "/menus")
	require.Len(t, auths, 2)
	require.Equal(t, "Bearer "+rejected, auths[0])
	require.Equal(t, "Bearer "+c.Session().AccessToken, auths[1])

	for _, r := range env.fake.Requests() {
		if r.Path == "/menus" {
			require.Equal(t, `{"name":"nasi"}`, string(r.Body), "retry replays the body")
		}
	}
}

func TestCallSurfacesOriginalResponseWhenRefreshFails(t *testing.T) {
	env := newTestEnv(t)
	c := env.login(t, "admin")
	env.fake.Reject(c.Session().AccessToken)
	c.Store().Clear(session.CookieRefreshToken)

	resp, err := c.Call(context.Background(), http.MethodGet, "/menus", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.Equal(t, 0, env.fake.RefreshCalls())
	require.Equal(t, 1, env.fake.APICalls())
	require.Equal(t, session.Session{}, c.Session(), "failed refresh ends the session")
}

func TestConcurrentRejectionsShareOneRefresh(t *testing.T) {
	env := newTestEnv(t)
	c := env.login(t, "admin")
	rejected := c.Session().AccessToken
	env.fake.Reject(rejected)
	gate := make(chan struct{})
	env.fake.SetRefreshGate(gate)

	statuses := make(chan int, 2)
	errs := make(chan error, 2)
	for range 2 {
		go func() {
			resp, err := c.Call(context.Background(), http.MethodGet, "/menus", nil)
			if err != nil {
				errs <- err
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}

	require.Eventually(t, func() bool { return c.refresher.Waiters() == 2 }, 5*time.Second, time.Millisecond)
	close(gate)

	for range 2 {
		select {
		case status := <-statuses:
			require.Equal(t, http.StatusOK, status)
		case err := <-errs:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("call did not complete")
		}
	}

	require.Equal(t, 1, env.fake.RefreshCalls())
	fresh := "Bearer " + c.Session().AccessToken
	auths := authorizationsFor(env.fake, "/menus")
	require.Len(t, auths, 4)
	require.ElementsMatch(t, []string{"Bearer " + rejected, "Bearer " + rejected, fresh, fresh}, auths)
}

func TestRetryUsesCredentialReplacedByAnotherCall(t *testing.T) {
	env := newTestEnv(t)
	c := env.login(t, "admin")
	rejected := c.Session().AccessToken
	replacement, err := env.fake.AccessToken("admin", "admin", 15*time.Minute)
	require.NoError(t, err)
	c.Store().Set(session.CookieAccessToken, replacement, 15*time.Minute)

	got, err := c.retryToken(context.Background(), rejected)
	require.NoError(t, err)
	require.Equal(t, replacement, got)
	require.Equal(t, 0, env.fake.RefreshCalls())
}

func TestProactiveRefreshAfterFinishedFlightReusesCredential(t *testing.T) {
	env := newTestEnv(t)
	c := env.login(t, "admin")
	expired, err := env.fake.AccessToken("admin", "admin", -time.Minute)
	require.NoError(t, err)
	c.Store().Set(session.CookieAccessToken, expired, time.Hour)

	// a second caller read the expired credential before this call refreshed it
	observed, ok := c.Store().Get(session.CookieAccessToken)
	require.True(t, ok)

	resp, err := c.Call(context.Background(), http.MethodGet, "/menus", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 1, env.fake.RefreshCalls())

	got, err := c.refresher.Refresh(context.Background(), observed)
	require.NoError(t, err)
	require.Equal(t, c.Session().AccessToken, got)
	require.Equal(t, 1, env.fake.RefreshCalls())
}

func TestCallWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	_, err := c.Call(context.Background(), http.MethodGet, "/menus", nil)
	require.ErrorIs(t, err, errors.ErrNoSession)
	require.ErrorIs(t, err, errors.ErrRefreshRejected)
	require.Equal(t, int32(1), env.hits.Load(), "only the refresh attempt reaches the gateway")
	require.Equal(t, 0, env.fake.APICalls())
}

func TestCallJSON(t *testing.T) {
	env := newTestEnv(t)
	c := env.login(t, "admin")

	var echoed struct {
		Data struct {
			Method string `json:"method"`
			Path   string `json:"path"`
			Body   string `json:"body"`
		} `json:"data"`
	}
	require.NoError(t, c.CallJSON(context.Background(), http.MethodPut, "menus/7", map[string]string{"name": "soto"}, &echoed))
	require.Equal(t, http.MethodPut, echoed.Data.Method)
	require.Equal(t, "/menus/7", echoed.Data.Path)
	require.JSONEq(t, `{"name":"soto"}`, echoed.Data.Body)

	env.fake.RejectAll(true)
	err := c.CallJSON(context.Background(), http.MethodGet, "/menus", nil, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Equal(t, "Unauthenticated.", apiErr.Message)
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t)
	c := env.login(t, "kepala-sekolah")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "receipt.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := c.Upload(context.Background(), bytes.NewReader(buf.Bytes()), mw.FormDataContentType())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	last, _ := env.fake.LastRequest()
	require.Equal(t, fakeupstream.PathUpload, last.Path)
	require.Equal(t, mw.FormDataContentType(), last.Header.Get("Content-Type"))
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	c := env.login(t, "admin")

	require.NoError(t, c.Logout(context.Background()))
	require.Equal(t, 1, env.fake.LogoutCalls())
	require.Equal(t, session.Session{}, c.Session())

	_, err := c.Call(context.Background(), http.MethodGet, "/menus", nil)
	require.ErrorIs(t, err, errors.ErrNoSession)
}

func TestLogoutClearsLocalSessionWhenGatewayDown(t *testing.T) {
	env := newTestEnv(t)
	c := env.login(t, "admin")
	env.gateway.Close()

	err := c.Logout(context.Background())
	require.ErrorIs(t, err, errors.ErrUpstreamUnavailable)
	require.Equal(t, session.Session{}, c.Session())
}

func TestJarStoreHidesRefreshCredential(t *testing.T) {
	env := newTestEnv(t)
	c := env.login(t, "admin")

	_, ok := c.Store().Get(session.CookieRefreshToken)
	require.False(t, ok)

	// the jar still sends it to the gateway
	resp, err := c.http.Post(env.gateway.URL+PathRefresh, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewRejectsInvalidURL(t *testing.T) {
	_, err := New("localhost")
	require.Error(t, err)
}
