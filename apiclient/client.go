// Package apiclient is the authenticated fetcher used by dashboard features.
// Every call goes through the gateway's proxy with the current access
// credential, refreshing it proactively when it is missing or about to expire
// and retrying once after an authorization failure.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/jrsteele09/dashboard-gateway/internal/errors"
	"github.com/jrsteele09/dashboard-gateway/session"
	"github.com/jrsteele09/dashboard-gateway/token"
	"github.com/jrsteele09/dashboard-gateway/token/refresh"
	"github.com/jrsteele09/dashboard-gateway/upstream"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
)

// Gateway routes used by the client.
const (
	PathLogin     = "/api/auth/login"
	PathRefresh   = "/api/auth/refresh"
	PathLogout    = "/api/auth/logout"
	PathProxy     = "/api/proxy"
	PathScanProxy = "/api/scan-proxy"
)

const contentTypeJSON = "application/json"

// Client calls the gateway on behalf of one session.
type Client struct {
	base      *url.URL
	http      *http.Client
	store     *JarStore
	refresher *refresh.Coordinator
}

type options struct {
	httpClient *http.Client
	refreshOpt []refresh.Option
}

type Option func(*options)

// WithHTTPClient sets the transport settings used for gateway calls. The
// client is copied; its Jar is replaced by the session jar.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithRefreshObserver is called once per completed refresh flight.
func WithRefreshObserver(fn func(err error)) Option {
	return func(o *options) {
		o.refreshOpt = append(o.refreshOpt, refresh.WithObserver(fn))
	}
}

func New(gatewayURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(gatewayURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("[apiclient New] invalid gateway URL %q", gatewayURL)
	}
	o := options{httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(&o)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("[apiclient New] %w", err)
	}
	httpClient := *o.httpClient
	httpClient.Jar = jar

	c := &Client{
		base:  base,
		http:  &httpClient,
		store: NewJarStore(jar, base),
	}
	c.refresher = refresh.NewCoordinator(c.refreshAccessToken, c.store, o.refreshOpt...)
	return c, nil
}

// Store is the session state shared with the gateway cookies.
func (c *Client) Store() session.TokenStore {
	return c.store
}

// Session returns what the client can see of the session. The refresh
// credential is never visible.
func (c *Client) Session() session.Session {
	return session.Load(c.store)
}

type callOptions struct {
	header      http.Header
	contentType string
}

type CallOption func(*callOptions)

// WithHeader adds a request header to the call.
func WithHeader(key, value string) CallOption {
	return func(o *callOptions) {
		o.header.Add(key, value)
	}
}

// WithContentType overrides the JSON default, e.g. for multipart bodies whose
// content type carries the boundary.
func WithContentType(contentType string) CallOption {
	return func(o *callOptions) {
		o.contentType = contentType
	}
}

// Call sends method and path through the gateway proxy. path is relative to
// the upstream API and may carry a query string. A 401 or 403 that survives
// the single retry is returned as a response, not an error.
func (c *Client) Call(ctx context.Context, method, path string, body io.Reader, opts ...CallOption) (*http.Response, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.do(ctx, method, c.base.String()+PathProxy+path, body, opts)
}

// Upload posts a multipart payload to the scan upload route.
func (c *Client) Upload(ctx context.Context, body io.Reader, contentType string) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, c.base.String()+PathScanProxy, body, []CallOption{WithContentType(contentType)})
}

// APIError is a non-2xx answer decoded from the gateway's message envelope.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

// CallJSON is Call with a JSON request and response. in and out may be nil.
func (c *Client) CallJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("[apiclient CallJSON] %w", err)
		}
		body = bytes.NewReader(b)
	}
	resp, err := c.Call(ctx, method, path, body)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

// Login authenticates through the gateway, which stores the session cookies
// in the client jar.
func (c *Client) Login(ctx context.Context, credentials any) (session.Role, error) {
	b, err := json.Marshal(credentials)
	if err != nil {
		return "", fmt.Errorf("[apiclient Login] %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.String()+PathLogin, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("[apiclient Login] %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrapf(errors.Join(errors.ErrUpstreamUnavailable, err), "[apiclient Login]")
	}

	var env upstream.Envelope[upstream.AccessTokenData]
	if err := decodeResponse(resp, &env); err != nil {
		return "", err
	}
	if env.Data == nil {
		return "", errors.Wrapf(errors.ErrMalformedResponse, "[apiclient Login]")
	}
	role, ok := session.ParseRole(env.Data.Role)
	if !ok {
		return "", errors.Wrapf(errors.ErrUnsupportedRole, "[apiclient Login] role %q", env.Data.Role)
	}
	return role, nil
}

// Logout ends the session on the gateway. The local session is cleared even
// when the gateway cannot be reached.
func (c *Client) Logout(ctx context.Context) error {
	defer session.ClearAll(c.store)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.String()+PathLogout, nil)
	if err != nil {
		return fmt.Errorf("[apiclient Logout] %w", err)
	}
	if accessToken, ok := c.store.Get(session.CookieAccessToken); ok {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(errors.Join(errors.ErrUpstreamUnavailable, err), "[apiclient Logout]")
	}
	return decodeResponse(resp, nil)
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, opts []CallOption) (*http.Response, error) {
	o := callOptions{header: http.Header{}}
	for _, opt := range opts {
		opt(&o)
	}
	var payload []byte
	if body != nil {
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("[apiclient] reading request body: %w", err)
		}
		payload = b
	}

	accessToken, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, method, target, payload, accessToken, o)
	if err != nil {
		return nil, err
	}
	if !rejected(resp.StatusCode) {
		return resp, nil
	}

	original, err := buffered(resp)
	if err != nil {
		return nil, err
	}
	retryToken, err := c.retryToken(ctx, accessToken)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Int("status", original.StatusCode).Msg("refresh after rejection failed")
		return original, nil
	}
	return c.send(ctx, method, target, payload, retryToken, o)
}

// accessToken returns a usable credential, refreshing first when the stored
// one is missing or expired.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	observed, ok := c.store.Get(session.CookieAccessToken)
	if ok && !token.IsExpired(observed) {
		return observed, nil
	}
	accessToken, err := c.refresher.Refresh(ctx, observed)
	if err != nil {
		return "", fmt.Errorf("[apiclient] %w: %w", errors.ErrNoSession, err)
	}
	return accessToken, nil
}

// retryToken picks the credential for the single retry. A credential already
// replaced by another call is reused without a new refresh.
func (c *Client) retryToken(ctx context.Context, rejectedToken string) (string, error) {
	return c.refresher.Refresh(ctx, rejectedToken)
}

func (c *Client) send(ctx context.Context, method, target string, payload []byte, accessToken string, o callOptions) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("[apiclient] %w", err)
	}
	for k, v := range o.header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	switch {
	case o.contentType != "":
		req.Header.Set("Content-Type", o.contentType)
	case payload != nil:
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(errors.Join(errors.ErrUpstreamUnavailable, err), "[apiclient] %s %s", method, req.URL.Path)
	}
	return resp, nil
}

// refreshAccessToken is the refresh function behind the coordinator. The jar
// carries the refresh cookie to the gateway.
func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.String()+PathRefresh, nil)
	if err != nil {
		return "", fmt.Errorf("[apiclient refresh] %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrapf(errors.Join(errors.ErrUpstreamUnavailable, err), "[apiclient refresh]")
	}

	var env upstream.Envelope[upstream.AccessTokenData]
	err = decodeResponse(resp, &env)
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized:
		return "", errors.Wrapf(errors.ErrRefreshRejected, "[apiclient refresh] %s", apiErr.Message)
	case err != nil:
		return "", errors.Wrapf(errors.Join(errors.ErrUpstreamUnavailable, err), "[apiclient refresh]")
	case env.Data == nil || env.Data.AccessToken == "":
		return "", errors.Wrapf(errors.ErrMalformedResponse, "[apiclient refresh]")
	}
	return env.Data.AccessToken, nil
}

func rejected(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// buffered reads and closes resp's body, replacing it with an in-memory copy
// so the response can still be returned after another round trip.
func buffered(resp *http.Response) (*http.Response, error) {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("[apiclient] reading response: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(b))
	return resp, nil
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("[apiclient] reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(b, &msg)
		return &APIError{Status: resp.StatusCode, Message: msg.Message}
	}
	if out == nil || len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return errors.Wrapf(errors.Join(errors.ErrMalformedResponse, err), "[apiclient] decoding response")
	}
	return nil
}
