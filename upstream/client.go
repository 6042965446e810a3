package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/dashboard-gateway/internal/config"
	"github.com/jrsteele09/dashboard-gateway/internal/errors"
	"github.com/jrsteele09/dashboard-gateway/session"
	"github.com/jrsteele09/dashboard-gateway/token"
	"golang.org/x/oauth2"
)

const contentTypeJSON = "application/json"

// Refresher exchanges a refresh credential for new credentials. A returned
// RefreshToken that differs from the input means the upstream rotated it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Paths locates the upstream operations relative to the base URL.
type Paths struct {
	Login   string
	Refresh string
	Logout  string
	Upload  string
}

// Client talks to the upstream API over the trusted server-to-server channel.
type Client struct {
	baseURL    string
	httpClient *http.Client
	paths      Paths
}

var _ Refresher = (*Client)(nil)

func New(cfg config.UpstreamConfig) *Client {
	return NewClient(cfg.GetUpstreamBaseURL(), &http.Client{Timeout: cfg.GetUpstreamTimeout()}, Paths{
		Login:   cfg.GetUpstreamLoginPath(),
		Refresh: cfg.GetUpstreamRefreshPath(),
		Logout:  cfg.GetUpstreamLogoutPath(),
		Upload:  cfg.GetUpstreamUploadPath(),
	})
}

func NewClient(baseURL string, httpClient *http.Client, paths Paths) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		paths:      paths,
	}
}

// HTTPClient exposes the server-to-server client, e.g. for the OAuth2 refresher.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// UploadPath is the fixed upload operation used by the scan proxy.
func (c *Client) UploadPath() string {
	return c.paths.Upload
}

// URL joins the base URL, a path and an optional raw query.
func (c *Client) URL(path, rawQuery string) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}

// Login forwards the caller's credentials body and returns the new session.
func (c *Client) Login(ctx context.Context, body []byte) (session.Session, error) {
	status, respBody, err := c.postJSON(ctx, c.paths.Login, body, "")
	if err != nil {
		return session.Session{}, errors.Wrapf(err, "[upstream Login]")
	}
	if status < 200 || status > 299 {
		return session.Session{}, newFailure(status, respBody, nil)
	}
	pair, err := decodeTokenPair(respBody)
	if err != nil {
		return session.Session{}, err
	}
	role, ok := session.ParseRole(pair.RoleValue())
	if !ok {
		return session.Session{}, errors.Wrapf(errors.ErrUnsupportedRole, "[upstream Login] role %q", pair.RoleValue())
	}
	return session.Session{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Role:         role,
	}, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh calls the upstream refresh operation with the refresh credential.
// 4xx answers are rejections except timeouts and rate limiting; everything
// else that fails is unavailability.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, errors.Wrapf(errors.ErrNoRefreshToken, "[upstream Refresh]")
	}
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("[upstream Refresh] json.Marshal: %w", err)
	}
	status, respBody, err := c.postJSON(ctx, c.paths.Refresh, body, "")
	if err != nil {
		return nil, errors.Wrapf(err, "[upstream Refresh]")
	}
	switch {
	case rejectsRefresh(status):
		return nil, newFailure(status, respBody, errors.ErrRefreshRejected)
	case status < 200 || status > 299:
		return nil, newFailure(status, respBody, errors.ErrUpstreamUnavailable)
	}
	pair, err := decodeTokenPair(respBody)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       expiryOf(pair),
	}, nil
}

// Revoke asks the upstream to invalidate the session's refresh credential.
func (c *Client) Revoke(ctx context.Context, s session.Session) error {
	body, err := json.Marshal(refreshRequest{RefreshToken: s.RefreshToken})
	if err != nil {
		return fmt.Errorf("[upstream Revoke] json.Marshal: %w", err)
	}
	status, respBody, err := c.postJSON(ctx, c.paths.Logout, body, s.AccessToken)
	if err != nil {
		return errors.Wrapf(err, "[upstream Revoke]")
	}
	if status < 200 || status > 299 {
		return newFailure(status, respBody, nil)
	}
	return nil
}

// ForwardRequest is an opaque API call relayed by the gateway.
type ForwardRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     io.Reader

	// ContentLength is the body size when known; zero or negative sends the
	// body chunked.
	ContentLength int64
}

// ForwardResponse is the relayed upstream answer.
type ForwardResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// Forward executes req against the upstream and buffers the answer.
func (c *Client) Forward(ctx context.Context, req ForwardRequest) (*ForwardResponse, error) {
	body := req.Body
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		body = nil
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.URL(req.Path, req.RawQuery), body)
	if err != nil {
		return nil, fmt.Errorf("[upstream Forward] http.NewRequest: %w", err)
	}
	if body != nil && req.ContentLength > 0 {
		httpReq.ContentLength = req.ContentLength
	}
	for name, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("[upstream Forward] %w: %v", errors.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("[upstream Forward] %w: reading body: %v", errors.ErrUpstreamUnavailable, err)
	}
	return &ForwardResponse{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte, bearer string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path, ""), bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("http.NewRequest: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", errors.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: reading body: %v", errors.ErrUpstreamUnavailable, err)
	}
	return resp.StatusCode, respBody, nil
}

// rejectsRefresh reports whether a refresh answer means the refresh credential
// itself is no longer accepted.
func rejectsRefresh(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return false
	}
	return status >= 400 && status < 500
}

func expiryOf(pair TokenPair) time.Time {
	if exp, err := token.ExpiresAt(pair.AccessToken); err == nil {
		return exp
	}
	if pair.ExpiresIn > 0 {
		return token.NowTimeFunc().Add(time.Duration(pair.ExpiresIn) * time.Second)
	}
	return time.Time{}
}
