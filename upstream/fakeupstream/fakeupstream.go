// Package fakeupstream is an in-memory stand-in for the upstream REST API.
// It issues signed access tokens, rotates refresh tokens and records every
// call so tests can assert on what actually crossed the wire.
package fakeupstream

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const (
	PathLogin   = "/auth/login"
	PathRefresh = "/auth/refresh"
	PathLogout  = "/auth/logout"
	PathUpload  = "/scan"
)

type account struct {
	password string
	role     string
}

// Claims are the access token claims issued by the fake.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RecordedRequest is a snapshot of one request received by the fake.
type RecordedRequest struct {
	Method           string
	Path             string
	Query            string
	Header           http.Header
	Body             []byte
	ContentLength    int64
	TransferEncoding []string
}

// Upstream is an http.Handler emulating the upstream API.
type Upstream struct {
	secret    []byte
	AccessTTL time.Duration

	mu            sync.Mutex
	rotateRefresh bool
	refreshGate   chan struct{}
	accounts      map[string]account
	refresh       map[string]string // refresh token -> username
	revoked       map[string]time.Time
	rejected      map[string]struct{}
	requests      []RecordedRequest
	rejectAll     bool

	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
	apiCalls     atomic.Int32
}

func New() *Upstream {
	return &Upstream{
		secret:    []byte(uuid.NewString()),
		AccessTTL: 15 * time.Minute,
		accounts:  make(map[string]account),
		refresh:   make(map[string]string),
		revoked:   make(map[string]time.Time),
		rejected:  make(map[string]struct{}),
	}
}

// AddAccount registers a user that can log in.
func (u *Upstream) AddAccount(username, password, role string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.accounts[username] = account{password: password, role: role}
}

// IssueSession creates credentials for a registered user without a login call.
func (u *Upstream) IssueSession(username string) (accessToken, refreshToken string, err error) {
	u.mu.Lock()
	acc, ok := u.accounts[username]
	u.mu.Unlock()
	if !ok {
		return "", "", fmt.Errorf("unknown account %q", username)
	}
	accessToken, err = u.AccessToken(username, acc.role, u.AccessTTL)
	if err != nil {
		return "", "", err
	}
	refreshToken = u.newRefreshToken(username)
	return accessToken, refreshToken, nil
}

// AccessToken signs an access token expiring after ttl (negative ttl yields an expired token).
func (u *Upstream) AccessToken(subject, role string, ttl time.Duration) (string, error) {
	now := NowTimeFunc()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(u.secret)
}

// Reject makes the API answer 401 for a token that is otherwise valid.
func (u *Upstream) Reject(accessToken string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rejected[accessToken] = struct{}{}
}

// RejectAll makes every API call answer 401 regardless of the token.
func (u *Upstream) RejectAll(reject bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rejectAll = reject
}

// SetRotateRefresh makes every refresh issue a new refresh token and revoke the old one.
func (u *Upstream) SetRotateRefresh(rotate bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rotateRefresh = rotate
}

// SetRefreshGate blocks every refresh until gate is closed. A nil gate
// removes the block.
func (u *Upstream) SetRefreshGate(gate chan struct{}) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.refreshGate = gate
}

// RevokeRefresh invalidates a refresh token.
func (u *Upstream) RevokeRefresh(refreshToken string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.revokeLocked(refreshToken)
}

func (u *Upstream) RefreshCalls() int { return int(u.refreshCalls.Load()) }
func (u *Upstream) LogoutCalls() int  { return int(u.logoutCalls.Load()) }
func (u *Upstream) APICalls() int     { return int(u.apiCalls.Load()) }

// IsRevoked reports whether a refresh token has been revoked.
func (u *Upstream) IsRevoked(refreshToken string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.revoked[refreshToken]
	return ok
}

// Requests returns a copy of every request received so far.
func (u *Upstream) Requests() []RecordedRequest {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]RecordedRequest, len(u.requests))
	copy(out, u.requests)
	return out
}

// LastRequest returns the most recent request, or false when none was made.
func (u *Upstream) LastRequest() (RecordedRequest, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.requests) == 0 {
		return RecordedRequest{}, false
	}
	return u.requests[len(u.requests)-1], true
}

func (u *Upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	u.record(r, body)

	switch {
	case r.Method == http.MethodPost && r.URL.Path == PathLogin:
		u.login(w, body)
	case r.Method == http.MethodPost && r.URL.Path == PathRefresh:
		u.refreshToken(w, body)
	case r.Method == http.MethodPost && r.URL.Path == PathLogout:
		u.logout(w, body)
	case r.Method == http.MethodPost && r.URL.Path == PathUpload:
		u.upload(w, r, body)
	default:
		u.api(w, r, body)
	}
}

func (u *Upstream) record(r *http.Request, body []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.requests = append(u.requests, RecordedRequest{
		Method:           r.Method,
		Path:             r.URL.Path,
		Query:            r.URL.RawQuery,
		Header:           r.Header.Clone(),
		Body:             body,
		ContentLength:    r.ContentLength,
		TransferEncoding: r.TransferEncoding,
	})
}

func (u *Upstream) login(w http.ResponseWriter, body []byte) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "invalid body"})
		return
	}
	u.mu.Lock()
	acc, ok := u.accounts[req.Username]
	u.mu.Unlock()
	if !ok || acc.password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid credentials"})
		return
	}
	access, refresh, err := u.IssueSession(req.Username)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"user":          map[string]any{"id": req.Username, "name": req.Username, "role": acc.role},
	}})
}

func (u *Upstream) refreshToken(w http.ResponseWriter, body []byte) {
	u.refreshCalls.Add(1)
	u.mu.Lock()
	gate := u.refreshGate
	u.mu.Unlock()
	if gate != nil {
		<-gate
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "refresh_token required"})
		return
	}

	u.mu.Lock()
	username, ok := u.refresh[req.RefreshToken]
	_, revoked := u.revoked[req.RefreshToken]
	acc := u.accounts[username]
	rotate := u.rotateRefresh
	u.mu.Unlock()
	if !ok || revoked {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "refresh token expired"})
		return
	}

	access, err := u.AccessToken(username, acc.role, u.AccessTTL)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": err.Error()})
		return
	}
	data := map[string]any{"access_token": access}
	if rotate {
		u.RevokeRefresh(req.RefreshToken)
		data["refresh_token"] = u.newRefreshToken(username)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (u *Upstream) logout(w http.ResponseWriter, body []byte) {
	u.logoutCalls.Add(1)
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.Unmarshal(body, &req)
	if req.RefreshToken != "" {
		u.RevokeRefresh(req.RefreshToken)
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

func (u *Upstream) upload(w http.ResponseWriter, r *http.Request, body []byte) {
	if _, ok := u.authorize(w, r); !ok {
		return
	}
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" || params["boundary"] == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "multipart body required"})
		return
	}
	if !strings.Contains(string(body), params["boundary"]) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "boundary mismatch"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"received": len(body)}})
}

func (u *Upstream) api(w http.ResponseWriter, r *http.Request, body []byte) {
	u.apiCalls.Add(1)
	claims, ok := u.authorize(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"method":  r.Method,
		"path":    r.URL.Path,
		"query":   r.URL.RawQuery,
		"subject": claims.Subject,
		"body":    string(body),
	}})
}

func (u *Upstream) authorize(w http.ResponseWriter, r *http.Request) (*Claims, bool) {
	raw, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || raw == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
		return nil, false
	}
	u.mu.Lock()
	_, rejected := u.rejected[raw]
	rejectAll := u.rejectAll
	u.mu.Unlock()
	if rejected || rejectAll {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
		return nil, false
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return u.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(NowTimeFunc))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
		return nil, false
	}
	return claims, true
}

func (u *Upstream) newRefreshToken(username string) string {
	tok := uuid.NewString()
	u.mu.Lock()
	defer u.mu.Unlock()
	u.refresh[tok] = username
	return tok
}

func (u *Upstream) revokeLocked(refreshToken string) {
	u.revoked[refreshToken] = NowTimeFunc()
	delete(u.refresh, refreshToken)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
