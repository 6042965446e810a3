package upstream

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jrsteele09/dashboard-gateway/internal/errors"
)

// Envelope is the response shape used by every upstream endpoint.
type Envelope[T any] struct {
	Data    *T     `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// User is the identity block returned with login credentials.
type User struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// TokenPair is the data block of the login and refresh operations.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Role         string `json:"role,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// RoleValue returns the role carried at data.role or data.user.role.
func (p TokenPair) RoleValue() string {
	if p.Role != "" {
		return p.Role
	}
	if p.User != nil {
		return p.User.Role
	}
	return ""
}

// AccessTokenData is the body the gateway returns after login and refresh.
type AccessTokenData struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role,omitempty"`
}

func decodeTokenPair(body []byte) (TokenPair, error) {
	var env Envelope[TokenPair]
	if err := json.Unmarshal(body, &env); err != nil {
		return TokenPair{}, fmt.Errorf("[upstream decodeTokenPair] %w: %v", errors.ErrMalformedResponse, err)
	}
	if env.Data == nil || env.Data.AccessToken == "" {
		return TokenPair{}, errors.Wrapf(errors.ErrMalformedResponse, "[upstream decodeTokenPair] missing data.access_token")
	}
	return *env.Data, nil
}

// Failure is a non-2xx upstream answer. Message is safe to show to clients.
type Failure struct {
	Status  int
	Message string
	cause   error
}

func (f *Failure) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("upstream status %d: %s: %v", f.Status, f.Message, f.cause)
	}
	return fmt.Sprintf("upstream status %d: %s", f.Status, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.cause
}

func newFailure(status int, body []byte, cause error) *Failure {
	msg := http.StatusText(status)
	var env Envelope[json.RawMessage]
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		msg = env.Message
	}
	return &Failure{Status: status, Message: msg, cause: cause}
}
