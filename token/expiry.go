package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/dashboard-gateway/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// SafetyMargin is how long before its exp claim an access token is already
// treated as expired.
const SafetyMargin = 10 * time.Second

var unverifiedParser = jwt.NewParser()

// ExpiresAt decodes the exp claim of a JWT without verifying its signature.
// Verification belongs to the upstream API.
func ExpiresAt(accessToken string) (time.Time, error) {
	if accessToken == "" {
		return time.Time{}, errors.Wrapf(errors.ErrMalformedToken, "[token ExpiresAt] empty token")
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := unverifiedParser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, fmt.Errorf("[token ExpiresAt] %w: %v", errors.ErrMalformedToken, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.Wrapf(errors.ErrMalformedToken, "[token ExpiresAt] missing exp claim")
	}
	return claims.ExpiresAt.Time, nil
}

// IsExpired reports whether the token is within SafetyMargin of its expiry.
// Missing or unparseable tokens are expired. No I/O is performed.
func IsExpired(accessToken string) bool {
	return IsExpiredWithin(accessToken, SafetyMargin)
}

// IsExpiredWithin is IsExpired with an explicit margin.
func IsExpiredWithin(accessToken string, margin time.Duration) bool {
	exp, err := ExpiresAt(accessToken)
	if err != nil {
		return true
	}
	return !NowTimeFunc().Add(margin).Before(exp)
}
