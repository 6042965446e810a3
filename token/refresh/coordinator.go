// Package refresh coordinates access-credential renewal so that concurrent
// callers share a single network round trip.
//
// A Coordinator is either idle or refreshing. While refreshing, every caller
// of Refresh subscribes to the in-flight outcome instead of starting another
// one. When the flight resolves all subscribers observe the same credential or
// the same error and the Coordinator is idle again.
//
// One Coordinator belongs to one session context (one browser, one API
// client). It must not be shared between users.
package refresh

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/dashboard-gateway/internal/errors"
	"github.com/jrsteele09/dashboard-gateway/session"
	"github.com/jrsteele09/dashboard-gateway/token"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const flightKey = "access-token"

// DefaultAccessMaxAge is the lifetime given to a refreshed access credential.
const DefaultAccessMaxAge = 15 * time.Minute

// Func obtains a new access credential. It runs at most once per flight.
type Func func(ctx context.Context) (string, error)

// Coordinator is the single-flight refresher for one session context.
type Coordinator struct {
	refresh      Func
	store        session.TokenStore
	accessMaxAge time.Duration
	observer     func(error)

	group    singleflight.Group
	inFlight atomic.Bool
	waiters  atomic.Int64
}

type Option func(*Coordinator)

// WithAccessMaxAge sets the max age used when storing a refreshed credential.
func WithAccessMaxAge(d time.Duration) Option {
	return func(c *Coordinator) {
		c.accessMaxAge = d
	}
}

// WithObserver registers a callback invoked once per completed flight.
func WithObserver(fn func(err error)) Option {
	return func(c *Coordinator) {
		c.observer = fn
	}
}

func NewCoordinator(fn Func, store session.TokenStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		refresh:      fn,
		store:        store,
		accessMaxAge: DefaultAccessMaxAge,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh returns a new access credential, joining the in-flight refresh if
// there is one. observed is the credential the caller found unusable. When the
// store already holds a different, unexpired credential a flight that finished
// after the caller's read wrote it, and it is returned without a round trip.
// The flight is not tied to ctx: a caller whose context ends stops waiting but
// the refresh still completes and updates the store.
func (c *Coordinator) Refresh(ctx context.Context, observed string) (string, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		if current, ok := c.store.Get(session.CookieAccessToken); ok && current != observed && !token.IsExpired(current) {
			return current, nil
		}
		c.inFlight.Store(true)
		defer c.inFlight.Store(false)
		return c.run(flightCtx)
	})

	c.waiters.Add(1)
	defer c.waiters.Add(-1)

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// InFlight reports whether a refresh is currently running.
func (c *Coordinator) InFlight() bool {
	return c.inFlight.Load()
}

// Waiters is the number of callers currently waiting on a refresh outcome.
func (c *Coordinator) Waiters() int {
	return int(c.waiters.Load())
}

func (c *Coordinator) run(ctx context.Context) (any, error) {
	accessToken, err := c.refresh(ctx)
	if err == nil && accessToken == "" {
		err = errors.Wrapf(errors.ErrMalformedResponse, "empty access token")
	}
	if c.observer != nil {
		c.observer(err)
	}
	if err != nil {
		session.ClearAll(c.store)
		log.Warn().Err(err).Msg("access token refresh failed, session cleared")
		return "", errors.Wrapf(err, "[refresh Coordinator] refresh failed")
	}
	c.store.Set(session.CookieAccessToken, accessToken, c.accessMaxAge)
	return accessToken, nil
}
