// Package session holds the client side of the token lifecycle: an
// in-memory coordinator that attaches the current access token to outbound
// operations, refreshes it through the rotate endpoint when the server says
// "unauthenticated", and makes sure N concurrent failures produce one
// refresh call, not N.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/riverajo/fitness-app/internal/apperrors"
)

type Status int

const (
	// StatusRestoring is the initial state: a silent rotate with whatever
	// stored credential exists has not settled yet
	StatusRestoring Status = iota
	StatusAuthenticated
	StatusUnauthenticated
	// StatusOffline means the last rotate never reached the server. The
	// held access token is kept: it may still be perfectly valid.
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusRestoring:
		return "restoring"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusOffline:
		return "offline"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Refresher performs one rotate round-trip and returns the new access token.
// Implementations must return apperrors.ErrUnauthenticated when the server
// rejected the refresh credential and apperrors.ErrOffline when the server
// could not be reached at all; the two are never interchangeable.
type Refresher interface {
	Rotate(ctx context.Context) (access string, err error)
}

// Operation is an outbound call. It gets the current access token and must
// return apperrors.ErrUnauthenticated when the server answered 401.
type Operation func(ctx context.Context, accessToken string) error

type opConfig struct {
	allowUnauthenticated bool
}

type OpOption func(*opConfig)

// OpAllowUnauthenticated marks an operation that is expected to fail with
// 401 (e.g. a "who am I" probe before login). Such a failure is returned
// as is and never triggers a refresh.
func OpAllowUnauthenticated() OpOption {
	return func(c *opConfig) { c.allowUnauthenticated = true }
}

// Coordinator owns the client session state. Construct one per logical
// session and pass it down; there is deliberately no package level instance.
type Coordinator struct {
	refresher Refresher

	mu       sync.Mutex
	status   Status
	token    string
	gen      uint64 // bumped on SetToken/ClearToken; a stale refresh must not write state
	inflight *refreshAttempt
}

// refreshAttempt is the shared result of one in-flight rotate call.
// Riders block on done instead of starting their own round-trip.
type refreshAttempt struct {
	done  chan struct{}
	token string
	err   error
}

func NewCoordinator(refresher Refresher) *Coordinator {
	return &Coordinator{
		refresher: refresher,
		status:    StatusRestoring,
	}
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Token returns the currently held access token, empty if none
func (c *Coordinator) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetToken installs an access token obtained out of band (login, register)
func (c *Coordinator) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.status = StatusAuthenticated
	c.gen++
}

// ClearToken drops the held token and forces unauthenticated synchronously.
// Used by explicit logout. A rotate that is still in flight settles for its
// riders but no longer touches the coordinator state.
func (c *Coordinator) ClearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.status = StatusUnauthenticated
	c.gen++
}

// Restore attempts the startup silent rotate.
// The three outcomes map exactly onto the status machine: new token means
// authenticated, a structured rejection means unauthenticated, an
// unreachable server means offline with the previous token untouched.
func (c *Coordinator) Restore(ctx context.Context) error {
	c.mu.Lock()
	c.status = StatusRestoring
	c.mu.Unlock()

	_, err := c.refresh(ctx)
	return err
}

// Do runs the operation with the current access token.
// On ErrUnauthenticated it joins or starts exactly one refresh and retries
// the operation once with the new token. A second rejection is terminal:
// otherwise a server that answers 401 for unrelated reasons would loop us
// forever.
func (c *Coordinator) Do(ctx context.Context, op Operation, opts ...OpOption) error {
	var cfg opConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	err := op(ctx, token)
	if err == nil || !errors.Is(err, apperrors.ErrUnauthenticated) || cfg.allowUnauthenticated {
		return err
	}

	newToken, err := c.refresh(ctx)
	if err != nil {
		return err
	}

	return op(ctx, newToken)
}

// refresh joins the in-flight rotate if there is one, otherwise starts it.
// Riders wait cooperatively on the attempt's channel; only the starter
// touches the network.
func (c *Coordinator) refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	if attempt := c.inflight; attempt != nil {
		c.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.token, attempt.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	attempt := &refreshAttempt{done: make(chan struct{})}
	c.inflight = attempt
	startGen := c.gen
	c.mu.Unlock()

	token, err := c.refresher.Rotate(ctx)

	c.mu.Lock()
	c.inflight = nil
	// SetToken or ClearToken may have raced past while Rotate was on the
	// wire. Their word is newer than ours: settle the attempt for the
	// riders but leave the coordinator state alone.
	stale := c.gen != startGen
	switch {
	case err == nil:
		if !stale {
			c.token = token
			c.status = StatusAuthenticated
		}

	case errors.Is(err, apperrors.ErrUnauthenticated):
		// The server understood us and said no: the session is dead
		if !stale {
			c.token = ""
			c.status = StatusUnauthenticated
		}

	default:
		// Anything else (timeout, refused connection, cancellation) means
		// we simply do not know. Keep the token, report offline.
		if !stale {
			c.status = StatusOffline
		}
		if !errors.Is(err, apperrors.ErrOffline) {
			err = fmt.Errorf("%w: %w", apperrors.ErrOffline, err)
		}
	}
	attempt.token, attempt.err = token, err
	c.mu.Unlock()

	close(attempt.done)
	return token, err
}
