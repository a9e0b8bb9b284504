package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pocketclub/authcore/pkg/credstore"
	"github.com/pocketclub/authcore/pkg/jwtx"
)

// Controller owns the session state machine and is the facade the rest
// of the application talks to. All other components communicate through
// return values and the lost-auth bus; none of them mutate session
// state directly.
//
// State transitions:
//
//	SignedOut -> Initializing -> SignedIn | SignedOut
//	Initializing -> Error (restoration blew up unexpectedly)
//	SignedIn -> SignedOut (sign-out, or the lost-auth signal)
//
// Error is terminal and only reachable from Initializing; runtime auth
// failures during a signed-in session route through sign-out instead.
type Controller struct {
	store       *credstore.Store
	coordinator *Coordinator
	client      *Client
	bus         *LostAuthBus
	logger      *slog.Logger

	mu        sync.RWMutex
	state     SessionState
	identity  json.RawMessage
	errMsg    string
	observers []func(Snapshot)

	signingOut atomic.Bool
}

func NewController(
	store *credstore.Store,
	coordinator *Coordinator,
	client *Client,
	bus *LostAuthBus,
	logger *slog.Logger,
) *Controller {
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		store:       store,
		coordinator: coordinator,
		client:      client,
		bus:         bus,
		logger:      logger,
		state:       StateSignedOut,
	}
}

// Initialize restores the session from storage. Called once at process
// start, before any gated request is issued.
func (c *Controller) Initialize(ctx context.Context) (snap Snapshot) {
	c.setState(StateInitializing, nil, "")

	// Restoration must never take the host application down; anything
	// unexpected surfaces as the terminal error state instead.
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("session restoration panicked", "panic", r)
			c.setState(StateError, nil, fmt.Sprint(r))
			snap = c.Snapshot()
		}
	}()

	// Fast path: a previous run recorded signed-out and nothing is
	// cached, so skip the slower keystore reads. A torn write can still
	// leave a refresh token or identity behind; wipe them so no later
	// exchange can act on credentials the session does not own.
	if !c.store.Authenticated(ctx) && c.store.AccessToken(ctx) == "" {
		c.store.ClearAll(ctx)
		c.setState(StateSignedOut, nil, "")
		return c.Snapshot()
	}

	access := c.store.AccessToken(ctx)
	refresh := c.store.RefreshToken(ctx)
	identity := c.store.Identity(ctx)

	if access == "" || refresh == "" || identity == nil {
		c.logger.Info("stored session incomplete, clearing")
		c.store.ClearAll(ctx)
		c.setState(StateSignedOut, nil, "")
		return c.Snapshot()
	}

	if !jwtx.IsExpired(access) {
		c.setState(StateSignedIn, identity, "")
		return c.Snapshot()
	}

	// Access token expired: one refresh attempt decides the session.
	if err := c.coordinator.Refresh(ctx); err != nil {
		c.logger.Info("startup refresh failed, signing out", "error", err)
		c.store.ClearAll(ctx)
		c.setState(StateSignedOut, nil, "")
		return c.Snapshot()
	}

	c.setState(StateSignedIn, identity, "")
	return c.Snapshot()
}

// SignIn installs the credential pair and identity produced by the
// external identity-proofing flow. The pair is persisted before the
// in-memory state transitions: a session whose credentials never hit
// storage would silently die on the next restart.
func (c *Controller) SignIn(ctx context.Context, pair TokenPair, identity json.RawMessage) error {
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return fmt.Errorf("authsdk: sign in with incomplete credential pair")
	}

	if err := c.store.StoreCredentials(ctx, credstore.Pair{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}); err != nil {
		return fmt.Errorf("authsdk: sign in: %w", err)
	}

	if err := c.store.StoreIdentity(ctx, identity); err != nil {
		return fmt.Errorf("authsdk: sign in: %w", err)
	}

	c.store.SetAuthenticated(ctx, true)
	c.setState(StateSignedIn, identity, "")
	return nil
}

// CompleteRegistration installs the credential pair minted by a just
// finished registration flow. Same contract as SignIn; the distinction
// exists so callers can route the two entry points differently.
func (c *Controller) CompleteRegistration(ctx context.Context, pair TokenPair, identity json.RawMessage) error {
	if err := c.SignIn(ctx, pair, identity); err != nil {
		return fmt.Errorf("authsdk: complete registration: %w", err)
	}
	return nil
}

// SignOut ends the session. The backend logout is best effort; local
// state is never held hostage by a flaky network call. Sign-out is not
// cancellable once initiated and concurrent triggers collapse into one.
func (c *Controller) SignOut(ctx context.Context) {
	if !c.signingOut.CompareAndSwap(false, true) {
		return
	}
	defer c.signingOut.Store(false)

	// Runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	if access := c.store.AccessToken(ctx); access != "" {
		if err := c.client.Logout(ctx, access); err != nil {
			c.logger.Warn("backend logout failed, clearing locally anyway", "error", err)
		}
	}

	c.store.ClearAll(ctx)
	c.setState(StateSignedOut, nil, "")
}

// Run consumes the lost-auth signal until ctx is cancelled. Start it in
// a goroutine right after Initialize.
func (c *Controller) Run(ctx context.Context) error {
	if c.bus == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	messages, err := c.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("authsdk: subscribe session lost: %w", err)
	}

	for msg := range messages {
		var event SessionLostEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			c.logger.Warn("undecodable session lost event", "error", err)
			msg.Ack()
			continue
		}
		msg.Ack()

		if c.State() != StateSignedIn {
			continue
		}

		c.logger.Info("authorization permanently lost", "reason", event.Reason)
		c.SignOut(ctx)
	}

	return nil
}

// AccessToken exposes the raw access token for callers that must attach
// it outside the Gate. Most callers should use the gated http.Client.
func (c *Controller) AccessToken(ctx context.Context) string {
	return c.store.AccessToken(ctx)
}

// IsSessionValid reports whether a signed-in session is active.
func (c *Controller) IsSessionValid() bool {
	return c.State() == StateSignedIn
}

// Identity returns the signed-in identity record, if any. The record is
// opaque here; the domain layer defines and validates its shape.
func (c *Controller) Identity() (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != StateSignedIn || c.identity == nil {
		return nil, false
	}
	return c.identity, true
}

func (c *Controller) State() SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Snapshot returns an immutable view of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{State: c.state, Identity: c.identity, Err: c.errMsg}
}

// OnStateChange registers an observer invoked after every transition.
// Observers run outside the state lock and must not block for long.
func (c *Controller) OnStateChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Controller) setState(state SessionState, identity json.RawMessage, errMsg string) {
	c.mu.Lock()
	if c.state == state && bytes.Equal(c.identity, identity) && c.errMsg == errMsg {
		// No transition: observers are not re-notified.
		c.mu.Unlock()
		return
	}

	c.state = state
	c.identity = identity
	c.errMsg = errMsg
	snap := Snapshot{State: state, Identity: identity, Err: errMsg}
	observers := make([]func(Snapshot), len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	c.logger.Debug("session state", "state", state.String())
	for _, fn := range observers {
		fn(snap)
	}
}
