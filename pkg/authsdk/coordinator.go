package authsdk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pocketclub/authcore/pkg/credstore"
)

// DefaultRefreshTimeout bounds one refresh exchange. A timed-out
// exchange settles the flight as a failure so waiters are never wedged.
const DefaultRefreshTimeout = 15 * time.Second

// Coordinator performs at most one in-flight refresh exchange at a time.
//
// A refresh token is single-use: two concurrent exchanges would each
// spend it and one of the two resulting pairs would be dead on arrival.
// Callers that arrive while an exchange is in flight wait for it and
// share its outcome instead of starting a second one.
//
// The Coordinator never clears the store on failure. Deciding what a
// failed refresh means for the session belongs to the Controller.
type Coordinator struct {
	store  *credstore.Store
	client *Client
	logger *slog.Logger

	// Timeout bounds each exchange. Zero means DefaultRefreshTimeout.
	Timeout time.Duration

	group singleflight.Group
}

func NewCoordinator(store *credstore.Store, client *Client, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: store, client: client, logger: logger}
}

// Refresh exchanges the stored refresh token for a new pair and persists
// it. Concurrent callers coalesce into one exchange and all observe the
// same outcome. A nil return means a new pair is in the store.
func (c *Coordinator) Refresh(ctx context.Context) error {
	return c.refresh(ctx, nil)
}

// refresh runs onFailure, when non-nil, inside the flight body. The body
// executes once no matter how many callers coalesce, so a failed flight
// is reported exactly once. Waiters joining an existing flight share its
// outcome; their callback never runs.
func (c *Coordinator) refresh(ctx context.Context, onFailure func(error)) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		err := c.exchange(ctx)
		if err != nil && onFailure != nil {
			onFailure(err)
		}
		return nil, err
	})
	return err
}

func (c *Coordinator) exchange(parent context.Context) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}

	// The flight's outcome is shared by every waiter, so the exchange
	// is detached from the initiating caller's cancellation and runs
	// under its own deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
	defer cancel()

	refreshToken := c.store.RefreshToken(ctx)
	if refreshToken == "" {
		return ErrNoRefreshToken
	}

	started := time.Now()
	pair, err := c.client.Refresh(ctx, refreshToken)
	if err != nil {
		c.logger.Warn("refresh exchange failed",
			"duration_ms", time.Since(started).Milliseconds(),
			"error", err,
		)
		return fmt.Errorf("authsdk: refresh exchange: %w", err)
	}

	// The new pair replaces the old one wholesale. If persistence
	// fails the refresh failed: an unpersisted pair must not be
	// trusted, and the spent refresh token cannot be exchanged again.
	if err := c.store.StoreCredentials(ctx, credstore.Pair{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}); err != nil {
		return fmt.Errorf("authsdk: persist refreshed credentials: %w", err)
	}

	c.logger.Debug("refresh exchange succeeded",
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}
