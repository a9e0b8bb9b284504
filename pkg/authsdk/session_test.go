package authsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pocketclub/authcore/pkg/credstore"
)

var testIdentity = json.RawMessage(`{"id":"user-1","email":"dev@pocketclub.app"}`)

// sessionEnv wires a Controller against a fake backend with working
// refresh and logout endpoints.
type sessionEnv struct {
	store      *credstore.Store
	bus        *LostAuthBus
	controller *Controller

	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
	refreshFails atomic.Bool
	logoutStatus atomic.Int32

	server *httptest.Server
}

func newSessionEnv(t *testing.T) *sessionEnv {
	t.Helper()
	env := &sessionEnv{}
	env.logoutStatus.Store(http.StatusNoContent)

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		env.refreshCalls.Add(1)
		if env.refreshFails.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"code":    "invalid_grant",
				"message": "refresh token revoked",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(TokenPair{
			AccessToken:  "access-new",
			RefreshToken: "refresh-new",
		})
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		env.logoutCalls.Add(1)
		w.WriteHeader(int(env.logoutStatus.Load()))
	})

	env.server = httptest.NewServer(mux)
	t.Cleanup(env.server.Close)

	logger := testLogger()
	env.store = credstore.New(credstore.NewMemory(), logger)
	env.bus = NewLostAuthBus(logger)
	t.Cleanup(func() { _ = env.bus.Close() })

	client := NewClient(env.server.URL, logger)
	coordinator := NewCoordinator(env.store, client, logger)
	env.controller = NewController(env.store, coordinator, client, env.bus, logger)

	return env
}

// seedSession persists a complete previous session: both tokens, the
// identity record and the authenticated marker.
func seedSession(t *testing.T, store *credstore.Store, access string) {
	t.Helper()
	ctx := context.Background()

	seedPair(t, store, access, "refresh-old")
	require.NoError(t, store.StoreIdentity(ctx, testIdentity))
	store.SetAuthenticated(ctx, true)
}

func TestInitializeFreshInstall(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(t)
	snap := env.controller.Initialize(context.Background())

	require.Equal(t, StateSignedOut, snap.State)
	require.False(t, env.controller.IsSessionValid())
	require.EqualValues(t, 0, env.refreshCalls.Load(), "a fresh install makes no network calls")
}

func TestInitializeRestoresValidSession(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(t)
	seedSession(t, env.store, mintToken(t, time.Hour))

	snap := env.controller.Initialize(context.Background())

	require.Equal(t, StateSignedIn, snap.State)
	require.JSONEq(t, string(testIdentity), string(snap.Identity))
	require.EqualValues(t, 0, env.refreshCalls.Load(), "an unexpired token needs no refresh")

	identity, ok := env.controller.Identity()
	require.True(t, ok)
	require.JSONEq(t, string(testIdentity), string(identity))
}

func TestInitializeRefreshesExpiredToken(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(t)
	ctx := context.Background()
	seedSession(t, env.store, mintToken(t, -time.Hour))

	snap := env.controller.Initialize(ctx)

	require.Equal(t, StateSignedIn, snap.State)
	require.EqualValues(t, 1, env.refreshCalls.Load())
	require.Equal(t, "access-new", env.store.AccessToken(ctx))
	require.Equal(t, "refresh-new", env.store.RefreshToken(ctx))
}

func TestInitializeSignsOutWhenRefreshFails(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(t)
	ctx := context.Background()
	seedSession(t, env.store, mintToken(t, -time.Hour))
	env.refreshFails.Store(true)

	snap := env.controller.Initialize(ctx)

	require.Equal(t, StateSignedOut, snap.State)
	require.Empty(t, env.store.AccessToken(ctx), "a dead session leaves no credentials behind")
	require.Empty(t, env.store.RefreshToken(ctx))
	require.False(t, env.store.Authenticated(ctx))
}

func TestInitializeClearsIncompleteSession(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(t)
	ctx := context.Background()

	// An access token with no refresh token: a partial write from a
	// crashed run. Unusable, so it must not linger.
	require.NoError(t, env.store.StoreCredentials(ctx, credstore.Pair{
		AccessToken: mintToken(t, time.Hour),
	}))

	snap := env.controller.Initialize(ctx)

	require.Equal(t, StateSignedOut, snap.State)
	require.Empty(t, env.store.AccessToken(ctx))
	require.EqualValues(t, 0, env.refreshCalls.Load(), "incomplete sessions are settled locally")
}

func TestInitializeWipesResidueOnFastPath(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(t)
	ctx := context.Background()

	// A torn write left a refresh token and identity behind, with no
	// access token and no authenticated marker. The fast path must not
	// leave credentials a later exchange could silently spend.
	require.NoError(t, env.store.StoreCredentials(ctx, credstore.Pair{
		RefreshToken: "refresh-orphan",
	}))
	require.NoError(t, env.store.StoreIdentity(ctx, testIdentity))

	snap := env.controller.Initialize(ctx)

	require.Equal(t, StateSignedOut, snap.State)
	require.Empty(t, env.store.RefreshToken(ctx), "orphaned refresh token must not survive")
	require.Nil(t, env.store.Identity(ctx))
	require.EqualValues(t, 0, env.refreshCalls.Load())
}

func TestInitializePanicBecomesErrorState(t *testing.T) {
	t.Parallel()

	logger := testLogger()
	store := credstore.New(credstore.NewMemory(), logger)
	seedSession(t, store, mintToken(t, -time.Hour))

	// A nil coordinator blows up the moment restoration tries to
	// refresh. The host process must survive and land in Error.
	controller := NewController(store, nil, nil, nil, logger)
	snap := controller.Initialize(context.Background())

	require.Equal(t, StateError, snap.State)
	require.NotEmpty(t, snap.Err)
	require.Equal(t, StateError, controller.State())
}

func TestSignInPersistsSession(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(t)
	ctx := context.Background()

	err := env.controller.SignIn(ctx, TokenPair{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}, testIdentity)
	require.NoError(t, err)

	require.True(t, env.controller.IsSessionValid())
	require.Equal(t, "access-1", env.store.AccessToken(ctx))
	require.Equal(t, "refresh-1", env.store.RefreshToken(ctx))
	require.True(t, env.store.Authenticated(ctx))
	require.JSONEq(t, string(testIdentity), string(env.store.Identity(ctx)))
}

func TestSignInRejectsIncompletePair(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(t)
	ctx := context.Background()

	require.Error(t, env.controller.SignIn(ctx, TokenPair{AccessToken: "access-1"}, testIdentity))
	require.Error(t, env.controller.SignIn(ctx, TokenPair{RefreshToken: "refresh-1"}, testIdentity))
	require.Equal(t, StateSignedOut, env.controller.State())
}

func TestSignInStorageFailureKeepsStateSignedOut(t *testing.T) {
	t.Parallel()

	logger := testLogger()
	backend := &failingSetBackend{Memory: credstore.NewMemory(), failSets: true}
	store := credstore.New(backend, logger)
	controller := NewController(store, nil, nil, nil, logger)

	err := controller.SignIn(context.Background(), TokenPair{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}, testIdentity)

	require.Error(t, err)
	require.Equal(t, StateSignedOut, controller.State())
}

func TestCompleteRegistration(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(t)
	ctx := context.Background()

	err := env.controller.CompleteRegistration(ctx, TokenPair{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}, testIdentity)
	require.NoError(t, err)
	require.Equal(t, StateSignedIn, env.controller.State())
}

func TestSignOutIsDeterministic(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(t)
	ctx := context.Background()

	require.NoError(t, env.controller.SignIn(ctx, TokenPair{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}, testIdentity))

	// The backend logout fails; the local outcome must not change.
	env.logoutStatus.Store(http.StatusInternalServerError)
	env.controller.SignOut(ctx)

	require.Equal(t, StateSignedOut, env.controller.State())
	require.False(t, env.controller.IsSessionValid())
	require.Empty(t, env.store.AccessToken(ctx))
	require.Empty(t, env.store.RefreshToken(ctx))
	require.False(t, env.store.Authenticated(ctx))
	require.EqualValues(t, 1, env.logoutCalls.Load())

	_, ok := env.controller.Identity()
	require.False(t, ok)
}

func TestSignOutWhenSignedOutIsNoOp(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(t)
	env.controller.SignOut(context.Background())

	require.Equal(t, StateSignedOut, env.controller.State())
	require.EqualValues(t, 0, env.logoutCalls.Load(), "nothing to revoke, no network call")
}

func TestLostAuthSignalSignsOut(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = env.controller.Run(ctx)
	}()

	require.NoError(t, env.controller.SignIn(ctx, TokenPair{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}, testIdentity))

	require.NoError(t, env.bus.PublishSessionLost("refresh token revoked"))

	require.Eventually(t, func() bool {
		return env.controller.State() == StateSignedOut
	}, 3*time.Second, 10*time.Millisecond, "the lost-auth signal must end the session")

	require.Empty(t, env.store.AccessToken(context.Background()))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}

func TestLostAuthSignalIgnoredWhenSignedOut(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = env.controller.Run(ctx) }()

	require.NoError(t, env.bus.PublishSessionLost("stale signal"))

	// Give the consumer a beat; a spurious signal must not trigger a
	// logout call or move the state machine.
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, StateSignedOut, env.controller.State())
	require.EqualValues(t, 0, env.logoutCalls.Load())
}

func TestObserversSeeEachTransitionOnce(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(t)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seen []SessionState
	)
	env.controller.OnStateChange(func(snap Snapshot) {
		mu.Lock()
		seen = append(seen, snap.State)
		mu.Unlock()
	})

	pair := TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"}
	require.NoError(t, env.controller.SignIn(ctx, pair, testIdentity))

	// Re-signing in with the identical session is not a transition.
	require.NoError(t, env.controller.SignIn(ctx, pair, testIdentity))

	env.controller.SignOut(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []SessionState{StateSignedIn, StateSignedOut}, seen)
}
