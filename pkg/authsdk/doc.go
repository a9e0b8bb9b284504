/*
Package authsdk implements the authentication and token lifecycle
subsystem of the pocketclub client: acquiring, persisting, injecting,
and transparently refreshing the credentials that authorize every call
to the backend.

# Overview

The package is organized around four cooperating types, wired together
once at startup and shared for the life of the process:

  - Client: bare token-endpoint calls (refresh, logout) that bypass the
    Gate so a refresh can never intercept itself
  - Coordinator: at most one in-flight refresh exchange; concurrent
    callers wait for it and share its outcome
  - Gate: an http.RoundTripper that attaches the bearer token to every
    outbound call and retries exactly once after a 401-triggered refresh
  - Controller: the session state machine (signed-out, initializing,
    signed-in, error) consumed by the rest of the application

# Wiring

	backend := credstore.NewKeyring("pocketclub")
	store := credstore.New(backend, logger)

	client := authsdk.NewClient("https://api.pocketclub.app", logger)
	coordinator := authsdk.NewCoordinator(store, client, logger)
	bus := authsdk.NewLostAuthBus(logger)
	gate := authsdk.NewGate(nil, store, coordinator, bus, logger)
	controller := authsdk.NewController(store, coordinator, client, bus, logger)

	snap := controller.Initialize(ctx)
	go controller.Run(ctx) // reacts to the lost-auth signal

	httpClient := gate.Client() // use for every backend call

# Token refresh

Refresh tokens are single-use. If two requests both hit a 401 and both
tried to exchange the stored refresh token, one exchange would succeed
and the other would spend a token that no longer exists, killing the
session. The Coordinator therefore single-flights the exchange: the
first caller performs it, everyone else waits and shares the result.

The Gate bounds refresh attempts to one per original call. A request
that was already resent once propagates its second 401 untouched; when
the backend rejects a freshly refreshed token, another refresh is not
going to fix it.

# Losing the session

When a mid-session refresh is rejected, the Gate publishes one
SessionLostEvent on the LostAuthBus. The Controller reacts by signing
out: best-effort backend logout, unconditional local credential wipe,
transition to signed-out. UI layers subscribe to Controller state via
OnStateChange and route to the signed-out entry point.

# What this package is not

Authorization policy (roles, permissions) is enforced by the backend.
The identity record is stored and returned verbatim; its shape belongs
to the domain layer. Retry and backoff for non-auth failures belong to
the general request layer, not here.
*/
package authsdk
