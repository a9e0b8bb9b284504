// Package credstore persists the credential pair and the signed-in
// identity record behind a single interface, regardless of whether the
// platform offers an OS keystore or only a plain on-disk store.
package credstore

import "context"

// Storage keys. These names are part of the persisted layout; changing
// them orphans credentials written by earlier builds.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyIdentity     = "user"
	KeyAuthState    = "authState"
)

// Pair is the credential pair as persisted. The refresh token is
// single-use: once exchanged, the pair returned by the exchange replaces
// this one wholesale.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// Backend is a minimal key-value port implemented by each physical store
// (OS keyring, SQLite file, in-memory). Callers never branch on which
// backend is in use.
type Backend interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
