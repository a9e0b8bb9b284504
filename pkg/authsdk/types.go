package authsdk

import "encoding/json"

// TokenPair is the credential pair as it crosses the wire: the result of
// a sign-in, a registration, or a refresh exchange. Both values are
// opaque to this subsystem; only the access token's exp claim is ever
// decoded, and only locally.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// refreshRequest is the body of POST /auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// SessionState enumerates the session state machine. Exactly one state
// is active at a time and only the Controller transitions between them.
type SessionState int

const (
	StateSignedOut SessionState = iota
	StateInitializing
	StateSignedIn
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateSignedOut:
		return "signed_out"
	case StateInitializing:
		return "initializing"
	case StateSignedIn:
		return "signed_in"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of the Controller's state, handed to
// observers and returned by Initialize.
type Snapshot struct {
	State SessionState

	// Identity is the stored identity record, present only when
	// State is StateSignedIn. It is passed through unexamined; the
	// domain layer owns its shape.
	Identity json.RawMessage

	// Err carries the restoration failure message when State is
	// StateError.
	Err string
}
