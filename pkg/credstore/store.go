package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// authState is the persisted fast-path restoration record. It is
// redundant with the presence of the tokens but lets startup answer
// "was anyone signed in" without decoding a token.
type authState struct {
	IsAuthenticated bool `json:"isAuthenticated"`
}

// Store is the credential store facade used by the rest of the
// subsystem. It adds an in-process access-token cache over a Backend so
// the hot read path (every outbound request) avoids a storage round-trip.
type Store struct {
	backend Backend
	logger  *slog.Logger

	mu           sync.RWMutex
	cachedAccess string
	cacheValid   bool
}

// New wraps backend. A nil logger falls back to slog.Default().
func New(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger}
}

// StoreCredentials persists a credential pair, replacing the previous
// pair wholesale. Unlike the read paths, a persistence failure is
// surfaced: callers must not trust an in-memory session whose
// credentials never reached storage.
func (s *Store) StoreCredentials(ctx context.Context, pair Pair) error {
	if err := s.backend.Set(ctx, KeyAccessToken, pair.AccessToken); err != nil {
		return fmt.Errorf("credstore: persist access token: %w", err)
	}
	if err := s.backend.Set(ctx, KeyRefreshToken, pair.RefreshToken); err != nil {
		return fmt.Errorf("credstore: persist refresh token: %w", err)
	}

	s.mu.Lock()
	s.cachedAccess = pair.AccessToken
	s.cacheValid = true
	s.mu.Unlock()

	return nil
}

// AccessToken returns the current access token, or "" when absent or the
// backend is unreadable. The first successful read is cached.
func (s *Store) AccessToken(ctx context.Context) string {
	s.mu.RLock()
	if s.cacheValid {
		token := s.cachedAccess
		s.mu.RUnlock()
		return token
	}
	s.mu.RUnlock()

	token, err := s.backend.Get(ctx, KeyAccessToken)
	if err != nil {
		if err != context.Canceled {
			s.logger.Debug("access token read failed", "error", err)
		}
		return ""
	}

	s.mu.Lock()
	s.cachedAccess = token
	s.cacheValid = true
	s.mu.Unlock()

	return token
}

// RefreshToken returns the stored refresh token, or "" when absent or
// unreadable. It is never cached; it is read once per refresh exchange.
func (s *Store) RefreshToken(ctx context.Context) string {
	token, err := s.backend.Get(ctx, KeyRefreshToken)
	if err != nil {
		return ""
	}
	return token
}

// StoreIdentity persists the opaque identity record verbatim.
func (s *Store) StoreIdentity(ctx context.Context, record json.RawMessage) error {
	if err := s.backend.Set(ctx, KeyIdentity, string(record)); err != nil {
		return fmt.Errorf("credstore: persist identity: %w", err)
	}
	return nil
}

// Identity returns the stored identity record, or nil when absent.
// The record is opaque at this layer; no fields are interpreted.
func (s *Store) Identity(ctx context.Context) json.RawMessage {
	raw, err := s.backend.Get(ctx, KeyIdentity)
	if err != nil || raw == "" {
		return nil
	}
	return json.RawMessage(raw)
}

// SetAuthenticated records the fast-path restoration flag. Best effort.
func (s *Store) SetAuthenticated(ctx context.Context, v bool) {
	raw, _ := json.Marshal(authState{IsAuthenticated: v})
	if err := s.backend.Set(ctx, KeyAuthState, string(raw)); err != nil {
		s.logger.Debug("auth state write failed", "error", err)
	}
}

// Authenticated reports the persisted fast-path flag. Absent or
// undecodable state reads as false.
func (s *Store) Authenticated(ctx context.Context) bool {
	raw, err := s.backend.Get(ctx, KeyAuthState)
	if err != nil {
		return false
	}

	var state authState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return false
	}
	return state.IsAuthenticated
}

// ClearAll wipes every stored key. Each deletion is independent and
// swallows its own error: a partial wipe must never block sign-out.
// Clearing an already-empty store is a no-op.
func (s *Store) ClearAll(ctx context.Context) {
	s.mu.Lock()
	s.cachedAccess = ""
	s.cacheValid = false
	s.mu.Unlock()

	for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyIdentity, KeyAuthState} {
		if err := s.backend.Delete(ctx, key); err != nil {
			s.logger.Warn("credential delete failed", "key", key, "error", err)
		}
	}
}
