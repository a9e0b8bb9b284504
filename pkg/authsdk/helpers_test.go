package authsdk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/pocketclub/authcore/pkg/credstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mintToken builds a decodable (but unverifiable) access token whose
// exp claim is now+ttl. Negative ttl mints an already-expired token.
func mintToken(t *testing.T, ttl time.Duration) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(ttl).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

// failingSetBackend wraps a Memory backend and fails writes on demand,
// simulating a persistence layer that dies mid-session.
type failingSetBackend struct {
	*credstore.Memory

	failSets bool
}

func (b *failingSetBackend) Set(ctx context.Context, key, value string) error {
	if b.failSets {
		return errors.New("storage write failed")
	}
	return b.Memory.Set(ctx, key, value)
}
