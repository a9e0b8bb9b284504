package cryptox

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealRoundTrip(t *testing.T) {
	t.Parallel()

	sealer, err := NewSealer([]byte("some key material"))
	require.NoError(t, err)

	sealed, err := sealer.Seal([]byte("refresh-token-value"))
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "refresh-token-value")

	plaintext, err := sealer.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "refresh-token-value", string(plaintext))
}

func TestSealerRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	_, err := NewSealer(nil)
	require.Error(t, err)
}

func TestOpenRejectsTamperedValue(t *testing.T) {
	t.Parallel()

	sealer, err := NewSealer([]byte("key"))
	require.NoError(t, err)

	sealed, err := sealer.Seal([]byte("secret"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = sealer.Open(sealed)
	require.Error(t, err)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	t.Parallel()

	sealerA, err := NewSealer([]byte("key-a"))
	require.NoError(t, err)
	sealerB, err := NewSealer([]byte("key-b"))
	require.NoError(t, err)

	sealed, err := sealerA.Seal([]byte("secret"))
	require.NoError(t, err)

	_, err = sealerB.Open(sealed)
	require.Error(t, err)
}

func TestOpenRejectsShortValue(t *testing.T) {
	t.Parallel()

	sealer, err := NewSealer([]byte("key"))
	require.NoError(t, err)

	_, err = sealer.Open([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestLoadOrCreateKey(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "seal.key")

	first, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	require.Len(t, first, KeySize)

	// A second load returns the same material, so sealed values stay
	// readable across restarts.
	second, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
