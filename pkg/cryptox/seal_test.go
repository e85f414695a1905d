package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	plaintext := []byte(`{"access_token":"gho_secret"}`)

	sealed, err := Seal(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, sealed)

	opened, err := Open(sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestSealProducesUniqueCiphertexts(t *testing.T) {
	plaintext := []byte("same secret twice")

	a, err := Seal(plaintext)
	require.NoError(t, err)
	b, err := Seal(plaintext)
	require.NoError(t, err)

	// Random nonces mean identical plaintexts never seal identically.
	require.NotEqual(t, a, b)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	sealed, err := Seal([]byte("secret"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff

	_, err = Open(sealed)
	require.Error(t, err)
}

func TestOpenRejectsTruncatedInput(t *testing.T) {
	_, err := Open([]byte("too short"))
	require.Error(t, err)
}
