package jwtx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testIssuer = "handoff-test"

func newTestSigner(t *testing.T, kid string) *EdDSASigner {
	t.Helper()
	signer, err := GenerateSignerEdDSA(kid)
	require.NoError(t, err)
	return signer
}

func newTestVerifier(t *testing.T, signers ...*EdDSASigner) Verifier {
	t.Helper()
	keys := NewKeySet()
	for _, s := range signers {
		require.NoError(t, keys.AddJWK(s.PublicJWK()))
	}
	return NewVerifierEdDSA(keys, testIssuer, []string{"driftboard"})
}

func testClaims(ttl time.Duration) Claims {
	return NewAccessClaims(
		"github:12345", "github", "dev@example.com", "dev", "Dev Example",
		[]string{"invitations:read", "invitations:write"},
		ttl, testIssuer, []string{"driftboard"}, time.Now().UTC(),
	)
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t, "k1")
	verifier := newTestVerifier(t, signer)

	token, err := signer.Sign(testClaims(time.Minute))
	require.NoError(t, err)

	claims, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "github:12345", claims.Subject)
	require.Equal(t, "github", claims.Provider)
	require.Equal(t, "dev@example.com", claims.Email)
	require.Contains(t, claims.Scopes, "invitations:write")
	require.NotEmpty(t, claims.ID)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t, "k1")
	verifier := newTestVerifier(t, signer)

	token, err := signer.Sign(testClaims(-time.Minute))
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, ErrExpired)
}

func TestVerifyRejectsUnknownKID(t *testing.T) {
	t.Parallel()

	trusted := newTestSigner(t, "k1")
	rogue := newTestSigner(t, "k2")
	verifier := newTestVerifier(t, trusted)

	token, err := rogue.Sign(testClaims(time.Minute))
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t, "k1")
	verifier := newTestVerifier(t, signer)

	claims := testClaims(time.Minute)
	claims.Issuer = "someone-else"
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, ErrIssuer)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()

	verifier := newTestVerifier(t, newTestSigner(t, "k1"))
	_, err := verifier.Verify("not.a.jwt")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestKeySetPublishesJWKS(t *testing.T) {
	t.Parallel()

	keys := NewKeySet()
	require.False(t, keys.IsReady())

	signer := newTestSigner(t, "k1")
	require.NoError(t, keys.AddJWK(signer.PublicJWK()))

	require.True(t, keys.IsReady())
	jwks := keys.PublicJWKS()
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "OKP", jwks.Keys[0].Kty)
	require.Equal(t, "EdDSA", jwks.Keys[0].Alg)
	require.Equal(t, "k1", jwks.Keys[0].Kid)
}
