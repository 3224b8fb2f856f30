package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/proptrust/pkg/cryptox"
	"github.com/aussiebroadwan/proptrust/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const exampleIssuer = "https://auth.proptrust.test"

func newTestSigner(t *testing.T, kid string) jwtx.Signer {
	t.Helper()
	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA(kid, pemKey)
	require.NoError(t, err)
	return signer
}

func TestEdDSASignAndVerify(t *testing.T) {
	signer := newTestSigner(t, "test-key-eddsa")
	require.NoError(t, signer.Validate())
	require.Equal(t, "EdDSA", signer.Alg())
	require.Equal(t, "test-key-eddsa", signer.KID())

	claims := jwtx.NewAccessClaims(
		"acc-456", "session-1", "property_owner",
		[]string{jwtx.AMRPassword},
		5*time.Minute, exampleIssuer, []string{"api"}, time.Now().UTC(),
	)

	token, err := signer.Sign(claims)
	require.NoError(t, err)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))

	jwks := keyset.PublicJWKS()
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "OKP", jwks.Keys[0].Kty)
	require.Equal(t, "Ed25519", jwks.Keys[0].Crv)

	verifier := jwtx.NewVerifierEdDSA(keyset, jwtx.VerifyOptions{Issuer: exampleIssuer, Audience: []string{"api"}})
	parsed, err := verifier.Verify(token)
	require.NoError(t, err)

	require.Equal(t, claims.Subject, parsed.Subject)
	require.Equal(t, claims.SID, parsed.SID)
	require.Equal(t, claims.Role, parsed.Role)
	require.ElementsMatch(t, claims.AMR, parsed.AMR)
	require.Equal(t, claims.ID, parsed.ID)
}

func TestEdDSAVerifyFailsForWrongIssuer(t *testing.T) {
	signer := newTestSigner(t, "k1")
	claims := jwtx.NewAccessClaims("acc-1", "s", "investor", nil, time.Minute, exampleIssuer, nil, time.Now())
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))

	_, err = jwtx.NewVerifierEdDSA(keyset, jwtx.VerifyOptions{Issuer: "wrong-issuer"}).Verify(token)
	require.ErrorIs(t, err, jwtx.ErrIssuer)
}

func TestEdDSAVerifyFailsForUnknownKey(t *testing.T) {
	signer1 := newTestSigner(t, "key1")
	signer2 := newTestSigner(t, "key2")

	claims := jwtx.NewAccessClaims("acc-1", "s", "investor", nil, time.Minute, exampleIssuer, nil, time.Now())
	token, err := signer1.Sign(claims)
	require.NoError(t, err)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer2))

	_, err = jwtx.NewVerifierEdDSA(keyset, jwtx.VerifyOptions{Issuer: exampleIssuer}).Verify(token)
	require.ErrorIs(t, err, jwtx.ErrNoKey)
}

func TestEdDSAVerifyExpired(t *testing.T) {
	signer := newTestSigner(t, "k1")
	claims := jwtx.NewAccessClaims("acc-1", "s", "investor", nil, time.Minute, exampleIssuer, nil,
		time.Now().Add(-time.Hour))
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))

	_, err = jwtx.NewVerifierEdDSA(keyset, jwtx.VerifyOptions{Issuer: exampleIssuer}).Verify(token)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestEdDSAVerifyRejectsTamperedToken(t *testing.T) {
	signer := newTestSigner(t, "k1")
	claims := jwtx.NewAccessClaims("acc-1", "s", "investor", nil, time.Minute, exampleIssuer, nil, time.Now())
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))
	verifier := jwtx.NewVerifierEdDSA(keyset, jwtx.VerifyOptions{Issuer: exampleIssuer})

	_, err = verifier.Verify(token[:len(token)-4] + "AAAA")
	require.Error(t, err)

	_, err = verifier.Verify("not.a.jwt")
	require.Error(t, err)
}

func TestEdDSAValidateFailsForInvalidKey(t *testing.T) {
	_, err := jwtx.NewSignerEdDSA("test", []byte("not-a-pem-key"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid PEM")
}

func TestEdDSACommonVerifierAdapter(t *testing.T) {
	signer := newTestSigner(t, "test-key")
	claims := jwtx.NewAccessClaims("acc-123", "session-adapter", "admin", nil, time.Minute, exampleIssuer, nil, time.Now())
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))

	var v jwtx.Verifier = jwtx.NewCommonEdDSA(keyset, jwtx.VerifyOptions{Issuer: exampleIssuer})
	parsed, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "admin", parsed.Role)
}
