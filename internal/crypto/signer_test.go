package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Deterministic test key, never used anywhere real.
const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSignAndVerifyRequest(t *testing.T) {
	s, err := NewSigner(testKeyHex)
	require.NoError(t, err)

	body := []byte(`{"outcome":"yes","stake":50000000}`)
	sig, err := s.SignRequest("POST", "/api/markets/abc/vote", body, 1748800000)
	require.NoError(t, err)

	err = VerifyRequest(s.Address(), "POST", "/api/markets/abc/vote", body, 1748800000, sig)
	assert.NoError(t, err)
}

func TestVerifyRequestRejectsWrongCaller(t *testing.T) {
	s, err := NewSigner(testKeyHex)
	require.NoError(t, err)

	body := []byte(`{}`)
	sig, err := s.SignRequest("POST", "/api/markets", body, 1748800000)
	require.NoError(t, err)

	err = VerifyRequest("0x0000000000000000000000000000000000000001", "POST", "/api/markets", body, 1748800000, sig)
	assert.Error(t, err)
}

func TestVerifyRequestRejectsTampering(t *testing.T) {
	s, err := NewSigner(testKeyHex)
	require.NoError(t, err)

	sig, err := s.SignRequest("POST", "/api/markets/abc/vote", []byte(`{"stake":1}`), 1748800000)
	require.NoError(t, err)

	cases := map[string]error{
		"body":      VerifyRequest(s.Address(), "POST", "/api/markets/abc/vote", []byte(`{"stake":2}`), 1748800000, sig),
		"path":      VerifyRequest(s.Address(), "POST", "/api/markets/xyz/vote", []byte(`{"stake":1}`), 1748800000, sig),
		"timestamp": VerifyRequest(s.Address(), "POST", "/api/markets/abc/vote", []byte(`{"stake":1}`), 1748800001, sig),
	}
	for name, verifyErr := range cases {
		assert.Error(t, verifyErr, "tampered %s must not verify", name)
	}
}

func TestVerifyRequestMalformedSignature(t *testing.T) {
	err := VerifyRequest("0x0000000000000000000000000000000000000001", "GET", "/", nil, 0, "0xzz")
	assert.Error(t, err)

	err = VerifyRequest("0x0000000000000000000000000000000000000001", "GET", "/", nil, 0, "0x0011")
	assert.Error(t, err)
}

func TestEncryptDecryptKeyRoundTrip(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "correct horse battery staple")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)

	_, err = DecryptKey(blob, "wrong password")
	assert.Error(t, err)
}

func TestLoadKeyPrefersRawKey(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)

	_, err = LoadKey(KeyConfig{})
	assert.Error(t, err)
}
