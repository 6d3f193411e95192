package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictify/engine/internal/crypto"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func signedRequest(t *testing.T, s *crypto.Signer, method, path, body string, ts int64) *http.Request {
	t.Helper()
	sig, err := s.SignRequest(method, path, []byte(body), ts)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-Caller-Address", s.Address())
	req.Header.Set("X-Signature", sig)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	return req
}

func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Seen-Caller", Caller(r.Context()))
		w.Write(body)
	})
}

func TestSignatureAuthAcceptsValidRequest(t *testing.T) {
	s, err := crypto.NewSigner(testKeyHex)
	require.NoError(t, err)

	h := SignatureAuth(true)(echoCaller())
	body := `{"outcome":"yes","stake":1}`
	req := signedRequest(t, s, http.MethodPost, "/api/markets/m1/vote", body, time.Now().Unix())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, s.Address(), rec.Header().Get("X-Seen-Caller"))
	// Body must still reach the handler after verification buffered it.
	assert.Equal(t, body, rec.Body.String())
}

func TestSignatureAuthRejectsTamperedBody(t *testing.T) {
	s, err := crypto.NewSigner(testKeyHex)
	require.NoError(t, err)

	h := SignatureAuth(true)(echoCaller())
	ts := time.Now().Unix()
	sig, err := s.SignRequest(http.MethodPost, "/api/markets/m1/vote", []byte(`{"stake":1}`), ts)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/markets/m1/vote", strings.NewReader(`{"stake":2}`))
	req.Header.Set("X-Caller-Address", s.Address())
	req.Header.Set("X-Signature", sig)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignatureAuthRejectsStaleTimestamp(t *testing.T) {
	s, err := crypto.NewSigner(testKeyHex)
	require.NoError(t, err)

	h := SignatureAuth(true)(echoCaller())
	req := signedRequest(t, s, http.MethodPost, "/api/markets/m1/vote", "{}", time.Now().Add(-10*time.Minute).Unix())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignatureAuthPassesAnonymousGet(t *testing.T) {
	h := SignatureAuth(true)(echoCaller())
	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Seen-Caller"))
}

func TestSignatureAuthDisabledTrustsHeader(t *testing.T) {
	h := SignatureAuth(false)(echoCaller())
	req := httptest.NewRequest(http.MethodPost, "/api/markets/m1/vote", strings.NewReader("{}"))
	req.Header.Set("X-Caller-Address", "GDEV")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GDEV", rec.Header().Get("X-Seen-Caller"))
}
