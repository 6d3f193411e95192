package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictify/engine/internal/domain"
)

func testOracleLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, time.Hour, testOracleLogger())
	return c
}

func TestPriceFetchesQuote(t *testing.T) {
	fetchedAt := time.Now().Add(-time.Minute).Unix()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/price/reflector", r.URL.Path)
		assert.Equal(t, "BTC/USD", r.URL.Query().Get("feed"))
		fmt.Fprintf(w, `{"price": 6500000, "timestamp": %d}`, fetchedAt)
	})

	price, at, err := c.Price(context.Background(), domain.OracleProviderReflector, "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, int64(6500000), price)
	assert.Equal(t, fetchedAt, at.Unix())
}

func TestPriceRejectsStaleQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"price": 6500000, "timestamp": %d}`, time.Now().Add(-2*time.Hour).Unix())
	})

	_, _, err := c.Price(context.Background(), domain.OracleProviderReflector, "BTC/USD")
	assert.ErrorIs(t, err, domain.ErrOracleDataStale)
}

func TestPriceRejectsNonPositivePrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"price": 0, "timestamp": %d}`, time.Now().Unix())
	})

	_, _, err := c.Price(context.Background(), domain.OracleProviderPyth, "ETH/USD")
	assert.ErrorIs(t, err, domain.ErrOraclePriceOutOfRange)
}

func TestPriceUnknownProvider(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the gateway")
	})

	_, _, err := c.Price(context.Background(), domain.OracleProvider("band"), "BTC/USD")
	assert.ErrorIs(t, err, domain.ErrInvalidOracleFeed)
}

func TestPriceGatewayErrors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})
		_, _, err := c.Price(context.Background(), domain.OracleProviderReflector, "NOPE/USD")
		assert.ErrorIs(t, err, domain.ErrInvalidOracleFeed)
	})

	t.Run("server error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream down", http.StatusBadGateway)
		})
		_, _, err := c.Price(context.Background(), domain.OracleProviderReflector, "BTC/USD")
		assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
	})

	t.Run("unreachable", func(t *testing.T) {
		c := NewClient("http://127.0.0.1:1", time.Hour, testOracleLogger())
		_, _, err := c.Price(context.Background(), domain.OracleProviderReflector, "BTC/USD")
		assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
	})
}

func TestPriceContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := c.Price(ctx, domain.OracleProviderReflector, "BTC/USD")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOracleUnavailable))
}
