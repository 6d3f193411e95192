package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictify/engine/internal/domain"
	"github.com/predictify/engine/internal/server/middleware"
)

type fakeVoteService struct {
	voteErr   error
	claimErr  error
	payout    int64
	gotVoter  string
	gotMarket string
	gotStake  int64
}

func (f *fakeVoteService) Vote(ctx context.Context, voter, marketID, outcome string, stake int64) error {
	f.gotVoter = voter
	f.gotMarket = marketID
	f.gotStake = stake
	return f.voteErr
}

func (f *fakeVoteService) Claim(ctx context.Context, caller, marketID string) (int64, error) {
	f.gotVoter = caller
	f.gotMarket = marketID
	return f.payout, f.claimErr
}

func newVoteMux(svc VoteService) *http.ServeMux {
	h := NewVoteHandler(svc, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/markets/{id}/vote", h.Vote)
	mux.HandleFunc("POST /api/markets/{id}/claim", h.Claim)
	return mux
}

func doAs(mux *http.ServeMux, caller, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(middleware.WithCaller(req.Context(), caller))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestVoteEndpoint(t *testing.T) {
	svc := &fakeVoteService{}
	mux := newVoteMux(svc)

	rec := doAs(mux, "GVOTER", http.MethodPost, "/api/markets/m1/vote", `{"outcome":"yes","stake":50000000}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GVOTER", svc.gotVoter)
	assert.Equal(t, "m1", svc.gotMarket)
	assert.Equal(t, int64(50000000), svc.gotStake)
}

func TestVoteEndpointRejectsMalformedBody(t *testing.T) {
	mux := newVoteMux(&fakeVoteService{})

	rec := doAs(mux, "GVOTER", http.MethodPost, "/api/markets/m1/vote", `{"outcome":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.ErrInvalidInput.Code, body.Code)
}

func TestVoteEndpointMapsEngineErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domain.ErrMarketNotFound, http.StatusNotFound},
		{domain.ErrMarketClosed, http.StatusConflict},
		{domain.ErrAlreadyVoted, http.StatusConflict},
		{domain.ErrInsufficientStake, http.StatusBadRequest},
		{domain.ErrTransferFailed, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		mux := newVoteMux(&fakeVoteService{voteErr: tc.err})
		rec := doAs(mux, "GVOTER", http.MethodPost, "/api/markets/m1/vote", `{"outcome":"yes","stake":1}`)
		assert.Equal(t, tc.status, rec.Code, "error %v", tc.err)
	}
}

func TestClaimEndpoint(t *testing.T) {
	svc := &fakeVoteService{payout: 147000000}
	mux := newVoteMux(svc)

	rec := doAs(mux, "GWINNER", http.MethodPost, "/api/markets/m1/claim", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp claimResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(147000000), resp.Payout)
	assert.Equal(t, "m1", resp.MarketID)
	assert.Equal(t, "GWINNER", svc.gotVoter)
}

func TestClaimEndpointNothingToClaim(t *testing.T) {
	mux := newVoteMux(&fakeVoteService{claimErr: domain.ErrNothingToClaim})

	rec := doAs(mux, "GLOSER", http.MethodPost, "/api/markets/m1/claim", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
