package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/predictify/engine/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// errorResponse is the uniform error body: the message plus the stable
// numeric engine code, so clients can branch without string matching.
type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

// writeEngineError maps a service-layer error onto an HTTP status and the
// uniform error body. Unknown errors are logged and returned as 500 without
// leaking internals.
func writeEngineError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		logger.ErrorContext(r.Context(), "handler: internal error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error", Code: domain.ErrInternal.Code})
		return
	}
	writeJSON(w, statusForCode(de.Code), errorResponse{Error: de.Message, Code: de.Code})
}

// statusForCode maps stable engine error codes to HTTP statuses.
func statusForCode(code int) int {
	switch code {
	case domain.ErrMarketNotFound.Code, domain.ErrDisputeNotFound.Code, domain.ErrConfigurationNotFound.Code:
		return http.StatusNotFound
	case domain.ErrUnauthorized.Code:
		return http.StatusForbidden
	case domain.ErrConflict.Code:
		return http.StatusConflict
	case domain.ErrMarketClosed.Code, domain.ErrMarketAlreadyResolved.Code,
		domain.ErrAlreadyClaimed.Code, domain.ErrAlreadyVoted.Code,
		domain.ErrAlreadyDisputed.Code, domain.ErrInvalidState.Code,
		domain.ErrFeeAlreadyCollected.Code:
		return http.StatusConflict
	case domain.ErrInsufficientStake.Code, domain.ErrInvalidOutcome.Code,
		domain.ErrInvalidInput.Code, domain.ErrInvalidConfig.Code,
		domain.ErrInvalidThreshold.Code, domain.ErrInvalidOracleFeed.Code:
		return http.StatusBadRequest
	case domain.ErrNothingToClaim.Code, domain.ErrMarketNotResolved.Code,
		domain.ErrOracleResultRequired.Code, domain.ErrNoFeesToCollect.Code,
		domain.ErrTransferFailed.Code:
		return http.StatusUnprocessableEntity
	case domain.ErrOracleUnavailable.Code, domain.ErrOracleDataStale.Code,
		domain.ErrOraclePriceOutOfRange.Code:
		return http.StatusBadGateway
	case domain.ErrReentrancyAttack.Code, domain.ErrInvalidReentrancyState.Code,
		domain.ErrInconsistentReentrancyState.Code, domain.ErrInvalidCallState.Code,
		domain.ErrCallStackOverflow.Code:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody parses the JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.ErrInvalidInput
	}
	return nil
}

// parseListOpts extracts standard pagination parameters from the query
// string. Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		State:  domain.MarketState(q.Get("state")),
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
