package domain

import (
	"errors"
	"fmt"
)

// Error is a domain error with a stable numeric code. Callers distinguish
// error categories programmatically by code range:
//
//	1-11    core market errors
//	101-105 reentrancy
//	201-213 validation
//	301-303 oracle
//	401-403 fee / system configuration
//	500     internal
//
// Codes are part of the public API surface and must never be renumbered.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Core market errors (1-11).
var (
	ErrUnauthorized          = &Error{1, "unauthorized"}
	ErrMarketClosed          = &Error{2, "market closed"}
	ErrMarketNotFound        = &Error{3, "market not found"}
	ErrInsufficientStake     = &Error{4, "insufficient stake"}
	ErrInvalidOutcome        = &Error{5, "invalid outcome"}
	ErrAlreadyClaimed        = &Error{6, "already claimed"}
	ErrMarketAlreadyResolved = &Error{7, "market already resolved"}
	ErrNothingToClaim        = &Error{8, "nothing to claim"}
	ErrAlreadyVoted          = &Error{9, "already voted"}
	ErrAlreadyDisputed       = &Error{10, "already disputed"}
	ErrOracleUnavailable     = &Error{11, "oracle unavailable"}
)

// Reentrancy errors (101-105).
var (
	ErrReentrancyAttack            = &Error{101, "reentrancy attack detected"}
	ErrInvalidReentrancyState      = &Error{102, "invalid reentrancy state"}
	ErrInconsistentReentrancyState = &Error{103, "inconsistent reentrancy state"}
	ErrInvalidCallState            = &Error{104, "invalid call state"}
	ErrCallStackOverflow           = &Error{105, "call stack overflow"}
)

// Validation errors (201-213).
var (
	ErrInvalidInput         = &Error{201, "invalid input"}
	ErrInvalidConfig        = &Error{202, "invalid configuration"}
	ErrMarketNotResolved    = &Error{203, "market not resolved"}
	ErrInvalidThreshold     = &Error{204, "invalid threshold"}
	ErrInvalidState         = &Error{205, "invalid state"}
	ErrConflict             = &Error{206, "concurrent modification conflict"}
	ErrOracleResultRequired = &Error{207, "oracle result required"}
	ErrDisputeNotFound      = &Error{208, "dispute not found"}
	ErrTransferFailed       = &Error{209, "asset transfer failed"}
)

// Oracle errors (301-303).
var (
	ErrOracleDataStale       = &Error{301, "oracle data stale"}
	ErrOraclePriceOutOfRange = &Error{302, "oracle price out of range"}
	ErrInvalidOracleFeed     = &Error{303, "invalid oracle feed"}
)

// Fee and system errors (401-403, 500).
var (
	ErrConfigurationNotFound = &Error{401, "configuration not found"}
	ErrNoFeesToCollect       = &Error{402, "no fees to collect"}
	ErrFeeAlreadyCollected   = &Error{403, "fees already collected"}
	ErrInternal              = &Error{500, "internal error"}
)

// CodeOf extracts the stable numeric code from err, walking the wrap chain.
// It returns 500 (internal) for errors that are not domain errors.
func CodeOf(err error) int {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrInternal.Code
}
