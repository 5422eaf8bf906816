package model

import (
	"context"
	"errors"
)

var (
	// ErrUnknownSubcategory is returned when a subcategory code is not in the rate table.
	ErrUnknownSubcategory = errors.New("pricing: unknown subcategory")

	// ErrUnknownUnderwriter is returned when an underwriter code is not in the rate table.
	ErrUnknownUnderwriter = errors.New("pricing: unknown underwriter")

	// ErrRateNotFound is returned when no rate rule matches a subcategory,
	// underwriter and inputs. It is never turned into a zero premium.
	ErrRateNotFound = errors.New("pricing: rate not found")

	// ErrInvalidInput covers missing or invalid sum insured and malformed
	// underwriter lists.
	ErrInvalidInput = errors.New("pricing: invalid input")

	// ErrRiskDeclined is returned when the underwriter's acceptance limits
	// (vehicle age, minimum sum insured) exclude the risk.
	ErrRiskDeclined = errors.New("pricing: risk declined by underwriter")

	// ErrUnderwriterTimeout is reported for an underwriter whose pricing did
	// not finish within the per-underwriter timeout.
	ErrUnderwriterTimeout = errors.New("pricing: underwriter timed out")

	// ErrNoQuotesAvailable is returned when every underwriter in a comparison failed.
	ErrNoQuotesAvailable = errors.New("pricing: no quotes available")
)

// Wire codes for the error taxonomy.
const (
	CodeUnknownSubcategory = "UNKNOWN_SUBCATEGORY"
	CodeUnknownUnderwriter = "UNKNOWN_UNDERWRITER"
	CodeRateNotFound       = "RATE_NOT_FOUND"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeRiskDeclined       = "RISK_DECLINED"
	CodeUnderwriterTimeout = "UNDERWRITER_TIMEOUT"
	CodeNoQuotesAvailable  = "NO_QUOTES_AVAILABLE"
	CodeCanceled           = "CANCELED"
	CodeInternal           = "INTERNAL"
)

// ErrorCode maps err onto its stable wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownSubcategory):
		return CodeUnknownSubcategory
	case errors.Is(err, ErrUnknownUnderwriter):
		return CodeUnknownUnderwriter
	case errors.Is(err, ErrRateNotFound):
		return CodeRateNotFound
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrRiskDeclined):
		return CodeRiskDeclined
	case errors.Is(err, ErrUnderwriterTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeUnderwriterTimeout
	case errors.Is(err, ErrNoQuotesAvailable):
		return CodeNoQuotesAvailable
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	default:
		return CodeInternal
	}
}
