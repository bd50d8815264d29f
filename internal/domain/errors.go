package domain

import "errors"

// Source client failures.
var (
	ErrRateLimited = errors.New("source rate limited")
	ErrNotFound    = errors.New("source resource not found")
	ErrUnavailable = errors.New("source unavailable")
)

// Enrichment client failures.
var (
	ErrEnrichmentTimeout     = errors.New("enrichment timed out")
	ErrQuotaExceeded         = errors.New("enrichment quota exceeded")
	ErrEnrichmentUnavailable = errors.New("enrichment unavailable")
)

// Pipeline error taxonomy.
var (
	ErrTransientSource    = errors.New("transient source error")
	ErrSourceUnavailable  = errors.New("partition unavailable")
	ErrEnrichmentFailure  = errors.New("enrichment failure")
	ErrBudgetExhausted    = errors.New("enrichment budget exhausted")
	ErrMalformedItem      = errors.New("malformed item")
	ErrUnknownServiceType = errors.New("unknown service type")
	ErrInvalidProfile     = errors.New("invalid service profile")
)

// IsTransient reports whether a source error may succeed on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrTransientSource)
}
