package domain

import "errors"

var (
	ErrNotFound          = errString("not found")
	ErrInvalidTransition = errString("invalid scan status transition")
	ErrInvalidEmail      = errString("invalid email address")
	ErrQuotaExceeded     = errString("scan quota exceeded")
	ErrPipelineFault     = errString("scan pipeline fault")

	// Source adapter outcomes. Unavailable and NotFound are not scan errors.
	ErrSourceUnavailable = errString("source not configured")
	ErrSourceNotFound    = errString("source has no records")
	ErrSourceRateLimited = errString("source rate limited")
	ErrSourceTransient   = errString("source transient error")
)

type errString string

func (e errString) Error() string { return string(e) }

// Reasons recorded on SourceStatus.
const (
	ReasonNotConfigured = "not_configured"
	ReasonRateLimited   = "rate_limited"
	ReasonTransient     = "transient"
)

// SourceErrorReason maps an adapter error to the status reason. Anything not
// classified is treated as transient.
func SourceErrorReason(err error) string {
	switch {
	case errors.Is(err, ErrSourceUnavailable):
		return ReasonNotConfigured
	case errors.Is(err, ErrSourceRateLimited):
		return ReasonRateLimited
	default:
		return ReasonTransient
	}
}
