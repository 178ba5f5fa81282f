package domain

import "errors"

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotConnected          = errors.New("connection has no identity")
	ErrMembershipUnavailable = errors.New("membership check unavailable")
	ErrNotFound              = errors.New("not found")
	ErrCallIDConflict        = errors.New("call id already active")
	ErrTransportFailure      = errors.New("transport failure")
	ErrInvalidPayload        = errors.New("invalid payload")
	ErrRateLimited           = errors.New("rate limited")
)

// ErrorCode maps an error to the code carried by the outbound error event.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrMembershipUnavailable):
		return "unavailable"
	case errors.Is(err, ErrCallIDConflict):
		return "call_id_conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidPayload):
		return "bad_payload"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTransportFailure):
		return "transport_failure"
	}
	return "internal"
}
