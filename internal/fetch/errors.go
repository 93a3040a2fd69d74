package fetch

import (
	"fmt"
)

// ErrorKind classifies a transport-level fetch failure.
type ErrorKind string

const (
	KindTimeout           ErrorKind = "timeout"
	KindConnectionRefused ErrorKind = "connection_refused"
	KindDNSFailure        ErrorKind = "dns_failure"
	KindHTTPStatus        ErrorKind = "http_status"
	KindTooLarge          ErrorKind = "too_large"
	KindCancelled         ErrorKind = "cancelled"
	KindRobotsBlocked     ErrorKind = "robots_blocked"
	// KindNetwork covers transport failures that fit none of the
	// specific kinds.
	KindNetwork ErrorKind = "network"
)

// Error is a classified fetch failure.
type Error struct {
	Kind       ErrorKind
	URL        string
	StatusCode int // set only for KindHTTPStatus
	cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	default:
		if e.cause != nil {
			return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.cause)
		}
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

// Unwrap returns the underlying transport error, if any.
func (e *Error) Unwrap() error { return e.cause }

// Reason is the short human-readable failure reason surfaced to operators.
func (e *Error) Reason() string {
	switch e.Kind {
	case KindTimeout:
		return "Timeout"
	case KindConnectionRefused:
		return "Connection refused"
	case KindDNSFailure:
		return "DNS failure"
	case KindHTTPStatus:
		return fmt.Sprintf("HTTP status %d", e.StatusCode)
	case KindTooLarge:
		return "Response too large"
	case KindCancelled:
		return "Cancelled"
	case KindRobotsBlocked:
		return "Blocked by robots.txt"
	default:
		return "Network error"
	}
}
