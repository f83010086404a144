package extraction

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind is the closed set of extraction failure classes. Every failure maps to
// exactly one kind; classification is the single place string matching on the
// collaborator's failure reason is allowed.
type Kind string

const (
	KindFileTooLarge       Kind = "file_too_large"
	KindUnsupportedFormat  Kind = "unsupported_format"
	KindCorruptFile        Kind = "corrupt_file"
	KindNetworkError       Kind = "network_error"
	KindRateLimited        Kind = "rate_limited"
	KindServiceUnavailable Kind = "service_unavailable"
	KindAuthExpired        Kind = "auth_expired"
	KindNoDataExtracted    Kind = "no_data_extracted"
	KindUnknown            Kind = "unknown"
)

// Error wraps an extraction failure with its classified kind and the stage
// the pipeline had reached.
type Error struct {
	Kind       Kind
	Stage      Stage
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("extraction %s at %s: %s: %v", e.Kind, e.Stage, e.Message, e.Underlying)
	}
	return fmt.Sprintf("extraction %s at %s: %s", e.Kind, e.Stage, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// Retryable reports whether the failure carries a retry affordance. Every
// kind does except AuthExpired, which is fatal for the session and directs
// the user to re-authenticate.
func (e *Error) Retryable() bool {
	return e.Kind != KindAuthExpired
}

// KindOf extracts the classified kind, defaulting to KindUnknown.
func KindOf(err error) Kind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindUnknown
}

// ServiceError is a non-2xx or explicit-failure response from the extraction
// collaborator, kept raw until classification.
type ServiceError struct {
	StatusCode int
	Reason     string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("extraction service failure (status %d): %s", e.StatusCode, e.Reason)
}

// classify maps a raw failure from the network/service layer onto the closed
// kind set. It is total: anything unrecognized becomes KindUnknown.
func classify(err error) Kind {
	var se *ServiceError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == 401 || se.StatusCode == 403:
			return KindAuthExpired
		case se.StatusCode == 429:
			return KindRateLimited
		case se.StatusCode >= 500:
			return KindServiceUnavailable
		}
		reason := strings.ToLower(se.Reason)
		switch {
		case strings.Contains(reason, "rate limit"), strings.Contains(reason, "too many requests"):
			return KindRateLimited
		case strings.Contains(reason, "unavailable"), strings.Contains(reason, "overloaded"), strings.Contains(reason, "maintenance"):
			return KindServiceUnavailable
		case strings.Contains(reason, "unauthorized"), strings.Contains(reason, "expired"), strings.Contains(reason, "invalid token"):
			return KindAuthExpired
		case strings.Contains(reason, "no data"), strings.Contains(reason, "nothing"), strings.Contains(reason, "not extract"), strings.Contains(reason, "unreadable"):
			return KindNoDataExtracted
		}
		return KindUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetworkError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetworkError
	}
	if strings.Contains(strings.ToLower(err.Error()), "connection refused") {
		return KindNetworkError
	}
	return KindUnknown
}
