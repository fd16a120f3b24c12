package generate

import (
	"errors"
	"strings"
)

// retryable reports whether an error is worth retrying. Classified errors
// use the sentinel; unclassified errors fall back to message inspection for
// providers that surface raw transport failures.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrModelRejected) || errors.Is(err, ErrInvalidParameter) {
		return false
	}
	if errors.Is(err, ErrModelUnavailable) {
		return true
	}

	msg := err.Error()
	if containsAny(msg, "rate limit", "quota exceeded", "429") {
		return true
	}
	if containsAny(msg, "500", "502", "503", "504", "unavailable") {
		return true
	}
	if containsAny(msg, "connection reset", "timeout", "temporary") {
		return true
	}
	return false
}

func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
