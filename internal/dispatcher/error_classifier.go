package dispatcher

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/local/cbzbinder/internal/imposition"
	"github.com/local/cbzbinder/internal/merge"
)

const (
	classFatal     = "fatal"
	classTransient = "transient"
	classUnknown   = "unknown"
)

// classify sorts a merge failure. Fatal failures go straight to the DLQ,
// everything else is retried until attempts run out.
func classify(err error) string {
	switch {
	case isFatalError(err):
		return classFatal
	case isTransientError(err):
		return classTransient
	default:
		return classUnknown
	}
}

// isTransientError checks if error is likely to go away on retry
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if isTimeoutError(err) {
		return true
	}

	// Another run holds the output
	if errors.Is(err, merge.ErrOutputLocked) {
		return true
	}

	var statusErr *merge.HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status >= 500 || statusErr.Status == http.StatusTooManyRequests || statusErr.Status == http.StatusRequestTimeout
	}

	// Network errors (connection issues, throttling)
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "slowdown") ||
		strings.Contains(errStr, "eof")
}

// isFatalError checks if error is fatal and should not be retried
func isFatalError(err error) bool {
	if err == nil {
		return false
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return true
	}

	// The pages themselves cannot be laid out
	if errors.Is(err, imposition.ErrBrokenSpread) ||
		errors.Is(err, imposition.ErrUnsplitSpread) ||
		errors.Is(err, imposition.ErrInvariant) ||
		errors.Is(err, imposition.ErrUnknownPage) {
		return true
	}

	if errors.Is(err, merge.ErrNoSources) || errors.Is(err, merge.ErrNoPages) ||
		errors.Is(err, zip.ErrFormat) || errors.Is(err, os.ErrNotExist) {
		return true
	}

	// HTTP 4xx errors (except 408, 429)
	var statusErr *merge.HTTPStatusError
	if errors.As(err, &statusErr) {
		if statusErr.Status >= 400 && statusErr.Status < 500 &&
			statusErr.Status != http.StatusTooManyRequests && statusErr.Status != http.StatusRequestTimeout {
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "nosuchkey") ||
		strings.Contains(errStr, "nosuchbucket") ||
		strings.Contains(errStr, "decryption failed") ||
		strings.Contains(errStr, "malformed")
}

// isTimeoutError checks if error is specifically a timeout
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded")
}
