package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
)

// Kind names the reason a document could not be loaded. Its value doubles
// as the metric label.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindConnection  Kind = "connection"
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindRateLimited Kind = "rate_limited"
	KindUnavailable Kind = "unavailable"
)

// Retryable reports whether fetching the same URL again could succeed.
// Filesystem failures never are.
func (k Kind) Retryable() bool {
	switch k {
	case KindTimeout, KindConnection, KindRateLimited, KindUnavailable:
		return true
	}
	return false
}

// LoadError is a classified failure to read a file or fetch a URL.
type LoadError struct {
	Kind Kind
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ErrorTypeLabel returns the Kind of err as a string, "other" for
// unclassified errors and "unknown" for nil.
func ErrorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return string(loadErr.Kind)
	}
	return "other"
}

func retryable(err error) bool {
	var loadErr *LoadError
	return errors.As(err, &loadErr) && loadErr.Kind.Retryable()
}

func classifyFileError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return &LoadError{Kind: KindNotFound, Err: err}
	case errors.Is(err, fs.ErrPermission):
		return &LoadError{Kind: KindForbidden, Err: err}
	}
	return err
}

// classifyError maps a fetch failure to a Kind. The HTTP status wins over
// the transport error when both are present.
func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if statusCode >= http.StatusBadRequest {
		if err == nil {
			err = fmt.Errorf("http status %d", statusCode)
		}
		switch {
		case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
			return &LoadError{Kind: KindForbidden, Err: err}
		case statusCode == http.StatusNotFound, statusCode == http.StatusGone:
			return &LoadError{Kind: KindNotFound, Err: err}
		case statusCode == http.StatusTooManyRequests:
			return &LoadError{Kind: KindRateLimited, Err: err}
		case statusCode >= http.StatusInternalServerError:
			return &LoadError{Kind: KindUnavailable, Err: err}
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &LoadError{Kind: KindTimeout, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &LoadError{Kind: KindConnection, Err: err}
	}
	return err
}
