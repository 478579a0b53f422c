package integration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

var (
	// Platform errors
	ErrPlatformNotConfigured   = errors.New("integration: platform not configured")
	ErrPlatformNotEligible     = errors.New("integration: platform not eligible")
	ErrPlatformUnavailable     = errors.New("integration: platform temporarily unavailable")
	ErrPlatformRequestFailed   = errors.New("integration: platform request failed")
	ErrPlatformInvalidResponse = errors.New("integration: invalid platform response")
	ErrPlatformAuthFailed      = errors.New("integration: platform authentication failed")
	ErrPlatformRateLimited     = errors.New("integration: platform rate limited")
	ErrInvalidSignature        = errors.New("integration: invalid webhook signature")
	ErrRemoteNotFound          = errors.New("integration: remote resource not found")
	ErrUnsupportedKind         = errors.New("integration: entity kind not supported by platform")

	// Reconciliation errors
	ErrEntityNotDeleted  = errors.New("integration: entity still exists")
	ErrMissingExternalID = errors.New("integration: no external id registered")
	ErrInvalidPayload    = errors.New("integration: invalid inbound payload")
)

// PlatformError carries the structured detail of a failed platform call
type PlatformError struct {
	Platform   PlatformCode
	Operation  string
	StatusCode int
	Code       string // platform error code, when the body has one
	Message    string
	Detail     string // raw (truncated) response body
}

// Error implements the error interface
func (e *PlatformError) Error() string {
	msg := fmt.Sprintf("integration: %s %s failed: HTTP %d", e.Platform, e.Operation, e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Unwrap maps the status code onto the sentinel errors
func (e *PlatformError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone:
		return ErrRemoteNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrPlatformRateLimited
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return ErrPlatformAuthFailed
	case e.StatusCode >= 500:
		return ErrPlatformUnavailable
	default:
		return ErrPlatformRequestFailed
	}
}

// Transient reports whether repeating the call may succeed
func (e *PlatformError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// NotFound reports whether the remote resource does not exist
func (e *PlatformError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// IsTransient classifies an error from a platform call: 429, 5xx and network
// failures (reset, timeout, DNS) are transient; everything else is permanent.
// Cancellation of the caller's context is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	if errors.Is(err, ErrPlatformUnavailable) || errors.Is(err, ErrPlatformRateLimited) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsNotFound reports whether err means the remote resource does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRemoteNotFound)
}
