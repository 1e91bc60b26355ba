// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package places

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotConfigured is returned by every provider call when no API key
	// was supplied. It is not retryable.
	ErrNotConfigured = errors.New("address lookup is not configured: missing Google Maps API key")

	// ErrNoResult is returned when the provider answers but finds nothing.
	ErrNoResult = errors.New("no results found")
)

// ProviderError represents a failure talking to the geocoding provider.
type ProviderError struct {
	Type    ErrorType
	Message string
	Err     error
}

// ErrorType classifies provider errors.
type ErrorType int

const (
	// ErrorTypeUnknown unknown error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeRateLimit rate limit reached.
	ErrorTypeRateLimit
	// ErrorTypeQuotaExceeded quota exceeded.
	ErrorTypeQuotaExceeded
	// ErrorTypeTimeout connection or request timeout.
	ErrorTypeTimeout
	// ErrorTypeNotFound place not found.
	ErrorTypeNotFound
	// ErrorTypeInvalidRequest invalid request.
	ErrorTypeInvalidRequest
	// ErrorTypeNetworkError network error.
	ErrorTypeNetworkError
	// ErrorTypeDenied the API key was rejected.
	ErrorTypeDenied
	// ErrorTypeMalformed the response could not be decoded.
	ErrorTypeMalformed
)

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRateLimitError checks whether the error is due to rate limiting.
func IsRateLimitError(err error) bool {
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return pErr.Type == ErrorTypeRateLimit
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429")
}

// IsQuotaExceededError checks whether the error is due to an exhausted quota.
func IsQuotaExceededError(err error) bool {
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return pErr.Type == ErrorTypeQuotaExceeded
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "over_query_limit") ||
		strings.Contains(errStr, "quota exceeded")
}

// IsTimeoutError checks whether the error is due to a timeout.
func IsTimeoutError(err error) bool {
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return pErr.Type == ErrorTypeTimeout
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// Reason names the class of a provider failure for log lines: "timeout",
// "rate limit", "quota exceeded" or "error".
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case IsTimeoutError(err):
		return "timeout"
	case IsRateLimitError(err):
		return "rate limit"
	case IsQuotaExceededError(err):
		return "quota exceeded"
	default:
		return "error"
	}
}

// IsRetryable reports whether the user may simply try again later.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrNotConfigured) {
		return false
	}

	var pErr *ProviderError
	if errors.As(err, &pErr) {
		switch pErr.Type {
		case ErrorTypeDenied, ErrorTypeInvalidRequest:
			return false
		}
	}

	return true
}

// ClassifyHTTPError classifies an HTTP status code into a provider error.
func ClassifyHTTPError(statusCode int, _ string) *ProviderError {
	switch statusCode {
	case http.StatusTooManyRequests: // 429
		return &ProviderError{
			Type:    ErrorTypeRateLimit,
			Message: "rate limit reached",
		}
	case http.StatusForbidden: // 403
		return &ProviderError{
			Type:    ErrorTypeQuotaExceeded,
			Message: "quota exceeded or access denied",
		}
	case http.StatusBadRequest: // 400
		return &ProviderError{
			Type:    ErrorTypeInvalidRequest,
			Message: "invalid request",
		}
	case http.StatusNotFound: // 404
		return &ProviderError{
			Type:    ErrorTypeNotFound,
			Message: "place not found",
		}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &ProviderError{
			Type:    ErrorTypeNetworkError,
			Message: fmt.Sprintf("service unavailable (status %d)", statusCode),
		}
	default:
		return &ProviderError{
			Type:    ErrorTypeUnknown,
			Message: fmt.Sprintf("HTTP error %d", statusCode),
		}
	}
}

// ClassifyStatus classifies the status field of a Google Maps response. OK
// and ZERO_RESULTS are not errors and return nil.
func ClassifyStatus(status, message string) *ProviderError {
	var e *ProviderError

	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	case "OVER_QUERY_LIMIT":
		e = &ProviderError{Type: ErrorTypeQuotaExceeded, Message: "google maps status: OVER_QUERY_LIMIT"}
	case "OVER_DAILY_LIMIT":
		e = &ProviderError{Type: ErrorTypeQuotaExceeded, Message: "google maps status: OVER_DAILY_LIMIT"}
	case "REQUEST_DENIED":
		e = &ProviderError{Type: ErrorTypeDenied, Message: "google maps status: REQUEST_DENIED"}
	case "INVALID_REQUEST":
		e = &ProviderError{Type: ErrorTypeInvalidRequest, Message: "google maps status: INVALID_REQUEST"}
	case "NOT_FOUND":
		e = &ProviderError{Type: ErrorTypeNotFound, Message: "google maps status: NOT_FOUND"}
	default:
		e = &ProviderError{Type: ErrorTypeUnknown, Message: "google maps status: " + status}
	}

	if message != "" {
		e.Err = errors.New(message)
	}

	return e
}
