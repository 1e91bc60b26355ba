// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package places

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type errorCheckTestCase struct {
	name string
	err  error
	want bool
}

func runErrorCheckTest(t *testing.T, tests []errorCheckTestCase, checkFunc func(error) bool) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkFunc(tt.err); got != tt.want {
				t.Errorf("checkFunc() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRateLimitError(t *testing.T) {
	tests := []errorCheckTestCase{
		{
			name: "rate limit error type",
			err:  &ProviderError{Type: ErrorTypeRateLimit, Message: "rate limit exceeded"},
			want: true,
		},
		{
			name: "error message contains rate limit",
			err:  errors.New("rate limit exceeded"),
			want: true,
		},
		{
			name: "error message contains 429",
			err:  errors.New("provider returned status 429"),
			want: true,
		},
		{
			name: "other error type",
			err:  &ProviderError{Type: ErrorTypeNotFound, Message: "not found"},
			want: false,
		},
		{
			name: "unrelated error",
			err:  errors.New("some other error"),
			want: false,
		},
	}

	runErrorCheckTest(t, tests, IsRateLimitError)
}

func TestIsQuotaExceededError(t *testing.T) {
	tests := []errorCheckTestCase{
		{
			name: "quota exceeded error type",
			err:  &ProviderError{Type: ErrorTypeQuotaExceeded, Message: "quota exceeded"},
			want: true,
		},
		{
			name: "error message contains over_query_limit",
			err:  errors.New("google maps status: OVER_QUERY_LIMIT"),
			want: true,
		},
		{
			name: "other error type",
			err:  &ProviderError{Type: ErrorTypeRateLimit, Message: "rate limit"},
			want: false,
		},
		{
			name: "unrelated error",
			err:  errors.New("some other error"),
			want: false,
		},
	}

	runErrorCheckTest(t, tests, IsQuotaExceededError)
}

func TestIsTimeoutError(t *testing.T) {
	tests := []errorCheckTestCase{
		{
			name: "timeout error type",
			err:  &ProviderError{Type: ErrorTypeTimeout, Message: "timeout"},
			want: true,
		},
		{
			name: "error message contains deadline exceeded",
			err:  errors.New("context deadline exceeded"),
			want: true,
		},
		{
			name: "other error type",
			err:  &ProviderError{Type: ErrorTypeNotFound, Message: "not found"},
			want: false,
		},
	}

	runErrorCheckTest(t, tests, IsTimeoutError)
}

func TestIsRetryable(t *testing.T) {
	tests := []errorCheckTestCase{
		{name: "nil", err: nil, want: false},
		{name: "not configured", err: ErrNotConfigured, want: false},
		{name: "wrapped not configured", err: fmt.Errorf("search: %w", ErrNotConfigured), want: false},
		{name: "denied", err: &ProviderError{Type: ErrorTypeDenied}, want: false},
		{name: "invalid request", err: &ProviderError{Type: ErrorTypeInvalidRequest}, want: false},
		{name: "timeout", err: &ProviderError{Type: ErrorTypeTimeout}, want: true},
		{name: "network", err: &ProviderError{Type: ErrorTypeNetworkError}, want: true},
		{name: "plain error", err: errors.New("connection reset"), want: true},
	}

	runErrorCheckTest(t, tests, IsRetryable)
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&ProviderError{Type: ErrorTypeTimeout, Message: "request timed out"}, "timeout"},
		{fmt.Errorf("search: %w", context.DeadlineExceeded), "timeout"},
		{&ProviderError{Type: ErrorTypeRateLimit, Message: "rate limited"}, "rate limit"},
		{&ProviderError{Type: ErrorTypeQuotaExceeded, Message: "OVER_QUERY_LIMIT"}, "quota exceeded"},
		{&ProviderError{Type: ErrorTypeNetworkError, Message: "server error (HTTP 503)"}, "error"},
	}

	for _, tt := range tests {
		if got := Reason(tt.err); got != tt.want {
			t.Errorf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantType   ErrorType
	}{
		{name: "429 too many requests", statusCode: 429, wantType: ErrorTypeRateLimit},
		{name: "403 forbidden", statusCode: 403, wantType: ErrorTypeQuotaExceeded},
		{name: "400 bad request", statusCode: 400, wantType: ErrorTypeInvalidRequest},
		{name: "404 not found", statusCode: 404, wantType: ErrorTypeNotFound},
		{name: "503 service unavailable", statusCode: 503, wantType: ErrorTypeNetworkError},
		{name: "502 bad gateway", statusCode: 502, wantType: ErrorTypeNetworkError},
		{name: "504 gateway timeout", statusCode: 504, wantType: ErrorTypeNetworkError},
		{name: "500 internal server error", statusCode: 500, wantType: ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyHTTPError(tt.statusCode, "")
			if got.Type != tt.wantType {
				t.Errorf("ClassifyHTTPError() type = %v, want %v", got.Type, tt.wantType)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   string
		wantNil  bool
		wantType ErrorType
	}{
		{status: "OK", wantNil: true},
		{status: "ZERO_RESULTS", wantNil: true},
		{status: "OVER_QUERY_LIMIT", wantType: ErrorTypeQuotaExceeded},
		{status: "OVER_DAILY_LIMIT", wantType: ErrorTypeQuotaExceeded},
		{status: "REQUEST_DENIED", wantType: ErrorTypeDenied},
		{status: "INVALID_REQUEST", wantType: ErrorTypeInvalidRequest},
		{status: "NOT_FOUND", wantType: ErrorTypeNotFound},
		{status: "UNKNOWN_ERROR", wantType: ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			got := ClassifyStatus(tt.status, "detail")
			if tt.wantNil {
				if got != nil {
					t.Errorf("ClassifyStatus(%q) = %v, want nil", tt.status, got)
				}

				return
			}

			if got == nil || got.Type != tt.wantType {
				t.Fatalf("ClassifyStatus(%q) = %v, want type %v", tt.status, got, tt.wantType)
			}

			if got.Err == nil || got.Err.Error() != "detail" {
				t.Errorf("ClassifyStatus(%q) lost the provider message", tt.status)
			}
		})
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	innerErr := errors.New("inner error")
	pErr := &ProviderError{
		Type:    ErrorTypeNotFound,
		Message: "place not found",
		Err:     innerErr,
	}

	if !errors.Is(pErr, innerErr) {
		t.Error("errors.Is should find wrapped error")
	}

	if got := pErr.Error(); got != "place not found: inner error" {
		t.Errorf("Error() = %q", got)
	}
}
