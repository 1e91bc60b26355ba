// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jcodagnone/addrverify/address"
	"github.com/jcodagnone/addrverify/places"
)

// DefaultResolveTimeout bounds details and geocode requests.
const DefaultResolveTimeout = 10 * time.Second

// Resolver turns a prediction id, or a typed address, into a
// StructuredAddress. A result is either complete or an error; nothing is
// partially applied.
type Resolver struct {
	provider Provider
	timeout  time.Duration
}

// NewResolver returns a Resolver bounded by timeout, or by
// DefaultResolveTimeout when timeout is zero.
func NewResolver(provider Provider, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}

	return &Resolver{provider: provider, timeout: timeout}
}

// Resolve fetches the details of a prediction and parses them. Failures wrap
// ErrResolveFailed together with the provider error.
func (r *Resolver) Resolve(ctx context.Context, predictionID string) (address.StructuredAddress, error) {
	if predictionID == "" {
		return address.StructuredAddress{}, fmt.Errorf("%w: empty prediction id", ErrResolveFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	detail, err := r.provider.Details(ctx, predictionID)
	if err != nil {
		return address.StructuredAddress{}, fmt.Errorf("%w: %w", ErrResolveFailed, err)
	}

	return parse(detail)
}

// Geocode resolves a free-text address. A provider answer with no result is
// reported as found=false with a nil error.
func (r *Resolver) Geocode(ctx context.Context, query string) (address.StructuredAddress, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	detail, err := r.provider.Geocode(ctx, query)
	if errors.Is(err, places.ErrNoResult) {
		return address.StructuredAddress{}, false, nil
	}

	if err != nil {
		return address.StructuredAddress{}, false, fmt.Errorf("%w: %w", ErrResolveFailed, err)
	}

	a, err := parse(detail)
	if err != nil {
		return address.StructuredAddress{}, false, err
	}

	return a, true, nil
}

func parse(detail *address.PlaceDetail) (address.StructuredAddress, error) {
	if detail == nil || len(detail.Components) == 0 {
		return address.StructuredAddress{}, fmt.Errorf("%w: place has no address components", ErrResolveFailed)
	}

	return address.ParseDetail(*detail), nil
}
