// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package verify coordinates address entry: debounced autocomplete, place
// resolution, ZIP-first narrowing and the reconciliation of typed addresses
// with the geocoder's answer.
package verify

import (
	"context"
	"errors"

	"github.com/jcodagnone/addrverify/address"
	"github.com/jcodagnone/addrverify/places"
)

// Provider is the external geocoding service. *places.Client and
// places.Unconfigured implement it.
type Provider interface {
	Search(ctx context.Context, query string, bias *places.LocationBias) ([]address.Prediction, error)
	Details(ctx context.Context, placeID string) (*address.PlaceDetail, error)
	Geocode(ctx context.Context, query string) (*address.PlaceDetail, error)
	Configured() bool
}

var (
	// ErrResolveFailed wraps every failure to turn a prediction or a query
	// into an address. The draft is never modified when it is returned.
	ErrResolveFailed = errors.New("could not resolve address")

	// ErrInvalidTransition is returned for an operation the current state
	// does not allow.
	ErrInvalidTransition = errors.New("operation not allowed in the current state")

	// ErrZipRequired is returned for street edits while a ZIP-first flow has
	// not confirmed its ZIP code.
	ErrZipRequired = errors.New("confirm the ZIP code before searching for the street")

	// ErrSuperseded is returned when the draft changed while a request was
	// in flight. The result of that request was discarded.
	ErrSuperseded = errors.New("address changed while the request was in flight")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("address flow is closed")
)
