// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package places talks to the external address provider: autocomplete
// search, place details and geocoding by text.
package places

import (
	"context"

	"github.com/jcodagnone/addrverify/address"
	"github.com/jcodagnone/addrverify/spatial"
)

// DefaultBiasRadius is the radius, in meters, of the circle used to bias
// searches around a confirmed ZIP code.
const DefaultBiasRadius = 10000

// LocationBias nudges autocomplete results towards an area. It is a hint,
// never a filter.
type LocationBias struct {
	PostalCode   string
	Center       *spatial.Point
	RadiusMeters float64
}

// contextKey is a type for context keys to avoid collisions.
type contextKey string

const sessionTokenKey contextKey = "sessionToken"

// WithSessionToken returns a context carrying an autocomplete session token.
// Searches and the details call that ends them share one token, so the
// provider bills them as a single session.
func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionTokenKey, token)
}

// SessionToken returns the session token carried by ctx, if any.
func SessionToken(ctx context.Context) string {
	token, _ := ctx.Value(sessionTokenKey).(string)

	return token
}

// Unconfigured is the provider used when no API key is available. Every call
// fails with ErrNotConfigured.
type Unconfigured struct{}

// Search implements verify.Provider.
func (Unconfigured) Search(context.Context, string, *LocationBias) ([]address.Prediction, error) {
	return nil, ErrNotConfigured
}

// Details implements verify.Provider.
func (Unconfigured) Details(context.Context, string) (*address.PlaceDetail, error) {
	return nil, ErrNotConfigured
}

// Geocode implements verify.Provider.
func (Unconfigured) Geocode(context.Context, string) (*address.PlaceDetail, error) {
	return nil, ErrNotConfigured
}

// Configured implements verify.Provider.
func (Unconfigured) Configured() bool { return false }
