// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"context"
	"sync"
	"time"

	"github.com/jcodagnone/addrverify/address"
	"github.com/jcodagnone/addrverify/places"
)

type searchCall struct {
	query   string
	bias    *places.LocationBias
	session string
}

// fakeProvider records calls and answers from canned data.
type fakeProvider struct {
	unconfigured bool

	mu       sync.Mutex
	searches []searchCall
	details  []string
	geocodes []string

	searchFn   func(ctx context.Context, query string) ([]address.Prediction, error)
	places     map[string]*address.PlaceDetail
	detailsErr error
	// detailsGate, when set, blocks Details until it is closed.
	detailsGate chan struct{}
	geocoded    map[string]*address.PlaceDetail
	geocodeErr  error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		places:   map[string]*address.PlaceDetail{},
		geocoded: map[string]*address.PlaceDetail{},
	}
}

func (p *fakeProvider) Search(ctx context.Context, query string, bias *places.LocationBias) ([]address.Prediction, error) {
	p.mu.Lock()
	p.searches = append(p.searches, searchCall{query: query, bias: bias, session: places.SessionToken(ctx)})
	fn := p.searchFn
	p.mu.Unlock()

	if fn == nil {
		return []address.Prediction{{ID: "place-" + query, PrimaryText: query}}, nil
	}

	return fn(ctx, query)
}

func (p *fakeProvider) Details(ctx context.Context, placeID string) (*address.PlaceDetail, error) {
	p.mu.Lock()
	p.details = append(p.details, placeID)
	gate := p.detailsGate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if p.detailsErr != nil {
		return nil, p.detailsErr
	}

	d, ok := p.places[placeID]
	if !ok {
		return nil, &places.ProviderError{Type: places.ErrorTypeNotFound, Message: "google maps status: NOT_FOUND"}
	}

	return d, nil
}

func (p *fakeProvider) Geocode(_ context.Context, query string) (*address.PlaceDetail, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.geocodes = append(p.geocodes, query)

	if p.geocodeErr != nil {
		return nil, p.geocodeErr
	}

	d, ok := p.geocoded[query]
	if !ok {
		return nil, places.ErrNoResult
	}

	return d, nil
}

func (p *fakeProvider) Configured() bool { return !p.unconfigured }

func (p *fakeProvider) searchCalls() []searchCall {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]searchCall(nil), p.searches...)
}

func (p *fakeProvider) geocodeCalls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.geocodes...)
}

func (p *fakeProvider) detailsCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.details)
}

func fastSearch() SearchOptions {
	return SearchOptions{Debounce: 20 * time.Millisecond, MinLength: 3, Timeout: time.Second}
}

// austin returns the place detail of 123 Main St, Austin, TX with the given
// ZIP code.
func austin(placeID, zip string) *address.PlaceDetail {
	return &address.PlaceDetail{
		Components: []address.Component{
			{LongName: "123", ShortName: "123", Types: []string{address.TypeStreetNumber}},
			{LongName: "Main St", ShortName: "Main St", Types: []string{address.TypeRoute}},
			{LongName: "Austin", ShortName: "Austin", Types: []string{address.TypeLocality, "political"}},
			{LongName: "Texas", ShortName: "TX", Types: []string{address.TypeAdminArea1, "political"}},
			{LongName: zip, ShortName: zip, Types: []string{address.TypePostalCode}},
			{LongName: "United States", ShortName: "US", Types: []string{address.TypeCountry, "political"}},
		},
		Geometry:         &address.Geometry{Lat: 30.2672, Lng: -97.7431},
		PlaceID:          placeID,
		FormattedAddress: "123 Main St, Austin, TX " + zip + ", USA",
	}
}
