// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package batch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jcodagnone/addrverify/address"
	"github.com/jcodagnone/addrverify/places"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type geocoder struct {
	unconfigured bool
	answers      map[string]*address.PlaceDetail
	errs         map[string]error
}

func (g *geocoder) Search(context.Context, string, *places.LocationBias) ([]address.Prediction, error) {
	return nil, errors.New("search must not be called in batch mode")
}

func (g *geocoder) Details(context.Context, string) (*address.PlaceDetail, error) {
	return nil, errors.New("details must not be called in batch mode")
}

func (g *geocoder) Geocode(_ context.Context, query string) (*address.PlaceDetail, error) {
	if err, ok := g.errs[query]; ok {
		return nil, err
	}

	if d, ok := g.answers[query]; ok {
		return d, nil
	}

	return nil, places.ErrNoResult
}

func (g *geocoder) Configured() bool { return !g.unconfigured }

func detail(street, city, zip string) *address.PlaceDetail {
	number, route, _ := strings.Cut(street, " ")

	return &address.PlaceDetail{
		Components: []address.Component{
			{LongName: number, ShortName: number, Types: []string{address.TypeStreetNumber}},
			{LongName: route, ShortName: route, Types: []string{address.TypeRoute}},
			{LongName: city, ShortName: city, Types: []string{address.TypeLocality}},
			{LongName: "Texas", ShortName: "TX", Types: []string{address.TypeAdminArea1}},
			{LongName: zip, ShortName: zip, Types: []string{address.TypePostalCode}},
			{LongName: "United States", ShortName: "US", Types: []string{address.TypeCountry}},
		},
		Geometry: &address.Geometry{Lat: 30.2672, Lng: -97.7431},
		PlaceID:  "place-" + zip,
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    address.StructuredAddress
		wantErr bool
	}{
		{
			name: "five columns",
			line: "123 Main St | Apt 4 | Austin | TX | 78701",
			want: address.StructuredAddress{Street: "123 Main St", Line2: "Apt 4", City: "Austin", State: "TX", ZipCode: "78701", Country: "US"},
		},
		{
			name: "empty line2",
			line: "123 Main St||Austin|TX|78701",
			want: address.StructuredAddress{Street: "123 Main St", City: "Austin", State: "TX", ZipCode: "78701", Country: "US"},
		},
		{
			name: "explicit country",
			line: "1 Elm St||Toronto|ON|78701|CA",
			want: address.StructuredAddress{Street: "1 Elm St", City: "Toronto", State: "ON", ZipCode: "78701", Country: "CA"},
		},
		{name: "too few", line: "123 Main St|Austin|TX", wantErr: true},
		{name: "too many", line: "a|b|c|d|e|f|g", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)

			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseLine() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse(t *testing.T) {
	input := `# street|line2|city|state|zip
123 Main St||Austin|TX|78701

500 Oak Ave|Unit 2|Dallas|TX|75201
`

	entries, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 2, entries[0].Line)
	assert.Equal(t, 4, entries[1].Line)
	assert.Equal(t, "Unit 2", entries[1].Address.Line2)

	_, err = Parse(strings.NewReader("123 Main St||Austin|TX|78701\nbroken line\n"))
	assert.ErrorContains(t, err, "line 2")
}

func batchInput(t *testing.T) []Entry {
	t.Helper()

	entries, err := Parse(strings.NewReader(strings.Join([]string{
		"123 Main St||Austin|TX|78701",
		"500 Oak Ave|Unit 2|Austin|TX|78702",
		"9 Nowhere Rd||Marfa|TX|79843",
		"1 Broken Rd||Austin|TX|7870",
		"77 Flaky Ln||Austin|TX|78703",
	}, "\n")))
	require.NoError(t, err)

	return entries
}

func batchGeocoder() *geocoder {
	return &geocoder{
		answers: map[string]*address.PlaceDetail{
			"123 Main St, Austin, TX 78701, US": detail("123 Main St", "Austin", "78701"),
			"500 Oak Ave, Austin, TX 78702, US": detail("500 Oak Ave", "Austin", "78704"),
		},
		errs: map[string]error{
			"77 Flaky Ln, Austin, TX 78703, US": &places.ProviderError{Type: places.ErrorTypeNetworkError, Message: "server error (HTTP 503)"},
		},
	}
}

func TestRun(t *testing.T) {
	tests := []struct {
		name     string
		policy   Policy
		oakZip   string
		oakMeth  address.Method
		expected Metrics
	}{
		{
			name:     "keep typed",
			policy:   KeepTyped,
			oakZip:   "78702",
			oakMeth:  address.MethodKeptOriginal,
			expected: Metrics{Total: 5, Geocoded: 1, KeptOriginal: 1, FailOpen: 1, Invalid: 1, Failed: 1},
		},
		{
			name:     "accept suggestions",
			policy:   AcceptSuggested,
			oakZip:   "78704",
			oakMeth:  address.MethodSuggestion,
			expected: Metrics{Total: 5, Geocoded: 1, Suggested: 1, FailOpen: 1, Invalid: 1, Failed: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				mu    sync.Mutex
				saved = map[int]address.Method{}
			)

			results, metrics, err := Run(context.Background(), batchGeocoder(), batchInput(t), Options{
				MaxProcs: 2,
				Policy:   tt.policy,
				OnResolved: func(e Entry, a address.StructuredAddress, m address.Method) {
					mu.Lock()
					defer mu.Unlock()

					assert.True(t, a.IsVerified)
					saved[e.Line] = m
				},
			})
			require.NoError(t, err)
			require.Len(t, results, 5)
			assert.Equal(t, tt.expected, metrics)

			assert.Equal(t, address.MethodGeocoded, results[0].Method)

			oak := results[1]
			assert.Equal(t, tt.oakMeth, oak.Method)
			assert.Equal(t, tt.oakZip, oak.Address.ZipCode)
			assert.Equal(t, "Unit 2", oak.Address.Line2)
			assert.Equal(t, []address.Field{address.FieldZipCode}, oak.Differences)

			assert.Equal(t, address.MethodFailOpen, results[2].Method)

			var verr *address.ValidationError
			assert.ErrorAs(t, results[3].Err, &verr)

			assert.True(t, places.IsRetryable(results[4].Err))
			assert.Empty(t, results[4].Method)

			assert.Equal(t, map[int]address.Method{
				1: address.MethodGeocoded,
				2: tt.oakMeth,
				3: address.MethodFailOpen,
			}, saved)
		})
	}
}

func TestRunUnconfigured(t *testing.T) {
	_, _, err := Run(context.Background(), &geocoder{unconfigured: true}, batchInput(t), Options{})
	assert.ErrorIs(t, err, places.ErrNotConfigured)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, metrics, err := Run(ctx, batchGeocoder(), batchInput(t), Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 5)
	assert.Equal(t, 5, metrics.Failed)
}

func TestMetrics(t *testing.T) {
	m := &Metrics{Total: 4, Geocoded: 2, FailOpen: 1, Failed: 1}
	m.Merge(&Metrics{Total: 1000, Suggested: 999, Invalid: 1}).Merge(nil)

	assert.Equal(t, Metrics{Total: 1004, Geocoded: 2, Suggested: 999, FailOpen: 1, Invalid: 1, Failed: 1}, *m)
	assert.Equal(t, 1002, m.Verified())
	assert.Equal(t,
		"1,004 addresses, 1,002 verified (99.8%): 2 geocoded, 999 suggestions taken, 0 kept as typed, 1 without geocoding result; 1 invalid, 1 failed",
		m.String())
}
