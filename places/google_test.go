// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package places

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jcodagnone/addrverify/address"
	"github.com/jcodagnone/addrverify/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const austinPlace = `{
	"address_components": [
		{"long_name": "123", "short_name": "123", "types": ["street_number"]},
		{"long_name": "Main Street", "short_name": "Main St", "types": ["route"]},
		{"long_name": "Austin", "short_name": "Austin", "types": ["locality", "political"]},
		{"long_name": "Travis County", "short_name": "Travis County", "types": ["administrative_area_level_2", "political"]},
		{"long_name": "Texas", "short_name": "TX", "types": ["administrative_area_level_1", "political"]},
		{"long_name": "United States", "short_name": "US", "types": ["country", "political"]},
		{"long_name": "78701", "short_name": "78701", "types": ["postal_code"]}
	],
	"formatted_address": "123 Main St, Austin, TX 78701, USA",
	"geometry": {"location": {"lat": 30.2672, "lng": -97.7431}, "location_type": "ROOFTOP"},
	"place_id": "ChIJaustin"
}`

type recordedRequest struct {
	path  string
	query url.Values
	agent string
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *[]recordedRequest) {
	t.Helper()

	var requests []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, recordedRequest{path: r.URL.Path, query: r.URL.Query(), agent: r.UserAgent()})
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.BaseURL = srv.URL + "/"
	cfg.UserAgent = "addrverify/test"
	cfg.RequestsPerSecond = 0

	client, err := New(cfg)
	require.NoError(t, err)

	return client, &requests
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(DefaultConfig())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSearch(t *testing.T) {
	client, requests := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"status": "OK",
			"predictions": [
				{"description": "123 Main St, Austin, TX, USA", "place_id": "ChIJ1",
				 "structured_formatting": {"main_text": "123 Main St", "secondary_text": "Austin, TX, USA"}},
				{"description": "123 Main Ave, Austin, TX, USA", "place_id": "ChIJ2"},
				{"description": "no id"}
			]
		}`))
	})

	ctx := WithSessionToken(context.Background(), "session-1")
	bias := &LocationBias{PostalCode: "78701", Center: &spatial.Point{Lat: 30.27, Lng: -97.74}}

	got, err := client.Search(ctx, "123 Main", bias)
	require.NoError(t, err)

	want := []address.Prediction{
		{ID: "ChIJ1", PrimaryText: "123 Main St", SecondaryText: "Austin, TX, USA"},
		{ID: "ChIJ2", PrimaryText: "123 Main Ave, Austin, TX, USA"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Search() mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, autocompletePath, req.path)
	assert.Equal(t, "123 Main", req.query.Get("input"))
	assert.Equal(t, "test-key", req.query.Get("key"))
	assert.Equal(t, "country:us", req.query.Get("components"))
	assert.Equal(t, "30.270000,-97.740000", req.query.Get("location"))
	assert.Equal(t, "10000", req.query.Get("radius"))
	assert.Equal(t, "session-1", req.query.Get("sessiontoken"))
	assert.Equal(t, "addrverify/test", req.agent)
}

func TestSearchWithoutBias(t *testing.T) {
	client, requests := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ZERO_RESULTS", "predictions": []}`))
	})

	got, err := client.Search(context.Background(), "zzz", &LocationBias{PostalCode: "78701"})
	require.NoError(t, err)
	assert.Empty(t, got)

	req := (*requests)[0]
	assert.Empty(t, req.query.Get("location"))
	assert.Empty(t, req.query.Get("sessiontoken"))
}

func TestDetails(t *testing.T) {
	client, requests := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "OK", "result": ` + austinPlace + `}`))
	})

	ctx := WithSessionToken(context.Background(), "session-1")

	detail, err := client.Details(ctx, "ChIJaustin")
	require.NoError(t, err)

	got := address.ParseDetail(*detail)
	assert.Equal(t, "123 Main Street", got.Street)
	assert.Equal(t, "Austin", got.City)
	assert.Equal(t, "TX", got.State)
	assert.Equal(t, "78701", got.ZipCode)
	assert.Equal(t, "US", got.Country)
	require.NotNil(t, got.Latitude)
	assert.InDelta(t, 30.2672, *got.Latitude, 1e-9)
	require.NotNil(t, got.PlaceID)
	assert.Equal(t, "ChIJaustin", *got.PlaceID)

	req := (*requests)[0]
	assert.Equal(t, detailsPath, req.path)
	assert.Equal(t, "ChIJaustin", req.query.Get("place_id"))
	assert.Equal(t, detailFields, req.query.Get("fields"))
	assert.Equal(t, "session-1", req.query.Get("sessiontoken"))
}

func TestDetailsFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType ErrorType
		wantErr  error
	}{
		{name: "not found", status: http.StatusOK, body: `{"status": "NOT_FOUND"}`, wantType: ErrorTypeNotFound},
		{name: "denied", status: http.StatusOK, body: `{"status": "REQUEST_DENIED", "error_message": "bad key"}`, wantType: ErrorTypeDenied},
		{name: "missing result", status: http.StatusOK, body: `{"status": "OK"}`, wantType: ErrorTypeMalformed},
		{name: "malformed json", status: http.StatusOK, body: `{"status":`, wantType: ErrorTypeMalformed},
		{name: "http 429", status: http.StatusTooManyRequests, body: ``, wantType: ErrorTypeRateLimit},
		{name: "http 503", status: http.StatusServiceUnavailable, body: ``, wantType: ErrorTypeNetworkError},
		{name: "zero results", status: http.StatusOK, body: `{"status": "ZERO_RESULTS"}`, wantErr: ErrNoResult},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			detail, err := client.Details(context.Background(), "ChIJx")
			require.Error(t, err)
			assert.Nil(t, detail)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)

				return
			}

			var pErr *ProviderError
			require.ErrorAs(t, err, &pErr)
			assert.Equal(t, tt.wantType, pErr.Type)
		})
	}
}

func TestDetailsEmptyPlaceID(t *testing.T) {
	client, requests := newTestClient(t, func(http.ResponseWriter, *http.Request) {})

	_, err := client.Details(context.Background(), "")
	require.Error(t, err)
	assert.Empty(t, *requests)
}

func TestGeocode(t *testing.T) {
	client, requests := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "OK", "results": [` + austinPlace + `]}`))
	})

	ctx := WithSessionToken(context.Background(), "session-1")

	detail, err := client.Geocode(ctx, "123 Main St, Austin, TX 78701")
	require.NoError(t, err)
	assert.Equal(t, "ChIJaustin", detail.PlaceID)
	assert.Len(t, detail.Components, 7)

	req := (*requests)[0]
	assert.Equal(t, geocodePath, req.path)
	assert.Equal(t, "123 Main St, Austin, TX 78701", req.query.Get("address"))
	assert.Equal(t, "us", req.query.Get("region"))
	assert.Empty(t, req.query.Get("sessiontoken"), "geocoding is not part of an autocomplete session")
}

func TestGeocodeNoResult(t *testing.T) {
	for _, body := range []string{
		`{"status": "ZERO_RESULTS", "results": []}`,
		`{"status": "OK", "results": []}`,
	} {
		client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		})

		_, err := client.Geocode(context.Background(), "nowhere")
		assert.ErrorIs(t, err, ErrNoResult, body)
	}
}

func TestGeocodeTimeout(t *testing.T) {
	release := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Geocode(ctx, "slow")
	require.Error(t, err)
	assert.True(t, IsTimeoutError(err), "got %v", err)
}

func TestTraceRedactsKey(t *testing.T) {
	var trace bytes.Buffer

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ZERO_RESULTS"}`))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.APIKey = "very-secret"
	cfg.BaseURL = srv.URL
	cfg.TraceWriter = &trace

	client, err := New(cfg)
	require.NoError(t, err)

	_, err = client.Geocode(context.Background(), "x")
	require.True(t, errors.Is(err, ErrNoResult))

	assert.NotContains(t, trace.String(), "very-secret")
	assert.Contains(t, trace.String(), "key=REDACTED")
}

func TestUnconfigured(t *testing.T) {
	var p Unconfigured

	assert.False(t, p.Configured())

	_, err := p.Search(context.Background(), "123 Main", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = p.Details(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = p.Geocode(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSessionToken(t *testing.T) {
	assert.Empty(t, SessionToken(context.Background()))
	assert.Equal(t, "abc", SessionToken(WithSessionToken(context.Background(), "abc")))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, "from-env")
	t.Setenv(EnvBaseURL, "http://localhost:9999")

	cfg := ConfigFromEnv()
	assert.True(t, cfg.Configured())
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, "http://localhost:9999", cfg.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Timeout)

	t.Setenv(EnvAPIKey, "")
	assert.False(t, ConfigFromEnv().Configured())
}
