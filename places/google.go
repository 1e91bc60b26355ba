// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jcodagnone/addrverify/address"
	"github.com/jcodagnone/addrverify/utils/httputils"
	"golang.org/x/time/rate"
)

const (
	autocompletePath = "/maps/api/place/autocomplete/json"
	detailsPath      = "/maps/api/place/details/json"
	geocodePath      = "/maps/api/geocode/json"

	detailFields = "address_components,geometry,formatted_address,place_id"
)

// Client uses the Google Places and Geocoding web services.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a Google client. It fails with ErrNotConfigured when cfg has
// no API key.
func New(cfg Config) (*Client, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}

	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}

	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond)))
	}

	transport := &http.Transport{
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       30 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
	}

	loggingTransport := httputils.NewLoggingRoundTripper(transport, cfg.TraceWriter, cfg.TraceBody, "key")

	headerTransport := &httputils.AppendRequestHeadersRoundTripper{
		Headers: map[string]string{
			"User-Agent": cfg.UserAgent,
			"Accept":     "application/json",
		},
		Transport: loggingTransport,
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &httputils.RateLimitRoundTripper{
				Limiter:   limiter,
				Transport: headerTransport,
			},
		},
	}, nil
}

// Configured implements verify.Provider.
func (c *Client) Configured() bool { return true }

type googleGeometry struct {
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	LocationType string `json:"location_type"`
}

type googlePlace struct {
	AddressComponents []address.Component `json:"address_components"`
	FormattedAddress  string              `json:"formatted_address"`
	Geometry          *googleGeometry     `json:"geometry"`
	PlaceID           string              `json:"place_id"`
}

func (p *googlePlace) detail() *address.PlaceDetail {
	d := &address.PlaceDetail{
		Components:       p.AddressComponents,
		PlaceID:          p.PlaceID,
		FormattedAddress: p.FormattedAddress,
	}

	if p.Geometry != nil {
		d.Geometry = &address.Geometry{
			Lat: p.Geometry.Location.Lat,
			Lng: p.Geometry.Location.Lng,
		}
	}

	return d
}

type autocompleteResponse struct {
	Predictions []struct {
		Description          string `json:"description"`
		PlaceID              string `json:"place_id"`
		StructuredFormatting struct {
			MainText      string `json:"main_text"`
			SecondaryText string `json:"secondary_text"`
		} `json:"structured_formatting"`
	} `json:"predictions"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

type detailsResponse struct {
	Result       *googlePlace `json:"result"`
	Status       string       `json:"status"`
	ErrorMessage string       `json:"error_message"`
}

type geocodeResponse struct {
	Results      []googlePlace `json:"results"`
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message"`
}

// Search returns autocomplete predictions for a partial street address.
func (c *Client) Search(ctx context.Context, query string, bias *LocationBias) ([]address.Prediction, error) {
	params := url.Values{}
	params.Set("input", query)
	params.Set("types", "address")

	if c.cfg.Country != "" {
		params.Set("components", "country:"+strings.ToLower(c.cfg.Country))
	}

	if bias != nil && bias.Center != nil {
		radius := bias.RadiusMeters
		if radius <= 0 {
			radius = DefaultBiasRadius
		}

		params.Set("location", fmt.Sprintf("%f,%f", bias.Center.Lat, bias.Center.Lng))
		params.Set("radius", strconv.FormatFloat(radius, 'f', 0, 64))
	}

	var resp autocompleteResponse
	if err := c.get(ctx, autocompletePath, params, &resp); err != nil {
		return nil, err
	}

	if pErr := ClassifyStatus(resp.Status, resp.ErrorMessage); pErr != nil {
		return nil, pErr
	}

	predictions := make([]address.Prediction, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		if p.PlaceID == "" {
			continue
		}

		primary := p.StructuredFormatting.MainText
		if primary == "" {
			primary = p.Description
		}

		predictions = append(predictions, address.Prediction{
			ID:            p.PlaceID,
			PrimaryText:   primary,
			SecondaryText: p.StructuredFormatting.SecondaryText,
		})
	}

	return predictions, nil
}

// Details fetches the full address detail for a place id.
func (c *Client) Details(ctx context.Context, placeID string) (*address.PlaceDetail, error) {
	if placeID == "" {
		return nil, &ProviderError{Type: ErrorTypeInvalidRequest, Message: "empty place id"}
	}

	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", detailFields)

	var resp detailsResponse
	if err := c.get(ctx, detailsPath, params, &resp); err != nil {
		return nil, err
	}

	if resp.Status == "ZERO_RESULTS" {
		return nil, ErrNoResult
	}

	if pErr := ClassifyStatus(resp.Status, resp.ErrorMessage); pErr != nil {
		return nil, pErr
	}

	if resp.Result == nil {
		return nil, &ProviderError{Type: ErrorTypeMalformed, Message: "details response without result"}
	}

	return resp.Result.detail(), nil
}

// Geocode resolves a free-text address. It returns ErrNoResult when the
// provider cannot find it.
func (c *Client) Geocode(ctx context.Context, query string) (*address.PlaceDetail, error) {
	params := url.Values{}
	params.Set("address", query)

	if c.cfg.Country != "" {
		params.Set("region", strings.ToLower(c.cfg.Country))
	}

	var resp geocodeResponse
	if err := c.get(ctx, geocodePath, params, &resp); err != nil {
		return nil, err
	}

	if resp.Status == "ZERO_RESULTS" {
		return nil, ErrNoResult
	}

	if pErr := ClassifyStatus(resp.Status, resp.ErrorMessage); pErr != nil {
		return nil, pErr
	}

	if len(resp.Results) == 0 {
		return nil, ErrNoResult
	}

	return resp.Results[0].detail(), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("key", c.cfg.APIKey)

	if c.cfg.Language != "" {
		params.Set("language", c.cfg.Language)
	}

	if token := SessionToken(ctx); token != "" && path != geocodePath {
		params.Set("sessiontoken", token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return &ProviderError{Type: ErrorTypeInvalidRequest, Message: "building request", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return &ProviderError{Type: ErrorTypeTimeout, Message: "provider request timed out", Err: err}
		}

		return &ProviderError{Type: ErrorTypeNetworkError, Message: "provider request failed", Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ClassifyHTTPError(resp.StatusCode, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Type: ErrorTypeMalformed, Message: "decoding response", Err: err}
	}

	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }

	return errors.As(err, &t) && t.Timeout()
}
