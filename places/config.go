// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package places

import (
	"io"
	"os"
	"time"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvAPIKey  = "GOOGLE_MAPS_API_KEY"
	EnvBaseURL = "GOOGLE_MAPS_BASE_URL"
)

// DefaultBaseURL is the Google Maps Platform web service root.
const DefaultBaseURL = "https://maps.googleapis.com"

// Config configures the Google client.
type Config struct {
	// APIKey is the Google Maps Platform key. Empty means not configured.
	APIKey string

	// BaseURL overrides the web service root, mainly for tests.
	BaseURL string

	// Country restricts autocomplete and biases geocoding (ISO code).
	Country string

	// Language of the returned names.
	Language string

	// Timeout bounds every provider request.
	Timeout time.Duration

	// RequestsPerSecond caps outgoing requests; zero disables the limiter.
	RequestsPerSecond float64

	// UserAgent is the User-Agent header to use in HTTP requests.
	UserAgent string

	// TraceWriter receives a dump of every HTTP transaction when set.
	TraceWriter io.Writer

	// TraceBody includes bodies in the dump.
	TraceBody bool
}

// DefaultConfig returns the defaults for a US deployment.
func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		Country:           "us",
		Language:          "en",
		Timeout:           10 * time.Second,
		RequestsPerSecond: 10,
		UserAgent:         "addrverify/unknown",
	}
}

// ConfigFromEnv returns DefaultConfig overridden by the environment.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.APIKey = os.Getenv(EnvAPIKey)

	if baseURL := os.Getenv(EnvBaseURL); baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return cfg
}

// Configured reports whether the config carries an API key.
func (c Config) Configured() bool {
	return c.APIKey != ""
}
