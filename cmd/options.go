// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/jcodagnone/addrverify/places"
	"github.com/jcodagnone/addrverify/store"
	"github.com/jcodagnone/addrverify/verify"
	"github.com/spf13/cobra"
)

const envDBPath = "ADDRVERIFY_DB_PATH"

type options struct {
	DbPath          string
	UseADC          bool
	ProjectID       string
	KeyDisplayName  string
	EnableHTTPTrace bool
	TraceBody       bool
	RequestsPerSec  float64
}

var globalOptions = &options{}

func init() {
	dbPath := os.Getenv(envDBPath)
	if dbPath == "" {
		dbPath = "db"
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globalOptions.DbPath, "db-path", dbPath, "directory of the addresses database (env "+envDBPath+")")
	flags.BoolVar(&globalOptions.UseADC, "adc", false, "fetch the Maps API key with Application Default Credentials")
	flags.StringVar(&globalOptions.ProjectID, "project", "", "Google Cloud project holding the API key (with --adc)")
	flags.StringVar(&globalOptions.KeyDisplayName, "key-name", places.DefaultKeyDisplayName, "display name of the API key (with --adc)")
	flags.BoolVar(&globalOptions.EnableHTTPTrace, "trace-http", false, "dump provider HTTP traffic to stderr")
	flags.BoolVar(&globalOptions.TraceBody, "trace-body", false, "include bodies in the HTTP dump")
	flags.Float64Var(&globalOptions.RequestsPerSec, "rps", places.DefaultConfig().RequestsPerSecond, "maximum provider requests per second (0 disables the limit)")
}

// newProvider builds the Google provider, or places.Unconfigured when no
// key is available.
func newProvider(ctx context.Context) (verify.Provider, error) {
	cfg := places.ConfigFromEnv()
	cfg.UserAgent = fmt.Sprintf("addrverify/%s (+https://github.com/jcodagnone/addrverify)", Version)
	cfg.RequestsPerSecond = globalOptions.RequestsPerSec

	if globalOptions.EnableHTTPTrace {
		cfg.TraceWriter = os.Stderr
		cfg.TraceBody = globalOptions.TraceBody
	}

	if !cfg.Configured() && globalOptions.UseADC {
		key, err := places.APIKeyFromADC(ctx, globalOptions.ProjectID, globalOptions.KeyDisplayName)
		if err != nil {
			return nil, fmt.Errorf("getting API key from ADC: %w", err)
		}

		cfg.APIKey = key
	}

	if !cfg.Configured() {
		return places.Unconfigured{}, nil
	}

	client, err := places.New(cfg)
	if err != nil {
		return nil, err
	}

	return client, nil
}

// requireProvider is newProvider for commands that cannot work without one.
func requireProvider(ctx context.Context) (verify.Provider, error) {
	p, err := newProvider(ctx)
	if err != nil {
		return nil, err
	}

	if !p.Configured() {
		return nil, fmt.Errorf("%w: set %s or use --adc", places.ErrNotConfigured, places.EnvAPIKey)
	}

	return p, nil
}

func openRepository() (store.Repository, error) {
	if err := os.MkdirAll(globalOptions.DbPath, 0o750); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	dbpath := filepath.Join(globalOptions.DbPath, "addresses.duckdb")

	repo, err := store.Open(dbpath)
	if err != nil {
		return nil, err
	}

	log.Printf("Using address database %s", dbpath)

	return repo, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}
