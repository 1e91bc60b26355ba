// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// SeedVersion is the format version written by ExportJSON.
const SeedVersion = "1.0"

// SeedData represents the JSON seed file format.
type SeedData struct {
	Version     string    `json:"version"`
	LastUpdated time.Time `json:"last_updated"`
	Addresses   []*Record `json:"addresses"`
}

// ExportJSON writes every address, sorted by AllSorted, to a JSON file. It
// returns the number of addresses written.
func ExportJSON(repo Repository, filepath string) (int, error) {
	records, err := repo.AllSorted()
	if err != nil {
		return 0, fmt.Errorf("listing addresses: %w", err)
	}

	seed := &SeedData{
		Version:     SeedVersion,
		LastUpdated: time.Now().UTC(),
		Addresses:   records,
	}

	data, err := json.MarshalIndent(seed, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshaling JSON: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0o600); err != nil {
		return 0, fmt.Errorf("writing file: %w", err)
	}

	return len(records), nil
}

// ImportJSON saves the addresses of a file written by ExportJSON. Addresses
// already stored are updated in place.
func ImportJSON(repo Repository, filepath string) (int, error) {
	data, err := os.ReadFile(filepath) // #nosec G304 - filepath is provided by admin
	if err != nil {
		return 0, fmt.Errorf("reading file: %w", err)
	}

	var seed SeedData
	if err := json.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parsing JSON: %w", err)
	}

	imported := 0

	for _, rec := range seed.Addresses {
		rec.ID = 0
		if err := repo.Save(rec); err != nil {
			return imported, fmt.Errorf("saving address %q: %w", rec.Address.String(), err)
		}

		imported++
	}

	return imported, nil
}

// SeedIfEmpty imports filepath when the store has no addresses yet.
func SeedIfEmpty(repo Repository, filepath string) (bool, int, error) {
	count, err := repo.Count()
	if err != nil {
		return false, 0, fmt.Errorf("counting addresses: %w", err)
	}

	if count > 0 {
		return false, count, nil
	}

	if _, err := os.Stat(filepath); errors.Is(err, os.ErrNotExist) {
		return false, 0, nil
	}

	imported, err := ImportJSON(repo, filepath)
	if err != nil {
		return false, 0, err
	}

	return true, imported, nil
}
