// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import "github.com/jcodagnone/addrverify/address"

// ZipState is the state of a ZipGate.
type ZipState int

const (
	// AwaitingZip means no ZIP code has been confirmed yet.
	AwaitingZip ZipState = iota
	// Confirmed means a valid ZIP code narrows the street search.
	Confirmed
)

func (s ZipState) String() string {
	if s == Confirmed {
		return "confirmed"
	}

	return "awaiting_zip"
}

// MarshalText implements encoding.TextMarshaler.
func (s ZipState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ZipGate collects a postal code before the street search is enabled. The
// zero value is awaiting a ZIP. It is not safe for concurrent use; Flow
// guards it with its own lock.
type ZipGate struct {
	zip string
}

// State returns the gate state.
func (g *ZipGate) State() ZipState {
	if g.zip == "" {
		return AwaitingZip
	}

	return Confirmed
}

// Zip returns the confirmed ZIP code, or "" while awaiting.
func (g *ZipGate) Zip() string {
	return g.zip
}

// Confirm accepts a strict 5-digit ZIP code and does not trim it. Any other
// input leaves the gate awaiting and returns an
// *address.ValidationError. Confirming twice requires a Change in between.
func (g *ZipGate) Confirm(zip string) error {
	if g.State() == Confirmed {
		return ErrInvalidTransition
	}

	if err := address.ValidateZip(zip); err != nil {
		return err
	}

	g.zip = zip

	return nil
}

// Change returns the gate to AwaitingZip. It reports whether a ZIP code was
// confirmed.
func (g *ZipGate) Change() bool {
	changed := g.zip != ""
	g.zip = ""

	return changed
}
