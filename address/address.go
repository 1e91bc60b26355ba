// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package address defines the canonical postal address shape, the parser
// that builds it from geocoder payloads and the comparator that decides
// whether a typed address needs to be reconciled with a resolved one.
package address

import (
	"fmt"
	"strings"

	"github.com/jcodagnone/addrverify/spatial"
)

// DefaultCountry is the ISO code assumed for new drafts.
const DefaultCountry = "US"

// Field names a user-editable part of a StructuredAddress.
type Field string

// Editable fields.
const (
	FieldStreet  Field = "street"
	FieldLine2   Field = "line2"
	FieldCity    Field = "city"
	FieldState   Field = "state"
	FieldZipCode Field = "zipCode"
	FieldCountry Field = "country"
)

// ParseField maps a wire name to a Field.
func ParseField(name string) (Field, error) {
	switch f := Field(name); f {
	case FieldStreet, FieldLine2, FieldCity, FieldState, FieldZipCode, FieldCountry:
		return f, nil
	default:
		return "", fmt.Errorf("unknown address field %q", name)
	}
}

// resetsVerification reports whether a manual edit of f invalidates
// IsVerified.
func (f Field) resetsVerification() bool {
	switch f {
	case FieldStreet, FieldCity, FieldState, FieldZipCode:
		return true
	default:
		return false
	}
}

// StructuredAddress is a canonical postal address. Values are treated as
// immutable: mutations go through With, which returns a copy.
type StructuredAddress struct {
	Street           string   `json:"street"`
	Line2            string   `json:"line2,omitempty"`
	City             string   `json:"city"`
	State            string   `json:"state"`
	ZipCode          string   `json:"zipCode"`
	Country          string   `json:"country"`
	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
	PlaceID          *string  `json:"placeId,omitempty"`
	FormattedAddress *string  `json:"formattedAddress,omitempty"`
	IsVerified       bool     `json:"isVerified"`
}

// NewDraft returns an empty, unverified address in the default country.
func NewDraft() StructuredAddress {
	return StructuredAddress{Country: DefaultCountry}
}

// Get returns the value of a field.
func (a StructuredAddress) Get(f Field) string {
	switch f {
	case FieldStreet:
		return a.Street
	case FieldLine2:
		return a.Line2
	case FieldCity:
		return a.City
	case FieldState:
		return a.State
	case FieldZipCode:
		return a.ZipCode
	case FieldCountry:
		return a.Country
	default:
		return ""
	}
}

// With returns a copy of a with field f set to value, as a manual edit.
// Changing street, city, state or zip code clears IsVerified. Setting a
// field to its current value is not a mutation.
func (a StructuredAddress) With(f Field, value string) StructuredAddress {
	if a.Get(f) == value {
		return a
	}

	switch f {
	case FieldStreet:
		a.Street = value
	case FieldLine2:
		a.Line2 = value
	case FieldCity:
		a.City = value
	case FieldState:
		a.State = value
	case FieldZipCode:
		a.ZipCode = value
	case FieldCountry:
		a.Country = value
	default:
		return a
	}

	if f.resetsVerification() {
		a.IsVerified = false
	}

	return a
}

// Point returns the coordinates, if both are known.
func (a StructuredAddress) Point() (spatial.Point, bool) {
	if a.Latitude == nil || a.Longitude == nil {
		return spatial.Point{}, false
	}

	return spatial.Point{Lat: *a.Latitude, Lng: *a.Longitude}, true
}

// OneLine renders the address as a single geocodable line. Line2 is left out:
// unit numbers only confuse the geocoder.
func (a StructuredAddress) OneLine() string {
	return joinNonEmpty(a.Street, a.City, strings.TrimSpace(a.State+" "+a.ZipCode), a.Country)
}

// String returns the display form of the address.
func (a StructuredAddress) String() string {
	if a.FormattedAddress != nil && *a.FormattedAddress != "" {
		return joinNonEmpty(a.Line2, *a.FormattedAddress)
	}

	return joinNonEmpty(a.Street, a.Line2, a.City, strings.TrimSpace(a.State+" "+a.ZipCode), a.Country)
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return strings.Join(out, ", ")
}

// Prediction is one autocomplete candidate, not yet resolved to full detail.
type Prediction struct {
	ID            string `json:"id"`
	PrimaryText   string `json:"primaryText"`
	SecondaryText string `json:"secondaryText"`
}

// OutcomeKind classifies the result of a verification attempt.
type OutcomeKind int

const (
	// Unresolved means the attempt is waiting for the user to reconcile.
	Unresolved OutcomeKind = iota
	// Accepted means the resolved address replaced the draft.
	Accepted
	// KeptOriginal means the typed address was kept and marked verified.
	KeptOriginal
)

func (k OutcomeKind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case KeptOriginal:
		return "kept_original"
	default:
		return "unresolved"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Outcome is the result of one verification attempt.
type Outcome struct {
	Kind    OutcomeKind       `json:"kind"`
	Address StructuredAddress `json:"address"`
}

// Method records how an address reached the verified state.
type Method string

// Verification methods.
const (
	MethodPrediction   Method = "prediction"    // picked from the autocomplete predictions
	MethodGeocoded     Method = "geocoded"      // typed, and the geocoder agreed
	MethodSuggestion   Method = "suggestion"    // typed, then replaced by the geocoder's suggestion
	MethodKeptOriginal Method = "kept_original" // typed, kept over the geocoder's suggestion
	MethodFailOpen     Method = "fail_open"     // typed, and the geocoder had no answer
)
