// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package address

import (
	"slices"
	"strings"
)

// Google address component types consumed by the parser.
const (
	TypeStreetNumber = "street_number"
	TypeRoute        = "route"
	TypeLocality     = "locality"
	TypeSublocality1 = "sublocality_level_1"
	TypeNeighborhood = "neighborhood"
	TypeAdminArea1   = "administrative_area_level_1"
	TypePostalCode   = "postal_code"
	TypeCountry      = "country"
)

// Component is one entry of a provider's address_components array.
type Component struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// Is reports whether the component carries the given type tag.
func (c Component) Is(typ string) bool {
	return slices.Contains(c.Types, typ)
}

// Geometry is the resolved location of a place.
type Geometry struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PlaceDetail is the raw detail payload for one place, as returned by the
// details and geocode endpoints.
type PlaceDetail struct {
	Components       []Component `json:"address_components"`
	Geometry         *Geometry   `json:"geometry,omitempty"`
	PlaceID          string      `json:"place_id,omitempty"`
	FormattedAddress string      `json:"formatted_address,omitempty"`
}

// ParseDetail parses a full place detail payload.
func ParseDetail(d PlaceDetail) StructuredAddress {
	return Parse(d.Components, d.Geometry, d.PlaceID, d.FormattedAddress)
}

// Parse converts provider address components into a StructuredAddress.
//
// The first component of each type wins. The city comes from locality and,
// only when there is none, from the first sublocality_level_1 or
// neighborhood in payload order. The state and country use the short form,
// every other field the long form. Unmatched string fields are empty;
// coordinates, placeID and formattedAddress are nil when absent. The result
// is never verified: that is decided by whoever consumes it.
func Parse(components []Component, geometry *Geometry, placeID, formattedAddress string) StructuredAddress {
	var (
		number, route, locality, fallbackCity string
		out                                   StructuredAddress
	)

	for _, c := range components {
		switch {
		case c.Is(TypeStreetNumber):
			setOnce(&number, c.LongName)
		case c.Is(TypeRoute):
			setOnce(&route, c.LongName)
		case c.Is(TypeLocality):
			setOnce(&locality, c.LongName)
		case c.Is(TypeSublocality1), c.Is(TypeNeighborhood):
			setOnce(&fallbackCity, c.LongName)
		case c.Is(TypeAdminArea1):
			setOnce(&out.State, c.ShortName)
		case c.Is(TypePostalCode):
			setOnce(&out.ZipCode, c.LongName)
		case c.Is(TypeCountry):
			setOnce(&out.Country, c.ShortName)
		}
	}

	out.Street = strings.TrimSpace(strings.TrimSpace(number) + " " + strings.TrimSpace(route))

	out.City = locality
	if out.City == "" {
		out.City = fallbackCity
	}

	if geometry != nil {
		lat, lng := geometry.Lat, geometry.Lng
		out.Latitude = &lat
		out.Longitude = &lng
	}

	if placeID != "" {
		out.PlaceID = &placeID
	}

	if formattedAddress != "" {
		out.FormattedAddress = &formattedAddress
	}

	return out
}

func setOnce(dst *string, value string) {
	if *dst == "" {
		*dst = strings.TrimSpace(value)
	}
}
