// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package spatial holds the coordinate helpers used to measure and index
// resolved addresses.
package spatial

import (
	"fmt"
	"math"

	"github.com/uber/h3-go/v4"
)

const earthRadius = 6371e3 // meters

// MinCellResolution and MaxCellResolution bound the H3 resolutions computed
// for every stored address.
const (
	MinCellResolution = 5
	MaxCellResolution = 9
)

// MaxCoveringRings bounds the grid disk built by CoveringCells.
const MaxCoveringRings = 64

// avgEdgeLength is the average H3 hexagon edge length in meters per
// resolution, as published in the H3 resolution table.
var avgEdgeLength = map[int]float64{
	5: 8544.408276,
	6: 3229.482772,
	7: 1220.629759,
	8: 461.354684,
	9: 174.375668,
}

// EdgeLength returns the average hexagon edge length in meters at res, or
// zero outside the supported resolutions.
func EdgeLength(res int) float64 {
	return avgEdgeLength[res]
}

// Point represents a geographical point with latitude and longitude.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String returns a string representation of the Point.
func (p Point) String() string {
	return fmt.Sprintf("POINT(%f %f)", p.Lng, p.Lat)
}

// Validate checks the point lies within the global coordinate range.
func (p Point) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90 (got %f)", p.Lat)
	}

	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("longitude must be between -180 and 180 (got %f)", p.Lng)
	}

	return nil
}

// HaversineDistance calculates the distance between two points on Earth in meters.
func (p Point) HaversineDistance(other Point) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := (other.Lat - p.Lat) * math.Pi / 180
	dLng := (other.Lng - p.Lng) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// Cell returns the H3 cell containing the point at the given resolution.
func (p Point) Cell(res int) (h3.Cell, error) {
	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), res)
	if err != nil {
		return 0, fmt.Errorf("converting %s to h3 cell at res %d: %w", p, res, err)
	}

	return cell, nil
}

// Cells returns the H3 cells containing the point for every resolution
// between MinCellResolution and MaxCellResolution, indexed by resolution.
func (p Point) Cells() (map[int]int64, error) {
	cells := make(map[int]int64, MaxCellResolution-MinCellResolution+1)

	for res := MinCellResolution; res <= MaxCellResolution; res++ {
		cell, err := p.Cell(res)
		if err != nil {
			return nil, err
		}

		cells[res] = int64(cell)
	}

	return cells, nil
}

// CoveringCells returns the cells at res that cover a circle of radius
// meters around the point. The result over-approximates the circle; callers
// refine candidates with HaversineDistance.
func (p Point) CoveringCells(res int, radius float64) ([]int64, error) {
	origin, err := p.Cell(res)
	if err != nil {
		return nil, err
	}

	edge, ok := avgEdgeLength[res]
	if !ok {
		return nil, fmt.Errorf("unsupported h3 resolution %d", res)
	}

	// Each ring reaches at least 1.5 edges further in every direction; one
	// extra ring absorbs cell distortion.
	k := int(math.Ceil(radius/(1.5*edge))) + 1
	if k > MaxCoveringRings {
		return nil, fmt.Errorf("radius %.0fm needs %d rings at resolution %d, more than %d", radius, k, res, MaxCoveringRings)
	}

	disk, err := h3.GridDisk(origin, k)
	if err != nil {
		return nil, fmt.Errorf("h3 grid disk k=%d: %w", k, err)
	}

	cells := make([]int64, 0, len(disk))
	for _, c := range disk {
		cells = append(cells, int64(c))
	}

	return cells, nil
}
