// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists the verified address snapshots handed over by the
// verification flow, indexed by H3 cell for service-area queries.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jcodagnone/addrverify/address"
	"github.com/jcodagnone/addrverify/spatial"
	"golang.org/x/text/cases"
)

// Record is a verified address snapshot.
type Record struct {
	ID        int64                     `json:"id"`
	Address   address.StructuredAddress `json:"address"`
	Method    address.Method            `json:"method"`
	Source    string                    `json:"source"`
	CreatedAt time.Time                 `json:"createdAt"`
	UpdatedAt time.Time                 `json:"updatedAt"`
	Cells     map[int]int64             `json:"-"`
}

// Key identifies the physical address of a record: two snapshots of the
// same address, unit included, share a key.
func (r *Record) Key() string {
	return cases.Fold().String(r.Address.OneLine() + "|" + strings.TrimSpace(r.Address.Line2))
}

func (r *Record) computeH3() error {
	r.Cells = nil

	p, ok := r.Address.Point()
	if !ok {
		return nil
	}

	if err := p.Validate(); err != nil {
		return err
	}

	cells, err := p.Cells()
	if err != nil {
		return err
	}

	r.Cells = cells

	return nil
}

// Match is a record found by a service-area query.
type Match struct {
	*Record
	DistanceMeters float64 `json:"distanceMeters"`
}

// Repository handles persistence of verified addresses.
type Repository interface {
	// CreateSchema creates the addresses table
	CreateSchema() error

	// Save inserts a record or updates the one with the same Key
	Save(rec *Record) error

	// List returns records, most recently updated first
	List(limit, offset int) ([]*Record, error)

	// AllSorted returns every record in a stable geographic order
	AllSorted() ([]*Record, error)

	// Count returns the total number of records
	Count() (int, error)

	// Nearby returns the records within radius meters of center, closest
	// first
	Nearby(center spatial.Point, radius float64, limit int) ([]*Match, error)

	// DB returns the underlying database connection
	DB() *sql.DB
}

type sqlRepository struct {
	db *sql.DB
}

// NewRepository creates a repository on an open DuckDB connection.
func NewRepository(db *sql.DB) Repository {
	return &sqlRepository{db: db}
}

// Open opens (or creates) the DuckDB database at path and its schema. An
// empty path is an in-memory database.
func Open(path string) (Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	repo := NewRepository(db)
	if err := repo.CreateSchema(); err != nil {
		db.Close()

		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return repo, nil
}

func (r *sqlRepository) DB() *sql.DB {
	return r.db
}

func (r *sqlRepository) CreateSchema() error {
	_, err := r.db.Exec(`
		CREATE SEQUENCE IF NOT EXISTS addresses_seq START 1;

		CREATE TABLE IF NOT EXISTS addresses (
			id BIGINT PRIMARY KEY DEFAULT nextval('addresses_seq'),
			address_key VARCHAR NOT NULL UNIQUE,
			street VARCHAR NOT NULL,
			line2 VARCHAR NOT NULL,
			city VARCHAR NOT NULL,
			state VARCHAR NOT NULL,
			zip_code VARCHAR NOT NULL,
			country VARCHAR NOT NULL,
			latitude DOUBLE,
			longitude DOUBLE,
			place_id VARCHAR,
			formatted_address VARCHAR,
			is_verified BOOLEAN NOT NULL,
			method VARCHAR NOT NULL,
			source VARCHAR NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			h3_res5 BIGINT,
			h3_res6 BIGINT,
			h3_res7 BIGINT,
			h3_res8 BIGINT,
			h3_res9 BIGINT
		);
	`)

	return err
}

func (r *sqlRepository) Save(rec *Record) error {
	if !rec.Address.IsVerified {
		return errors.New("only verified addresses are stored")
	}

	if rec.Method == "" {
		return errors.New("verification method is required")
	}

	if err := rec.computeH3(); err != nil {
		return err
	}

	key := rec.Key()
	a := rec.Address

	var existing int64

	err := r.db.QueryRow(`SELECT id FROM addresses WHERE address_key = ?`, key).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	rec.UpdatedAt = time.Now()

	if existing != 0 {
		_, err = r.db.Exec(`
			UPDATE addresses
			SET street = ?, line2 = ?, city = ?, state = ?, zip_code = ?, country = ?,
			    latitude = ?, longitude = ?, place_id = ?, formatted_address = ?,
			    is_verified = ?, method = ?, source = ?, updated_at = ?,
			    h3_res5 = ?, h3_res6 = ?, h3_res7 = ?, h3_res8 = ?, h3_res9 = ?
			WHERE id = ?
		`,
			a.Street, a.Line2, a.City, a.State, a.ZipCode, a.Country,
			deref(a.Latitude), deref(a.Longitude), deref(a.PlaceID), deref(a.FormattedAddress),
			a.IsVerified, string(rec.Method), rec.Source, rec.UpdatedAt,
			rec.cell(5), rec.cell(6), rec.cell(7), rec.cell(8), rec.cell(9),
			existing,
		)
		if err != nil {
			return fmt.Errorf("updating address %d: %w", existing, err)
		}

		rec.ID = existing

		return nil
	}

	rec.CreatedAt = rec.UpdatedAt

	err = r.db.QueryRow(`
		INSERT INTO addresses(
			address_key,
			street, line2, city, state, zip_code, country,
			latitude, longitude, place_id, formatted_address,
			is_verified, method, source, created_at, updated_at,
			h3_res5, h3_res6, h3_res7, h3_res8, h3_res9
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		key,
		a.Street, a.Line2, a.City, a.State, a.ZipCode, a.Country,
		deref(a.Latitude), deref(a.Longitude), deref(a.PlaceID), deref(a.FormattedAddress),
		a.IsVerified, string(rec.Method), rec.Source, rec.CreatedAt, rec.UpdatedAt,
		rec.cell(5), rec.cell(6), rec.cell(7), rec.cell(8), rec.cell(9),
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("inserting address: %w", err)
	}

	return nil
}

// cell returns the H3 cell at res, or nil for a record without coordinates.
func (r *Record) cell(res int) any {
	c, ok := r.Cells[res]
	if !ok {
		return nil
	}

	return c
}

// deref turns an optional field into a column value.
func deref[T any](v *T) any {
	if v == nil {
		return nil
	}

	return *v
}

var baseSelect = `
	SELECT id, street, line2, city, state, zip_code, country,
	       latitude, longitude, place_id, formatted_address,
	       is_verified, method, source, created_at, updated_at,
	       h3_res5, h3_res6, h3_res7, h3_res8, h3_res9
	FROM addresses
`

func (r *sqlRepository) list(query string, args []any) ([]*Record, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record

	for rows.Next() {
		rec := &Record{}
		a := &rec.Address

		var (
			lat, lng                  sql.NullFloat64
			placeID, formattedAddress sql.NullString
			cells                     [spatial.MaxCellResolution - spatial.MinCellResolution + 1]sql.NullInt64
		)

		err := rows.Scan(
			&rec.ID, &a.Street, &a.Line2, &a.City, &a.State, &a.ZipCode, &a.Country,
			&lat, &lng, &placeID, &formattedAddress,
			&a.IsVerified, &rec.Method, &rec.Source, &rec.CreatedAt, &rec.UpdatedAt,
			&cells[0], &cells[1], &cells[2], &cells[3], &cells[4],
		)
		if err != nil {
			return nil, err
		}

		if lat.Valid && lng.Valid {
			a.Latitude = &lat.Float64
			a.Longitude = &lng.Float64
		}

		if placeID.Valid {
			a.PlaceID = &placeID.String
		}

		if formattedAddress.Valid {
			a.FormattedAddress = &formattedAddress.String
		}

		for i, c := range cells {
			if c.Valid {
				if rec.Cells == nil {
					rec.Cells = make(map[int]int64, len(cells))
				}

				rec.Cells[spatial.MinCellResolution+i] = c.Int64
			}
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

func (r *sqlRepository) List(limit, offset int) ([]*Record, error) {
	query := baseSelect + " ORDER BY updated_at DESC, id DESC"

	args := []any{}

	if limit > 0 {
		query += " LIMIT ? OFFSET ?"

		args = append(args, limit, offset)
	}

	return r.list(query, args)
}

func (r *sqlRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM addresses",
	).Scan(&count)

	return count, err
}

func (r *sqlRepository) AllSorted() ([]*Record, error) {
	return r.list(baseSelect+` ORDER BY country, state, city, zip_code, street, line2`,
		[]any{},
	)
}

const maxRingsPerQuery = 8

// MaxNearbyRadius is the largest radius, in meters, Nearby accepts.
const MaxNearbyRadius = 500_000

// ErrRadiusTooLarge is returned by Nearby for radii above MaxNearbyRadius.
var ErrRadiusTooLarge = fmt.Errorf("radius exceeds %d meters", MaxNearbyRadius)

// nearbyResolution picks the finest resolution whose covering disk stays
// within maxRingsPerQuery rings for radius.
func nearbyResolution(radius float64) int {
	for res := spatial.MaxCellResolution; res > spatial.MinCellResolution; res-- {
		if radius <= maxRingsPerQuery*1.5*spatial.EdgeLength(res) {
			return res
		}
	}

	return spatial.MinCellResolution
}

func (r *sqlRepository) Nearby(center spatial.Point, radius float64, limit int) ([]*Match, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}

	if radius <= 0 {
		return nil, fmt.Errorf("radius must be positive (got %f)", radius)
	}

	if radius > MaxNearbyRadius {
		return nil, fmt.Errorf("%w (got %.0f)", ErrRadiusTooLarge, radius)
	}

	res := nearbyResolution(radius)

	cells, err := center.CoveringCells(res, radius)
	if err != nil {
		return nil, err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cells)), ", ")
	args := make([]any, 0, len(cells))

	for _, c := range cells {
		args = append(args, c)
	}

	candidates, err := r.list(fmt.Sprintf("%s WHERE h3_res%d IN (%s)", baseSelect, res, placeholders), args)
	if err != nil {
		return nil, fmt.Errorf("querying h3 cells: %w", err)
	}

	matches := make([]*Match, 0, len(candidates))

	for _, rec := range candidates {
		p, ok := rec.Address.Point()
		if !ok {
			continue
		}

		if d := center.HaversineDistance(p); d <= radius {
			matches = append(matches, &Match{Record: rec, DistanceMeters: d})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].DistanceMeters < matches[j].DistanceMeters
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}
