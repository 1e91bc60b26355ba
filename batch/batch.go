// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package batch verifies files of typed addresses without user interaction.
package batch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/jcodagnone/addrverify/address"
	"github.com/jcodagnone/addrverify/places"
	"github.com/jcodagnone/addrverify/utils/numutils"
	"github.com/jcodagnone/addrverify/verify"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// Entry is one address read from a batch file.
type Entry struct {
	Line    int
	Address address.StructuredAddress
}

// ParseLine reads a "street|line2|city|state|zip" line, with an optional
// sixth country column.
func ParseLine(line string) (address.StructuredAddress, error) {
	cols := strings.Split(line, "|")
	if len(cols) != 5 && len(cols) != 6 {
		return address.StructuredAddress{}, fmt.Errorf("expected 5 or 6 '|' separated columns, got %d", len(cols))
	}

	a := address.NewDraft()
	for i, f := range []address.Field{
		address.FieldStreet, address.FieldLine2, address.FieldCity, address.FieldState, address.FieldZipCode, address.FieldCountry,
	}[:len(cols)] {
		a = a.With(f, strings.TrimSpace(cols[i]))
	}

	if a.Country == "" {
		a.Country = address.DefaultCountry
	}

	return a, nil
}

// Parse reads a batch file. Blank lines and lines starting with '#' are
// skipped.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry

	scanner := bufio.NewScanner(r)
	n := 0

	for scanner.Scan() {
		n++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		a, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}

		entries = append(entries, Entry{Line: n, Address: a})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading batch: %w", err)
	}

	return entries, nil
}

// Policy settles a disagreement between the typed address and the
// geocoder's suggestion.
type Policy int

const (
	// KeepTyped keeps the typed address.
	KeepTyped Policy = iota
	// AcceptSuggested takes the geocoder's suggestion.
	AcceptSuggested
)

// Options tunes Run.
type Options struct {
	// MaxProcs bounds concurrent verifications. Zero means the number of CPUs.
	MaxProcs int

	// Policy applies to every disagreement.
	Policy Policy

	// ResolveTimeout bounds each geocode request.
	ResolveTimeout time.Duration

	// OnResolved receives every verified address. It may be called from
	// several goroutines at once.
	OnResolved func(Entry, address.StructuredAddress, address.Method)
}

// Result is the verification of one Entry.
type Result struct {
	Entry
	Address     address.StructuredAddress
	Method      address.Method
	Differences []address.Field
	Err         error
}

// Metrics summarizes a batch run.
type Metrics struct {
	Total        int
	Geocoded     int
	Suggested    int
	KeptOriginal int
	FailOpen     int
	Invalid      int
	Failed       int
}

// Merge combines two Metrics.
func (m *Metrics) Merge(o *Metrics) *Metrics {
	if o == nil {
		return m
	}

	m.Total += o.Total
	m.Geocoded += o.Geocoded
	m.Suggested += o.Suggested
	m.KeptOriginal += o.KeptOriginal
	m.FailOpen += o.FailOpen
	m.Invalid += o.Invalid
	m.Failed += o.Failed

	return m
}

func (m *Metrics) add(r *Result) {
	m.Total++

	var verr *address.ValidationError

	switch {
	case errors.As(r.Err, &verr):
		m.Invalid++
	case r.Err != nil:
		m.Failed++
	case r.Method == address.MethodGeocoded:
		m.Geocoded++
	case r.Method == address.MethodSuggestion:
		m.Suggested++
	case r.Method == address.MethodKeptOriginal:
		m.KeptOriginal++
	case r.Method == address.MethodFailOpen:
		m.FailOpen++
	}
}

// Verified is the number of addresses that reached the verified state.
func (m *Metrics) Verified() int {
	return m.Geocoded + m.Suggested + m.KeptOriginal + m.FailOpen
}

func (m *Metrics) String() string {
	n := func(v int) string { return numutils.FormatInt(int64(v)) }

	return fmt.Sprintf("%s addresses, %s verified (%s): %s geocoded, %s suggestions taken, %s kept as typed, %s without geocoding result; %s invalid, %s failed",
		n(m.Total), n(m.Verified()), numutils.Percent(int64(m.Verified()), int64(m.Total)),
		n(m.Geocoded), n(m.Suggested), n(m.KeptOriginal), n(m.FailOpen),
		n(m.Invalid), n(m.Failed))
}

// Run verifies every entry and returns the results in entry order. It
// fails upfront when the provider is not configured.
func Run(ctx context.Context, provider verify.Provider, entries []Entry, opts Options) ([]Result, Metrics, error) {
	var metrics Metrics

	if provider == nil || !provider.Configured() {
		return nil, metrics, places.ErrNotConfigured
	}

	maxProcs := opts.MaxProcs
	if maxProcs <= 0 {
		maxProcs = runtime.NumCPU()
	}

	var bar *progressbar.ProgressBar
	if isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(len(entries),
			progressbar.OptionSetDescription("Verifying addresses"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	results := make([]Result, len(entries))

	var wg sync.WaitGroup

	semaphore := make(chan struct{}, maxProcs)

	for i, e := range entries {
		wg.Add(1)

		go func(i int, e Entry) {
			defer wg.Done()
			semaphore <- struct{}{}

			defer func() { <-semaphore }()

			results[i] = verifyEntry(ctx, provider, e, opts)

			if bar != nil {
				_ = bar.Add(1)
			}
		}(i, e)
	}

	wg.Wait()

	for i := range results {
		r := &results[i]
		if r.Err != nil {
			log.Printf("Verification failed - line %d: %s", r.Line, r.Err)
		}

		metrics.add(r)
	}

	return results, metrics, ctx.Err()
}

func verifyEntry(ctx context.Context, provider verify.Provider, e Entry, opts Options) Result {
	res := Result{Entry: e}

	if err := ctx.Err(); err != nil {
		res.Err = err

		return res
	}

	flow := verify.NewFlow(provider, verify.FlowOptions{
		ManualOnly:     true,
		ResolveTimeout: opts.ResolveTimeout,
		OnResolved: func(a address.StructuredAddress, m address.Method) {
			res.Address, res.Method = a, m
		},
	})
	defer flow.Close()

	for _, f := range []address.Field{
		address.FieldStreet, address.FieldLine2, address.FieldCity, address.FieldState, address.FieldZipCode, address.FieldCountry,
	} {
		if err := flow.SetField(f, e.Address.Get(f)); err != nil {
			res.Err = err

			return res
		}
	}

	outcome, err := flow.RequestVerification(ctx)
	if err != nil {
		res.Err = err

		return res
	}

	if outcome.Kind == address.Unresolved {
		res.Differences = flow.Snapshot().Differences

		if opts.Policy == AcceptSuggested {
			_, err = flow.AcceptSuggestion()
		} else {
			_, err = flow.KeepOriginal()
		}

		if err != nil {
			res.Err = err

			return res
		}
	}

	if opts.OnResolved != nil {
		opts.OnResolved(e, res.Address, res.Method)
	}

	return res
}
