// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jcodagnone/addrverify/address"
	"github.com/jcodagnone/addrverify/places"
)

// State is the state of a Flow.
type State int

const (
	// Editing means fields are mutable and the draft is not verified.
	Editing State = iota
	// Searching means autocomplete is scheduled, in flight or showing
	// predictions.
	Searching
	// PendingReconciliation means a resolved address disagrees with the
	// typed one and the user has to choose.
	PendingReconciliation
	// Verified means the draft is final until the next edit.
	Verified
)

func (s State) String() string {
	switch s {
	case Searching:
		return "searching"
	case PendingReconciliation:
		return "pending_reconciliation"
	case Verified:
		return "verified"
	default:
		return "editing"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// FlowOptions configures a Flow.
type FlowOptions struct {
	// ZipFirst requires a confirmed ZIP code before the street can be edited.
	ZipFirst bool

	// Search tunes the autocomplete controller.
	Search SearchOptions

	// ManualOnly turns the street autocomplete off. Typed addresses are
	// still verified.
	ManualOnly bool

	// ResolveTimeout bounds details and geocode requests.
	ResolveTimeout time.Duration

	// OnResolved is called once per transition into Verified, outside any
	// lock, with the authoritative address and how it was verified.
	OnResolved func(address.StructuredAddress, address.Method)
}

// Snapshot is a consistent copy of the flow state.
type Snapshot struct {
	State       State                      `json:"state"`
	Draft       address.StructuredAddress  `json:"draft"`
	Candidate   *address.StructuredAddress `json:"candidate,omitempty"`
	Differences []address.Field            `json:"differences,omitempty"`
	Predictions []address.Prediction       `json:"predictions"`
	ZipFirst    bool                       `json:"zipFirst"`
	ZipState    ZipState                   `json:"zipState"`
	Zip         string                     `json:"zip,omitempty"`
	Busy        bool                       `json:"busy"`
	Configured  bool                       `json:"configured"`
	Message     string                     `json:"message,omitempty"`
}

// Flow owns one address draft and the predictions shown for it. It is safe
// for concurrent use; provider calls never run under its lock.
type Flow struct {
	provider Provider
	resolver *Resolver
	search   *SearchController
	opts     FlowOptions

	// edit serializes operations that touch both the draft and the search
	// controller. It is never held across provider calls.
	edit sync.Mutex

	// mu guards the fields below. Lock order: edit, search controller, mu.
	mu          sync.Mutex
	state       State
	draft       address.StructuredAddress
	candidate   *address.StructuredAddress
	predictions []address.Prediction
	gate        ZipGate
	epoch       uint64
	busy        int
	session     string
	closed      bool
}

// NewFlow creates a flow for an empty draft.
func NewFlow(provider Provider, opts FlowOptions) *Flow {
	if provider == nil {
		provider = places.Unconfigured{}
	}

	f := &Flow{
		provider: provider,
		resolver: NewResolver(provider, opts.ResolveTimeout),
		opts:     opts,
		draft:    address.NewDraft(),
		session:  uuid.NewString(),
	}

	f.search = NewSearchController(provider, opts.Search, f.onSearch)
	f.search.SetSessionToken(f.session)

	if !provider.Configured() {
		log.Println("⚠️ Address lookup is not configured, manual entry only")
	}

	return f
}

func (f *Flow) onSearch(predictions []address.Prediction, pending bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}

	f.predictions = predictions

	switch {
	case pending || len(predictions) > 0:
		if f.state == Editing {
			f.state = Searching
		}
	case f.state == Searching:
		f.state = Editing
	}
}

// SetField applies a manual edit. Edits in Verified or PendingReconciliation
// return the flow to Editing and discard the candidate. Street edits feed
// the autocomplete. Zip-first flows only change the ZIP code through
// ConfirmZip and ChangeZip.
func (f *Flow) SetField(field address.Field, value string) error {
	f.edit.Lock()
	defer f.edit.Unlock()

	f.mu.Lock()

	if f.closed {
		f.mu.Unlock()

		return ErrClosed
	}

	if field == address.FieldStreet && f.opts.ZipFirst && f.gate.State() != Confirmed {
		f.mu.Unlock()

		return ErrZipRequired
	}

	// The gate owns the ZIP code of a zip-first flow.
	if field == address.FieldZipCode && f.opts.ZipFirst {
		f.mu.Unlock()

		return ErrInvalidTransition
	}

	next := f.draft.With(field, value)
	if next == f.draft {
		f.mu.Unlock()

		return nil
	}

	f.draft = next
	f.invalidateLocked()
	search := field == address.FieldStreet && f.provider.Configured() && !f.opts.ManualOnly
	f.mu.Unlock()

	if search {
		f.search.OnTextChanged(value)
	}

	return nil
}

// invalidateLocked leaves any confirmed or half-confirmed state after an
// edit and supersedes in-flight requests.
func (f *Flow) invalidateLocked() {
	f.epoch++
	f.candidate = nil

	if f.state == Verified || f.state == PendingReconciliation {
		f.state = Editing
		f.draft.IsVerified = false
	}
}

// ConfirmZip validates zip, narrows the search around it and copies it into
// the draft. The centroid lookup is best effort: without it the bias only
// carries the postal code.
func (f *Flow) ConfirmZip(ctx context.Context, zip string) error {
	if err := address.ValidateZip(zip); err != nil {
		return err
	}

	f.mu.Lock()
	closed, confirmed, country := f.closed, f.gate.State() == Confirmed, f.draft.Country
	f.mu.Unlock()

	if closed {
		return ErrClosed
	}

	if confirmed {
		return ErrInvalidTransition
	}

	bias := &places.LocationBias{PostalCode: zip, RadiusMeters: places.DefaultBiasRadius}

	if f.provider.Configured() {
		centroid, found, err := f.resolver.Geocode(ctx, strings.TrimSpace(zip+" "+country))

		switch {
		case err != nil:
			log.Printf("Locating ZIP %s failed, searching without a center: %v", zip, err)
		case !found:
			log.Printf("ZIP %s not found, searching without a center", zip)
		default:
			if p, ok := centroid.Point(); ok {
				bias.Center = &p
			}
		}
	}

	f.edit.Lock()
	defer f.edit.Unlock()

	f.mu.Lock()

	if f.closed {
		f.mu.Unlock()

		return ErrClosed
	}

	if err := f.gate.Confirm(zip); err != nil {
		f.mu.Unlock()

		return err
	}

	if next := f.draft.With(address.FieldZipCode, zip); next != f.draft {
		f.draft = next
		f.invalidateLocked()
	}

	f.mu.Unlock()

	f.search.SetBias(bias)

	return nil
}

// ChangeZip returns the gate to AwaitingZip and discards the address
// progress made under the old ZIP code.
func (f *Flow) ChangeZip() error {
	f.edit.Lock()
	defer f.edit.Unlock()

	f.mu.Lock()
	closed, confirmed := f.closed, f.gate.State() == Confirmed
	f.mu.Unlock()

	if closed {
		return ErrClosed
	}

	if !confirmed {
		return ErrInvalidTransition
	}

	f.search.Cancel()
	f.search.SetBias(nil)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.gate.Change()

	draft := address.NewDraft()
	draft.Country = f.draft.Country
	f.draft = draft
	f.predictions = nil
	f.state = Editing
	f.epoch++
	f.candidate = nil

	return nil
}

// SelectPrediction resolves a picked prediction and moves straight to
// Verified, skipping reconciliation. On failure the draft and the
// predictions are left as they were.
func (f *Flow) SelectPrediction(ctx context.Context, predictionID string) (address.StructuredAddress, error) {
	epoch, restore, err := f.beginSelection()
	if err != nil {
		return address.StructuredAddress{}, err
	}

	f.mu.Lock()
	session := f.session
	f.mu.Unlock()

	resolved, err := f.resolver.Resolve(places.WithSessionToken(ctx, session), predictionID)

	f.mu.Lock()
	f.busy--

	if f.epoch != epoch {
		f.mu.Unlock()

		return address.StructuredAddress{}, ErrSuperseded
	}

	if err != nil {
		f.predictions = restore
		if f.state == Searching && len(restore) == 0 {
			f.state = Editing
		}

		f.mu.Unlock()

		return address.StructuredAddress{}, err
	}

	verified := f.verifyLocked(f.selected(resolved))
	f.rotateSessionLocked()
	f.mu.Unlock()

	f.search.SetSessionToken(f.sessionToken())
	f.emit(verified, address.MethodPrediction)

	return verified, nil
}

// ApplySelection handles a picker widget that delivers the place detail with
// the selection event, so no details request is needed.
func (f *Flow) ApplySelection(prediction address.Prediction, detail address.PlaceDetail) (address.StructuredAddress, error) {
	if len(detail.Components) == 0 {
		return address.StructuredAddress{}, fmt.Errorf("%w: selection %q has no address components", ErrResolveFailed, prediction.ID)
	}

	if detail.PlaceID == "" {
		detail.PlaceID = prediction.ID
	}

	f.edit.Lock()
	defer f.edit.Unlock()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()

		return address.StructuredAddress{}, ErrClosed
	}
	f.mu.Unlock()

	f.search.Cancel()

	f.mu.Lock()
	f.predictions = nil
	verified := f.verifyLocked(f.selected(address.ParseDetail(detail)))
	f.rotateSessionLocked()
	f.mu.Unlock()

	f.search.SetSessionToken(f.sessionToken())
	f.emit(verified, address.MethodPrediction)

	return verified, nil
}

func (f *Flow) beginSelection() (uint64, []address.Prediction, error) {
	f.edit.Lock()
	defer f.edit.Unlock()

	f.mu.Lock()
	if err := f.usableLocked(); err != nil {
		f.mu.Unlock()

		return 0, nil, err
	}
	f.mu.Unlock()

	f.search.Cancel()

	f.mu.Lock()
	defer f.mu.Unlock()

	restore := f.predictions
	f.predictions = nil
	f.busy++

	return f.epoch, restore, nil
}

// selected builds the verified address for a picked prediction. Line2 is
// never provider-sourced.
func (f *Flow) selected(resolved address.StructuredAddress) address.StructuredAddress {
	resolved.Line2 = f.draft.Line2
	if resolved.Country == "" {
		resolved.Country = f.draft.Country
	}

	return resolved
}

// RequestVerification geocodes the manually typed fields and merges the
// answer into them. Fields the provider left blank keep their typed value
// and never count as a disagreement. A merge equal to the typed fields is
// Accepted, any other opens reconciliation and is returned as Unresolved.
// No answer at all keeps the typed fields and marks them verified. Provider
// failures leave the draft unchanged.
func (f *Flow) RequestVerification(ctx context.Context) (address.Outcome, error) {
	typed, epoch, err := f.beginVerification()
	if err != nil {
		return address.Outcome{}, err
	}

	resolved, found, err := f.resolver.Geocode(ctx, typed.OneLine())

	f.mu.Lock()
	f.busy--

	if f.epoch != epoch {
		f.mu.Unlock()

		return address.Outcome{}, ErrSuperseded
	}

	if err != nil {
		f.mu.Unlock()

		return address.Outcome{}, err
	}

	if !found {
		log.Printf("No geocoding result for %q, keeping the typed address", typed.OneLine())

		verified := f.verifyLocked(typed)
		f.mu.Unlock()
		f.emit(verified, address.MethodFailOpen)

		return address.Outcome{Kind: address.KeptOriginal, Address: verified}, nil
	}

	candidate := merge(typed, resolved)

	if address.NeedsReconciliation(typed, candidate) {
		f.candidate = &candidate
		f.state = PendingReconciliation
		f.mu.Unlock()

		return address.Outcome{Kind: address.Unresolved, Address: candidate}, nil
	}

	verified := f.verifyLocked(candidate)
	f.mu.Unlock()
	f.emit(verified, address.MethodGeocoded)

	return address.Outcome{Kind: address.Accepted, Address: verified}, nil
}

func (f *Flow) beginVerification() (address.StructuredAddress, uint64, error) {
	f.edit.Lock()
	defer f.edit.Unlock()

	f.mu.Lock()
	if err := f.usableLocked(); err != nil {
		f.mu.Unlock()

		return address.StructuredAddress{}, 0, err
	}

	if f.state == PendingReconciliation || f.state == Verified {
		f.mu.Unlock()

		return address.StructuredAddress{}, 0, ErrInvalidTransition
	}

	typed := trimmed(f.draft)
	if err := address.ValidateManualEntry(typed); err != nil {
		f.mu.Unlock()

		return address.StructuredAddress{}, 0, err
	}
	f.mu.Unlock()

	f.search.Cancel()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.predictions = nil
	if f.state == Searching {
		f.state = Editing
	}

	f.busy++

	return typed, f.epoch, nil
}

// AcceptSuggestion replaces the draft with the reconciliation candidate.
func (f *Flow) AcceptSuggestion() (address.StructuredAddress, error) {
	return f.reconcile(address.MethodSuggestion, func() address.StructuredAddress { return *f.candidate })
}

// KeepOriginal keeps the typed draft and marks it verified anyway.
func (f *Flow) KeepOriginal() (address.StructuredAddress, error) {
	return f.reconcile(address.MethodKeptOriginal, func() address.StructuredAddress { return trimmed(f.draft) })
}

func (f *Flow) reconcile(method address.Method, choose func() address.StructuredAddress) (address.StructuredAddress, error) {
	f.mu.Lock()

	if f.closed {
		f.mu.Unlock()

		return address.StructuredAddress{}, ErrClosed
	}

	if f.state != PendingReconciliation || f.candidate == nil {
		f.mu.Unlock()

		return address.StructuredAddress{}, ErrInvalidTransition
	}

	verified := f.verifyLocked(choose())
	f.mu.Unlock()
	f.emit(verified, method)

	return verified, nil
}

// verifyLocked installs a as the verified draft.
func (f *Flow) verifyLocked(a address.StructuredAddress) address.StructuredAddress {
	a.IsVerified = true
	f.draft = a
	f.candidate = nil
	f.state = Verified
	f.epoch++

	return a
}

func (f *Flow) rotateSessionLocked() {
	f.session = uuid.NewString()
}

func (f *Flow) sessionToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.session
}

func (f *Flow) emit(a address.StructuredAddress, method address.Method) {
	if f.opts.OnResolved != nil {
		f.opts.OnResolved(a, method)
	}
}

func (f *Flow) usableLocked() error {
	if f.closed {
		return ErrClosed
	}

	if !f.provider.Configured() {
		return places.ErrNotConfigured
	}

	return nil
}

// Snapshot returns a copy of the current state.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := Snapshot{
		State:       f.state,
		Draft:       f.draft,
		Predictions: append([]address.Prediction{}, f.predictions...),
		ZipFirst:    f.opts.ZipFirst,
		ZipState:    f.gate.State(),
		Zip:         f.gate.Zip(),
		Busy:        f.busy > 0,
		Configured:  f.provider.Configured(),
	}

	if f.candidate != nil {
		c := *f.candidate
		s.Candidate = &c
		s.Differences = address.Differences(trimmed(f.draft), c)
	}

	if !s.Configured {
		s.Message = places.ErrNotConfigured.Error()
	}

	return s
}

// Close stops the search and discards in-flight results. Later calls fail
// with ErrClosed.
func (f *Flow) Close() {
	f.edit.Lock()
	defer f.edit.Unlock()

	f.search.Close()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	f.epoch++
	f.predictions = nil
}

// Wait blocks until pending autocomplete searches have settled.
func (f *Flow) Wait() {
	f.search.Wait()
}

// merge fills the typed address with the resolved one. Resolved values win,
// typed ones are kept where the provider had nothing.
func merge(typed, resolved address.StructuredAddress) address.StructuredAddress {
	out := resolved
	out.Line2 = typed.Line2

	for _, fld := range []address.Field{address.FieldStreet, address.FieldCity, address.FieldState, address.FieldZipCode, address.FieldCountry} {
		if strings.TrimSpace(resolved.Get(fld)) == "" {
			out = out.With(fld, typed.Get(fld))
		}
	}

	out.IsVerified = false

	return out
}

func trimmed(a address.StructuredAddress) address.StructuredAddress {
	a.Street = strings.TrimSpace(a.Street)
	a.Line2 = strings.TrimSpace(a.Line2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.ZipCode = strings.TrimSpace(a.ZipCode)
	a.Country = strings.TrimSpace(a.Country)

	return a
}
