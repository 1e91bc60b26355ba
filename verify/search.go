// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jcodagnone/addrverify/address"
	"github.com/jcodagnone/addrverify/places"
)

// Search defaults.
const (
	DefaultDebounce      = 300 * time.Millisecond
	DefaultMinLength     = 3
	DefaultSearchTimeout = 10 * time.Second
)

// SearchOptions tunes a SearchController.
type SearchOptions struct {
	// Debounce is how long the text must stay unchanged before searching.
	Debounce time.Duration
	// MinLength is the minimum number of characters that triggers a search.
	MinLength int
	// Timeout bounds a single provider search.
	Timeout time.Duration
}

// DefaultSearchOptions returns the 300ms / 3 characters / 10s defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Debounce:  DefaultDebounce,
		MinLength: DefaultMinLength,
		Timeout:   DefaultSearchTimeout,
	}
}

func (o SearchOptions) withDefaults() SearchOptions {
	d := DefaultSearchOptions()
	if o.Debounce <= 0 {
		o.Debounce = d.Debounce
	}

	if o.MinLength <= 0 {
		o.MinLength = d.MinLength
	}

	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}

	return o
}

// SearchListener observes visible changes of a SearchController. pending is
// true while a search is scheduled or in flight. It is called with the
// controller lock held and must not call back into the controller.
type SearchListener func(predictions []address.Prediction, pending bool)

// SearchController turns a stream of keystrokes into at most one provider
// search per settled input. Every scheduled search carries a sequence number
// and only the latest one may update the predictions.
type SearchController struct {
	provider Provider
	opts     SearchOptions

	mu          sync.Mutex
	seq         uint64
	timer       *time.Timer
	bias        *places.LocationBias
	session     string
	predictions []address.Prediction
	pending     bool
	listener    SearchListener
	closed      bool

	// inflight counts scheduled timers and running searches.
	inflight sync.WaitGroup
}

// NewSearchController creates a controller. Zero options take the defaults.
func NewSearchController(provider Provider, opts SearchOptions, listener SearchListener) *SearchController {
	return &SearchController{
		provider: provider,
		opts:     opts.withDefaults(),
		listener: listener,
	}
}

// OnTextChanged reports the full text of the street field. It cancels the
// pending search and schedules a new one after the debounce window. Text
// shorter than MinLength clears the predictions without contacting the
// provider.
func (c *SearchController) OnTextChanged(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.stopLocked()
	c.seq++

	query := strings.TrimSpace(text)
	if utf8.RuneCountInString(query) < c.opts.MinLength {
		c.updateLocked(nil, false)

		return
	}

	seq := c.seq

	c.inflight.Add(1)
	c.timer = time.AfterFunc(c.opts.Debounce, func() { c.run(seq, query) })
	c.updateLocked(nil, true)
}

func (c *SearchController) run(seq uint64, query string) {
	defer c.inflight.Done()

	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()

		return
	}

	c.timer = nil
	bias, session := c.bias, c.session
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
	defer cancel()

	if session != "" {
		ctx = places.WithSessionToken(ctx, session)
	}

	predictions, err := c.provider.Search(ctx, query, bias)
	if err != nil {
		log.Printf("Address search for %q failed (%s), showing no suggestions: %v", query, places.Reason(err), err)

		predictions = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || seq != c.seq {
		return
	}

	c.updateLocked(predictions, false)
}

// SetBias sets the location hint used by the next searches.
func (c *SearchController) SetBias(bias *places.LocationBias) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bias = bias
}

// Bias returns the current location hint.
func (c *SearchController) Bias() *places.LocationBias {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.bias
}

// SetSessionToken sets the autocomplete session token sent with searches.
func (c *SearchController) SetSessionToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session = token
}

// Predictions returns the visible predictions.
func (c *SearchController) Predictions() []address.Prediction {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]address.Prediction(nil), c.predictions...)
}

// Pending reports whether a search is scheduled or in flight.
func (c *SearchController) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pending
}

// Cancel stops the pending timer, discards in-flight results and clears the
// predictions. The listener is not notified: the caller owns that
// transition.
func (c *SearchController) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLocked()
}

// Close cancels everything and ignores later keystrokes.
func (c *SearchController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLocked()
	c.closed = true
}

// Wait blocks until no search is scheduled or running.
func (c *SearchController) Wait() {
	c.inflight.Wait()
}

func (c *SearchController) cancelLocked() {
	c.stopLocked()
	c.seq++
	c.predictions = nil
	c.pending = false
}

func (c *SearchController) stopLocked() {
	if c.timer != nil && c.timer.Stop() {
		c.inflight.Done()
	}

	c.timer = nil
}

func (c *SearchController) updateLocked(predictions []address.Prediction, pending bool) {
	c.predictions = predictions
	c.pending = pending

	if c.listener != nil {
		c.listener(append([]address.Prediction(nil), predictions...), pending)
	}
}
