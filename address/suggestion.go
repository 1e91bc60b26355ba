// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package address

import (
	"strings"

	"golang.org/x/text/cases"
)

// comparedFields are the fields checked by NeedsReconciliation, in display
// order.
var comparedFields = []Field{FieldStreet, FieldCity, FieldState, FieldZipCode}

// NeedsReconciliation reports whether a resolved address materially differs
// from what the user typed. Street, city and state compare case-insensitively
// after trimming; the zip code compares exactly, so leading zeros matter.
func NeedsReconciliation(typed, resolved StructuredAddress) bool {
	return len(Differences(typed, resolved)) > 0
}

// Differences returns the compared fields that differ between typed and
// resolved.
func Differences(typed, resolved StructuredAddress) []Field {
	var diffs []Field

	for _, f := range comparedFields {
		if !sameValue(f, typed.Get(f), resolved.Get(f)) {
			diffs = append(diffs, f)
		}
	}

	return diffs
}

func sameValue(f Field, a, b string) bool {
	if f == FieldZipCode {
		return a == b
	}

	return fold(a) == fold(b)
}

// fold normalizes a value for caseless comparison. A Caser is stateful, so a
// fresh one is created per call.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
