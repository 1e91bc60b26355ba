// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package numutils

import (
	"strconv"
)

// FormatInt formats an integer with commas for human readability.
func FormatInt(n int64) string {
	in := strconv.FormatInt(n, 10)

	numOfDigits := len(in)
	if n < 0 {
		numOfDigits-- // First character is the - sign (not a digit)
	}

	numOfCommas := (numOfDigits - 1) / 3

	out := make([]byte, len(in)+numOfCommas)
	if n < 0 {
		in, out[0] = in[1:], '-'
	}

	for i, j, k := len(in)-1, len(out)-1, 0; ; i, j = i-1, j-1 {
		out[j] = in[i]
		if i == 0 {
			return string(out)
		}

		if k++; k == 3 {
			j, k = j-1, 0
			out[j] = ','
		}
	}
}

// Percent renders part/total as a percentage with one decimal, or "-" when
// total is zero.
func Percent(part, total int64) string {
	if total == 0 {
		return "-"
	}

	return strconv.FormatFloat(100*float64(part)/float64(total), 'f', 1, 64) + "%"
}
