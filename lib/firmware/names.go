// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package firmware

import (
	"strings"
)

// readName decodes a fixed-width NUL-padded text field.
func readName(b []byte, maxLen int) string {
	if len(b) > maxLen {
		b = b[:maxLen]
	}
	return strings.TrimRight(string(b), "\x00")
}

// writeName encodes s into a fixed-width NUL-padded field, silently
// truncating names longer than the field.
func writeName(b []byte, maxLen int, s string) {
	raw := []byte(s)
	if len(raw) > maxLen {
		raw = raw[:maxLen]
	}
	copy(b, raw)
	for i := len(raw); i < maxLen; i++ {
		b[i] = 0
	}
}
