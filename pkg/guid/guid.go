// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package guid implements the mixed-endian GUID as stored in GPT
// partition entries. The first three fields are little-endian on disk,
// unlike the RFC 4122 byte order of uuid.UUID.
package guid

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	// Size represents number of bytes in a GUID
	Size = 16
	// UExample is a example of a string GUID
	UExample = "01234567-89ab-cdef-0123-456789abcdef"
	// StringSize is the length of the textual form plus the
	// terminating NUL a bootloader keeps in its partition info.
	StringSize = len(UExample) + 1
)

// GUID represents a unique identifier in on-disk byte order.
type GUID [Size]byte

// swap converts between on-disk and RFC 4122 byte order. It is its own
// inverse.
func swap(b [Size]byte) [Size]byte {
	b[0], b[1], b[2], b[3] = b[3], b[2], b[1], b[0]
	b[4], b[5] = b[5], b[4]
	b[6], b[7] = b[7], b[6]
	return b
}

// FromUUID returns u in on-disk byte order.
func FromUUID(u uuid.UUID) GUID {
	return GUID(swap(u))
}

// UUID returns g in RFC 4122 byte order.
func (g GUID) UUID() uuid.UUID {
	return uuid.UUID(swap(g))
}

// Parse parses a guid string. Hyphens are optional.
func Parse(s string) (*GUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("guid string not correct, need string of the format %v, got %v: %w",
			UExample, s, err)
	}
	g := FromUUID(u)
	return &g, nil
}

// MustParse parses a guid string or panics.
func MustParse(s string) *GUID {
	guid, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return guid
}

// IsZero reports whether the GUID is all zeroes, which GPT uses to mark
// an unused partition entry.
func (g GUID) IsZero() bool {
	return g == GUID{}
}

// String returns the lower-case textual form, the same form the
// kernel accepts in root=PARTUUID=.
func (g GUID) String() string {
	return g.UUID().String()
}
