// Copyright 2019 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bytes implements the byte range arithmetic used to serve
// byte-granular requests out of block-granular storage.
package bytes

import (
	"fmt"
	"math/bits"
)

// Range defines is a generic bytes range headers.
type Range struct {
	Offset uint64
	Length uint64
}

func (r Range) String() string {
	return fmt.Sprintf(`{"Offset":"0x%x", "Length":"0x%x"}`, r.Offset, r.Length)
}

// End returns the first offset past the range. ok is false when the end
// does not fit into uint64.
func (r Range) End() (end uint64, ok bool) {
	end, carry := bits.Add64(r.Offset, r.Length, 0)
	return end, carry == 0
}

// Intersect returns True if ranges "r" and "cmp" has at least
// one byte with the same offset.
func (r Range) Intersect(cmp Range) bool {
	if r.Length == 0 || cmp.Length == 0 {
		return false
	}

	startIdx0 := r.Offset
	startIdx1 := cmp.Offset
	endIdx0 := startIdx0 + r.Length
	endIdx1 := startIdx1 + cmp.Length

	if endIdx0 <= startIdx1 {
		return false
	}
	if startIdx0 >= endIdx1 {
		return false
	}

	return true
}

// Contains reports whether every byte of inner lies inside r.
func (r Range) Contains(inner Range) bool {
	end, ok := r.End()
	innerEnd, innerOK := inner.End()
	return ok && innerOK && inner.Offset >= r.Offset && innerEnd <= end
}

// Within reports whether r lies completely inside [0, size).
func (r Range) Within(size uint64) bool {
	end, ok := r.End()
	return ok && end <= size
}

// IsPowerOfTwo reports whether blockSize is a usable block size.
func IsPowerOfTwo(blockSize uint64) bool {
	return blockSize != 0 && blockSize&(blockSize-1) == 0
}

// IsAligned reports whether both ends of r fall on blockSize
// boundaries. blockSize must be a power of two.
func (r Range) IsAligned(blockSize uint64) bool {
	mask := blockSize - 1
	return r.Offset&mask == 0 && r.Length&mask == 0
}

// Blocks describes the run of whole blocks covering a Range.
type Blocks struct {
	// First is the index of the first covered block.
	First uint64
	// Count is the number of covered blocks.
	Count uint64
	// Delta is the position of the range start inside the first block.
	Delta uint64
}

// Bytes returns the size of the covering run in bytes.
func (b Blocks) Bytes(blockSize uint64) uint64 {
	return b.Count * blockSize
}

// Cover returns the smallest run of blocks that contains r. blockSize
// must be a power of two and r must not overflow.
func (r Range) Cover(blockSize uint64) Blocks {
	mask := blockSize - 1
	delta := r.Offset & mask
	return Blocks{
		First: r.Offset / blockSize,
		Count: (delta + r.Length + mask) / blockSize,
		Delta: delta,
	}
}
