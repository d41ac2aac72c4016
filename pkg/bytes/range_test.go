// Copyright 2019 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytes

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRangeIntersect(t *testing.T) {
	require.True(t, Range{Offset: 0, Length: 3}.Intersect(Range{Offset: 2, Length: 3}))
	require.False(t, Range{Offset: 0, Length: 2}.Intersect(Range{Offset: 2, Length: 3}))
	require.False(t, Range{Offset: 0, Length: 0}.Intersect(Range{Offset: 0, Length: 3}))
}

func TestRangeWithin(t *testing.T) {
	require.True(t, Range{Offset: 0, Length: 4096}.Within(4096))
	require.True(t, Range{Offset: 4032, Length: 64}.Within(4096))
	require.False(t, Range{Offset: 4033, Length: 64}.Within(4096))
	require.False(t, Range{Offset: math.MaxUint64, Length: 2}.Within(math.MaxUint64))
}

func TestRangeContains(t *testing.T) {
	flash := Range{Offset: 0, Length: 0x10000}
	require.True(t, flash.Contains(Range{Offset: 0x1000, Length: 0x1000}))
	require.True(t, flash.Contains(flash))
	require.False(t, flash.Contains(Range{Offset: 0xf000, Length: 0x2000}))
	require.False(t, Range{Offset: 0x1000, Length: 0x1000}.Contains(flash))
	require.False(t, flash.Contains(Range{Offset: math.MaxUint64, Length: 2}))
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, v := range []uint64{1, 2, 512, 4096} {
		require.True(t, IsPowerOfTwo(v), v)
	}
	for _, v := range []uint64{0, 3, 520, 4095} {
		require.False(t, IsPowerOfTwo(v), v)
	}
}

func TestRangeCover(t *testing.T) {
	for _, tc := range []struct {
		name    string
		r       Range
		aligned bool
		want    Blocks
	}{
		{
			name:    "aligned",
			r:       Range{Offset: 1024, Length: 1024},
			aligned: true,
			want:    Blocks{First: 2, Count: 2},
		},
		{
			name: "short_inside_block",
			r:    Range{Offset: 10, Length: 20},
			want: Blocks{First: 0, Count: 1, Delta: 10},
		},
		{
			name: "crosses_block_boundary",
			r:    Range{Offset: 500, Length: 100},
			want: Blocks{First: 0, Count: 2, Delta: 500},
		},
		{
			name: "aligned_start_odd_length",
			r:    Range{Offset: 512, Length: 513},
			want: Blocks{First: 1, Count: 2},
		},
		{
			name: "footer",
			r:    Range{Offset: 8*512 - 64, Length: 64},
			want: Blocks{First: 7, Count: 1, Delta: 448},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.aligned, tc.r.IsAligned(512))
			got := tc.r.Cover(512)
			require.Equal(t, tc.want, got)
			require.GreaterOrEqual(t, got.Bytes(512), got.Delta+tc.r.Length)
		})
	}
}
