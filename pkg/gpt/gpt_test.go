// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gpt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxboot/boota/pkg/guid"
)

type memDisk []byte

func (m memDisk) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(m)) {
		return 0, errors.New("out of range")
	}
	return copy(p, m[off:]), nil
}

func (m memDisk) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(m)) {
		return 0, errors.New("out of range")
	}
	return copy(m[off:], p), nil
}

var linuxData = *guid.MustParse("0fc63daf-8483-4772-8e79-3d69d8477de4")

func sampleTable(sectorSize uint32) *Table {
	first := FirstUsableLBA(sectorSize)
	return &Table{
		DiskGUID: *guid.MustParse("9a3b6c1e-1111-4a2b-8c3d-000000000001"),
		Partitions: []Partition{
			{Name: "boot_a", Type: linuxData, Unique: *guid.MustParse("1b2c3d4e-0000-4000-8000-00000000000a"), FirstLBA: first, LastLBA: first + 15},
			{Name: "vbmeta_a", Type: linuxData, Unique: *guid.MustParse("1b2c3d4e-0000-4000-8000-00000000000b"), FirstLBA: first + 16, LastLBA: first + 23},
		},
	}
}

func TestWriteRead(t *testing.T) {
	for _, sectorSize := range []uint32{512, 4096} {
		const total = 128
		disk := make(memDisk, total*int(sectorSize))
		in := sampleTable(sectorSize)
		require.NoError(t, in.Write(disk, sectorSize, total))

		assert.Equal(t, byte(0xee), disk[446+4])
		assert.Equal(t, []byte{0x55, 0xaa}, []byte(disk[510:512]))

		out, err := Read(disk, sectorSize)
		require.NoError(t, err)
		assert.Equal(t, in.DiskGUID, out.DiskGUID)
		assert.Equal(t, in.Partitions, out.Partitions)

		p, ok := out.Find("vbmeta_a")
		require.True(t, ok)
		assert.Equal(t, uint64(8), p.Sectors())
		_, ok = out.Find("vbmeta_b")
		assert.False(t, ok)

		// The backup header lives in the last sector.
		assert.Equal(t, Signature[:], []byte(disk[(total-1)*int(sectorSize):(total-1)*int(sectorSize)+8]))
	}
}

// patchHeader rewrites the primary header of disk through fn and fixes up
// its checksum.
func patchHeader(t *testing.T, disk memDisk, sectorSize uint32, fn func(*Header)) {
	t.Helper()
	var h Header
	require.NoError(t, binary.Read(bytes.NewReader(disk[sectorSize:]), binary.LittleEndian, &h))
	fn(&h)
	h.HeaderCRC = headerCRC(h)
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &h))
	copy(disk[sectorSize:], buf.Bytes())
}

func TestReadErrors(t *testing.T) {
	const sectorSize, total = 512, 128
	fresh := func() memDisk {
		disk := make(memDisk, total*sectorSize)
		require.NoError(t, sampleTable(sectorSize).Write(disk, sectorSize, total))
		return disk
	}

	t.Run("no_signature", func(t *testing.T) {
		_, err := Read(make(memDisk, total*sectorSize), sectorSize)
		assert.ErrorIs(t, err, ErrNoSignature)
	})
	t.Run("header_crc", func(t *testing.T) {
		disk := fresh()
		disk[sectorSize+40] ^= 0xff
		_, err := Read(disk, sectorSize)
		assert.ErrorIs(t, err, ErrHeaderCRC)
	})
	t.Run("entries_crc", func(t *testing.T) {
		disk := fresh()
		disk[2*sectorSize+56] ^= 0x01
		_, err := Read(disk, sectorSize)
		assert.ErrorIs(t, err, ErrEntriesCRC)
	})
	t.Run("truncated", func(t *testing.T) {
		disk := fresh()
		_, err := Read(disk[:sectorSize+100], sectorSize)
		assert.Error(t, err)
	})
	for name, size := range map[string]uint32{"huge_entry": 1 << 20, "max_entry": 0xfffffff8} {
		size := size
		t.Run(name, func(t *testing.T) {
			disk := fresh()
			patchHeader(t, disk, sectorSize, func(h *Header) {
				h.NumEntries = MaxEntries
				h.EntrySize = size
			})
			_, err := Read(disk, sectorSize)
			assert.ErrorContains(t, err, "invalid GPT entry size")
		})
	}
	t.Run("entry_array_too_large", func(t *testing.T) {
		const bigSector = 4096
		disk := make(memDisk, total*bigSector)
		require.NoError(t, sampleTable(bigSector).Write(disk, bigSector, total))
		patchHeader(t, disk, bigSector, func(h *Header) {
			h.NumEntries = MaxEntries
			h.EntrySize = bigSector
		})
		_, err := Read(disk, bigSector)
		assert.ErrorContains(t, err, "exceeds")
	})
	t.Run("overlap", func(t *testing.T) {
		disk := fresh()
		// Move vbmeta_a into the middle of boot_a.
		entry := disk[2*sectorSize+EntrySize:]
		binary.LittleEndian.PutUint64(entry[32:], FirstUsableLBA(sectorSize)+10)
		patchHeader(t, disk, sectorSize, func(h *Header) {
			h.EntriesCRC = crc32.ChecksumIEEE(disk[2*sectorSize : 2*sectorSize+NumEntries*EntrySize])
		})
		_, err := Read(disk, sectorSize)
		assert.ErrorContains(t, err, `"boot_a"`)
		assert.ErrorContains(t, err, "overlaps")
	})
}

func TestWriteRejectsBadPartitions(t *testing.T) {
	const sectorSize, total = 512, 128
	disk := make(memDisk, total*sectorSize)
	tbl := &Table{Partitions: []Partition{
		{Name: "early", Type: linuxData, FirstLBA: 1, LastLBA: 40},
		{Name: "late", Type: linuxData, FirstLBA: 100, LastLBA: total},
		{Name: "a-name-that-does-not-fit-into-36-code-units", Type: linuxData, FirstLBA: 60, LastLBA: 61},
	}}
	err := tbl.Write(disk, sectorSize, total)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 errors occurred")

	first := FirstUsableLBA(sectorSize)
	tbl = &Table{Partitions: []Partition{
		{Name: "boot_a", Type: linuxData, FirstLBA: first, LastLBA: first + 15},
		{Name: "boot_b", Type: linuxData, FirstLBA: first + 15, LastLBA: first + 30},
	}}
	assert.ErrorContains(t, tbl.Write(disk, sectorSize, total), "overlaps")
}

func TestNameDecoding(t *testing.T) {
	raw, err := encodeName("système")
	require.NoError(t, err)
	name, err := decodeName(raw[:])
	require.NoError(t, err)
	assert.Equal(t, "système", name)

	// A name using all 36 code units has no terminator.
	for i := 0; i < NameLen; i++ {
		binary.LittleEndian.PutUint16(raw[2*i:], 'x')
	}
	name, err = decodeName(raw[:])
	require.NoError(t, err)
	assert.Len(t, name, NameLen)
}
