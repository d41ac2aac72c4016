// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package env

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	e := New(4096)
	e.Set("bootargs", "console=ttyS2,1500000")
	e.Set("loadaddr", "0x02080000")
	e.Set("empty", "")
	e.Set("gone", "1")
	e.Delete("gone")

	var buf bytes.Buffer
	n, err := e.WriteTo(&buf)
	require.NoError(t, err)
	assert.EqualValues(t, 4096, n)

	got, err := Load(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 4096, got.Size())
	assert.Equal(t, []string{"bootargs", "empty", "loadaddr"}, got.Keys())
	v, ok := got.Get("bootargs")
	assert.True(t, ok)
	assert.Equal(t, "console=ttyS2,1500000", v)
	v, ok = got.Get("empty")
	assert.True(t, ok)
	assert.Empty(t, v)
	_, ok = got.Get("gone")
	assert.False(t, ok)
}

func TestLayout(t *testing.T) {
	e := New(64)
	e.Set("b", "2")
	e.Set("a", "1")
	b, err := e.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, 64)
	assert.Equal(t, "a=1\x00b=2\x00\x00", string(b[4:13]))
	assert.Equal(t, make([]byte, 64-13), b[13:])
	assert.Equal(t, crc32.ChecksumIEEE(b[4:]), binary.LittleEndian.Uint32(b))
}

func TestLoadErrors(t *testing.T) {
	e := New(64)
	e.Set("a", "1")
	good, err := e.MarshalBinary()
	require.NoError(t, err)

	bad := append([]byte{}, good...)
	bad[5] = 'x'
	_, err = Load(bad)
	assert.True(t, errors.Is(err, ErrBadCRC))

	_, err = Load(good[:4])
	assert.Error(t, err)

	noEq := make([]byte, 16)
	copy(noEq[4:], "junk\x00\x00")
	binary.LittleEndian.PutUint32(noEq, crc32.ChecksumIEEE(noEq[4:]))
	_, err = Load(noEq)
	assert.ErrorContains(t, err, "malformed")

	unterminated := make([]byte, 8)
	copy(unterminated[4:], "a=bc")
	binary.LittleEndian.PutUint32(unterminated, crc32.ChecksumIEEE(unterminated[4:]))
	_, err = Load(unterminated)
	assert.ErrorContains(t, err, "unterminated")
}

func TestMarshalErrors(t *testing.T) {
	e := New(16)
	e.Set("bootargs", strings.Repeat("x", 32))
	_, err := e.MarshalBinary()
	assert.True(t, errors.Is(err, ErrTooLarge))

	e = New(0)
	assert.Equal(t, DefaultSize, e.Size())
	e.Set("a=b", "1")
	e.Set("c", "nul\x00")
	_, err = e.MarshalBinary()
	assert.ErrorContains(t, err, "2 errors occurred")
}

func TestFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uboot.env")
	_, err := ReadFile(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	e := New(256)
	e.Set("avb_device_locked", "1")
	require.NoError(t, e.WriteFile(path))

	got, err := ReadFile(path)
	require.NoError(t, err)
	v, _ := got.Get("avb_device_locked")
	assert.Equal(t, "1", v)

	require.NoError(t, os.WriteFile(path, make([]byte, 256), 0o644))
	_, err = ReadFile(path)
	assert.True(t, errors.Is(err, ErrBadCRC))
}
