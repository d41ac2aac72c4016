// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package handoff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/u-root/u-root/pkg/dt"

	"github.com/linuxboot/boota/pkg/compression"
)

func testDTB(t *testing.T, chosen bool) []byte {
	t.Helper()
	root := &dt.Node{Children: []*dt.Node{
		{Name: "memory", Properties: []dt.Property{{Name: "device_type", Value: []byte("memory\x00")}}},
	}}
	if chosen {
		root.Children = append(root.Children, &dt.Node{Name: "chosen", Properties: []dt.Property{
			{Name: "bootargs", Value: []byte("old\x00")},
			{Name: "linux,initrd-start", Value: u64(1)},
			{Name: "linux,initrd-end", Value: u64(2)},
		}})
	}
	fdt := &dt.FDT{
		Header:   dt.Header{Magic: 0xd00dfeed, Version: 17, LastCompVersion: 16},
		RootNode: root,
	}
	var b bytes.Buffer
	_, err := fdt.Write(&b)
	require.NoError(t, err)
	return b.Bytes()
}

func chosenProps(t *testing.T, dtb []byte) map[string][]byte {
	t.Helper()
	fdt, err := dt.ReadFDT(bytes.NewReader(dtb))
	require.NoError(t, err)
	for _, n := range fdt.RootNode.Children {
		if n.Name == "chosen" {
			props := map[string][]byte{}
			for _, p := range n.Properties {
				props[p.Name] = p.Value
			}
			return props
		}
	}
	t.Fatal("no /chosen node")
	return nil
}

func TestFixupDeviceTree(t *testing.T) {
	for _, chosen := range []bool{false, true} {
		out, err := FixupDeviceTree(testDTB(t, chosen), "console=ttyS2", &[2]uint64{0x4000000, 0x4100000})
		require.NoError(t, err)
		props := chosenProps(t, out)
		assert.Equal(t, "console=ttyS2\x00", string(props["bootargs"]))
		assert.Equal(t, uint64(0x4000000), binary.BigEndian.Uint64(props["linux,initrd-start"]))
		assert.Equal(t, uint64(0x4100000), binary.BigEndian.Uint64(props["linux,initrd-end"]))
	}

	out, err := FixupDeviceTree(testDTB(t, true), "", nil)
	require.NoError(t, err)
	props := chosenProps(t, out)
	assert.Equal(t, "\x00", string(props["bootargs"]))
	assert.NotContains(t, props, "linux,initrd-start")
	assert.NotContains(t, props, "linux,initrd-end")

	_, err = FixupDeviceTree([]byte("garbage that is not a tree"), "", nil)
	assert.Error(t, err)
}

func testImages(t *testing.T, kernel []byte) *Images {
	t.Helper()
	ramdisk := bytes.Repeat([]byte{0x52}, 300)
	dtb := testDTB(t, false)
	var src []byte
	src = append(src, kernel...)
	rdStart := uint64(len(src))
	src = append(src, ramdisk...)
	fdtOff := uint64(len(src))
	src = append(src, dtb...)
	return &Images{
		Source:       src,
		Kernel:       Kernel{Start: 0, Len: uint64(len(kernel)), Load: 0x2080000, Entry: 0x2080000, End: uint64(len(src))},
		RamdiskStart: rdStart,
		RamdiskEnd:   rdStart + uint64(len(ramdisk)),
		FDTOffset:    fdtOff,
		FDTLen:       uint64(len(dtb)),
		Cmdline:      "root=/dev/dm-0",
	}
}

func TestStage(t *testing.T) {
	plain := bytes.Repeat([]byte("ARM64 kernel "), 1000)
	gz, err := (&compression.Gzip{}).Encode(plain)
	require.NoError(t, err)

	for name, kernel := range map[string][]byte{"raw": plain, "gzip": gz} {
		kernel := kernel
		t.Run(name, func(t *testing.T) {
			img := testImages(t, kernel)
			s, err := Stage(img, PhaseAll)
			require.NoError(t, err)
			assert.Equal(t, plain, s.Kernel)
			assert.Equal(t, bytes.Repeat([]byte{0x52}, 300), s.Ramdisk)
			assert.Equal(t, "root=/dev/dm-0", s.Cmdline)

			props := chosenProps(t, s.DTB)
			start := binary.BigEndian.Uint64(props["linux,initrd-start"])
			assert.Zero(t, start%0x1000)
			assert.GreaterOrEqual(t, start, img.Kernel.Load+uint64(len(plain)))
			assert.Equal(t, start+300, binary.BigEndian.Uint64(props["linux,initrd-end"]))

			// Staged payloads do not alias the source.
			img.Source[img.RamdiskStart] = 0
			assert.Equal(t, byte(0x52), s.Ramdisk[0])
		})
	}
}

func TestStagePhases(t *testing.T) {
	img := testImages(t, []byte("kernel"))
	s, err := Stage(img, PhaseRamdisk)
	require.NoError(t, err)
	assert.Nil(t, s.Kernel)
	assert.Nil(t, s.DTB)
	assert.NotNil(t, s.Ramdisk)
}

func TestStageErrors(t *testing.T) {
	img := testImages(t, []byte("kernel"))
	img.RamdiskEnd = uint64(len(img.Source)) + 1
	_, err := Stage(img, PhaseRamdisk)
	assert.ErrorContains(t, err, "ramdisk")

	img = testImages(t, []byte("kernel"))
	img.Kernel.Compression = "GZIP"
	_, err = Stage(img, PhaseLoadOS)
	assert.ErrorContains(t, err, "kernel compression")

	img = testImages(t, bytes.Repeat([]byte{1}, 64))
	img.Memory.Size = 32
	_, err = Stage(img, PhaseLoadOS)
	assert.ErrorContains(t, err, "exceeds")

	img = testImages(t, []byte{0x1f, 0x8b, 0, 0})
	_, err = Stage(img, PhaseLoadOS)
	assert.ErrorContains(t, err, "GZIP")
}

func TestStageKernelBomb(t *testing.T) {
	gz, err := (&compression.Gzip{}).Encode(make([]byte, 8<<20))
	require.NoError(t, err)

	img := testImages(t, gz)
	img.Memory.Size = 1 << 20
	_, err = Stage(img, PhaseLoadOS)
	assert.ErrorContains(t, err, "exceeds 1.0 MiB of load memory")
	assert.True(t, errors.Is(err, compression.ErrTooLarge))
}

func TestDump(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	d := &Dump{Dir: dir}

	require.NoError(t, d.Boot(testImages(t, []byte("kernel")), PhaseAll&^PhaseOSGo))
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	require.NotNil(t, d.Last)

	require.NoError(t, d.Boot(testImages(t, []byte("kernel")), PhaseAll))
	for _, name := range []string{"kernel", "ramdisk", "dtb", "cmdline"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	cmdline, err := os.ReadFile(filepath.Join(dir, "cmdline"))
	require.NoError(t, err)
	assert.Equal(t, "root=/dev/dm-0\n", string(cmdline))
	kernel, err := os.ReadFile(filepath.Join(dir, "kernel"))
	require.NoError(t, err)
	assert.Equal(t, "kernel", string(kernel))
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "ramdisk|loados|osprep|osgo", PhaseAll.String())
	assert.Equal(t, "loados|osgo", (PhaseLoadOS | PhaseOSGo).String())
	assert.Equal(t, "none", Phase(0).String())
}
