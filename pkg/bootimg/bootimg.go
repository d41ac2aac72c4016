// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bootimg parses Android boot images.
//
// Header versions 0 and 1 decode to *HeaderV0, version 2 to *HeaderV2.
// Later versions moved the ramdisk out of the boot partition and are
// rejected with ErrUnsupportedVersion.
package bootimg

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	pkgbytes "github.com/linuxboot/boota/pkg/bytes"
)

// Boot image format constants.
const (
	Magic          = "ANDROID!"
	MagicSize      = 8
	NameSize       = 16
	ArgsSize       = 512
	ExtraArgsSize  = 1024
	HeaderV0Size   = 1632
	HeaderV1Size   = 1648
	HeaderV2Size   = 1660
	MinPageSize    = 2048
	versionOffset  = MagicSize + 8*4
	maxHeaderVer   = 2
	fdtHeaderBytes = 8
)

// DefaultKernelAddr is the kernel load address mkbootimg writes when no
// base is given. Boot environments usually override it.
const DefaultKernelAddr = 0x10008000

// FDTMagic starts every flattened device tree.
const FDTMagic = 0xd00dfeed

var (
	// ErrBadMagic is returned for data that is not a boot image.
	ErrBadMagic = errors.New("not an Android boot image")
	// ErrUnsupportedVersion is returned for header versions above 2.
	ErrUnsupportedVersion = errors.New("unsupported boot image header version")
	// ErrNoDTB is returned when the requested device tree does not exist.
	ErrNoDTB = errors.New("no device tree at index")
)

// HeaderV0 is the boot image header of versions 0 and 1. The v1 fields
// are zero for version 0.
type HeaderV0 struct {
	Magic         [MagicSize]byte
	KernelSize    uint32
	KernelAddr    uint32
	RamdiskSize   uint32
	RamdiskAddr   uint32
	SecondSize    uint32
	SecondAddr    uint32
	TagsAddr      uint32
	PageSize      uint32
	HeaderVersion uint32
	OSVersion     uint32
	Name          [NameSize]byte
	Cmdline       [ArgsSize]byte
	ID            [8]uint32
	ExtraCmdline  [ExtraArgsSize]byte

	RecoveryDTBOSize   uint32
	RecoveryDTBOOffset uint64
	HeaderSize         uint32
}

// HeaderV2 adds the device tree section.
type HeaderV2 struct {
	HeaderV0
	DTBSize uint32
	DTBAddr uint64
}

// Header is either *HeaderV0 or *HeaderV2.
type Header interface {
	Version() uint32
	Layout() Layout
	header() *HeaderV0
}

// Section is a payload inside the boot image.
type Section struct {
	Offset uint64
	Size   uint64
}

// Bytes returns the section contents out of the image it was parsed from.
func (s Section) Bytes(image []byte) []byte {
	return image[s.Offset : s.Offset+s.Size]
}

// Layout locates the payloads of a boot image. Every payload starts on a
// page boundary, in this order.
type Layout struct {
	Kernel       Section
	Ramdisk      Section
	Second       Section
	RecoveryDTBO Section
	DTB          Section
}

// End returns the offset just past the last non-empty section.
func (l Layout) End() uint64 {
	var end uint64
	for _, s := range []Section{l.Kernel, l.Ramdisk, l.Second, l.RecoveryDTBO, l.DTB} {
		if s.Size != 0 && s.Offset+s.Size > end {
			end = s.Offset + s.Size
		}
	}
	return end
}

// Version implements Header.
func (h *HeaderV0) Version() uint32 { return h.HeaderVersion }

func (h *HeaderV0) header() *HeaderV0 { return h }

func (h *HeaderV0) pageAlign(n uint64) uint64 {
	p := uint64(h.PageSize)
	return (n + p - 1) / p * p
}

// Layout implements Header.
func (h *HeaderV0) Layout() Layout {
	var l Layout
	off := uint64(h.PageSize)
	for _, s := range []struct {
		sec  *Section
		size uint32
	}{
		{&l.Kernel, h.KernelSize},
		{&l.Ramdisk, h.RamdiskSize},
		{&l.Second, h.SecondSize},
		{&l.RecoveryDTBO, h.RecoveryDTBOSize},
	} {
		*s.sec = Section{Offset: off, Size: uint64(s.size)}
		off += h.pageAlign(uint64(s.size))
	}
	return l
}

// Layout implements Header.
func (h *HeaderV2) Layout() Layout {
	l := h.HeaderV0.Layout()
	l.DTB = Section{
		Offset: l.RecoveryDTBO.Offset + h.pageAlign(l.RecoveryDTBO.Size),
		Size:   uint64(h.DTBSize),
	}
	return l
}

// Board returns the product name.
func (h *HeaderV0) Board() string {
	return cString(h.Name[:])
}

// CommandLine returns the command line stored in the header, including
// the extra part.
func (h *HeaderV0) CommandLine() string {
	return cString(h.Cmdline[:]) + cString(h.ExtraCmdline[:])
}

// OSVersionString decodes OSVersion as "A.B.C YYYY-MM".
func (h *HeaderV0) OSVersionString() string {
	v := h.OSVersion >> 11
	lvl := h.OSVersion & 0x7ff
	return fmt.Sprintf("%d.%d.%d %04d-%02d", v>>14, (v>>7)&0x7f, v&0x7f, 2000+(lvl>>4), lvl&0xf)
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Parse decodes the boot image header at the start of image and checks
// that every payload lies inside image.
func Parse(image []byte) (Header, error) {
	if len(image) < versionOffset+4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadMagic, len(image))
	}
	if string(image[:MagicSize]) != Magic {
		return nil, ErrBadMagic
	}
	version := binary.LittleEndian.Uint32(image[versionOffset:])
	if version > maxHeaderVer {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	var (
		hdr  Header
		dst  interface{}
		size int
	)
	switch version {
	case 0:
		h := &HeaderV0{}
		hdr, dst, size = h, h, HeaderV0Size
	case 1:
		h := &HeaderV0{}
		hdr, dst, size = h, h, HeaderV1Size
	case 2:
		h := &HeaderV2{}
		hdr, dst, size = h, h, HeaderV2Size
	}
	if len(image) < size {
		return nil, fmt.Errorf("boot image of %d bytes is shorter than its v%d header", len(image), version)
	}
	// Version 0 has no v1 fields; pad so the struct decodes with zeros.
	raw := make([]byte, binary.Size(dst))
	copy(raw, image[:size])
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, dst); err != nil {
		return nil, err
	}

	h := hdr.header()
	if h.PageSize < MinPageSize || !pkgbytes.IsPowerOfTwo(uint64(h.PageSize)) {
		return nil, fmt.Errorf("invalid page size %d", h.PageSize)
	}
	l := hdr.Layout()
	for _, s := range []struct {
		name string
		Section
	}{
		{"kernel", l.Kernel},
		{"ramdisk", l.Ramdisk},
		{"second", l.Second},
		{"recovery dtbo", l.RecoveryDTBO},
		{"dtb", l.DTB},
	} {
		if s.Size == 0 {
			continue
		}
		if !(pkgbytes.Range{Offset: s.Offset, Length: s.Size}).Within(uint64(len(image))) {
			return nil, fmt.Errorf("%s section at %#x+%#x exceeds boot image of %d bytes", s.name, s.Offset, s.Size, len(image))
		}
	}
	return hdr, nil
}

// DTBEntry returns the index-th flattened device tree of the dtb section.
// The section is a concatenation of FDT blobs, each carrying its size.
func (h *HeaderV2) DTBEntry(image []byte, index int) (Section, error) {
	dtb := h.Layout().DTB
	area := dtb.Bytes(image)
	var off uint64
	for i := 0; off+fdtHeaderBytes <= uint64(len(area)); i++ {
		if binary.BigEndian.Uint32(area[off:]) != FDTMagic {
			return Section{}, fmt.Errorf("bad FDT magic at dtb offset %#x", off)
		}
		size := uint64(binary.BigEndian.Uint32(area[off+4:]))
		if size < fdtHeaderBytes || off+size > uint64(len(area)) {
			return Section{}, fmt.Errorf("FDT at dtb offset %#x has invalid size %d", off, size)
		}
		if i == index {
			return Section{Offset: dtb.Offset + off, Size: size}, nil
		}
		off += size
	}
	return Section{}, fmt.Errorf("%w %d", ErrNoDTB, index)
}
