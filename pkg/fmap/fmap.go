// Copyright 2017-2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fmap parses flash maps.
//
// A flash map is the partition layout of SPI-flash style boot media. When a
// boot medium carries no GPT, the areas of its flash map are exposed as
// partitions.
package fmap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	pkgbytes "github.com/linuxboot/boota/pkg/bytes"
)

// Signature of the fmap structure.
var Signature = []byte("__FMAP__")

// Flags which can be applied to Area.Flags.
const (
	FmapAreaStatic = 1 << iota
	FmapAreaCompressed
	FmapAreaReadOnly
)

// Namespace is the name-based UUID namespace from which area GUIDs are
// derived. Flash maps carry no identifiers of their own.
var Namespace = uuid.MustParse("5f8b1c9e-2d4a-4e61-9c0b-6a1f3e2d7b40")

// String is a fixed 32-byte NUL-padded name.
type String struct {
	Value [32]uint8
}

func (s *String) String() string {
	return strings.TrimRight(string(s.Value[:]), "\x00")
}

// NewString returns the fixed-size representation of name.
func NewString(name string) (String, error) {
	var s String
	if len(name) >= len(s.Value) {
		return s, fmt.Errorf("name %q does not fit in %d bytes", name, len(s.Value)-1)
	}
	copy(s.Value[:], name)
	return s, nil
}

// FMap structure serializable using encoding.Binary.
type FMap struct {
	Header
	Areas []Area
}

// Header describes the flash part.
type Header struct {
	Signature [8]uint8
	VerMajor  uint8
	VerMinor  uint8
	Base      uint64
	Size      uint32
	Name      String
	NAreas    uint16
}

// Area describes each area.
type Area struct {
	Offset uint32
	Size   uint32
	Name   String
	Flags  uint16
}

// Metadata contains additional data not part of the FMap.
type Metadata struct {
	Start uint64
}

func headerValid(h *Header) bool {
	if h.VerMajor != 1 {
		return false
	}
	if h.Size == 0 {
		return false
	}
	// The name must be NUL terminated.
	return bytes.Contains(h.Name.Value[:], []byte("\x00"))
}

// FlagNames returns human readable representation of the flags.
func FlagNames(flags uint16) string {
	var names []string
	for _, v := range []struct {
		val  uint16
		name string
	}{
		{FmapAreaStatic, "STATIC"},
		{FmapAreaCompressed, "COMPRESSED"},
		{FmapAreaReadOnly, "READ_ONLY"},
	} {
		if v.val&flags != 0 {
			names = append(names, v.name)
			flags &^= v.val
		}
	}
	if flags != 0 || len(names) == 0 {
		names = append(names, fmt.Sprintf("%#x", flags))
	}
	return strings.Join(names, "|")
}

var (
	errEOF           = errors.New("unexpected EOF while parsing fmap")
	errSigNotFound   = errors.New("cannot find FMAP signature")
	errMultipleFound = errors.New("found multiple fmap")
)

// IsNotFound reports whether err means the image has no flash map.
func IsNotFound(err error) bool {
	return errors.Is(err, errSigNotFound)
}

// MaxScanSize bounds how much of an image Read searches for a flash map.
// Flash maps live on SPI flash parts, which are far smaller.
const MaxScanSize = 256 << 20

// scanChunk is the window Read searches at a time.
const scanChunk = 64 << 10

// Read scans the first size bytes of r, up to MaxScanSize, for exactly one
// valid flash map.
func Read(r io.ReaderAt, size int64) (*FMap, *Metadata, error) {
	scan := size
	if scan > MaxScanSize {
		scan = MaxScanSize
	}

	var (
		found FMap
		meta  Metadata
		valid int
	)
	// Windows overlap by one signature less a byte, so a signature
	// straddling two windows is seen exactly once.
	buf := make([]byte, scanChunk+len(Signature)-1)
	for base := int64(0); base < scan; base += scanChunk {
		window := buf
		if rest := scan - base; rest < int64(len(window)) {
			window = window[:rest]
		}
		n, err := r.ReadAt(window, base)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, nil, err
		}
		window = window[:n]

		for start := 0; start < len(window); start += len(Signature) {
			next := bytes.Index(window[start:], Signature)
			if next == -1 || start+next >= scanChunk {
				break
			}
			start += next

			off := base + int64(start)
			candidate, err := readAt(io.NewSectionReader(r, off, size-off))
			if err != nil {
				return nil, nil, err
			}
			if candidate == nil {
				continue
			}
			found, meta = *candidate, Metadata{Start: uint64(off)}
			valid++
		}
	}
	switch {
	case valid >= 2:
		return nil, nil, errMultipleFound
	case valid == 1:
		return &found, &meta, nil
	}
	return nil, nil, errSigNotFound
}

// readAt decodes the flash map at the start of r. It returns nil for a
// signature whose header does not validate.
func readAt(r io.Reader) (*FMap, error) {
	var f FMap
	if err := binary.Read(r, binary.LittleEndian, &f.Header); err != nil {
		return nil, errEOF
	}
	if !headerValid(&f.Header) {
		return nil, nil
	}
	f.Areas = make([]Area, f.NAreas)
	if err := binary.Read(r, binary.LittleEndian, &f.Areas); err != nil {
		return nil, errEOF
	}
	return &f, nil
}

// New builds a flash map describing a flash part of the given size.
func New(name string, size uint32, areas []Area) (*FMap, error) {
	n, err := NewString(name)
	if err != nil {
		return nil, err
	}
	f := &FMap{
		Header: Header{VerMajor: 1, Size: size, Name: n, NAreas: uint16(len(areas))},
		Areas:  areas,
	}
	copy(f.Signature[:], Signature)
	return f, nil
}

// WriteAt serializes the flash map at offset off.
func (f *FMap) WriteAt(w io.WriterAt, off int64) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, f.Header); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.LittleEndian, f.Areas); err != nil {
		return err
	}
	_, err := w.WriteAt(buf.Bytes(), off)
	return err
}

// IndexOfArea returns the index of an area in the fmap given its name. If no
// names match, -1 is returned.
func (f *FMap) IndexOfArea(name string) int {
	for i := range f.Areas {
		if f.Areas[i].Name.String() == name {
			return i
		}
	}
	return -1
}

// Partition is a flash map area expressed in sectors.
type Partition struct {
	Name        string
	FirstSector uint64
	Sectors     uint64
	UUID        string
}

// Partitions converts the areas into sector-addressed partitions. Every
// area must start and end on a sector boundary and lie inside the flash.
// Names must be unique. Areas may nest, as a whole-flash or section area
// commonly does, but must not partially overlap.
func (f *FMap) Partitions(sectorSize uint32) ([]Partition, error) {
	if !pkgbytes.IsPowerOfTwo(uint64(sectorSize)) {
		return nil, fmt.Errorf("sector size %d is not a power of two", sectorSize)
	}
	var (
		result *multierror.Error
		parts  []Partition
		ranges []pkgbytes.Range
	)
	seen := map[string]bool{}
	for _, a := range f.Areas {
		name := a.Name.String()
		r := pkgbytes.Range{Offset: uint64(a.Offset), Length: uint64(a.Size)}
		if seen[name] {
			result = multierror.Append(result, fmt.Errorf("area %q is defined more than once", name))
			continue
		}
		seen[name] = true
		if a.Size == 0 {
			result = multierror.Append(result, fmt.Errorf("area %q is empty", name))
			continue
		}
		if !r.Within(uint64(f.Size)) {
			result = multierror.Append(result, fmt.Errorf("area %q %s exceeds flash size %#x", name, r, f.Size))
			continue
		}
		if !r.IsAligned(uint64(sectorSize)) {
			result = multierror.Append(result, fmt.Errorf("area %q %s is not aligned to %d-byte sectors", name, r, sectorSize))
			continue
		}
		for i, o := range ranges {
			if r.Intersect(o) && !r.Contains(o) && !o.Contains(r) {
				result = multierror.Append(result, fmt.Errorf("area %q %s partially overlaps %q %s", name, r, parts[i].Name, o))
			}
		}
		ranges = append(ranges, r)
		parts = append(parts, Partition{
			Name:        name,
			FirstSector: r.Offset / uint64(sectorSize),
			Sectors:     r.Length / uint64(sectorSize),
			UUID:        uuid.NewSHA1(Namespace, []byte(name)).String(),
		})
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return parts, nil
}
