// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gpt reads and writes GUID partition tables.
//
// Only the structures a bootloader needs to locate partitions by name are
// implemented: the protective MBR, the primary/backup headers and the
// partition entry array.
package gpt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/text/encoding/unicode"

	pkgbytes "github.com/linuxboot/boota/pkg/bytes"
	"github.com/linuxboot/boota/pkg/guid"
)

// Signature of the GPT header.
var Signature = [8]byte{'E', 'F', 'I', ' ', 'P', 'A', 'R', 'T'}

// Constants from the UEFI specification.
const (
	Revision       = 0x00010000
	HeaderSize     = 92
	EntrySize      = 128
	NumEntries     = 128
	NameLen        = 36
	mbrTypeGPT     = 0xee
	mbrSignatureLo = 0x55
	mbrSignatureHi = 0xaa

	// MaxEntries and MaxEntryArraySize bound the entry array Read accepts.
	MaxEntries        = 1024
	MaxEntryArraySize = 1 << 20
)

var (
	// ErrNoSignature is returned when the sector after the MBR does not
	// hold a GPT header.
	ErrNoSignature = errors.New("cannot find GPT signature")
	// ErrHeaderCRC is returned when the header checksum does not match.
	ErrHeaderCRC = errors.New("GPT header CRC mismatch")
	// ErrEntriesCRC is returned when the entry array checksum does not match.
	ErrEntriesCRC = errors.New("GPT partition entry array CRC mismatch")
)

// Header is the on-disk GPT header.
type Header struct {
	Signature      [8]byte
	Revision       uint32
	HeaderSize     uint32
	HeaderCRC      uint32
	Reserved       uint32
	CurrentLBA     uint64
	BackupLBA      uint64
	FirstUsableLBA uint64
	LastUsableLBA  uint64
	DiskGUID       guid.GUID
	EntriesLBA     uint64
	NumEntries     uint32
	EntrySize      uint32
	EntriesCRC     uint32
}

// Entry is the on-disk partition entry.
type Entry struct {
	Type       guid.GUID
	Unique     guid.GUID
	FirstLBA   uint64
	LastLBA    uint64
	Attributes uint64
	Name       [NameLen * 2]byte
}

// Partition is a decoded, used partition entry.
type Partition struct {
	Name       string
	Type       guid.GUID
	Unique     guid.GUID
	FirstLBA   uint64
	LastLBA    uint64
	Attributes uint64
}

// Sectors returns the number of sectors covered by the partition.
func (p Partition) Sectors() uint64 {
	return p.LastLBA - p.FirstLBA + 1
}

// Table is a decoded partition table.
type Table struct {
	DiskGUID   guid.GUID
	Partitions []Partition
}

// Find returns the partition with the given name.
func (t *Table) Find(name string) (Partition, bool) {
	for _, p := range t.Partitions {
		if p.Name == name {
			return p, true
		}
	}
	return Partition{}, false
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func decodeName(raw []byte) (string, error) {
	// The name is NUL-terminated unless it uses all 36 code units.
	end := len(raw)
	for i := 0; i+1 < len(raw); i += 2 {
		if raw[i] == 0 && raw[i+1] == 0 {
			end = i
			break
		}
	}
	return utf16le.NewDecoder().String(string(raw[:end]))
}

func encodeName(name string) ([NameLen * 2]byte, error) {
	var out [NameLen * 2]byte
	b, err := utf16le.NewEncoder().Bytes([]byte(name))
	if err != nil {
		return out, err
	}
	if len(b) > len(out) {
		return out, fmt.Errorf("partition name %q is longer than %d UTF-16 code units", name, NameLen)
	}
	copy(out[:], b)
	return out, nil
}

func headerCRC(h Header) uint32 {
	h.HeaderCRC = 0
	var buf bytes.Buffer
	// Writing into a bytes.Buffer cannot fail.
	_ = binary.Write(&buf, binary.LittleEndian, &h)
	return crc32.ChecksumIEEE(buf.Bytes()[:HeaderSize])
}

// Read parses the primary GPT of a disk whose logical block size is
// sectorSize.
func Read(r io.ReaderAt, sectorSize uint32) (*Table, error) {
	raw := make([]byte, sectorSize)
	if _, err := r.ReadAt(raw, int64(sectorSize)); err != nil {
		return nil, fmt.Errorf("unable to read GPT header: %w", err)
	}

	var hdr Header
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("unable to parse GPT header: %w", err)
	}
	if hdr.Signature != Signature {
		return nil, ErrNoSignature
	}
	if hdr.HeaderSize < HeaderSize || hdr.HeaderSize > sectorSize {
		return nil, fmt.Errorf("invalid GPT header size %d", hdr.HeaderSize)
	}
	if headerCRC(hdr) != hdr.HeaderCRC {
		return nil, ErrHeaderCRC
	}
	if hdr.EntrySize < EntrySize || hdr.EntrySize > sectorSize || hdr.EntrySize%8 != 0 {
		return nil, fmt.Errorf("invalid GPT entry size %d", hdr.EntrySize)
	}
	if hdr.NumEntries > MaxEntries {
		return nil, fmt.Errorf("too many GPT entries: %d", hdr.NumEntries)
	}
	if n := uint64(hdr.NumEntries) * uint64(hdr.EntrySize); n > MaxEntryArraySize {
		return nil, fmt.Errorf("GPT entry array of %d bytes exceeds %d", n, MaxEntryArraySize)
	}

	entries := make([]byte, int(hdr.NumEntries)*int(hdr.EntrySize))
	if _, err := r.ReadAt(entries, int64(hdr.EntriesLBA)*int64(sectorSize)); err != nil {
		return nil, fmt.Errorf("unable to read GPT entries: %w", err)
	}
	if crc32.ChecksumIEEE(entries) != hdr.EntriesCRC {
		return nil, ErrEntriesCRC
	}

	table := &Table{DiskGUID: hdr.DiskGUID}
	var result *multierror.Error
	for i := 0; i < int(hdr.NumEntries); i++ {
		var e Entry
		chunk := entries[i*int(hdr.EntrySize) : i*int(hdr.EntrySize)+EntrySize]
		if err := binary.Read(bytes.NewReader(chunk), binary.LittleEndian, &e); err != nil {
			return nil, fmt.Errorf("unable to parse GPT entry %d: %w", i, err)
		}
		if e.Type.IsZero() {
			continue
		}
		name, err := decodeName(e.Name[:])
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("entry %d: bad name: %w", i, err))
			continue
		}
		if e.LastLBA < e.FirstLBA {
			result = multierror.Append(result, fmt.Errorf("entry %d (%q): last LBA %d before first LBA %d", i, name, e.LastLBA, e.FirstLBA))
			continue
		}
		if e.FirstLBA < hdr.FirstUsableLBA || e.LastLBA > hdr.LastUsableLBA {
			result = multierror.Append(result, fmt.Errorf("entry %d (%q): LBA range [%d, %d] outside usable area [%d, %d]",
				i, name, e.FirstLBA, e.LastLBA, hdr.FirstUsableLBA, hdr.LastUsableLBA))
			continue
		}
		table.Partitions = append(table.Partitions, Partition{
			Name:       name,
			Type:       e.Type,
			Unique:     e.Unique,
			FirstLBA:   e.FirstLBA,
			LastLBA:    e.LastLBA,
			Attributes: e.Attributes,
		})
	}
	result = multierror.Append(result, overlaps(table.Partitions)...)
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return table, nil
}

// overlaps reports every pair of partitions sharing an LBA.
func overlaps(parts []Partition) []error {
	var errs []error
	for i := range parts {
		a := pkgbytes.Range{Offset: parts[i].FirstLBA, Length: parts[i].Sectors()}
		for j := i + 1; j < len(parts); j++ {
			b := pkgbytes.Range{Offset: parts[j].FirstLBA, Length: parts[j].Sectors()}
			if a.Intersect(b) {
				errs = append(errs, fmt.Errorf("partition %q %s overlaps %q %s", parts[i].Name, a, parts[j].Name, b))
			}
		}
	}
	return errs
}

// entrySectors returns how many sectors the entry array occupies.
func entrySectors(sectorSize uint32) uint64 {
	return (NumEntries*EntrySize + uint64(sectorSize) - 1) / uint64(sectorSize)
}

// FirstUsableLBA returns the first LBA available for partitions on a disk
// written by Write.
func FirstUsableLBA(sectorSize uint32) uint64 {
	return 2 + entrySectors(sectorSize)
}

// LastUsableLBA returns the last LBA available for partitions on a disk of
// totalSectors sectors written by Write.
func LastUsableLBA(sectorSize uint32, totalSectors uint64) uint64 {
	return totalSectors - 2 - entrySectors(sectorSize)
}

// Write writes a protective MBR, the primary and the backup GPT for t onto
// a disk of totalSectors sectors.
func (t *Table) Write(w io.WriterAt, sectorSize uint32, totalSectors uint64) error {
	if len(t.Partitions) > NumEntries {
		return fmt.Errorf("too many partitions: %d > %d", len(t.Partitions), NumEntries)
	}
	nEntrySectors := entrySectors(sectorSize)
	if totalSectors < 2*nEntrySectors+4 {
		return fmt.Errorf("disk of %d sectors is too small for a GPT", totalSectors)
	}
	first := FirstUsableLBA(sectorSize)
	last := LastUsableLBA(sectorSize, totalSectors)

	var result *multierror.Error
	var valid []Partition
	entries := make([]byte, nEntrySectors*uint64(sectorSize))
	for i, p := range t.Partitions {
		if p.FirstLBA < first || p.LastLBA > last || p.LastLBA < p.FirstLBA {
			result = multierror.Append(result, fmt.Errorf("partition %q: LBA range [%d, %d] outside usable area [%d, %d]",
				p.Name, p.FirstLBA, p.LastLBA, first, last))
			continue
		}
		name, err := encodeName(p.Name)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		e := Entry{
			Type:       p.Type,
			Unique:     p.Unique,
			FirstLBA:   p.FirstLBA,
			LastLBA:    p.LastLBA,
			Attributes: p.Attributes,
			Name:       name,
		}
		var buf bytes.Buffer
		_ = binary.Write(&buf, binary.LittleEndian, &e)
		copy(entries[i*EntrySize:], buf.Bytes())
		valid = append(valid, p)
	}
	result = multierror.Append(result, overlaps(valid)...)
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	entriesCRC := crc32.ChecksumIEEE(entries[:NumEntries*EntrySize])

	mbr := make([]byte, sectorSize)
	part := mbr[446:462]
	part[2] = 0x02 // CHS of LBA 1
	part[4] = mbrTypeGPT
	part[5], part[6], part[7] = 0xff, 0xff, 0xff
	binary.LittleEndian.PutUint32(part[8:], 1)
	size := totalSectors - 1
	if size > 0xffffffff {
		size = 0xffffffff
	}
	binary.LittleEndian.PutUint32(part[12:], uint32(size))
	mbr[510], mbr[511] = mbrSignatureLo, mbrSignatureHi
	if _, err := w.WriteAt(mbr, 0); err != nil {
		return fmt.Errorf("unable to write protective MBR: %w", err)
	}

	primary := Header{
		Signature:      Signature,
		Revision:       Revision,
		HeaderSize:     HeaderSize,
		CurrentLBA:     1,
		BackupLBA:      totalSectors - 1,
		FirstUsableLBA: first,
		LastUsableLBA:  last,
		DiskGUID:       t.DiskGUID,
		EntriesLBA:     2,
		NumEntries:     NumEntries,
		EntrySize:      EntrySize,
		EntriesCRC:     entriesCRC,
	}
	backup := primary
	backup.CurrentLBA, backup.BackupLBA = primary.BackupLBA, primary.CurrentLBA
	backup.EntriesLBA = last + 1

	for _, h := range []Header{primary, backup} {
		h.HeaderCRC = headerCRC(h)
		var buf bytes.Buffer
		_ = binary.Write(&buf, binary.LittleEndian, &h)
		sector := make([]byte, sectorSize)
		copy(sector, buf.Bytes())
		if _, err := w.WriteAt(sector, int64(h.CurrentLBA)*int64(sectorSize)); err != nil {
			return fmt.Errorf("unable to write GPT header at LBA %d: %w", h.CurrentLBA, err)
		}
		if _, err := w.WriteAt(entries, int64(h.EntriesLBA)*int64(sectorSize)); err != nil {
			return fmt.Errorf("unable to write GPT entries at LBA %d: %w", h.EntriesLBA, err)
		}
	}
	return nil
}
