// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package avbops binds the verification engine to the platform: partition
// reads out of a sector store, the root of trust and the device policy.
package avbops

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/linuxboot/boota/pkg/avb"
	"github.com/linuxboot/boota/pkg/blockdev"
	pkgbytes "github.com/linuxboot/boota/pkg/bytes"
	"github.com/linuxboot/boota/pkg/log"
)

// DefaultMaxScratch bounds the bounce buffer of a misaligned read.
const DefaultMaxScratch = 512 << 20

// Partitions serves byte-granular partition reads from a sector store.
// Geometry is looked up on every call.
type Partitions struct {
	store blockdev.Store
	// MaxScratch is the largest bounce buffer a misaligned read may
	// allocate. Larger requests fail with avb.ErrOOM.
	MaxScratch uint64
}

// NewPartitions returns an adapter over store.
func NewPartitions(store blockdev.Store) *Partitions {
	return &Partitions{store: store, MaxScratch: DefaultMaxScratch}
}

// geometry resolves a partition and returns its size in bytes.
func (p *Partitions) geometry(partition, op string) (blockdev.Geometry, uint64, error) {
	g, err := p.store.Geometry(partition)
	if err != nil {
		log.Errorf("%s %q: %v", op, partition, err)
		if errors.Is(err, blockdev.ErrNotFound) {
			return g, 0, fmt.Errorf("%s %q: %w", op, partition, avb.ErrNoSuchPartition)
		}
		return g, 0, fmt.Errorf("%s %q: %v: %w", op, partition, err, avb.ErrIO)
	}
	if !pkgbytes.IsPowerOfTwo(uint64(g.SectorSize)) {
		log.Errorf("%s %q: sector size %d is not a power of two", op, partition, g.SectorSize)
		return g, 0, fmt.Errorf("%s %q: bad sector size %d: %w", op, partition, g.SectorSize, avb.ErrIO)
	}
	hi, size := bits.Mul64(g.Count, uint64(g.SectorSize))
	if hi != 0 {
		log.Errorf("%s %q: %d sectors overflow", op, partition, g.Count)
		return g, 0, fmt.Errorf("%s %q: size overflow: %w", op, partition, avb.ErrIO)
	}
	return g, size, nil
}

func (p *Partitions) flush(buf []byte) {
	if f, ok := p.store.(blockdev.CacheFlusher); ok {
		f.FlushCache(buf)
	}
}

// ReadFromPartition implements avb.Ops. It reads len(buf) bytes at offset,
// where a negative offset counts back from the end of the partition.
func (p *Partitions) ReadFromPartition(partition string, offset int64, buf []byte) (int, error) {
	g, size, err := p.geometry(partition, "read")
	if err != nil {
		return 0, err
	}
	length := uint64(len(buf))
	if length > size {
		log.Errorf("read %q: %d bytes requested from a %d-byte partition", partition, length, size)
		return 0, fmt.Errorf("read %q: request larger than partition: %w", partition, avb.ErrIO)
	}

	var start uint64
	if offset < 0 {
		back := uint64(-(offset + 1)) + 1
		if back > size {
			log.Errorf("read %q: offset %d lies before the partition start", partition, offset)
			return 0, fmt.Errorf("read %q: offset %d out of range: %w", partition, offset, avb.ErrIO)
		}
		start = size - back
	} else {
		start = uint64(offset)
	}
	r := pkgbytes.Range{Offset: start, Length: length}
	if !r.Within(size) {
		log.Errorf("read %q: range %s exceeds partition size %#x", partition, r, size)
		return 0, fmt.Errorf("read %q: range %s out of range: %w", partition, r, avb.ErrIO)
	}
	if length == 0 {
		return 0, nil
	}

	ss := uint64(g.SectorSize)
	blocks := r.Cover(ss)
	if r.IsAligned(ss) {
		if err := p.readSectors(partition, g.Start+blocks.First, blocks.Count, buf); err != nil {
			return 0, err
		}
		return len(buf), nil
	}

	scratchSize := blocks.Bytes(ss)
	if scratchSize > p.MaxScratch {
		log.Errorf("read %q: %d-byte bounce buffer exceeds limit of %d", partition, scratchSize, p.MaxScratch)
		return 0, fmt.Errorf("read %q: bounce buffer of %d bytes: %w", partition, scratchSize, avb.ErrOOM)
	}
	scratch := make([]byte, scratchSize)
	if err := p.readSectors(partition, g.Start+blocks.First, blocks.Count, scratch); err != nil {
		return 0, err
	}
	copy(buf, scratch[blocks.Delta:blocks.Delta+length])
	return len(buf), nil
}

func (p *Partitions) readSectors(partition string, start, count uint64, buf []byte) error {
	n, err := p.store.ReadSectors(start, count, buf)
	p.flush(buf)
	if err != nil {
		log.Errorf("read %q: sectors %d+%d: %v", partition, start, count, err)
		return fmt.Errorf("read %q: %v: %w", partition, err, avb.ErrIO)
	}
	if n != count {
		log.Errorf("read %q: short read of %d/%d sectors at %d", partition, n, count, start)
		return fmt.Errorf("read %q: short read: %w", partition, avb.ErrIO)
	}
	return nil
}

// GetSizeOfPartition implements avb.Ops.
func (p *Partitions) GetSizeOfPartition(partition string) (uint64, error) {
	_, size, err := p.geometry(partition, "size of")
	return size, err
}

// GetUniqueGUIDForPartition implements avb.Ops. buf must hold at least
// avb.GUIDBufferSize bytes; exactly that many are written, the last one
// being NUL.
func (p *Partitions) GetUniqueGUIDForPartition(partition string, buf []byte) error {
	g, _, err := p.geometry(partition, "GUID of")
	if err != nil {
		return err
	}
	if len(buf) < avb.GUIDBufferSize {
		log.Errorf("GUID of %q: buffer of %d bytes, need %d", partition, len(buf), avb.GUIDBufferSize)
		return fmt.Errorf("GUID of %q: buffer too small: %w", partition, avb.ErrIO)
	}
	var src [avb.GUIDBufferSize]byte
	copy(src[:], g.UUID)
	copy(buf, src[:])
	buf[avb.GUIDBufferSize-1] = 0
	return nil
}
