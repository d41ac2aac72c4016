// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package blockdev provides sector-addressed access to boot media.
package blockdev

import (
	"errors"
)

var (
	// ErrNotFound is returned by Store.Geometry for unknown partitions.
	ErrNotFound = errors.New("partition not found")
	// ErrNoDevice is returned when the backing device is unavailable.
	ErrNoDevice = errors.New("block device not available")
)

// Geometry locates a partition on the device.
type Geometry struct {
	// Start is the absolute index of the first sector.
	Start uint64
	// Count is the number of sectors.
	Count uint64
	// SectorSize is the size of a sector in bytes.
	SectorSize uint32
	// UUID is the partition unique GUID in its canonical text form.
	UUID string
}

// Size returns the partition size in bytes.
func (g Geometry) Size() uint64 {
	return g.Count * uint64(g.SectorSize)
}

// Store is a sector-addressed device with named partitions.
type Store interface {
	// ReadSectors reads count sectors starting at the absolute sector
	// start into buf and returns the number of sectors actually read.
	ReadSectors(start, count uint64, buf []byte) (uint64, error)
	// Geometry resolves a partition name. Unknown names yield
	// ErrNotFound.
	Geometry(partition string) (Geometry, error)
}

// CacheFlusher is implemented by stores whose reads land in memory that
// must be synchronized before the CPU looks at it.
type CacheFlusher interface {
	FlushCache(buf []byte)
}
