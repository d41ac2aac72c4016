// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package blockdev

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dustin/go-humanize"

	pkgbytes "github.com/linuxboot/boota/pkg/bytes"
	"github.com/linuxboot/boota/pkg/fmap"
	"github.com/linuxboot/boota/pkg/gpt"
	"github.com/linuxboot/boota/pkg/log"
)

// Layout names the partitioning scheme found on an image.
type Layout string

// Supported layouts.
const (
	LayoutGPT  Layout = "gpt"
	LayoutFMAP Layout = "fmap"
)

// Partition is a named entry of the image partition table.
type Partition struct {
	Name string
	Geometry
}

// Image is a Store backed by a disk or flash image.
type Image struct {
	r          io.ReaderAt
	closer     io.Closer
	size       int64
	sectorSize uint32
	layout     Layout
	parts      map[string]Geometry
}

var _ Store = (*Image)(nil)

// Open reads the partition table of an image of the given size. A GPT is
// preferred; images without one are searched for a flash map.
func Open(r io.ReaderAt, size int64, sectorSize uint32) (*Image, error) {
	if !pkgbytes.IsPowerOfTwo(uint64(sectorSize)) {
		return nil, fmt.Errorf("sector size %d is not a power of two", sectorSize)
	}
	img := &Image{
		r:          r,
		size:       size,
		sectorSize: sectorSize,
		parts:      map[string]Geometry{},
	}

	table, gptErr := gpt.Read(r, sectorSize)
	switch {
	case gptErr == nil:
		img.layout = LayoutGPT
		for _, p := range table.Partitions {
			err := img.add(p.Name, Geometry{
				Start:      p.FirstLBA,
				Count:      p.Sectors(),
				SectorSize: sectorSize,
				UUID:       p.Unique.String(),
			})
			if err != nil {
				return nil, err
			}
		}
	case errors.Is(gptErr, gpt.ErrNoSignature):
		f, _, err := fmap.Read(r, size)
		if err != nil {
			if fmap.IsNotFound(err) {
				return nil, fmt.Errorf("no GPT or flash map found")
			}
			return nil, fmt.Errorf("unable to read flash map: %w", err)
		}
		areas, err := f.Partitions(sectorSize)
		if err != nil {
			return nil, fmt.Errorf("invalid flash map: %w", err)
		}
		img.layout = LayoutFMAP
		for _, a := range areas {
			err := img.add(a.Name, Geometry{
				Start:      a.FirstSector,
				Count:      a.Sectors,
				SectorSize: sectorSize,
				UUID:       a.UUID,
			})
			if err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unable to read GPT: %w", gptErr)
	}

	log.Debugf("opened %s image of %s with %d partitions", img.layout, humanize.IBytes(uint64(size)), len(img.parts))
	return img, nil
}

// add records a partition. A name may appear only once, otherwise the
// slot a lookup resolves to would depend on table order.
func (img *Image) add(name string, g Geometry) error {
	if _, ok := img.parts[name]; ok {
		return fmt.Errorf("%s partition %q is defined more than once", img.layout, name)
	}
	img.parts[name] = g
	return nil
}

// OpenFile opens an image file or a block device node.
func OpenFile(path string, sectorSize uint32) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	img, err := openFile(f, sectorSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

type file interface {
	io.ReaderAt
	io.Seeker
	io.Closer
}

// openFile sizes f by seeking to its end. Stat reports zero for device
// nodes such as /dev/mmcblk0.
func openFile(f file, sectorSize uint32) (*Image, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("unable to determine size: %w", err)
	}
	img, err := Open(f, size, sectorSize)
	if err != nil {
		return nil, err
	}
	img.closer = f
	return img, nil
}

// Close releases the underlying file, if any.
func (img *Image) Close() error {
	if img.closer == nil {
		return nil
	}
	err := img.closer.Close()
	img.closer = nil
	img.r = nil
	return err
}

// Layout returns the partitioning scheme of the image.
func (img *Image) Layout() Layout {
	return img.layout
}

// SectorSize returns the logical sector size.
func (img *Image) SectorSize() uint32 {
	return img.sectorSize
}

// Partitions returns the partitions ordered by first sector.
func (img *Image) Partitions() []Partition {
	out := make([]Partition, 0, len(img.parts))
	for name, g := range img.parts {
		out = append(out, Partition{Name: name, Geometry: g})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Geometry implements Store.
func (img *Image) Geometry(partition string) (Geometry, error) {
	if img.r == nil {
		return Geometry{}, ErrNoDevice
	}
	g, ok := img.parts[partition]
	if !ok {
		return Geometry{}, fmt.Errorf("%q: %w", partition, ErrNotFound)
	}
	return g, nil
}

// ReadSectors implements Store. Reads past the end of the image stop at
// the last whole sector.
func (img *Image) ReadSectors(start, count uint64, buf []byte) (uint64, error) {
	if img.r == nil {
		return 0, ErrNoDevice
	}
	ss := uint64(img.sectorSize)
	if uint64(len(buf)) < count*ss {
		return 0, fmt.Errorf("buffer of %d bytes cannot hold %d sectors", len(buf), count)
	}
	total := uint64(img.size) / ss
	if start >= total {
		return 0, nil
	}
	if start+count > total {
		count = total - start
	}
	n, err := img.r.ReadAt(buf[:count*ss], int64(start*ss))
	if err != nil && !errors.Is(err, io.EOF) {
		return uint64(n) / ss, err
	}
	return uint64(n) / ss, nil
}
