// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package blockdev

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/xaionaro-go/bytesextra"

	"github.com/linuxboot/boota/pkg/gpt"
	"github.com/linuxboot/boota/pkg/guid"
)

// LinuxData is the GPT partition type used for generated partitions.
var LinuxData = *guid.MustParse("0fc63daf-8483-4772-8e79-3d69d8477de4")

// diskNamespace seeds the GUIDs of generated partitions.
var diskNamespace = uuid.MustParse("8d2e6f50-4b1c-4c7a-9f3e-1a2b3c4d5e6f")

// PartitionSpec describes a partition of a generated disk image.
type PartitionSpec struct {
	Name string
	// Size in bytes, rounded up to whole sectors. Zero means len(Data).
	Size uint64
	// Data is written at the start of the partition.
	Data []byte
}

// memImage is a fixed-size in-memory disk.
type memImage struct {
	data []byte
	rws  io.ReadWriteSeeker
}

func newMemImage(size uint64) *memImage {
	data := make([]byte, size)
	return &memImage{data: data, rws: bytesextra.NewReadWriteSeeker(data)}
}

func (m *memImage) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, fmt.Errorf("write of %d bytes at %#x exceeds image", len(p), off)
	}
	if _, err := m.rws.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return m.rws.Write(p)
}

// GUIDFor returns the unique GUID BuildGPT assigns to a partition name.
func GUIDFor(name string) guid.GUID {
	return guid.FromUUID(uuid.NewSHA1(diskNamespace, []byte(name)))
}

// BuildGPT lays the partitions out back to back and returns the raw disk
// image with a GPT describing them.
func BuildGPT(sectorSize uint32, specs []PartitionSpec) ([]byte, error) {
	ss := uint64(sectorSize)
	table := &gpt.Table{DiskGUID: GUIDFor("")}
	lba := gpt.FirstUsableLBA(sectorSize)
	for _, s := range specs {
		size := s.Size
		if size == 0 {
			size = uint64(len(s.Data))
		}
		if uint64(len(s.Data)) > size {
			return nil, fmt.Errorf("partition %q: %d bytes of data exceed its size %d", s.Name, len(s.Data), size)
		}
		sectors := (size + ss - 1) / ss
		if sectors == 0 {
			sectors = 1
		}
		table.Partitions = append(table.Partitions, gpt.Partition{
			Name:     s.Name,
			Type:     LinuxData,
			Unique:   GUIDFor(s.Name),
			FirstLBA: lba,
			LastLBA:  lba + sectors - 1,
		})
		lba += sectors
	}
	// Room for the backup entries and header.
	total := lba + (gpt.FirstUsableLBA(sectorSize) - 1)
	img := newMemImage(total * ss)
	if err := table.Write(img, sectorSize, total); err != nil {
		return nil, err
	}
	for i, s := range specs {
		if _, err := img.WriteAt(s.Data, int64(table.Partitions[i].FirstLBA*ss)); err != nil {
			return nil, fmt.Errorf("partition %q: %w", s.Name, err)
		}
	}
	return img.data, nil
}
