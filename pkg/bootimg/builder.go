// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootimg

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Builder assembles a boot image the way mkbootimg does.
type Builder struct {
	Version     uint32
	PageSize    uint32
	KernelAddr  uint32
	RamdiskAddr uint32
	SecondAddr  uint32
	TagsAddr    uint32
	DTBAddr     uint64
	OSVersion   uint32
	Board       string
	Cmdline     string

	Kernel       []byte
	Ramdisk      []byte
	Second       []byte
	RecoveryDTBO []byte
	DTB          []byte
}

// Build returns the encoded image.
func (b *Builder) Build() ([]byte, error) {
	if b.Version > maxHeaderVer {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, b.Version)
	}
	page := b.PageSize
	if page == 0 {
		page = MinPageSize
	}
	if page < MinPageSize || page&(page-1) != 0 {
		return nil, fmt.Errorf("invalid page size %d", page)
	}
	if len(b.Board) >= NameSize {
		return nil, fmt.Errorf("board name %q too long", b.Board)
	}
	if len(b.Cmdline) >= ArgsSize+ExtraArgsSize {
		return nil, fmt.Errorf("command line of %d bytes too long", len(b.Cmdline))
	}
	if b.Version < 1 && len(b.RecoveryDTBO) > 0 {
		return nil, fmt.Errorf("recovery dtbo needs header version 1")
	}
	if b.Version < 2 && len(b.DTB) > 0 {
		return nil, fmt.Errorf("dtb needs header version 2")
	}

	h := HeaderV2{HeaderV0: HeaderV0{
		KernelSize:       uint32(len(b.Kernel)),
		KernelAddr:       b.KernelAddr,
		RamdiskSize:      uint32(len(b.Ramdisk)),
		RamdiskAddr:      b.RamdiskAddr,
		SecondSize:       uint32(len(b.Second)),
		SecondAddr:       b.SecondAddr,
		TagsAddr:         b.TagsAddr,
		PageSize:         page,
		HeaderVersion:    b.Version,
		OSVersion:        b.OSVersion,
		RecoveryDTBOSize: uint32(len(b.RecoveryDTBO)),
	}, DTBSize: uint32(len(b.DTB)), DTBAddr: b.DTBAddr}
	copy(h.Magic[:], Magic)
	copy(h.Name[:], b.Board)
	n := copy(h.Cmdline[:ArgsSize-1], b.Cmdline)
	copy(h.ExtraCmdline[:], b.Cmdline[n:])

	size := HeaderV0Size
	switch b.Version {
	case 1:
		size = HeaderV1Size
	case 2:
		size = HeaderV2Size
	}
	if b.Version >= 1 {
		h.HeaderSize = uint32(size)
		if len(b.RecoveryDTBO) > 0 {
			h.RecoveryDTBOOffset = h.Layout().RecoveryDTBO.Offset
		}
	}

	var hdr bytes.Buffer
	if err := binary.Write(&hdr, binary.LittleEndian, &h); err != nil {
		return nil, err
	}
	out := make([]byte, page)
	copy(out, hdr.Bytes()[:size])
	for _, p := range [][]byte{b.Kernel, b.Ramdisk, b.Second, b.RecoveryDTBO, b.DTB} {
		out = append(out, p...)
		out = append(out, make([]byte, h.pageAlign(uint64(len(p)))-uint64(len(p)))...)
	}
	return out, nil
}
