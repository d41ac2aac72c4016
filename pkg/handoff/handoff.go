// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package handoff stages a verified kernel, ramdisk and device tree and
// passes control to them.
package handoff

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/linuxboot/boota/pkg/compression"
	"github.com/linuxboot/boota/pkg/log"
)

// Phase selects the staging steps an Executor performs.
type Phase uint

// Phases, in the order they run.
const (
	PhaseRamdisk Phase = 1 << iota
	PhaseLoadOS
	PhaseOSPrep
	PhaseOSGo

	PhaseAll = PhaseRamdisk | PhaseLoadOS | PhaseOSPrep | PhaseOSGo
)

var phaseNames = []string{"ramdisk", "loados", "osprep", "osgo"}

func (p Phase) String() string {
	var names []string
	for i, n := range phaseNames {
		if p&(1<<i) != 0 {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// DefaultMaxKernelSize bounds the decompressed kernel when Images.Memory
// does not.
const DefaultMaxKernelSize = 64 << 20

// ErrUnsupported is returned by executors that cannot run on this platform.
var ErrUnsupported = errors.New("handoff not supported on this platform")

// Kernel describes the OS image inside Images.Source.
type Kernel struct {
	Start uint64
	Len   uint64
	Type  string
	OS    string
	Arch  string
	// Compression is the detected compressor name, empty for a raw image.
	Compression string
	Load        uint64
	Entry       uint64
	// End is the end of the whole boot image the kernel came from.
	End uint64
}

// Memory is the region the OS may be loaded into.
type Memory struct {
	Base uint64
	Size uint64
}

// Images is everything needed to boot. Offsets index Source.
type Images struct {
	Source       []byte
	Kernel       Kernel
	RamdiskStart uint64
	RamdiskEnd   uint64
	FDTOffset    uint64
	FDTLen       uint64
	Cmdline      string
	Memory       Memory
}

// Staged holds the prepared payloads, independent of Images.Source.
type Staged struct {
	Kernel  []byte
	Ramdisk []byte
	DTB     []byte
	Cmdline string
}

// Executor boots staged images.
type Executor interface {
	Boot(img *Images, phases Phase) error
}

func (img *Images) slice(what string, start, end uint64) ([]byte, error) {
	if start > end || end > uint64(len(img.Source)) {
		return nil, fmt.Errorf("%s [%#x, %#x) outside %d byte image", what, start, end, len(img.Source))
	}
	return img.Source[start:end], nil
}

// Stage runs the ramdisk, load and prep phases selected by phases.
// PhaseOSGo is left to the executor.
func Stage(img *Images, phases Phase) (*Staged, error) {
	s := &Staged{Cmdline: img.Cmdline}
	if phases&PhaseRamdisk != 0 {
		rd, err := img.slice("ramdisk", img.RamdiskStart, img.RamdiskEnd)
		if err != nil {
			return nil, err
		}
		s.Ramdisk = append([]byte(nil), rd...)
		log.Debugf("ramdisk relocated, %s", humanize.IBytes(uint64(len(rd))))
	}
	if phases&PhaseLoadOS != 0 {
		k, err := loadKernel(img)
		if err != nil {
			return nil, err
		}
		s.Kernel = k
	}
	if phases&PhaseOSPrep != 0 && img.FDTLen != 0 {
		dtb, err := img.slice("device tree", img.FDTOffset, img.FDTOffset+img.FDTLen)
		if err != nil {
			return nil, err
		}
		s.DTB, err = FixupDeviceTree(dtb, img.Cmdline, img.initrdRange(s))
		if err != nil {
			return nil, fmt.Errorf("device tree fixup: %w", err)
		}
	}
	return s, nil
}

func loadKernel(img *Images) ([]byte, error) {
	raw, err := img.slice("kernel", img.Kernel.Start, img.Kernel.Start+img.Kernel.Len)
	if err != nil {
		return nil, err
	}
	limit := img.Memory.Size
	if limit == 0 {
		limit = DefaultMaxKernelSize
	}
	out, name, err := compression.DecompressLimit(raw, limit)
	if errors.Is(err, compression.ErrTooLarge) {
		return nil, fmt.Errorf("kernel exceeds %s of load memory: %w", humanize.IBytes(limit), err)
	}
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}
	if img.Kernel.Compression != "" && name != img.Kernel.Compression {
		return nil, fmt.Errorf("kernel compression %q, detected %q", img.Kernel.Compression, name)
	}
	if name == "" {
		return append([]byte(nil), raw...), nil
	}
	log.Infof("kernel decompressed (%s): %s -> %s", name, humanize.IBytes(uint64(len(raw))), humanize.IBytes(uint64(len(out))))
	return out, nil
}

// initrdRange places the ramdisk directly after the kernel load area,
// page aligned, which is where loaders that honour the device tree pick
// it up.
func (img *Images) initrdRange(s *Staged) *[2]uint64 {
	n := img.RamdiskEnd - img.RamdiskStart
	if n == 0 {
		return nil
	}
	kernelLen := uint64(len(s.Kernel))
	if kernelLen == 0 {
		kernelLen = img.Kernel.Len
	}
	start := (img.Kernel.Load + kernelLen + 0xfff) &^ 0xfff
	return &[2]uint64{start, start + n}
}
