// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package avbdisk generates GPT disk images carrying one signed AVB slot.
// The images feed development boards and end-to-end tests.
package avbdisk

import (
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/linuxboot/boota/pkg/avb"
	"github.com/linuxboot/boota/pkg/blockdev"
)

// partitionAlign keeps every partition a multiple of any sector size up
// to 4 KiB, so footers land in the last bytes of the partition.
const partitionAlign = 4096

// VBMetaPartitionSize is the size of the generated vbmeta partition.
const VBMetaPartitionSize = 64 << 10

// Spec describes the slot to generate.
type Spec struct {
	Key *rsa.PrivateKey
	// Algorithm defaults to SHA256 with the key's RSA size.
	Algorithm  avb.Algorithm
	SectorSize uint32
	Suffix     string

	Boot   []byte
	System []byte
	Vendor []byte

	// Cmdline is added as a kernel command line descriptor.
	Cmdline       string
	RollbackIndex uint64

	// BootFooter stores the top-level vbmeta in the boot partition's
	// footer instead of a vbmeta partition.
	BootFooter bool
}

func alignUp(n uint64) uint64 {
	return (n + partitionAlign - 1) / partitionAlign * partitionAlign
}

func (s *Spec) algorithm() (avb.Algorithm, error) {
	if s.Algorithm != avb.AlgorithmNone {
		return s.Algorithm, nil
	}
	if s.Key == nil {
		return avb.AlgorithmNone, errors.New("no signing key")
	}
	switch s.Key.N.BitLen() {
	case 2048:
		return avb.AlgorithmSHA256RSA2048, nil
	case 4096:
		return avb.AlgorithmSHA256RSA4096, nil
	case 8192:
		return avb.AlgorithmSHA256RSA8192, nil
	}
	return avb.AlgorithmNone, fmt.Errorf("unsupported %d-bit key", s.Key.N.BitLen())
}

func hashDescriptor(name string, image []byte) *avb.HashDescriptor {
	salt := sha256.Sum256([]byte(name))
	digest := sha256.New()
	digest.Write(salt[:])
	digest.Write(image)
	return &avb.HashDescriptor{
		ImageSize:     uint64(len(image)),
		HashAlgorithm: "sha256",
		PartitionName: name,
		Salt:          salt[:],
		Digest:        digest.Sum(nil),
	}
}

// Build returns the raw disk image.
func Build(s Spec) ([]byte, error) {
	alg, err := s.algorithm()
	if err != nil {
		return nil, err
	}
	if len(s.Boot) == 0 {
		return nil, errors.New("no boot image")
	}
	if s.SectorSize == 0 {
		s.SectorSize = 512
	}
	if s.Suffix == "" {
		s.Suffix = "_a"
	}
	system := s.System
	if system == nil {
		system = make([]byte, partitionAlign)
	}

	descs := []avb.Descriptor{
		&avb.HashtreeDescriptor{
			DataBlockSize: partitionAlign,
			HashBlockSize: partitionAlign,
			ImageSize:     uint64(len(system)),
			HashAlgorithm: "sha1",
			PartitionName: "system",
			RootDigest:    make([]byte, 20),
		},
	}
	if s.Vendor != nil {
		descs = append(descs, hashDescriptor("vendor", s.Vendor))
	}
	if s.Cmdline != "" {
		descs = append(descs, &avb.KernelCmdlineDescriptor{Cmdline: s.Cmdline})
	}
	b := &avb.VBMetaBuilder{
		Algorithm:     alg,
		Key:           s.Key,
		RollbackIndex: s.RollbackIndex,
		ReleaseString: "avbdisk",
		Descriptors:   descs,
	}

	var parts []blockdev.PartitionSpec
	bootSize := alignUp(uint64(len(s.Boot)) + avb.VBMetaMaxSize + avb.FooterSize)
	if s.BootFooter {
		salt := sha256.Sum256([]byte("boot"))
		boot, err := avb.AddHashFooter(s.Boot, b, avb.HashFooterOptions{
			PartitionName: "boot",
			PartitionSize: bootSize,
			Salt:          salt[:],
		})
		if err != nil {
			return nil, err
		}
		parts = append(parts, blockdev.PartitionSpec{Name: "boot" + s.Suffix, Data: boot})
	} else {
		b.Descriptors = append(b.Descriptors, hashDescriptor("boot", s.Boot))
		vbmeta, err := b.Build()
		if err != nil {
			return nil, err
		}
		parts = append(parts,
			blockdev.PartitionSpec{Name: "vbmeta" + s.Suffix, Size: VBMetaPartitionSize, Data: vbmeta},
			blockdev.PartitionSpec{Name: "boot" + s.Suffix, Size: bootSize, Data: s.Boot},
		)
	}
	parts = append(parts, blockdev.PartitionSpec{Name: "system" + s.Suffix, Size: alignUp(uint64(len(system))), Data: system})
	if s.Vendor != nil {
		parts = append(parts, blockdev.PartitionSpec{Name: "vendor" + s.Suffix, Size: alignUp(uint64(len(s.Vendor))), Data: s.Vendor})
	}
	parts = append(parts, blockdev.PartitionSpec{Name: "misc", Size: partitionAlign})
	return blockdev.BuildGPT(s.SectorSize, parts)
}
