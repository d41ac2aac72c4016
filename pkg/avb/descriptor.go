// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// DescriptorTag identifies the type of a descriptor.
type DescriptorTag uint64

// Known descriptor tags.
const (
	TagProperty DescriptorTag = iota
	TagHashtree
	TagHash
	TagKernelCmdline
	TagChainPartition
)

func (t DescriptorTag) String() string {
	switch t {
	case TagProperty:
		return "Property"
	case TagHashtree:
		return "Hashtree"
	case TagHash:
		return "Hash"
	case TagKernelCmdline:
		return "KernelCmdline"
	case TagChainPartition:
		return "ChainPartition"
	}
	return fmt.Sprintf("Tag(%d)", uint64(t))
}

// Descriptor flags.
const (
	// HashDescriptorFlagDoNotUseAB names a partition without slot suffix.
	HashDescriptorFlagDoNotUseAB = 1 << 0
	// HashtreeDescriptorFlagDoNotUseAB names a partition without slot suffix.
	HashtreeDescriptorFlagDoNotUseAB = 1 << 0
	// ChainPartitionFlagDoNotUseAB names a partition without slot suffix.
	ChainPartitionFlagDoNotUseAB = 1 << 0

	KernelCmdlineFlagUseOnlyIfHashtreeNotDisabled = 1 << 0
	KernelCmdlineFlagUseOnlyIfHashtreeDisabled    = 1 << 1
)

const descriptorHeaderSize = 16

var errDescriptorTruncated = errors.New("descriptor truncated")

// Descriptor is one entry of the vbmeta descriptor area.
type Descriptor interface {
	Tag() DescriptorTag
	body() ([]byte, error)
}

// PropertyDescriptor is a key/value pair.
type PropertyDescriptor struct {
	Key   string
	Value string
}

// HashtreeDescriptor describes a dm-verity protected partition.
type HashtreeDescriptor struct {
	DMVerityVersion uint32
	ImageSize       uint64
	TreeOffset      uint64
	TreeSize        uint64
	DataBlockSize   uint32
	HashBlockSize   uint32
	FECNumRoots     uint32
	FECOffset       uint64
	FECSize         uint64
	HashAlgorithm   string
	PartitionName   string
	Salt            []byte
	RootDigest      []byte
	Flags           uint32
}

// HashDescriptor describes a partition verified by a whole-image digest.
type HashDescriptor struct {
	ImageSize     uint64
	HashAlgorithm string
	PartitionName string
	Salt          []byte
	Digest        []byte
	Flags         uint32
}

// KernelCmdlineDescriptor contributes to the kernel command line.
type KernelCmdlineDescriptor struct {
	Flags   uint32
	Cmdline string
}

// ChainPartitionDescriptor delegates verification of a partition to the
// vbmeta image in its footer, signed by PublicKey.
type ChainPartitionDescriptor struct {
	RollbackIndexLocation uint32
	PartitionName         string
	PublicKey             []byte
	Flags                 uint32
}

// UnknownDescriptor keeps descriptors with unrecognized tags.
type UnknownDescriptor struct {
	Type DescriptorTag
	Data []byte
}

// Tag implements Descriptor.
func (*PropertyDescriptor) Tag() DescriptorTag { return TagProperty }

// Tag implements Descriptor.
func (*HashtreeDescriptor) Tag() DescriptorTag { return TagHashtree }

// Tag implements Descriptor.
func (*HashDescriptor) Tag() DescriptorTag { return TagHash }

// Tag implements Descriptor.
func (*KernelCmdlineDescriptor) Tag() DescriptorTag { return TagKernelCmdline }

// Tag implements Descriptor.
func (*ChainPartitionDescriptor) Tag() DescriptorTag { return TagChainPartition }

// Tag implements Descriptor.
func (d *UnknownDescriptor) Tag() DescriptorTag { return d.Type }

type hashtreeFixed struct {
	DMVerityVersion  uint32
	ImageSize        uint64
	TreeOffset       uint64
	TreeSize         uint64
	DataBlockSize    uint32
	HashBlockSize    uint32
	FECNumRoots      uint32
	FECOffset        uint64
	FECSize          uint64
	HashAlgorithm    [32]byte
	PartitionNameLen uint32
	SaltLen          uint32
	RootDigestLen    uint32
	Flags            uint32
	Reserved         [60]byte
}

type hashFixed struct {
	ImageSize        uint64
	HashAlgorithm    [32]byte
	PartitionNameLen uint32
	SaltLen          uint32
	DigestLen        uint32
	Flags            uint32
	Reserved         [60]byte
}

type kernelCmdlineFixed struct {
	Flags      uint32
	CmdlineLen uint32
}

type chainPartitionFixed struct {
	RollbackIndexLocation uint32
	PartitionNameLen      uint32
	PublicKeyLen          uint32
	Flags                 uint32
	Reserved              [60]byte
}

type propertyFixed struct {
	KeyLen   uint64
	ValueLen uint64
}

func algName(b [32]byte) string {
	return strings.TrimRight(string(b[:]), "\x00")
}

func setAlgName(name string) ([32]byte, error) {
	var b [32]byte
	if len(name) > len(b) {
		return b, fmt.Errorf("hash algorithm name %q too long", name)
	}
	copy(b[:], name)
	return b, nil
}

// cursor hands out consecutive variable-length fields of a descriptor.
type cursor struct {
	b   []byte
	err error
}

func (c *cursor) take(n uint64) []byte {
	if c.err != nil {
		return nil
	}
	if n > uint64(len(c.b)) {
		c.err = errDescriptorTruncated
		return nil
	}
	out := c.b[:n]
	c.b = c.b[n:]
	return out
}

func encode(fixed interface{}, fields ...[]byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, fixed); err != nil {
		return nil, err
	}
	for _, f := range fields {
		buf.Write(f)
	}
	return buf.Bytes(), nil
}

func (d *PropertyDescriptor) body() ([]byte, error) {
	return encode(propertyFixed{KeyLen: uint64(len(d.Key)), ValueLen: uint64(len(d.Value))},
		[]byte(d.Key), []byte{0}, []byte(d.Value), []byte{0})
}

func (d *HashtreeDescriptor) body() ([]byte, error) {
	alg, err := setAlgName(d.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	return encode(hashtreeFixed{
		DMVerityVersion:  d.DMVerityVersion,
		ImageSize:        d.ImageSize,
		TreeOffset:       d.TreeOffset,
		TreeSize:         d.TreeSize,
		DataBlockSize:    d.DataBlockSize,
		HashBlockSize:    d.HashBlockSize,
		FECNumRoots:      d.FECNumRoots,
		FECOffset:        d.FECOffset,
		FECSize:          d.FECSize,
		HashAlgorithm:    alg,
		PartitionNameLen: uint32(len(d.PartitionName)),
		SaltLen:          uint32(len(d.Salt)),
		RootDigestLen:    uint32(len(d.RootDigest)),
		Flags:            d.Flags,
	}, []byte(d.PartitionName), d.Salt, d.RootDigest)
}

func (d *HashDescriptor) body() ([]byte, error) {
	alg, err := setAlgName(d.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	return encode(hashFixed{
		ImageSize:        d.ImageSize,
		HashAlgorithm:    alg,
		PartitionNameLen: uint32(len(d.PartitionName)),
		SaltLen:          uint32(len(d.Salt)),
		DigestLen:        uint32(len(d.Digest)),
		Flags:            d.Flags,
	}, []byte(d.PartitionName), d.Salt, d.Digest)
}

func (d *KernelCmdlineDescriptor) body() ([]byte, error) {
	return encode(kernelCmdlineFixed{Flags: d.Flags, CmdlineLen: uint32(len(d.Cmdline))}, []byte(d.Cmdline))
}

func (d *ChainPartitionDescriptor) body() ([]byte, error) {
	return encode(chainPartitionFixed{
		RollbackIndexLocation: d.RollbackIndexLocation,
		PartitionNameLen:      uint32(len(d.PartitionName)),
		PublicKeyLen:          uint32(len(d.PublicKey)),
		Flags:                 d.Flags,
	}, []byte(d.PartitionName), d.PublicKey)
}

func (d *UnknownDescriptor) body() ([]byte, error) {
	return d.Data, nil
}

// EncodeDescriptors serializes descriptors, padding each to 8 bytes.
func EncodeDescriptors(descs []Descriptor) ([]byte, error) {
	var out bytes.Buffer
	for _, d := range descs {
		body, err := d.body()
		if err != nil {
			return nil, fmt.Errorf("%s descriptor: %w", d.Tag(), err)
		}
		padded := (len(body) + 7) &^ 7
		var hdr [descriptorHeaderSize]byte
		binary.BigEndian.PutUint64(hdr[0:], uint64(d.Tag()))
		binary.BigEndian.PutUint64(hdr[8:], uint64(padded))
		out.Write(hdr[:])
		out.Write(body)
		out.Write(make([]byte, padded-len(body)))
	}
	return out.Bytes(), nil
}

// ParseDescriptors decodes a descriptor area.
func ParseDescriptors(data []byte) ([]Descriptor, error) {
	var descs []Descriptor
	for off := 0; off < len(data); {
		if len(data)-off < descriptorHeaderSize {
			return nil, fmt.Errorf("descriptor header at %#x: %w", off, errDescriptorTruncated)
		}
		tag := DescriptorTag(binary.BigEndian.Uint64(data[off:]))
		n := binary.BigEndian.Uint64(data[off+8:])
		if n%8 != 0 {
			return nil, fmt.Errorf("descriptor at %#x: length %d is not 8-byte aligned", off, n)
		}
		if n > uint64(len(data)-off-descriptorHeaderSize) {
			return nil, fmt.Errorf("descriptor at %#x: %w", off, errDescriptorTruncated)
		}
		body := data[off+descriptorHeaderSize : off+descriptorHeaderSize+int(n)]
		d, err := parseDescriptor(tag, body)
		if err != nil {
			return nil, fmt.Errorf("%s descriptor at %#x: %w", tag, off, err)
		}
		descs = append(descs, d)
		off += descriptorHeaderSize + int(n)
	}
	return descs, nil
}

func readFixed(body []byte, fixed interface{}) (*cursor, error) {
	size := binary.Size(fixed)
	if size < 0 || len(body) < size {
		return nil, errDescriptorTruncated
	}
	if err := binary.Read(bytes.NewReader(body[:size]), binary.BigEndian, fixed); err != nil {
		return nil, err
	}
	return &cursor{b: body[size:]}, nil
}

func parseDescriptor(tag DescriptorTag, body []byte) (Descriptor, error) {
	switch tag {
	case TagProperty:
		var f propertyFixed
		c, err := readFixed(body, &f)
		if err != nil {
			return nil, err
		}
		key := c.take(f.KeyLen)
		c.take(1)
		value := c.take(f.ValueLen)
		c.take(1)
		if c.err != nil {
			return nil, c.err
		}
		return &PropertyDescriptor{Key: string(key), Value: string(value)}, nil

	case TagHashtree:
		var f hashtreeFixed
		c, err := readFixed(body, &f)
		if err != nil {
			return nil, err
		}
		name := c.take(uint64(f.PartitionNameLen))
		salt := c.take(uint64(f.SaltLen))
		digest := c.take(uint64(f.RootDigestLen))
		if c.err != nil {
			return nil, c.err
		}
		return &HashtreeDescriptor{
			DMVerityVersion: f.DMVerityVersion,
			ImageSize:       f.ImageSize,
			TreeOffset:      f.TreeOffset,
			TreeSize:        f.TreeSize,
			DataBlockSize:   f.DataBlockSize,
			HashBlockSize:   f.HashBlockSize,
			FECNumRoots:     f.FECNumRoots,
			FECOffset:       f.FECOffset,
			FECSize:         f.FECSize,
			HashAlgorithm:   algName(f.HashAlgorithm),
			PartitionName:   string(name),
			Salt:            salt,
			RootDigest:      digest,
			Flags:           f.Flags,
		}, nil

	case TagHash:
		var f hashFixed
		c, err := readFixed(body, &f)
		if err != nil {
			return nil, err
		}
		name := c.take(uint64(f.PartitionNameLen))
		salt := c.take(uint64(f.SaltLen))
		digest := c.take(uint64(f.DigestLen))
		if c.err != nil {
			return nil, c.err
		}
		return &HashDescriptor{
			ImageSize:     f.ImageSize,
			HashAlgorithm: algName(f.HashAlgorithm),
			PartitionName: string(name),
			Salt:          salt,
			Digest:        digest,
			Flags:         f.Flags,
		}, nil

	case TagKernelCmdline:
		var f kernelCmdlineFixed
		c, err := readFixed(body, &f)
		if err != nil {
			return nil, err
		}
		cmdline := c.take(uint64(f.CmdlineLen))
		if c.err != nil {
			return nil, c.err
		}
		return &KernelCmdlineDescriptor{Flags: f.Flags, Cmdline: string(cmdline)}, nil

	case TagChainPartition:
		var f chainPartitionFixed
		c, err := readFixed(body, &f)
		if err != nil {
			return nil, err
		}
		name := c.take(uint64(f.PartitionNameLen))
		key := c.take(uint64(f.PublicKeyLen))
		if c.err != nil {
			return nil, c.err
		}
		return &ChainPartitionDescriptor{
			RollbackIndexLocation: f.RollbackIndexLocation,
			PartitionName:         string(name),
			PublicKey:             key,
			Flags:                 f.Flags,
		}, nil
	}
	return &UnknownDescriptor{Type: tag, Data: body}, nil
}
