// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avb

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"fmt"
)

// footerAlignment is where AddHashFooter places the vbmeta image.
const footerAlignment = 4096

// VBMetaBuilder assembles signed vbmeta images.
type VBMetaBuilder struct {
	Algorithm             Algorithm
	Key                   *rsa.PrivateKey
	PublicKeyMetadata     []byte
	RollbackIndex         uint64
	RollbackIndexLocation uint32
	Flags                 uint32
	ReleaseString         string
	Descriptors           []Descriptor
}

func alignUp(n, to int) int {
	return (n + to - 1) / to * to
}

// Build returns the encoded and signed vbmeta image.
func (b *VBMetaBuilder) Build() ([]byte, error) {
	alg := b.Algorithm
	if !alg.valid() {
		return nil, fmt.Errorf("unknown algorithm %d", alg)
	}
	var pubKey []byte
	if alg != AlgorithmNone {
		if b.Key == nil {
			return nil, fmt.Errorf("%s requires a key", alg)
		}
		if b.Key.N.BitLen() != alg.KeyBits() {
			return nil, fmt.Errorf("%s requires a %d-bit key, got %d bits", alg, alg.KeyBits(), b.Key.N.BitLen())
		}
		var err error
		if pubKey, err = EncodePublicKey(&b.Key.PublicKey); err != nil {
			return nil, err
		}
	}
	descs, err := EncodeDescriptors(b.Descriptors)
	if err != nil {
		return nil, err
	}

	h := Header{
		Magic:                      VBMetaMagic,
		RequiredLibavbVersionMajor: VersionMajor,
		RequiredLibavbVersionMinor: 0,
		AlgorithmType:              alg,
		RollbackIndex:              b.RollbackIndex,
		Flags:                      b.Flags,
		RollbackIndexLocation:      b.RollbackIndexLocation,
	}
	if len(b.ReleaseString) >= len(h.ReleaseString) {
		return nil, fmt.Errorf("release string %q too long", b.ReleaseString)
	}
	copy(h.ReleaseString[:], b.ReleaseString)

	// Auxiliary block: descriptors, public key, public key metadata.
	var aux bytes.Buffer
	h.DescriptorsOffset, h.DescriptorsSize = 0, uint64(len(descs))
	aux.Write(descs)
	h.PublicKeyOffset, h.PublicKeySize = uint64(aux.Len()), uint64(len(pubKey))
	aux.Write(pubKey)
	h.PublicKeyMetadataOffset, h.PublicKeyMetadataSize = uint64(aux.Len()), uint64(len(b.PublicKeyMetadata))
	aux.Write(b.PublicKeyMetadata)
	auxBlock := make([]byte, alignUp(aux.Len(), blockAlignment))
	copy(auxBlock, aux.Bytes())
	h.AuxiliaryDataBlockSize = uint64(len(auxBlock))

	// Authentication block: hash, then signature.
	hashSize, sigSize := alg.HashSize(), alg.SignatureSize()
	h.HashOffset, h.HashSize = 0, uint64(hashSize)
	h.SignatureOffset, h.SignatureSize = uint64(hashSize), uint64(sigSize)
	authBlock := make([]byte, alignUp(hashSize+sigSize, blockAlignment))
	h.AuthenticationDataBlockSize = uint64(len(authBlock))

	var hdr bytes.Buffer
	if err := binary.Write(&hdr, binary.BigEndian, &h); err != nil {
		return nil, err
	}
	if alg != AlgorithmNone {
		hasher := alg.Hash().New()
		hasher.Write(hdr.Bytes())
		hasher.Write(auxBlock)
		digest := hasher.Sum(nil)
		sig, err := rsa.SignPKCS1v15(rand.Reader, b.Key, alg.Hash(), digest)
		if err != nil {
			return nil, fmt.Errorf("signing vbmeta: %w", err)
		}
		copy(authBlock, digest)
		copy(authBlock[hashSize:], sig)
	}

	out := make([]byte, 0, hdr.Len()+len(authBlock)+len(auxBlock))
	out = append(out, hdr.Bytes()...)
	out = append(out, authBlock...)
	out = append(out, auxBlock...)
	return out, nil
}

// HashFooterOptions configures AddHashFooter.
type HashFooterOptions struct {
	PartitionName string
	PartitionSize uint64
	HashAlgorithm string
	Salt          []byte
	Flags         uint32
}

// AddHashFooter appends a hash descriptor for image to the builder's
// descriptors, signs the result and returns the whole partition: the
// image, the vbmeta image at the next 4 KiB boundary and the footer in the
// last 64 bytes. The builder is not modified.
func AddHashFooter(image []byte, b *VBMetaBuilder, opts HashFooterOptions) ([]byte, error) {
	hashAlg := opts.HashAlgorithm
	if hashAlg == "" {
		hashAlg = "sha256"
	}
	hasher, err := newHash(hashAlg)
	if err != nil {
		return nil, err
	}
	hasher.Write(opts.Salt)
	hasher.Write(image)

	withHash := *b
	withHash.Descriptors = append(append([]Descriptor(nil), b.Descriptors...), &HashDescriptor{
		ImageSize:     uint64(len(image)),
		HashAlgorithm: hashAlg,
		PartitionName: opts.PartitionName,
		Salt:          opts.Salt,
		Digest:        hasher.Sum(nil),
		Flags:         opts.Flags,
	})
	vbmeta, err := withHash.Build()
	if err != nil {
		return nil, err
	}
	return AddFooter(image, vbmeta, opts.PartitionSize)
}

// AddFooter embeds an already built vbmeta image into a partition of the
// given size.
func AddFooter(image, vbmeta []byte, partitionSize uint64) ([]byte, error) {
	offset := alignUp(len(image), footerAlignment)
	need := uint64(offset) + uint64(len(vbmeta)) + FooterSize
	if need > partitionSize {
		return nil, fmt.Errorf("partition of %d bytes cannot hold image, vbmeta and footer (%d bytes)", partitionSize, need)
	}
	f := Footer{
		Magic:             FooterMagic,
		VersionMajor:      FooterVersionMajor,
		VersionMinor:      FooterVersionMinor,
		OriginalImageSize: uint64(len(image)),
		VBMetaOffset:      uint64(offset),
		VBMetaSize:        uint64(len(vbmeta)),
	}
	fb, err := f.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, partitionSize)
	copy(out, image)
	copy(out[offset:], vbmeta)
	copy(out[partitionSize-FooterSize:], fb)
	return out, nil
}
