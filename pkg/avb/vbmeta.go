// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avb

import (
	"bytes"
	"crypto/rsa"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"strings"

	pkgbytes "github.com/linuxboot/boota/pkg/bytes"
)

// Library version implemented by this package.
const (
	VersionMajor = 1
	VersionMinor = 1
)

// VBMeta layout constants.
const (
	VBMetaHeaderSize = 256
	VBMetaMaxSize    = 64 * 1024
	// vbmeta blocks are padded to this size.
	blockAlignment = 64
)

// Flags stored in Header.Flags.
const (
	VBMetaFlagHashtreeDisabled     = 1 << 0
	VBMetaFlagVerificationDisabled = 1 << 1
)

// MaxRollbackIndexLocations bounds Header.RollbackIndexLocation.
const MaxRollbackIndexLocations = 32

// VBMetaMagic starts every vbmeta image.
var VBMetaMagic = [4]byte{'A', 'V', 'B', '0'}

// Header is the fixed 256-byte vbmeta image header. Hash and signature
// offsets are relative to the authentication block, the others to the
// auxiliary block.
type Header struct {
	Magic                       [4]byte
	RequiredLibavbVersionMajor  uint32
	RequiredLibavbVersionMinor  uint32
	AuthenticationDataBlockSize uint64
	AuxiliaryDataBlockSize      uint64
	AlgorithmType               Algorithm
	HashOffset                  uint64
	HashSize                    uint64
	SignatureOffset             uint64
	SignatureSize               uint64
	PublicKeyOffset             uint64
	PublicKeySize               uint64
	PublicKeyMetadataOffset     uint64
	PublicKeyMetadataSize       uint64
	DescriptorsOffset           uint64
	DescriptorsSize             uint64
	RollbackIndex               uint64
	Flags                       uint32
	RollbackIndexLocation       uint32
	ReleaseString               [48]byte
	Reserved                    [80]byte
}

// Release returns the NUL-trimmed release string.
func (h *Header) Release() string {
	return strings.TrimRight(string(h.ReleaseString[:]), "\x00")
}

// ParseHeader decodes the header at the start of data.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < VBMetaHeaderSize {
		return nil, fmt.Errorf("vbmeta image of %d bytes is shorter than its header", len(data))
	}
	var h Header
	if err := binary.Read(bytes.NewReader(data[:VBMetaHeaderSize]), binary.BigEndian, &h); err != nil {
		return nil, err
	}
	if h.Magic != VBMetaMagic {
		return nil, fmt.Errorf("bad vbmeta magic %q", h.Magic[:])
	}
	return &h, nil
}

// Size returns the total size of the image described by the header.
func (h *Header) Size() uint64 {
	return VBMetaHeaderSize + h.AuthenticationDataBlockSize + h.AuxiliaryDataBlockSize
}

// VBMetaImage is a parsed vbmeta image.
type VBMetaImage struct {
	Header *Header
	auth   []byte
	aux    []byte
	raw    []byte
}

func block(b []byte, offset, size uint64) ([]byte, bool) {
	r := pkgbytes.Range{Offset: offset, Length: size}
	if !r.Within(uint64(len(b))) {
		return nil, false
	}
	return b[offset : offset+size], true
}

// PublicKey returns the embedded public key.
func (v *VBMetaImage) PublicKey() []byte {
	b, _ := block(v.aux, v.Header.PublicKeyOffset, v.Header.PublicKeySize)
	return b
}

// PublicKeyMetadata returns the embedded public key metadata.
func (v *VBMetaImage) PublicKeyMetadata() []byte {
	b, _ := block(v.aux, v.Header.PublicKeyMetadataOffset, v.Header.PublicKeyMetadataSize)
	return b
}

// Descriptors parses the descriptor area.
func (v *VBMetaImage) Descriptors() ([]Descriptor, error) {
	b, _ := block(v.aux, v.Header.DescriptorsOffset, v.Header.DescriptorsSize)
	return ParseDescriptors(b)
}

// Bytes returns the raw image.
func (v *VBMetaImage) Bytes() []byte {
	return v.raw
}

// VerifyVBMetaImage checks the structure, hash and signature of a vbmeta
// image. The image is returned whenever its header could be decoded so
// callers may inspect it even when verification fails.
func VerifyVBMetaImage(data []byte) (VBMetaVerifyResult, *VBMetaImage) {
	h, err := ParseHeader(data)
	if err != nil {
		return VBMetaVerifyResultInvalidVBMetaHeader, nil
	}
	if h.RequiredLibavbVersionMajor != VersionMajor || h.RequiredLibavbVersionMinor > VersionMinor {
		return VBMetaVerifyResultUnsupportedVersion, nil
	}
	if h.AuthenticationDataBlockSize%blockAlignment != 0 || h.AuxiliaryDataBlockSize%blockAlignment != 0 {
		return VBMetaVerifyResultInvalidVBMetaHeader, nil
	}
	authEnd, ok := pkgbytes.Range{Offset: VBMetaHeaderSize, Length: h.AuthenticationDataBlockSize}.End()
	if !ok {
		return VBMetaVerifyResultInvalidVBMetaHeader, nil
	}
	if !(pkgbytes.Range{Offset: authEnd, Length: h.AuxiliaryDataBlockSize}).Within(uint64(len(data))) {
		return VBMetaVerifyResultInvalidVBMetaHeader, nil
	}
	v := &VBMetaImage{
		Header: h,
		auth:   data[VBMetaHeaderSize:authEnd],
		aux:    data[authEnd : authEnd+h.AuxiliaryDataBlockSize],
		raw:    data[:authEnd+h.AuxiliaryDataBlockSize],
	}

	for _, r := range []struct {
		b            []byte
		offset, size uint64
	}{
		{v.auth, h.HashOffset, h.HashSize},
		{v.auth, h.SignatureOffset, h.SignatureSize},
		{v.aux, h.PublicKeyOffset, h.PublicKeySize},
		{v.aux, h.PublicKeyMetadataOffset, h.PublicKeyMetadataSize},
		{v.aux, h.DescriptorsOffset, h.DescriptorsSize},
	} {
		if _, ok := block(r.b, r.offset, r.size); !ok {
			return VBMetaVerifyResultInvalidVBMetaHeader, nil
		}
	}

	alg := h.AlgorithmType
	if !alg.valid() {
		return VBMetaVerifyResultInvalidVBMetaHeader, nil
	}
	if alg == AlgorithmNone {
		return VBMetaVerifyResultOKNotSigned, v
	}
	if h.HashSize != uint64(alg.HashSize()) || h.SignatureSize != uint64(alg.SignatureSize()) {
		return VBMetaVerifyResultInvalidVBMetaHeader, nil
	}

	hasher := alg.Hash().New()
	hasher.Write(data[:VBMetaHeaderSize])
	hasher.Write(v.aux)
	digest := hasher.Sum(nil)
	stored, _ := block(v.auth, h.HashOffset, h.HashSize)
	if subtle.ConstantTimeCompare(digest, stored) != 1 {
		return VBMetaVerifyResultHashMismatch, v
	}

	pub, err := DecodePublicKey(v.PublicKey())
	if err != nil || pub.N.BitLen() != alg.KeyBits() {
		return VBMetaVerifyResultInvalidVBMetaHeader, nil
	}
	sig, _ := block(v.auth, h.SignatureOffset, h.SignatureSize)
	if err := rsa.VerifyPKCS1v15(pub, alg.Hash(), digest, sig); err != nil {
		return VBMetaVerifyResultSignatureMismatch, v
	}
	return VBMetaVerifyResultOK, v
}
