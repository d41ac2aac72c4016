// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avb

import (
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePublicKey(t *testing.T) {
	k, _ := testKeys(t)
	enc := encodedKey(t, k)
	require.Len(t, enc, 8+2*256)
	assert.Equal(t, uint32(2048), binary.BigEndian.Uint32(enc))

	// n0inv * n == -1 mod 2^32
	n0inv := new(big.Int).SetUint64(uint64(binary.BigEndian.Uint32(enc[4:])))
	m := new(big.Int).Lsh(big.NewInt(1), 32)
	prod := new(big.Int).Mul(n0inv, k.N)
	prod.Mod(prod, m)
	assert.Equal(t, new(big.Int).Sub(m, big.NewInt(1)), prod)

	// rr == 2^4096 mod n
	rr := new(big.Int).SetBytes(enc[8+256:])
	want := new(big.Int).Exp(big.NewInt(2), big.NewInt(4096), k.N)
	assert.Equal(t, want, rr)

	pub, err := DecodePublicKey(enc)
	require.NoError(t, err)
	assert.True(t, k.PublicKey.Equal(pub))

	_, err = DecodePublicKey(enc[:100])
	assert.Error(t, err)
}

func TestAlgorithmNames(t *testing.T) {
	a, err := ParseAlgorithm("sha512_rsa4096")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmSHA512RSA4096, a)
	assert.Equal(t, 64, a.HashSize())
	assert.Equal(t, 512, a.SignatureSize())
	assert.Equal(t, "Algorithm(42)", Algorithm(42).String())
	_, err = ParseAlgorithm("MD5_RSA1024")
	assert.Error(t, err)
}

func buildSigned(t *testing.T, b *VBMetaBuilder) []byte {
	t.Helper()
	raw, err := b.Build()
	require.NoError(t, err)
	return raw
}

func TestVerifyVBMetaImage(t *testing.T) {
	k, _ := testKeys(t)
	b := &VBMetaBuilder{
		Algorithm:     AlgorithmSHA256RSA2048,
		Key:           k,
		RollbackIndex: 7,
		ReleaseString: "boota 1.0",
		Descriptors:   []Descriptor{&PropertyDescriptor{Key: "com.example.build", Value: "42"}},
	}
	raw := buildSigned(t, b)
	require.Zero(t, len(raw)%blockAlignment)

	res, img := VerifyVBMetaImage(raw)
	require.Equal(t, VBMetaVerifyResultOK, res)
	assert.Equal(t, uint64(7), img.Header.RollbackIndex)
	assert.Equal(t, "boota 1.0", img.Header.Release())
	assert.Equal(t, encodedKey(t, k), img.PublicKey())
	descs, err := img.Descriptors()
	require.NoError(t, err)
	assert.Equal(t, []Descriptor{&PropertyDescriptor{Key: "com.example.build", Value: "42"}}, descs)

	h := img.Header
	authEnd := VBMetaHeaderSize + h.AuthenticationDataBlockSize

	t.Run("aux_tampered", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		bad[authEnd+h.DescriptorsOffset+20] ^= 1
		res, _ := VerifyVBMetaImage(bad)
		assert.Equal(t, VBMetaVerifyResultHashMismatch, res)
	})
	t.Run("header_tampered", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		bad[VBMetaHeaderSize-1] ^= 1 // reserved bytes are hashed too
		res, _ := VerifyVBMetaImage(bad)
		assert.Equal(t, VBMetaVerifyResultHashMismatch, res)
	})
	t.Run("signature_tampered", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		bad[VBMetaHeaderSize+h.SignatureOffset+3] ^= 1
		res, img := VerifyVBMetaImage(bad)
		assert.Equal(t, VBMetaVerifyResultSignatureMismatch, res)
		assert.NotNil(t, img)
	})
	t.Run("bad_magic", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		bad[0] = 'X'
		res, img := VerifyVBMetaImage(bad)
		assert.Equal(t, VBMetaVerifyResultInvalidVBMetaHeader, res)
		assert.Nil(t, img)
	})
	t.Run("newer_major", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		binary.BigEndian.PutUint32(bad[4:], 2)
		res, _ := VerifyVBMetaImage(bad)
		assert.Equal(t, VBMetaVerifyResultUnsupportedVersion, res)
	})
	t.Run("truncated", func(t *testing.T) {
		res, _ := VerifyVBMetaImage(raw[:len(raw)-64])
		assert.Equal(t, VBMetaVerifyResultInvalidVBMetaHeader, res)
	})
	t.Run("unsigned", func(t *testing.T) {
		res, img := VerifyVBMetaImage(buildSigned(t, &VBMetaBuilder{Algorithm: AlgorithmNone}))
		assert.Equal(t, VBMetaVerifyResultOKNotSigned, res)
		assert.Empty(t, img.PublicKey())
	})
}

func TestBuilderRejectsWrongKeySize(t *testing.T) {
	k, _ := testKeys(t)
	_, err := (&VBMetaBuilder{Algorithm: AlgorithmSHA256RSA4096, Key: k}).Build()
	assert.Error(t, err)
	_, err = (&VBMetaBuilder{Algorithm: AlgorithmSHA256RSA2048}).Build()
	assert.Error(t, err)
}

func TestDescriptorEncoding(t *testing.T) {
	in := []Descriptor{
		&HashDescriptor{ImageSize: 4096, HashAlgorithm: "sha256", PartitionName: "boot", Salt: []byte{1, 2, 3}, Digest: fill(32, 1)},
		&HashtreeDescriptor{DMVerityVersion: 1, ImageSize: 1 << 20, TreeOffset: 1 << 20, TreeSize: 8192,
			DataBlockSize: 4096, HashBlockSize: 4096, HashAlgorithm: "sha1", PartitionName: "system",
			Salt: fill(20, 2), RootDigest: fill(20, 3)},
		&KernelCmdlineDescriptor{Flags: KernelCmdlineFlagUseOnlyIfHashtreeDisabled, Cmdline: "root=/dev/sda1"},
		&ChainPartitionDescriptor{RollbackIndexLocation: 1, PartitionName: "vendor", PublicKey: fill(520, 4)},
		&PropertyDescriptor{Key: "k", Value: "v"},
		&UnknownDescriptor{Type: 99, Data: fill(16, 5)},
	}
	raw, err := EncodeDescriptors(in)
	require.NoError(t, err)

	for off := 0; off < len(raw); {
		n := binary.BigEndian.Uint64(raw[off+8:])
		require.Zero(t, n%8)
		off += 16 + int(n)
	}

	out, err := ParseDescriptors(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = ParseDescriptors(raw[:len(raw)-8])
	assert.ErrorIs(t, err, errDescriptorTruncated)
}

func TestFooter(t *testing.T) {
	image := fill(5000, 9)
	vbmeta := buildSigned(t, &VBMetaBuilder{Algorithm: AlgorithmNone})
	part, err := AddFooter(image, vbmeta, 64*1024)
	require.NoError(t, err)
	require.Len(t, part, 64*1024)

	f, err := ParseFooter(part[len(part)-FooterSize:])
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), f.OriginalImageSize)
	assert.Equal(t, uint64(8192), f.VBMetaOffset)
	assert.Equal(t, vbmeta, part[f.VBMetaOffset:f.VBMetaOffset+f.VBMetaSize])

	_, err = AddFooter(image, vbmeta, 8192)
	assert.Error(t, err)

	_, err = ParseFooter(make([]byte, FooterSize))
	assert.Error(t, err)
}
