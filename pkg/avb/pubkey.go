// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avb

import (
	"crypto/rsa"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

// publicKeyHeaderSize is the size of num_bits and n0inv.
const publicKeyHeaderSize = 8

var errBadPublicKey = errors.New("malformed AVB public key")

// EncodePublicKey serializes an RSA public key in the AVB format:
// num_bits, n0inv, the modulus and R^2 mod n, all big-endian.
func EncodePublicKey(pub *rsa.PublicKey) ([]byte, error) {
	bits := pub.N.BitLen()
	if bits%64 != 0 {
		return nil, fmt.Errorf("unsupported modulus size %d", bits)
	}
	if pub.E != 65537 {
		return nil, fmt.Errorf("unsupported public exponent %d", pub.E)
	}
	n := pub.N
	size := bits / 8

	b := new(big.Int).Lsh(big.NewInt(1), 32)
	n0inv := new(big.Int).ModInverse(new(big.Int).Mod(n, b), b)
	n0inv.Sub(b, n0inv)

	r := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	rr := new(big.Int).Exp(r, big.NewInt(2), n)

	out := make([]byte, publicKeyHeaderSize+2*size)
	binary.BigEndian.PutUint32(out[0:], uint32(bits))
	binary.BigEndian.PutUint32(out[4:], uint32(n0inv.Uint64()))
	n.FillBytes(out[publicKeyHeaderSize : publicKeyHeaderSize+size])
	rr.FillBytes(out[publicKeyHeaderSize+size:])
	return out, nil
}

// DecodePublicKey parses an AVB public key. The exponent is always 65537.
func DecodePublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) < publicKeyHeaderSize {
		return nil, errBadPublicKey
	}
	bits := binary.BigEndian.Uint32(data[0:])
	if bits == 0 || bits%64 != 0 || bits > 8192 {
		return nil, fmt.Errorf("%w: %d-bit modulus", errBadPublicKey, bits)
	}
	size := int(bits / 8)
	if len(data) != publicKeyHeaderSize+2*size {
		return nil, fmt.Errorf("%w: %d bytes for a %d-bit key", errBadPublicKey, len(data), bits)
	}
	n := new(big.Int).SetBytes(data[publicKeyHeaderSize : publicKeyHeaderSize+size])
	if n.BitLen() != int(bits) {
		return nil, fmt.Errorf("%w: modulus is not %d bits", errBadPublicKey, bits)
	}
	return &rsa.PublicKey{N: n, E: 65537}, nil
}
