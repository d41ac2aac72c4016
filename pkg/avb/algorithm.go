// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avb

import (
	"crypto"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"
)

// Algorithm identifies how a vbmeta image is hashed and signed.
type Algorithm uint32

// Supported algorithms.
const (
	AlgorithmNone Algorithm = iota
	AlgorithmSHA256RSA2048
	AlgorithmSHA256RSA4096
	AlgorithmSHA256RSA8192
	AlgorithmSHA512RSA2048
	AlgorithmSHA512RSA4096
	AlgorithmSHA512RSA8192
)

type algorithmInfo struct {
	name    string
	hash    crypto.Hash
	keyBits int
}

var algorithms = map[Algorithm]algorithmInfo{
	AlgorithmNone:          {name: "NONE"},
	AlgorithmSHA256RSA2048: {name: "SHA256_RSA2048", hash: crypto.SHA256, keyBits: 2048},
	AlgorithmSHA256RSA4096: {name: "SHA256_RSA4096", hash: crypto.SHA256, keyBits: 4096},
	AlgorithmSHA256RSA8192: {name: "SHA256_RSA8192", hash: crypto.SHA256, keyBits: 8192},
	AlgorithmSHA512RSA2048: {name: "SHA512_RSA2048", hash: crypto.SHA512, keyBits: 2048},
	AlgorithmSHA512RSA4096: {name: "SHA512_RSA4096", hash: crypto.SHA512, keyBits: 4096},
	AlgorithmSHA512RSA8192: {name: "SHA512_RSA8192", hash: crypto.SHA512, keyBits: 8192},
}

func (a Algorithm) String() string {
	if info, ok := algorithms[a]; ok {
		return info.name
	}
	return fmt.Sprintf("Algorithm(%d)", uint32(a))
}

// ParseAlgorithm returns the algorithm with the given name, e.g.
// "SHA256_RSA4096".
func ParseAlgorithm(name string) (Algorithm, error) {
	for a, info := range algorithms {
		if strings.EqualFold(info.name, name) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown algorithm %q", name)
}

// Hash returns the digest function, zero for AlgorithmNone.
func (a Algorithm) Hash() crypto.Hash {
	return algorithms[a].hash
}

// KeyBits returns the RSA modulus size, zero for AlgorithmNone.
func (a Algorithm) KeyBits() int {
	return algorithms[a].keyBits
}

// HashSize returns the digest length in bytes.
func (a Algorithm) HashSize() int {
	if h := a.Hash(); h != 0 {
		return h.Size()
	}
	return 0
}

// SignatureSize returns the signature length in bytes.
func (a Algorithm) SignatureSize() int {
	return a.KeyBits() / 8
}

func (a Algorithm) valid() bool {
	_, ok := algorithms[a]
	return ok
}

// newHash returns a digest by AVB algorithm name ("sha256", "sha512").
func newHash(name string) (hash.Hash, error) {
	switch name {
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	}
	return nil, fmt.Errorf("unsupported hash algorithm %q", name)
}

// hashName is the lowercase name of the digest used by a.
func (a Algorithm) hashName() string {
	if a.Hash() == crypto.SHA512 {
		return "sha512"
	}
	return "sha256"
}
