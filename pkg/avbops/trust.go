// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avbops

import (
	"crypto/subtle"
	"fmt"

	"github.com/linuxboot/boota/pkg/avb"
	"github.com/linuxboot/boota/pkg/log"
)

// TrustAnchor accepts vbmeta images signed by a single root key.
type TrustAnchor struct {
	key []byte
}

// DefaultTrustAnchor trusts the key compiled into the binary.
func DefaultTrustAnchor() *TrustAnchor {
	return &TrustAnchor{key: rootPublicKey[:]}
}

// NewTrustAnchor trusts a copy of key.
func NewTrustAnchor(key []byte) *TrustAnchor {
	return &TrustAnchor{key: append([]byte(nil), key...)}
}

// Key returns a copy of the trusted key.
func (a *TrustAnchor) Key() []byte {
	return append([]byte(nil), a.key...)
}

// ValidateVBMetaPublicKey implements avb.Ops. The metadata is not used.
func (a *TrustAnchor) ValidateVBMetaPublicKey(publicKey, publicKeyMetadata []byte) (bool, error) {
	if len(publicKey) == 0 {
		log.Errorf("validate key: no public key supplied")
		return false, fmt.Errorf("validate key: empty key: %w", avb.ErrIO)
	}
	if len(publicKey) != len(a.key) {
		log.Warnf("validate key: %d-byte key does not match the %d-byte root key", len(publicKey), len(a.key))
		return false, nil
	}
	return subtle.ConstantTimeCompare(publicKey, a.key) == 1, nil
}
