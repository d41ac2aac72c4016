// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package avb implements slot verification for Android Verified Boot 2.0
// metadata: footers, vbmeta images, descriptors and chained partitions.
package avb

import (
	"errors"
)

// Errors returned by Ops implementations. The engine maps them onto
// SlotVerifyResult values.
var (
	ErrIO              = errors.New("avb: I/O error")
	ErrOOM             = errors.New("avb: out of memory")
	ErrNoSuchPartition = errors.New("avb: no such partition")
)

// Ops is the set of platform capabilities the engine needs.
type Ops interface {
	// ReadFromPartition reads len(buf) bytes at offset. A negative offset
	// is relative to the end of the partition.
	ReadFromPartition(partition string, offset int64, buf []byte) (int, error)
	// GetSizeOfPartition returns the partition size in bytes.
	GetSizeOfPartition(partition string) (uint64, error)
	// GetUniqueGUIDForPartition writes the NUL-terminated textual GUID of
	// the partition into buf.
	GetUniqueGUIDForPartition(partition string, buf []byte) error
	// ValidateVBMetaPublicKey reports whether the key that signed the
	// top-level vbmeta image is trusted.
	ValidateVBMetaPublicKey(publicKey, publicKeyMetadata []byte) (bool, error)
	// ReadIsDeviceUnlocked reports the device lock state.
	ReadIsDeviceUnlocked() (bool, error)
	// ReadRollbackIndex returns the stored rollback index for a location.
	ReadRollbackIndex(location int) (uint64, error)
}

// GUIDBufferSize is the buffer size needed by GetUniqueGUIDForPartition.
const GUIDBufferSize = 37
