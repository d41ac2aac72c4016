// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avb

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	keysOnce sync.Once
	keys     [2]*rsa.PrivateKey
)

// testKeys returns two RSA-2048 keys shared by all tests.
func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	keysOnce.Do(func() {
		for i := range keys {
			k, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				panic(err)
			}
			keys[i] = k
		}
	})
	return keys[0], keys[1]
}

func encodedKey(t *testing.T, k *rsa.PrivateKey) []byte {
	b, err := EncodePublicKey(&k.PublicKey)
	require.NoError(t, err)
	return b
}

func partitionGUID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// memOps serves partitions from memory.
type memOps struct {
	parts    map[string][]byte
	trusted  []byte
	unlocked bool
	rollback map[int]uint64

	readErr     error
	rollbackErr error
	reads       int
}

var _ Ops = (*memOps)(nil)

func (o *memOps) ReadFromPartition(partition string, offset int64, buf []byte) (int, error) {
	o.reads++
	p, ok := o.parts[partition]
	if !ok {
		return 0, ErrNoSuchPartition
	}
	if o.readErr != nil {
		return 0, o.readErr
	}
	if offset < 0 {
		offset += int64(len(p))
	}
	if offset < 0 || offset+int64(len(buf)) > int64(len(p)) {
		return 0, ErrIO
	}
	return copy(buf, p[offset:]), nil
}

func (o *memOps) GetSizeOfPartition(partition string) (uint64, error) {
	p, ok := o.parts[partition]
	if !ok {
		return 0, ErrNoSuchPartition
	}
	return uint64(len(p)), nil
}

func (o *memOps) GetUniqueGUIDForPartition(partition string, buf []byte) error {
	if _, ok := o.parts[partition]; !ok {
		return ErrNoSuchPartition
	}
	if len(buf) < GUIDBufferSize {
		return ErrIO
	}
	copy(buf, partitionGUID(partition))
	buf[GUIDBufferSize-1] = 0
	return nil
}

func (o *memOps) ValidateVBMetaPublicKey(publicKey, _ []byte) (bool, error) {
	if len(publicKey) == 0 {
		return false, ErrIO
	}
	return bytes.Equal(publicKey, o.trusted), nil
}

func (o *memOps) ReadIsDeviceUnlocked() (bool, error) {
	return o.unlocked, nil
}

func (o *memOps) ReadRollbackIndex(location int) (uint64, error) {
	if o.rollbackErr != nil {
		return 0, o.rollbackErr
	}
	return o.rollback[location], nil
}

func fill(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed ^ byte(i*31)
	}
	return b
}
