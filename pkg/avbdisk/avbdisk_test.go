// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avbdisk

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxboot/boota/pkg/avb"
	"github.com/linuxboot/boota/pkg/avbops"
	"github.com/linuxboot/boota/pkg/blockdev"
)

var (
	keyOnce sync.Once
	key     *rsa.PrivateKey
)

func testKey(t *testing.T) *rsa.PrivateKey {
	keyOnce.Do(func() {
		var err error
		if key, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			panic(err)
		}
	})
	return key
}

func verify(t *testing.T, disk []byte, sectorSize uint32, k *rsa.PrivateKey) (avb.SlotVerifyResult, *avb.SlotVerifyData) {
	t.Helper()
	img, err := blockdev.Open(bytes.NewReader(disk), int64(len(disk)), sectorSize)
	require.NoError(t, err)
	pub, err := avb.EncodePublicKey(&k.PublicKey)
	require.NoError(t, err)
	ops := avbops.New(img, avbops.NewTrustAnchor(pub), avbops.FixedPolicy{})
	return avb.NewVerifier().SlotVerify(ops, []string{"boot", "system", "vendor"}, "_a",
		avb.SlotVerifyFlagsNone, avb.HashtreeErrorModeRestartAndInvalidate)
}

func TestBuildVerifies(t *testing.T) {
	boot := bytes.Repeat([]byte("boot"), 5000)
	vendor := bytes.Repeat([]byte("vendor"), 100)
	for _, tt := range []struct {
		name       string
		sectorSize uint32
		footer     bool
	}{
		{"vbmeta partition", 512, false},
		{"4k sectors", 4096, false},
		{"boot footer", 512, true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			disk, err := Build(Spec{
				Key:        testKey(t),
				SectorSize: tt.sectorSize,
				Boot:       boot,
				Vendor:     vendor,
				Cmdline:    "rootwait",
				BootFooter: tt.footer,
			})
			require.NoError(t, err)

			res, data := verify(t, disk, tt.sectorSize, testKey(t))
			require.Equal(t, avb.SlotVerifyResultOk, res)
			defer data.Free()
			require.Len(t, data.LoadedPartitions, 2)
			assert.Equal(t, "boot_a", data.LoadedPartitions[0].PartitionName)
			assert.Equal(t, boot, data.LoadedPartitions[0].Data)
			assert.Equal(t, "vendor_a", data.LoadedPartitions[1].PartitionName)
			assert.Equal(t, vendor, data.LoadedPartitions[1].Data)
			assert.Contains(t, data.Cmdline, "rootwait")
			if tt.footer {
				assert.NotContains(t, data.Cmdline, "androidboot.vbmeta.device=")
			} else {
				assert.Contains(t, data.Cmdline, "androidboot.vbmeta.device=PARTUUID=")
			}
		})
	}
}

func TestBuildOtherKeyRejected(t *testing.T) {
	disk, err := Build(Spec{Key: testKey(t), Boot: []byte("boot")})
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	res, data := verify(t, disk, 512, other)
	assert.Equal(t, avb.SlotVerifyResultErrorPublicKeyRejected, res)
	assert.Nil(t, data)
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(Spec{Boot: []byte("boot")})
	assert.ErrorContains(t, err, "no signing key")
	_, err = Build(Spec{Key: testKey(t)})
	assert.ErrorContains(t, err, "no boot image")
}

func TestMinimalDeviceTree(t *testing.T) {
	dtb, err := MinimalDeviceTree("boota test board")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xd0, 0x0d, 0xfe, 0xed}, dtb[:4])
	assert.Contains(t, string(dtb), "boota test board")
}
