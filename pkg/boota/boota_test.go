// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package boota

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxboot/boota/pkg/avb"
	"github.com/linuxboot/boota/pkg/bootimg"
	"github.com/linuxboot/boota/pkg/compression"
	"github.com/linuxboot/boota/pkg/handoff"
)

type fakeOps struct {
	unlocked  bool
	lockErr   error
	missing   string
	readCalls int
}

func (o *fakeOps) ReadFromPartition(partition string, offset int64, buf []byte) (int, error) {
	o.readCalls++
	if partition == o.missing {
		return 0, avb.ErrNoSuchPartition
	}
	return len(buf), nil
}

func (o *fakeOps) GetSizeOfPartition(partition string) (uint64, error) {
	if partition == o.missing {
		return 0, avb.ErrNoSuchPartition
	}
	return 1 << 20, nil
}

func (o *fakeOps) GetUniqueGUIDForPartition(string, []byte) error { return nil }

func (o *fakeOps) ValidateVBMetaPublicKey([]byte, []byte) (bool, error) { return true, nil }

func (o *fakeOps) ReadIsDeviceUnlocked() (bool, error) { return o.unlocked, o.lockErr }

func (o *fakeOps) ReadRollbackIndex(int) (uint64, error) { return 0, nil }

// fakeVerifier hands back canned data. It touches the partitions listed in
// read before answering, like the engine does.
type fakeVerifier struct {
	res  avb.SlotVerifyResult
	data *avb.SlotVerifyData
	read []string

	calls      int
	partitions []string
	suffix     string
	flags      avb.SlotVerifyFlags
	mode       avb.HashtreeErrorMode
}

func (v *fakeVerifier) SlotVerify(ops avb.Ops, partitions []string, suffix string, flags avb.SlotVerifyFlags, mode avb.HashtreeErrorMode) (avb.SlotVerifyResult, *avb.SlotVerifyData) {
	v.calls++
	v.partitions, v.suffix, v.flags, v.mode = partitions, suffix, flags, mode
	for _, p := range v.read {
		ops.ReadFromPartition(p, 0, make([]byte, 16))
	}
	return v.res, v.data
}

type mapEnv map[string]string

func (e mapEnv) Get(key string) (string, bool) {
	v, ok := e[key]
	return v, ok
}

func (e mapEnv) Set(key, value string) { e[key] = value }

type fakeExecutor struct {
	images *handoff.Images
	phases handoff.Phase
	err    error
}

func (x *fakeExecutor) Boot(img *handoff.Images, phases handoff.Phase) error {
	x.images, x.phases = img, phases
	return x.err
}

func fdtBlob(size int) []byte {
	b := make([]byte, size)
	binary.BigEndian.PutUint32(b, bootimg.FDTMagic)
	binary.BigEndian.PutUint32(b[4:], uint32(size))
	return b
}

var (
	testKernel  = bytes.Repeat([]byte("kernel"), 1000)
	testRamdisk = bytes.Repeat([]byte("ramdisk"), 100)
)

func bootImage(t *testing.T, mod func(*bootimg.Builder)) []byte {
	t.Helper()
	b := &bootimg.Builder{
		Version:    2,
		KernelAddr: bootimg.DefaultKernelAddr,
		Kernel:     testKernel,
		Ramdisk:    testRamdisk,
		DTB:        append(fdtBlob(128), fdtBlob(64)...),
	}
	if mod != nil {
		mod(b)
	}
	img, err := b.Build()
	require.NoError(t, err)
	return img
}

func slotData(boot []byte, cmdline string) *avb.SlotVerifyData {
	return &avb.SlotVerifyData{
		ABSuffix: "_a",
		VBMetaImages: []avb.VBMetaData{
			{PartitionName: "vbmeta_a", Data: make([]byte, 256)},
		},
		LoadedPartitions: []avb.PartitionData{
			{PartitionName: "boot_a", Data: boot},
			{PartitionName: "system_a", Data: []byte("system")},
		},
		Cmdline: cmdline,
	}
}

type fixture struct {
	ops  *fakeOps
	ver  *fakeVerifier
	env  mapEnv
	exec *fakeExecutor
	a    *Assembler
}

func newFixture(t *testing.T, res avb.SlotVerifyResult, data *avb.SlotVerifyData) *fixture {
	f := &fixture{
		ops:  &fakeOps{},
		ver:  &fakeVerifier{res: res, data: data},
		env:  mapEnv{},
		exec: &fakeExecutor{},
	}
	f.a = New(f.ops, f.ver, f.env, f.exec, Config{})
	return f
}

func requireReason(t *testing.T, err error, state State, reason Reason) *Error {
	t.Helper()
	var e *Error
	require.True(t, errors.As(err, &e), "got %v", err)
	assert.Equal(t, state, e.State)
	assert.Equal(t, reason, e.Reason)
	return e
}

func TestBootStagesHeaderLayout(t *testing.T) {
	boot := bootImage(t, nil)
	data := slotData(boot, "dm=\"1 vroot\" androidboot.veritymode=enforcing")
	f := newFixture(t, avb.SlotVerifyResultOk, data)
	f.env[KeyBootargs] = "console=ttyS2,1500000"

	require.NoError(t, f.a.Boot())

	want := "console=ttyS2,1500000 dm=\"1 vroot\" androidboot.veritymode=enforcing"
	assert.Equal(t, want, f.env[KeyBootargs])
	assert.Equal(t, handoff.PhaseAll, f.exec.phases)

	h, err := bootimg.Parse(boot)
	require.NoError(t, err)
	l := h.Layout()
	img := f.exec.images
	require.NotNil(t, img)
	assert.Equal(t, l.Kernel.Offset, img.Kernel.Start)
	assert.Equal(t, l.Kernel.Size, img.Kernel.Len)
	assert.Equal(t, uint64(bootimg.DefaultKernelAddr), img.Kernel.Load)
	assert.Equal(t, img.Kernel.Load, img.Kernel.Entry)
	assert.Equal(t, "linux", img.Kernel.OS)
	assert.Empty(t, img.Kernel.Compression)
	assert.Equal(t, l.Ramdisk.Offset, img.RamdiskStart)
	assert.Equal(t, l.Ramdisk.Offset+l.Ramdisk.Size, img.RamdiskEnd)
	assert.Equal(t, l.DTB.Offset, img.FDTOffset)
	assert.Equal(t, uint64(128), img.FDTLen)
	assert.Equal(t, want, img.Cmdline)

	assert.Equal(t, 1, f.ver.calls)
	assert.Equal(t, DefaultPartitions, f.ver.partitions)
	assert.Equal(t, "_a", f.ver.suffix)
	assert.Equal(t, avb.SlotVerifyFlagsNone, f.ver.flags)
	assert.Equal(t, avb.HashtreeErrorModeRestartAndInvalidate, f.ver.mode)
	assert.Zero(t, data.HeldBuffers())
}

func TestComposeCmdline(t *testing.T) {
	for _, tt := range []struct {
		name     string
		prior    *string
		fragment string
		want     string
	}{
		{"no prior", nil, "androidboot.slot_suffix=_a", "androidboot.slot_suffix=_a"},
		{"empty prior", new(string), "androidboot.slot_suffix=_a", "androidboot.slot_suffix=_a"},
		{"empty fragment", strPtr("console=ttyS2"), "", "console=ttyS2"},
		{"both", strPtr("console=ttyS2"), "rootwait", "console=ttyS2 rootwait"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, avb.SlotVerifyResultOk, slotData(bootImage(t, nil), tt.fragment))
			if tt.prior != nil {
				f.env[KeyBootargs] = *tt.prior
			}
			require.NoError(t, f.a.Boot())
			assert.Equal(t, tt.want, f.env[KeyBootargs])
			assert.Equal(t, tt.want, f.exec.images.Cmdline)
		})
	}
}

func strPtr(s string) *string { return &s }

func TestUnlockedFlags(t *testing.T) {
	f := newFixture(t, avb.SlotVerifyResultOk, slotData(bootImage(t, nil), ""))
	f.ops.unlocked = true
	f.a.Config.Partitions = []string{"boot"}
	f.a.Config.SlotSuffix = "_b"
	f.a.Config.HashtreeMode = avb.HashtreeErrorModeEIO
	require.NoError(t, f.a.Boot())
	assert.Equal(t, avb.SlotVerifyFlagsAllowVerificationError, f.ver.flags)
	assert.Equal(t, []string{"boot"}, f.ver.partitions)
	assert.Equal(t, "_b", f.ver.suffix)
	assert.Equal(t, avb.HashtreeErrorModeEIO, f.ver.mode)
}

func TestInitFailure(t *testing.T) {
	f := newFixture(t, avb.SlotVerifyResultOk, slotData(bootImage(t, nil), ""))
	f.ops.lockErr = avb.ErrIO
	err := f.a.Boot()
	requireReason(t, err, StateInit, ReasonIoFailure)
	assert.True(t, errors.Is(err, avb.ErrIO))
	assert.Zero(t, f.ver.calls)
	assert.Equal(t, ExitFailure, ExitStatus(err))
}

func TestVerifyOutcomes(t *testing.T) {
	for _, tt := range []struct {
		res    avb.SlotVerifyResult
		reason Reason
		exit   int
	}{
		{avb.SlotVerifyResultErrorVerification, ReasonVerificationFailed, ExitVerification},
		{avb.SlotVerifyResultErrorPublicKeyRejected, ReasonKeyRejected, ExitTrust},
		{avb.SlotVerifyResultErrorRollbackIndex, ReasonRollbackViolation, ExitTrust},
		{avb.SlotVerifyResultErrorIO, ReasonIoFailure, ExitFailure},
		{avb.SlotVerifyResultErrorOOM, ReasonOutOfMemory, ExitFailure},
		{avb.SlotVerifyResultErrorInvalidMetadata, ReasonInvalidMetadata, ExitFailure},
		{avb.SlotVerifyResultErrorUnsupportedVersion, ReasonUnsupportedVersion, ExitFailure},
		{avb.SlotVerifyResultErrorInvalidArgument, ReasonUnknownEngineError, ExitFailure},
		{avb.SlotVerifyResult(42), ReasonUnknownEngineError, ExitFailure},
	} {
		t.Run(tt.res.String(), func(t *testing.T) {
			// Unlocked devices get data back alongside verification errors.
			data := slotData(bootImage(t, nil), "")
			f := newFixture(t, tt.res, data)
			f.ops.unlocked = true
			err := f.a.Boot()
			requireReason(t, err, StateVerify, tt.reason)
			assert.Equal(t, tt.exit, ExitStatus(err))
			assert.Zero(t, data.HeldBuffers())
			assert.Nil(t, f.exec.images)
		})
	}
}

func TestVerificationFailedAlwaysFatal(t *testing.T) {
	data := slotData(bootImage(t, nil), "")
	f := newFixture(t, avb.SlotVerifyResultErrorVerification, data)
	f.ops.unlocked = true
	f.a.Config.AllowUnverified = true
	err := f.a.Boot()
	requireReason(t, err, StateVerify, ReasonVerificationFailed)
	assert.Equal(t, ExitVerification, ExitStatus(err))
	assert.Zero(t, data.HeldBuffers())
}

func TestAllowUnverified(t *testing.T) {
	data := slotData(bootImage(t, nil), "")
	f := newFixture(t, avb.SlotVerifyResultErrorRollbackIndex, data)
	f.ops.unlocked = true
	f.a.Config.AllowUnverified = true
	err := f.a.Boot()
	if insecureBuild {
		require.NoError(t, err)
		assert.NotNil(t, f.exec.images)
	} else {
		requireReason(t, err, StateVerify, ReasonRollbackViolation)
	}
	assert.Zero(t, data.HeldBuffers())
}

func TestNoSuchPartition(t *testing.T) {
	f := newFixture(t, avb.SlotVerifyResultErrorIO, nil)
	f.ops.missing = "boot_a"
	f.ver.read = []string{"vbmeta_a", "boot_a"}
	err := f.a.Boot()
	e := requireReason(t, err, StateVerify, ReasonNoSuchPartition)
	assert.Equal(t, "boot_a", e.Partition)
	assert.True(t, errors.Is(err, avb.ErrNoSuchPartition))
	assert.Contains(t, err.Error(), "(boot_a)")

	// A later successful read clears the trace.
	f = newFixture(t, avb.SlotVerifyResultErrorIO, nil)
	f.ops.missing = "vbmeta_a"
	f.ver.read = []string{"vbmeta_a", "boot_a"}
	e = requireReason(t, f.a.Boot(), StateVerify, ReasonIoFailure)
	assert.Empty(t, e.Partition)
}

func TestLocateFailures(t *testing.T) {
	v3 := bootImage(t, nil)
	binary.LittleEndian.PutUint32(v3[40:], 3)

	for _, tt := range []struct {
		name   string
		data   *avb.SlotVerifyData
		state  State
		reason Reason
	}{
		{"no partitions", &avb.SlotVerifyData{}, StateLocateKernel, ReasonInvalidMetadata},
		{"not a boot image", slotData([]byte("garbage"), ""), StateLocateKernel, ReasonInvalidMetadata},
		{"header v0", slotData(bootImage(t, func(b *bootimg.Builder) { b.Version, b.DTB = 0, nil }), ""), StateLocateKernel, ReasonUnsupportedVersion},
		{"header v1", slotData(bootImage(t, func(b *bootimg.Builder) { b.Version, b.DTB = 1, nil }), ""), StateLocateKernel, ReasonUnsupportedVersion},
		{"header v3", slotData(v3, ""), StateLocateKernel, ReasonUnsupportedVersion},
		{"no kernel", slotData(bootImage(t, func(b *bootimg.Builder) { b.Kernel = nil }), ""), StateLocateKernel, ReasonInvalidMetadata},
		{"no ramdisk", slotData(bootImage(t, func(b *bootimg.Builder) { b.Ramdisk = nil }), ""), StateLocateRamdisk, ReasonMissingRamdisk},
		{"no dtb", slotData(bootImage(t, func(b *bootimg.Builder) { b.DTB = nil }), ""), StateLocateDeviceTree, ReasonMissingDeviceTree},
		{"bad dtb", slotData(bootImage(t, func(b *bootimg.Builder) { b.DTB = []byte("not an fdt") }), ""), StateLocateDeviceTree, ReasonInvalidMetadata},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, avb.SlotVerifyResultOk, tt.data)
			f.env[KeyBootargs] = "console=ttyS2"
			err := f.a.Boot()
			requireReason(t, err, tt.state, tt.reason)
			assert.Equal(t, ExitFailure, ExitStatus(err))
			assert.Zero(t, tt.data.HeldBuffers())
			assert.Nil(t, f.exec.images)
			assert.Equal(t, "console=ttyS2", f.env[KeyBootargs])
		})
	}
}

func TestLoadaddr(t *testing.T) {
	for _, tt := range []struct {
		name       string
		kernelAddr uint32
		loadaddr   string
		want       uint64
	}{
		{"default replaced", bootimg.DefaultKernelAddr, "0x02080000", 0x02080000},
		{"bare hex", bootimg.DefaultKernelAddr, "2080000", 0x02080000},
		{"malformed ignored", bootimg.DefaultKernelAddr, "here", bootimg.DefaultKernelAddr},
		{"explicit address kept", 0x00280000, "0x02080000", 0x00280000},
	} {
		t.Run(tt.name, func(t *testing.T) {
			boot := bootImage(t, func(b *bootimg.Builder) { b.KernelAddr = tt.kernelAddr })
			f := newFixture(t, avb.SlotVerifyResultOk, slotData(boot, ""))
			f.env[KeyLoadaddr] = tt.loadaddr
			require.NoError(t, f.a.Boot())
			assert.Equal(t, tt.want, f.exec.images.Kernel.Load)
		})
	}
}

func TestCompressedKernel(t *testing.T) {
	gz, err := (&compression.Gzip{}).Encode(testKernel)
	require.NoError(t, err)
	boot := bootImage(t, func(b *bootimg.Builder) { b.Kernel = gz })
	f := newFixture(t, avb.SlotVerifyResultOk, slotData(boot, ""))
	require.NoError(t, f.a.Boot())
	assert.Equal(t, "GZIP", f.exec.images.Kernel.Compression)
}

func TestHandoffFailure(t *testing.T) {
	data := slotData(bootImage(t, nil), "")
	f := newFixture(t, avb.SlotVerifyResultOk, data)
	f.exec.err = errors.New("no memory window")
	err := f.a.Boot()
	e := requireReason(t, err, StateHandoff, ReasonIoFailure)
	assert.Equal(t, "boot_a", e.Partition)
	assert.Zero(t, data.HeldBuffers())
}

func TestErrorAndStrings(t *testing.T) {
	e := &Error{State: StateVerify, Reason: ReasonKeyRejected, Partition: "vbmeta_a", Err: avb.ErrIO}
	assert.Equal(t, "boota: Verify: KeyRejected (vbmeta_a): "+avb.ErrIO.Error(), e.Error())
	assert.True(t, errors.Is(e, avb.ErrIO))
	assert.Equal(t, "boota: Handoff: IoFailure", (&Error{State: StateHandoff, Reason: ReasonIoFailure}).Error())
	assert.Equal(t, "State(99)", State(99).String())
	assert.Equal(t, "Reason(0)", Reason(0).String())
	assert.Equal(t, ExitOK, ExitStatus(nil))
	assert.Equal(t, ExitFailure, ExitStatus(errors.New("plain")))
}
