// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package boota assembles a verified Android boot image and hands it to an
// executor.
//
// A boot attempt walks a fixed sequence of states. The first failing state
// ends the attempt with an *Error; verified buffers are released exactly
// once whichever way the attempt ends.
package boota

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/linuxboot/boota/pkg/avb"
	"github.com/linuxboot/boota/pkg/bootimg"
	"github.com/linuxboot/boota/pkg/compression"
	"github.com/linuxboot/boota/pkg/handoff"
	"github.com/linuxboot/boota/pkg/log"
)

// State is a step of a boot attempt.
type State int

// Boot attempt states, in order.
const (
	StateInit State = iota
	StateVerify
	StateLocateKernel
	StateLocateRamdisk
	StateLocateDeviceTree
	StateComposeCmdline
	StateStageImages
	StateHandoff
)

var stateNames = []string{
	"Init", "Verify", "LocateKernel", "LocateRamdisk",
	"LocateDeviceTree", "ComposeCmdline", "StageImages", "Handoff",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Environment keys.
const (
	KeyBootargs = "bootargs"
	KeyLoadaddr = "loadaddr"
)

// Env is the boot environment.
type Env interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// DefaultPartitions are verified when Config.Partitions is empty. The
// first one must hold the boot image.
var DefaultPartitions = []string{"boot", "system", "vendor"}

// DefaultSlotSuffix is used when Config.SlotSuffix is empty.
const DefaultSlotSuffix = "_a"

// Config tunes a boot attempt.
type Config struct {
	Partitions   []string
	SlotSuffix   string
	HashtreeMode avb.HashtreeErrorMode
	Memory       handoff.Memory

	// AllowUnverified continues past verification outcomes other than Ok
	// and ErrorVerification. It only works in binaries built with the
	// boota_insecure tag.
	AllowUnverified bool
}

// InsecureBuild reports whether Config.AllowUnverified is honoured.
func InsecureBuild() bool {
	return insecureBuild
}

// Assembler runs boot attempts.
type Assembler struct {
	Ops      avb.Ops
	Verifier avb.SlotVerifier
	Env      Env
	Executor handoff.Executor
	Config   Config
}

// New returns an Assembler. Empty config fields take their defaults.
func New(ops avb.Ops, v avb.SlotVerifier, env Env, exec handoff.Executor, cfg Config) *Assembler {
	if len(cfg.Partitions) == 0 {
		cfg.Partitions = DefaultPartitions
	}
	if cfg.SlotSuffix == "" {
		cfg.SlotSuffix = DefaultSlotSuffix
	}
	return &Assembler{Ops: ops, Verifier: v, Env: env, Executor: exec, Config: cfg}
}

// attempt is the state of one Boot call.
type attempt struct {
	*Assembler
	state State
	ops   *tracingOps

	unlocked bool
	data     *avb.SlotVerifyData
	part     avb.PartitionData
	hdr      *bootimg.HeaderV2
	layout   bootimg.Layout
	load     uint64
	fdt      bootimg.Section
	cmdline  string
	images   *handoff.Images
}

var steps = []struct {
	state State
	run   func(*attempt) error
}{
	{StateInit, (*attempt).init},
	{StateVerify, (*attempt).verify},
	{StateLocateKernel, (*attempt).locateKernel},
	{StateLocateRamdisk, (*attempt).locateRamdisk},
	{StateLocateDeviceTree, (*attempt).locateDeviceTree},
	{StateComposeCmdline, (*attempt).composeCmdline},
	{StateStageImages, (*attempt).stageImages},
	{StateHandoff, (*attempt).handoff},
}

// Boot runs one boot attempt. It returns nil once the executor accepted
// the images; executors that jump to the kernel never return.
func (a *Assembler) Boot() error {
	t := &attempt{Assembler: a, ops: &tracingOps{Ops: a.Ops}}
	defer t.release()
	for _, s := range steps {
		t.state = s.state
		log.Debugf("boota: entering %v", s.state)
		if err := s.run(t); err != nil {
			log.Errorf("%v", err)
			return err
		}
	}
	return nil
}

func (t *attempt) release() {
	if t.data != nil {
		t.data.Free()
		t.data = nil
	}
}

func (t *attempt) fail(reason Reason, partition string, err error) error {
	return &Error{State: t.state, Reason: reason, Partition: partition, Err: err}
}

func (t *attempt) init() error {
	unlocked, err := t.Ops.ReadIsDeviceUnlocked()
	if err != nil {
		return t.fail(ReasonIoFailure, "", fmt.Errorf("reading lock state: %w", err))
	}
	t.unlocked = unlocked
	if unlocked {
		log.Warnf("boota: device is unlocked, verification errors are not fatal to the engine")
	}
	return nil
}

func (t *attempt) verify() error {
	flags := avb.SlotVerifyFlagsNone
	if t.unlocked {
		flags = avb.SlotVerifyFlagsAllowVerificationError
	}
	res, data := t.Verifier.SlotVerify(t.ops, t.Config.Partitions, t.Config.SlotSuffix, flags, t.Config.HashtreeMode)
	t.data = data

	switch {
	case res == avb.SlotVerifyResultOk:
		log.Infof("boota: slot %s verified", t.Config.SlotSuffix)
		return nil
	case res != avb.SlotVerifyResultErrorVerification && data != nil && insecureBuild && t.Config.AllowUnverified:
		log.Warnf("boota: INSECURE: continuing past %v on slot %s", res, t.Config.SlotSuffix)
		return nil
	}

	reason := reasonFor(res)
	part, err := t.ops.last()
	if reason == ReasonIoFailure && errors.Is(err, avb.ErrNoSuchPartition) {
		reason = ReasonNoSuchPartition
	}
	if err == nil {
		err = fmt.Errorf("slot %s: %v", t.Config.SlotSuffix, res)
	} else {
		err = fmt.Errorf("slot %s: %v: %w", t.Config.SlotSuffix, res, err)
	}
	return t.fail(reason, part, err)
}

func (t *attempt) locateKernel() error {
	if t.data == nil || len(t.data.LoadedPartitions) == 0 {
		return t.fail(ReasonInvalidMetadata, "", errors.New("no loaded partitions"))
	}
	t.part = t.data.LoadedPartitions[0]
	log.Infof("boota: loaded %s, %s", t.part.PartitionName, humanize.IBytes(uint64(len(t.part.Data))))

	h, err := bootimg.Parse(t.part.Data)
	if errors.Is(err, bootimg.ErrUnsupportedVersion) {
		return t.fail(ReasonUnsupportedVersion, t.part.PartitionName, err)
	}
	if err != nil {
		return t.fail(ReasonInvalidMetadata, t.part.PartitionName, err)
	}
	hdr, ok := h.(*bootimg.HeaderV2)
	if !ok {
		return t.fail(ReasonUnsupportedVersion, t.part.PartitionName,
			fmt.Errorf("boot image header version %d, want 2", h.Version()))
	}
	for _, line := range strings.Split(strings.TrimSpace(bootimg.Summary(hdr)), "\n") {
		log.Debugf("%s: %s", t.part.PartitionName, line)
	}

	t.hdr = hdr
	t.layout = hdr.Layout()
	if t.layout.Kernel.Size == 0 {
		return t.fail(ReasonInvalidMetadata, t.part.PartitionName, errors.New("boot image has no kernel"))
	}
	t.load = uint64(hdr.KernelAddr)
	if hdr.KernelAddr == bootimg.DefaultKernelAddr {
		if v, ok := t.Env.Get(KeyLoadaddr); ok {
			addr, err := strconv.ParseUint(strings.TrimPrefix(v, "0x"), 16, 64)
			if err != nil {
				log.Warnf("boota: ignoring %s=%q: %v", KeyLoadaddr, v, err)
			} else {
				t.load = addr
			}
		}
	}
	log.Infof("boota: kernel at %#x+%s, load address %#x", t.layout.Kernel.Offset, humanize.IBytes(t.layout.Kernel.Size), t.load)
	return nil
}

func (t *attempt) locateRamdisk() error {
	if t.layout.Ramdisk.Size == 0 {
		return t.fail(ReasonMissingRamdisk, t.part.PartitionName, errors.New("boot image has no ramdisk"))
	}
	return nil
}

func (t *attempt) locateDeviceTree() error {
	s, err := t.hdr.DTBEntry(t.part.Data, 0)
	if errors.Is(err, bootimg.ErrNoDTB) {
		return t.fail(ReasonMissingDeviceTree, t.part.PartitionName, err)
	}
	if err != nil {
		return t.fail(ReasonInvalidMetadata, t.part.PartitionName, err)
	}
	t.fdt = s
	return nil
}

// joinCmdline appends the verified fragment to the prior command line.
func joinCmdline(prior, fragment string) string {
	switch {
	case prior == "":
		return fragment
	case fragment == "":
		return prior
	}
	return prior + " " + fragment
}

func (t *attempt) composeCmdline() error {
	prior, _ := t.Env.Get(KeyBootargs)
	t.cmdline = joinCmdline(prior, t.data.Cmdline)
	t.Env.Set(KeyBootargs, t.cmdline)
	log.Infof("boota: %s=%q", KeyBootargs, t.cmdline)
	return nil
}

func (t *attempt) stageImages() error {
	k := t.layout.Kernel
	var comp string
	if c := compression.Detect(k.Bytes(t.part.Data)); c != nil {
		comp = c.Name()
	}
	t.images = &handoff.Images{
		Source: t.part.Data,
		Kernel: handoff.Kernel{
			Start:       k.Offset,
			Len:         k.Size,
			Type:        "kernel",
			OS:          "linux",
			Arch:        runtime.GOARCH,
			Compression: comp,
			Load:        t.load,
			Entry:       t.load,
			End:         t.layout.End(),
		},
		RamdiskStart: t.layout.Ramdisk.Offset,
		RamdiskEnd:   t.layout.Ramdisk.Offset + t.layout.Ramdisk.Size,
		FDTOffset:    t.fdt.Offset,
		FDTLen:       t.fdt.Size,
		Cmdline:      t.cmdline,
		Memory:       t.Config.Memory,
	}
	return nil
}

func (t *attempt) handoff() error {
	if err := t.Executor.Boot(t.images, handoff.PhaseAll); err != nil {
		return t.fail(ReasonIoFailure, t.part.PartitionName, err)
	}
	return nil
}

// tracingOps remembers the last failing partition operation so failures
// reported by the engine can name the partition.
type tracingOps struct {
	avb.Ops
	partition string
	err       error
}

func (o *tracingOps) record(partition string, err error) {
	if err == nil {
		partition = ""
	}
	o.partition, o.err = partition, err
}

func (o *tracingOps) last() (string, error) {
	return o.partition, o.err
}

func (o *tracingOps) ReadFromPartition(partition string, offset int64, buf []byte) (int, error) {
	n, err := o.Ops.ReadFromPartition(partition, offset, buf)
	o.record(partition, err)
	return n, err
}

func (o *tracingOps) GetSizeOfPartition(partition string) (uint64, error) {
	n, err := o.Ops.GetSizeOfPartition(partition)
	o.record(partition, err)
	return n, err
}

func (o *tracingOps) GetUniqueGUIDForPartition(partition string, buf []byte) error {
	err := o.Ops.GetUniqueGUIDForPartition(partition, buf)
	o.record(partition, err)
	return err
}
