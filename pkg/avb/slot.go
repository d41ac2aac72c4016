// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avb

import (
	"bytes"
	"crypto"
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/linuxboot/boota/pkg/log"
)

// maxChainDepth bounds chained partition recursion.
const maxChainDepth = 32

// PartitionData is a partition loaded and verified by the engine.
type PartitionData struct {
	// PartitionName includes the slot suffix.
	PartitionName string
	Data          []byte
}

// VBMetaData is a vbmeta image visited during verification.
type VBMetaData struct {
	PartitionName string
	Data          []byte
	VerifyResult  VBMetaVerifyResult
}

// SlotVerifyData is what a slot verification hands back to the caller.
// The caller owns it and must call Free when done.
type SlotVerifyData struct {
	ABSuffix                  string
	VBMetaImages              []VBMetaData
	LoadedPartitions          []PartitionData
	Cmdline                   string
	RollbackIndexes           [MaxRollbackIndexLocations]uint64
	ResolvedHashtreeErrorMode HashtreeErrorMode
}

// Free drops every buffer held by d. It is safe to call more than once
// and on a nil receiver.
func (d *SlotVerifyData) Free() {
	if d == nil {
		return
	}
	for i := range d.LoadedPartitions {
		d.LoadedPartitions[i].Data = nil
	}
	for i := range d.VBMetaImages {
		d.VBMetaImages[i].Data = nil
	}
	d.LoadedPartitions = nil
	d.VBMetaImages = nil
}

// HeldBuffers returns the number of buffers still referenced by d.
func (d *SlotVerifyData) HeldBuffers() int {
	if d == nil {
		return 0
	}
	n := 0
	for _, p := range d.LoadedPartitions {
		if p.Data != nil {
			n++
		}
	}
	for _, v := range d.VBMetaImages {
		if v.Data != nil {
			n++
		}
	}
	return n
}

// CalculateVBMetaDigest hashes all vbmeta images in verification order.
func (d *SlotVerifyData) CalculateVBMetaDigest(h crypto.Hash) []byte {
	hasher := h.New()
	for _, v := range d.VBMetaImages {
		hasher.Write(v.Data)
	}
	return hasher.Sum(nil)
}

// VBMetaSize returns the total size of all vbmeta images.
func (d *SlotVerifyData) VBMetaSize() int {
	n := 0
	for _, v := range d.VBMetaImages {
		n += len(v.Data)
	}
	return n
}

// SlotVerifier verifies a slot. Data is returned on Ok, and together with
// ErrorVerification, ErrorRollbackIndex or ErrorPublicKeyRejected when
// SlotVerifyFlagsAllowVerificationError is set. It is nil otherwise.
type SlotVerifier interface {
	SlotVerify(ops Ops, requestedPartitions []string, abSuffix string,
		flags SlotVerifyFlags, mode HashtreeErrorMode) (SlotVerifyResult, *SlotVerifyData)
}

// Verifier is the engine implementing SlotVerifier.
type Verifier struct{}

var _ SlotVerifier = (*Verifier)(nil)

// NewVerifier returns a slot verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

type slotVerification struct {
	ops       Ops
	requested []string
	suffix    string
	allowErr  bool
	data      *SlotVerifyData
	cmdline   []string
	result    SlotVerifyResult

	toplevel     *Header
	toplevelPart string
	fromVBMeta   bool
}

// SlotVerify implements SlotVerifier.
func (v *Verifier) SlotVerify(ops Ops, requestedPartitions []string, abSuffix string,
	flags SlotVerifyFlags, mode HashtreeErrorMode) (SlotVerifyResult, *SlotVerifyData) {
	if ops == nil || len(requestedPartitions) == 0 {
		return SlotVerifyResultErrorInvalidArgument, nil
	}
	for _, p := range requestedPartitions {
		if p == "" {
			return SlotVerifyResultErrorInvalidArgument, nil
		}
	}
	if mode < HashtreeErrorModeRestartAndInvalidate || mode > HashtreeErrorModeLogging {
		return SlotVerifyResultErrorInvalidArgument, nil
	}

	s := &slotVerification{
		ops:       ops,
		requested: requestedPartitions,
		suffix:    abSuffix,
		allowErr:  flags&SlotVerifyFlagsAllowVerificationError != 0,
		data: &SlotVerifyData{
			ABSuffix:                  abSuffix,
			ResolvedHashtreeErrorMode: mode,
		},
	}

	res := s.verifyVBMeta(0, "vbmeta", nil)
	if res == SlotVerifyResultOk {
		res = s.composeCmdline(mode)
	}
	if res != SlotVerifyResultOk {
		log.Errorf("slot %q: verification failed: %s", abSuffix, res)
		s.data.Free()
		return res, nil
	}
	s.sortLoaded()
	if s.result != SlotVerifyResultOk {
		log.Warnf("slot %q: continuing past %s, verification errors are allowed", abSuffix, s.result)
	}
	return s.result, s.data
}

// fail records an error. It reports whether verification must stop.
func (s *slotVerification) fail(r SlotVerifyResult) bool {
	if s.allowErr && r.allowable() {
		if s.result == SlotVerifyResultOk {
			s.result = r
		}
		return false
	}
	return true
}

func ioResult(err error) SlotVerifyResult {
	if errors.Is(err, ErrOOM) {
		return SlotVerifyResultErrorOOM
	}
	return SlotVerifyResultErrorIO
}

// errShortRead marks reads that returned fewer bytes than requested.
var errShortRead = errors.New("short read")

func (s *slotVerification) read(partition string, offset int64, n uint64) ([]byte, error) {
	if n > math.MaxInt32 {
		return nil, ErrOOM
	}
	buf := make([]byte, n)
	got, err := s.ops.ReadFromPartition(partition, offset, buf)
	if err != nil {
		return nil, err
	}
	if got != len(buf) {
		return nil, errShortRead
	}
	return buf, nil
}

func (s *slotVerification) withSuffix(name string, flags, doNotUseAB uint32) string {
	if flags&doNotUseAB != 0 {
		return name
	}
	return name + s.suffix
}

// loadFromPartitionStart reads a vbmeta image stored at offset 0.
func (s *slotVerification) loadFromPartitionStart(partition string) ([]byte, SlotVerifyResult, error) {
	hdr, err := s.read(partition, 0, VBMetaHeaderSize)
	if err != nil {
		return nil, ioResult(err), err
	}
	h, err := ParseHeader(hdr)
	if err != nil {
		log.Errorf("%s: %v", partition, err)
		return nil, SlotVerifyResultErrorInvalidMetadata, nil
	}
	size := h.Size()
	if size < VBMetaHeaderSize || size > VBMetaMaxSize {
		log.Errorf("%s: vbmeta size %d out of range", partition, size)
		return nil, SlotVerifyResultErrorInvalidMetadata, nil
	}
	raw, err := s.read(partition, 0, size)
	if err != nil {
		return nil, ioResult(err), err
	}
	return raw, SlotVerifyResultOk, nil
}

// loadFromFooter reads the vbmeta image referenced by a partition footer.
func (s *slotVerification) loadFromFooter(partition string) ([]byte, SlotVerifyResult, error) {
	fb, err := s.read(partition, -FooterSize, FooterSize)
	if err != nil {
		return nil, ioResult(err), err
	}
	f, err := ParseFooter(fb)
	if err != nil {
		log.Errorf("%s: %v", partition, err)
		return nil, SlotVerifyResultErrorInvalidMetadata, nil
	}
	if f.VBMetaSize > VBMetaMaxSize || f.VBMetaOffset > math.MaxInt64 {
		log.Errorf("%s: footer points at %d bytes of vbmeta at %#x", partition, f.VBMetaSize, f.VBMetaOffset)
		return nil, SlotVerifyResultErrorInvalidMetadata, nil
	}
	raw, err := s.read(partition, int64(f.VBMetaOffset), f.VBMetaSize)
	if err != nil {
		return nil, ioResult(err), err
	}
	return raw, SlotVerifyResultOk, nil
}

func (s *slotVerification) verifyVBMeta(depth int, name string, chain *ChainPartitionDescriptor) SlotVerifyResult {
	if depth > maxChainDepth {
		log.Errorf("%s: chained partitions nested deeper than %d", name, maxChainDepth)
		return SlotVerifyResultErrorInvalidMetadata
	}
	isMain := chain == nil

	var (
		partition string
		raw       []byte
		res       SlotVerifyResult
		err       error
	)
	if isMain {
		partition = name + s.suffix
		raw, res, err = s.loadFromPartitionStart(partition)
		if errors.Is(err, ErrNoSuchPartition) {
			partition = "boot" + s.suffix
			log.Infof("no %s%s partition, using the footer of %s", name, s.suffix, partition)
			raw, res, err = s.loadFromFooter(partition)
		} else {
			s.fromVBMeta = true
		}
	} else {
		partition = s.withSuffix(name, chain.Flags, ChainPartitionFlagDoNotUseAB)
		raw, res, err = s.loadFromFooter(partition)
		if res == SlotVerifyResultErrorInvalidMetadata && strings.HasPrefix(name, "vbmeta") {
			raw, res, err = s.loadFromPartitionStart(partition)
		}
	}
	if res != SlotVerifyResultOk {
		if err != nil {
			log.Errorf("%s: loading vbmeta: %v", partition, err)
		}
		return res
	}

	vres, img := VerifyVBMetaImage(raw)
	switch vres {
	case VBMetaVerifyResultOK:
	case VBMetaVerifyResultOKNotSigned, VBMetaVerifyResultHashMismatch, VBMetaVerifyResultSignatureMismatch:
		log.Errorf("%s: vbmeta image: %s", partition, vres)
		if s.fail(SlotVerifyResultErrorVerification) {
			return SlotVerifyResultErrorVerification
		}
	case VBMetaVerifyResultUnsupportedVersion:
		log.Errorf("%s: vbmeta image: %s", partition, vres)
		return SlotVerifyResultErrorUnsupportedVersion
	default:
		log.Errorf("%s: vbmeta image: %s", partition, vres)
		return SlotVerifyResultErrorInvalidMetadata
	}
	h := img.Header

	if !isMain && h.Flags != 0 {
		log.Errorf("%s: chained vbmeta image has flags %#x", partition, h.Flags)
		return SlotVerifyResultErrorInvalidMetadata
	}

	if vres == VBMetaVerifyResultOK {
		if isMain {
			trusted, err := s.ops.ValidateVBMetaPublicKey(img.PublicKey(), img.PublicKeyMetadata())
			if err != nil {
				log.Errorf("%s: validating public key: %v", partition, err)
				return ioResult(err)
			}
			if !trusted {
				log.Errorf("%s: public key rejected", partition)
				if s.fail(SlotVerifyResultErrorPublicKeyRejected) {
					return SlotVerifyResultErrorPublicKeyRejected
				}
			}
		} else if !bytes.Equal(img.PublicKey(), chain.PublicKey) {
			log.Errorf("%s: public key does not match the chain descriptor", partition)
			if s.fail(SlotVerifyResultErrorPublicKeyRejected) {
				return SlotVerifyResultErrorPublicKeyRejected
			}
		}
	}

	location := h.RollbackIndexLocation
	if !isMain {
		location = chain.RollbackIndexLocation
	}
	if location >= MaxRollbackIndexLocations {
		log.Errorf("%s: rollback index location %d out of range", partition, location)
		return SlotVerifyResultErrorInvalidMetadata
	}
	stored, err := s.ops.ReadRollbackIndex(int(location))
	if err != nil {
		log.Errorf("%s: reading rollback index %d: %v", partition, location, err)
		return ioResult(err)
	}
	if h.RollbackIndex < stored {
		log.Errorf("%s: rollback index %d is below the stored %d", partition, h.RollbackIndex, stored)
		if s.fail(SlotVerifyResultErrorRollbackIndex) {
			return SlotVerifyResultErrorRollbackIndex
		}
	}
	s.data.RollbackIndexes[location] = h.RollbackIndex

	s.data.VBMetaImages = append(s.data.VBMetaImages, VBMetaData{
		PartitionName: partition,
		Data:          img.Bytes(),
		VerifyResult:  vres,
	})

	if isMain {
		s.toplevel = h
		s.toplevelPart = partition
		if h.Flags&VBMetaFlagVerificationDisabled != 0 {
			if !s.allowErr {
				log.Errorf("%s: verification is disabled but the device is locked", partition)
				return SlotVerifyResultErrorInvalidArgument
			}
			log.Warnf("%s: verification disabled, loading requested partitions unchecked", partition)
			return s.loadRequestedUnchecked()
		}
	}

	descs, err := img.Descriptors()
	if err != nil {
		log.Errorf("%s: %v", partition, err)
		return SlotVerifyResultErrorInvalidMetadata
	}
	for _, d := range descs {
		var res SlotVerifyResult
		switch d := d.(type) {
		case *ChainPartitionDescriptor:
			if d.RollbackIndexLocation == 0 {
				log.Errorf("%s: chain partition %q uses rollback index location 0", partition, d.PartitionName)
				return SlotVerifyResultErrorInvalidMetadata
			}
			res = s.verifyVBMeta(depth+1, d.PartitionName, d)
		case *HashDescriptor:
			res = s.verifyHashPartition(d)
		case *KernelCmdlineDescriptor:
			s.addCmdline(d)
		case *HashtreeDescriptor:
			log.Debugf("%s: hashtree for %s, root digest %x", partition, d.PartitionName, d.RootDigest)
		case *PropertyDescriptor:
			log.Debugf("%s: property %s=%s", partition, d.Key, d.Value)
		}
		if res != SlotVerifyResultOk {
			return res
		}
	}
	return SlotVerifyResultOk
}

func (s *slotVerification) addCmdline(d *KernelCmdlineDescriptor) {
	disabled := s.toplevel.Flags&VBMetaFlagHashtreeDisabled != 0
	if d.Flags&KernelCmdlineFlagUseOnlyIfHashtreeNotDisabled != 0 && disabled {
		return
	}
	if d.Flags&KernelCmdlineFlagUseOnlyIfHashtreeDisabled != 0 && !disabled {
		return
	}
	if d.Cmdline != "" {
		s.cmdline = append(s.cmdline, d.Cmdline)
	}
}

func (s *slotVerification) isRequested(name string) bool {
	for _, p := range s.requested {
		if p == name {
			return true
		}
	}
	return false
}

func (s *slotVerification) addLoaded(partition string, data []byte) {
	for _, p := range s.data.LoadedPartitions {
		if p.PartitionName == partition {
			return
		}
	}
	s.data.LoadedPartitions = append(s.data.LoadedPartitions, PartitionData{PartitionName: partition, Data: data})
}

func (s *slotVerification) verifyHashPartition(d *HashDescriptor) SlotVerifyResult {
	partition := s.withSuffix(d.PartitionName, d.Flags, HashDescriptorFlagDoNotUseAB)

	hasher, err := newHash(d.HashAlgorithm)
	if err != nil {
		log.Errorf("%s: %v", partition, err)
		return SlotVerifyResultErrorInvalidMetadata
	}
	if len(d.Digest) != hasher.Size() {
		log.Errorf("%s: digest of %d bytes does not fit %s", partition, len(d.Digest), d.HashAlgorithm)
		return SlotVerifyResultErrorInvalidMetadata
	}
	size, err := s.ops.GetSizeOfPartition(partition)
	if err != nil {
		log.Errorf("%s: getting partition size: %v", partition, err)
		return ioResult(err)
	}
	if d.ImageSize > size {
		log.Errorf("%s: image of %d bytes exceeds partition of %d bytes", partition, d.ImageSize, size)
		return SlotVerifyResultErrorInvalidMetadata
	}

	image, err := s.read(partition, 0, d.ImageSize)
	if err != nil {
		log.Errorf("%s: loading image: %v", partition, err)
		return ioResult(err)
	}
	hasher.Write(d.Salt)
	hasher.Write(image)
	if !bytes.Equal(hasher.Sum(nil), d.Digest) {
		log.Errorf("%s: hash of data does not match digest in descriptor", partition)
		if s.fail(SlotVerifyResultErrorVerification) {
			return SlotVerifyResultErrorVerification
		}
	}
	if s.isRequested(d.PartitionName) {
		s.addLoaded(partition, image)
	}
	return SlotVerifyResultOk
}

func (s *slotVerification) loadRequestedUnchecked() SlotVerifyResult {
	for _, name := range s.requested {
		partition := name + s.suffix
		size, err := s.ops.GetSizeOfPartition(partition)
		if errors.Is(err, ErrNoSuchPartition) {
			continue
		}
		if err != nil {
			return ioResult(err)
		}
		image, err := s.read(partition, 0, size)
		if err != nil {
			log.Errorf("%s: loading image: %v", partition, err)
			return ioResult(err)
		}
		s.addLoaded(partition, image)
	}
	return SlotVerifyResultOk
}

// sortLoaded orders loaded partitions like the request list.
func (s *slotVerification) sortLoaded() {
	rank := func(partition string) int {
		for i, p := range s.requested {
			if partition == p || partition == p+s.suffix {
				return i
			}
		}
		return len(s.requested)
	}
	sort.SliceStable(s.data.LoadedPartitions, func(i, j int) bool {
		return rank(s.data.LoadedPartitions[i].PartitionName) < rank(s.data.LoadedPartitions[j].PartitionName)
	})
}
