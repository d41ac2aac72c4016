// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avb

import (
	"fmt"
)

// SlotVerifyResult is the outcome of a slot verification.
type SlotVerifyResult int

// Slot verification outcomes.
const (
	SlotVerifyResultOk SlotVerifyResult = iota
	SlotVerifyResultErrorOOM
	SlotVerifyResultErrorIO
	SlotVerifyResultErrorVerification
	SlotVerifyResultErrorRollbackIndex
	SlotVerifyResultErrorPublicKeyRejected
	SlotVerifyResultErrorInvalidMetadata
	SlotVerifyResultErrorUnsupportedVersion
	SlotVerifyResultErrorInvalidArgument
)

var slotVerifyResultNames = map[SlotVerifyResult]string{
	SlotVerifyResultOk:                      "OK",
	SlotVerifyResultErrorOOM:                "ERROR_OOM",
	SlotVerifyResultErrorIO:                 "ERROR_IO",
	SlotVerifyResultErrorVerification:       "ERROR_VERIFICATION",
	SlotVerifyResultErrorRollbackIndex:      "ERROR_ROLLBACK_INDEX",
	SlotVerifyResultErrorPublicKeyRejected:  "ERROR_PUBLIC_KEY_REJECTED",
	SlotVerifyResultErrorInvalidMetadata:    "ERROR_INVALID_METADATA",
	SlotVerifyResultErrorUnsupportedVersion: "ERROR_UNSUPPORTED_VERSION",
	SlotVerifyResultErrorInvalidArgument:    "ERROR_INVALID_ARGUMENT",
}

func (r SlotVerifyResult) String() string {
	if name, ok := slotVerifyResultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("SlotVerifyResult(%d)", int(r))
}

// allowable reports whether AllowVerificationError lets verification go on
// past r.
func (r SlotVerifyResult) allowable() bool {
	switch r {
	case SlotVerifyResultErrorVerification,
		SlotVerifyResultErrorRollbackIndex,
		SlotVerifyResultErrorPublicKeyRejected:
		return true
	}
	return false
}

// SlotVerifyFlags modify slot verification.
type SlotVerifyFlags uint32

const (
	// SlotVerifyFlagsNone requests strict verification.
	SlotVerifyFlagsNone SlotVerifyFlags = 0
	// SlotVerifyFlagsAllowVerificationError returns slot data even when
	// hashes, signatures, keys or rollback indexes do not check out.
	SlotVerifyFlagsAllowVerificationError SlotVerifyFlags = 1 << 0
)

// HashtreeErrorMode selects how dm-verity reacts to corruption at runtime.
type HashtreeErrorMode int

// Hashtree error modes.
const (
	HashtreeErrorModeRestartAndInvalidate HashtreeErrorMode = iota
	HashtreeErrorModeRestart
	HashtreeErrorModeEIO
	HashtreeErrorModeLogging
)

func (m HashtreeErrorMode) String() string {
	switch m {
	case HashtreeErrorModeRestartAndInvalidate:
		return "restart_and_invalidate"
	case HashtreeErrorModeRestart:
		return "restart"
	case HashtreeErrorModeEIO:
		return "eio"
	case HashtreeErrorModeLogging:
		return "logging"
	}
	return fmt.Sprintf("HashtreeErrorMode(%d)", int(m))
}

// ParseHashtreeErrorMode is the inverse of HashtreeErrorMode.String.
func ParseHashtreeErrorMode(s string) (HashtreeErrorMode, error) {
	for m := HashtreeErrorModeRestartAndInvalidate; m <= HashtreeErrorModeLogging; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown hashtree error mode %q", s)
}

// VBMetaVerifyResult is the outcome of checking a single vbmeta image.
type VBMetaVerifyResult int

// VBMeta image verification outcomes.
const (
	VBMetaVerifyResultOK VBMetaVerifyResult = iota
	VBMetaVerifyResultOKNotSigned
	VBMetaVerifyResultInvalidVBMetaHeader
	VBMetaVerifyResultUnsupportedVersion
	VBMetaVerifyResultHashMismatch
	VBMetaVerifyResultSignatureMismatch
)

func (r VBMetaVerifyResult) String() string {
	switch r {
	case VBMetaVerifyResultOK:
		return "OK"
	case VBMetaVerifyResultOKNotSigned:
		return "OK_NOT_SIGNED"
	case VBMetaVerifyResultInvalidVBMetaHeader:
		return "INVALID_VBMETA_HEADER"
	case VBMetaVerifyResultUnsupportedVersion:
		return "UNSUPPORTED_VERSION"
	case VBMetaVerifyResultHashMismatch:
		return "HASH_MISMATCH"
	case VBMetaVerifyResultSignatureMismatch:
		return "SIGNATURE_MISMATCH"
	}
	return fmt.Sprintf("VBMetaVerifyResult(%d)", int(r))
}
