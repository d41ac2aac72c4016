// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package boota

import (
	"errors"
	"fmt"

	"github.com/linuxboot/boota/pkg/avb"
)

// Reason classifies a failed boot attempt.
type Reason int

// Failure reasons.
const (
	ReasonNoSuchPartition Reason = iota + 1
	ReasonIoFailure
	ReasonOutOfMemory
	ReasonInvalidMetadata
	ReasonUnsupportedVersion
	ReasonVerificationFailed
	ReasonRollbackViolation
	ReasonKeyRejected
	ReasonMissingRamdisk
	ReasonMissingDeviceTree
	ReasonUnknownEngineError
)

var reasonNames = map[Reason]string{
	ReasonNoSuchPartition:    "NoSuchPartition",
	ReasonIoFailure:          "IoFailure",
	ReasonOutOfMemory:        "OutOfMemory",
	ReasonInvalidMetadata:    "InvalidMetadata",
	ReasonUnsupportedVersion: "UnsupportedVersion",
	ReasonVerificationFailed: "VerificationFailed",
	ReasonRollbackViolation:  "RollbackViolation",
	ReasonKeyRejected:        "KeyRejected",
	ReasonMissingRamdisk:     "MissingRamdisk",
	ReasonMissingDeviceTree:  "MissingDeviceTree",
	ReasonUnknownEngineError: "UnknownEngineError",
}

func (r Reason) String() string {
	if n, ok := reasonNames[r]; ok {
		return n
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// reasonFor maps a verification outcome other than Ok.
func reasonFor(r avb.SlotVerifyResult) Reason {
	switch r {
	case avb.SlotVerifyResultErrorOOM:
		return ReasonOutOfMemory
	case avb.SlotVerifyResultErrorIO:
		return ReasonIoFailure
	case avb.SlotVerifyResultErrorVerification:
		return ReasonVerificationFailed
	case avb.SlotVerifyResultErrorRollbackIndex:
		return ReasonRollbackViolation
	case avb.SlotVerifyResultErrorPublicKeyRejected:
		return ReasonKeyRejected
	case avb.SlotVerifyResultErrorInvalidMetadata:
		return ReasonInvalidMetadata
	case avb.SlotVerifyResultErrorUnsupportedVersion:
		return ReasonUnsupportedVersion
	}
	return ReasonUnknownEngineError
}

// Error is a failed boot attempt: the state it failed in and why.
type Error struct {
	State     State
	Reason    Reason
	Partition string
	Err       error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("boota: %v: %v", e.State, e.Reason)
	if e.Partition != "" {
		s += fmt.Sprintf(" (%s)", e.Partition)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Exit statuses returned by ExitStatus.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitVerification = 2
	ExitTrust        = 3
)

// ExitStatus maps the result of Boot to a command exit status, keeping
// signature and trust failures apart from storage and metadata ones.
func ExitStatus(err error) int {
	if err == nil {
		return ExitOK
	}
	var e *Error
	if !errors.As(err, &e) {
		return ExitFailure
	}
	switch e.Reason {
	case ReasonVerificationFailed:
		return ExitVerification
	case ReasonKeyRejected, ReasonRollbackViolation:
		return ExitTrust
	}
	return ExitFailure
}
