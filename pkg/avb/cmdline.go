// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avb

import (
	"bytes"
	"crypto"
	"fmt"
	"regexp"
	"strings"

	"github.com/linuxboot/boota/pkg/log"
)

var partUUIDPattern = regexp.MustCompile(`\$\(ANDROID_([A-Z0-9_]+)_PARTUUID\)`)

const verityModePlaceholder = "$(ANDROID_VERITY_MODE)"

func (s *slotVerification) composeCmdline(mode HashtreeErrorMode) SlotVerifyResult {
	unlocked, err := s.ops.ReadIsDeviceUnlocked()
	if err != nil {
		log.Errorf("reading lock state: %v", err)
		return ioResult(err)
	}
	state := "locked"
	if unlocked {
		state = "unlocked"
	}

	alg := s.toplevel.AlgorithmType
	hash := crypto.SHA256
	if alg.Hash() != 0 {
		hash = alg.Hash()
	}

	opts := append([]string(nil), s.cmdline...)
	if s.fromVBMeta {
		opts = append(opts, "androidboot.vbmeta.device=PARTUUID=$(ANDROID_VBMETA_PARTUUID)")
	}
	opts = append(opts,
		fmt.Sprintf("androidboot.vbmeta.avb_version=%d.%d", VersionMajor, VersionMinor),
		"androidboot.vbmeta.device_state="+state,
		"androidboot.vbmeta.hash_alg="+alg.hashName(),
		fmt.Sprintf("androidboot.vbmeta.size=%d", s.data.VBMetaSize()),
		fmt.Sprintf("androidboot.vbmeta.digest=%x", s.data.CalculateVBMetaDigest(hash)),
	)

	dmMode := ""
	if s.toplevel.Flags&VBMetaFlagHashtreeDisabled != 0 {
		opts = append(opts, "androidboot.veritymode=disabled")
	} else {
		var verityMode string
		switch mode {
		case HashtreeErrorModeRestartAndInvalidate:
			dmMode, verityMode = "restart_on_corruption", "enforcing"
			opts = append(opts, "androidboot.vbmeta.invalidate_on_error=yes")
		case HashtreeErrorModeRestart:
			dmMode, verityMode = "restart_on_corruption", "enforcing"
		case HashtreeErrorModeEIO:
			verityMode = "eio"
		case HashtreeErrorModeLogging:
			dmMode, verityMode = "ignore_corruption", "logging"
		}
		opts = append(opts, "androidboot.veritymode="+verityMode)
	}

	cmdline, err := s.substitute(strings.Join(opts, " "), dmMode)
	if err != nil {
		return ioResult(err)
	}
	s.data.Cmdline = cmdline
	return SlotVerifyResultOk
}

// substitute replaces $(ANDROID_<NAME>_PARTUUID) with the unique GUID of
// partition <name><suffix>; VBMETA names whichever partition the top-level
// vbmeta image came from.
func (s *slotVerification) substitute(cmdline, dmMode string) (string, error) {
	var subErr error
	guids := map[string]string{}
	out := partUUIDPattern.ReplaceAllStringFunc(cmdline, func(m string) string {
		name := strings.ToLower(partUUIDPattern.FindStringSubmatch(m)[1])
		partition := name + s.suffix
		if name == "vbmeta" {
			partition = s.toplevelPart
		}
		if g, ok := guids[partition]; ok {
			return g
		}
		buf := make([]byte, GUIDBufferSize)
		if err := s.ops.GetUniqueGUIDForPartition(partition, buf); err != nil {
			log.Errorf("%s: getting unique GUID: %v", partition, err)
			if subErr == nil {
				subErr = err
			}
			return m
		}
		if i := bytes.IndexByte(buf, 0); i >= 0 {
			buf = buf[:i]
		}
		guids[partition] = string(buf)
		return string(buf)
	})
	if subErr != nil {
		return "", subErr
	}
	return strings.ReplaceAll(out, verityModePlaceholder, dmMode), nil
}
