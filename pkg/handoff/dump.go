// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package handoff

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/linuxboot/boota/pkg/log"
)

// Dump is a dry-run executor. Instead of jumping to the kernel it writes
// the staged payloads into Dir.
type Dump struct {
	Dir string

	// Last holds the payloads of the most recent Boot call.
	Last *Staged
}

// Boot implements Executor.
func (d *Dump) Boot(img *Images, phases Phase) error {
	s, err := Stage(img, phases)
	if err != nil {
		return err
	}
	d.Last = s
	if phases&PhaseOSGo == 0 {
		return nil
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return err
	}
	var errs error
	for _, f := range []struct {
		name string
		data []byte
	}{
		{"kernel", s.Kernel},
		{"ramdisk", s.Ramdisk},
		{"dtb", s.DTB},
		{"cmdline", []byte(s.Cmdline + "\n")},
	} {
		if f.data == nil {
			continue
		}
		if err := os.WriteFile(filepath.Join(d.Dir, f.name), f.data, 0o644); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("dump %s: %w", f.name, err))
		}
	}
	if errs == nil {
		log.Infof("boot payloads written to %s (phases %v)", d.Dir, phases)
	}
	return errs
}
