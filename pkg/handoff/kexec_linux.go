// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && (amd64 || arm64)

package handoff

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/linuxboot/boota/pkg/log"
)

// Kexec loads the staged kernel with kexec_file_load and reboots into it.
// The running kernel hands its own device tree to the new one, so the
// prepared device tree is only logged.
type Kexec struct {
	// NoReboot loads the kernel without executing it.
	NoReboot bool
}

func memfile(name string, data []byte) (*os.File, error) {
	fd, err := unix.MemfdCreate(name, 0)
	if err != nil {
		return nil, fmt.Errorf("memfd %s: %w", name, err)
	}
	f := os.NewFile(uintptr(fd), name)
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("memfd %s: %w", name, err)
	}
	return f, nil
}

// Boot implements Executor.
func (k *Kexec) Boot(img *Images, phases Phase) error {
	s, err := Stage(img, phases)
	if err != nil {
		return err
	}
	if phases&PhaseOSGo == 0 {
		return nil
	}
	if len(s.DTB) != 0 {
		log.Warnf("kexec_file_load keeps the running device tree; prepared dtb of %d bytes not passed", len(s.DTB))
	}

	kernel, err := memfile("kernel", s.Kernel)
	if err != nil {
		return err
	}
	defer kernel.Close()

	initrdFd, flags := -1, unix.KEXEC_FILE_NO_INITRAMFS
	if len(s.Ramdisk) != 0 {
		initrd, err := memfile("initrd", s.Ramdisk)
		if err != nil {
			return err
		}
		defer initrd.Close()
		initrdFd, flags = int(initrd.Fd()), 0
	}

	if err := unix.KexecFileLoad(int(kernel.Fd()), initrdFd, s.Cmdline, flags); err != nil {
		return fmt.Errorf("kexec_file_load: %w", err)
	}
	if k.NoReboot {
		log.Infof("kernel loaded, not rebooting")
		return nil
	}
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_KEXEC); err != nil {
		return fmt.Errorf("reboot: %w", err)
	}
	return nil
}
