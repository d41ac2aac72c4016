// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package makedisk

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"

	"github.com/linuxboot/boota/cmds/avbtool/commands"
	"github.com/linuxboot/boota/pkg/avb"
	"github.com/linuxboot/boota/pkg/avbdisk"
	"github.com/linuxboot/boota/pkg/bootimg"
)

var _ commands.Command = (*Command)(nil)

// vendorSize is the size of the blank vendor partition made when no
// vendor image is given.
const vendorSize = 4096

// Command builds a signed disk image around a kernel.
type Command struct {
	Key           string `long:"key" description:"RSA private key in PEM" required:"true"`
	Kernel        string `long:"kernel" description:"kernel image" required:"true"`
	Ramdisk       string `long:"ramdisk" description:"ramdisk image" required:"true"`
	DTB           string `long:"dtb" description:"device tree blob (default is a minimal tree)"`
	System        string `long:"system" description:"system partition image (default is blank)"`
	Vendor        string `long:"vendor" description:"vendor partition image (default is blank)"`
	Cmdline       string `long:"cmdline" description:"kernel command line signed into vbmeta"`
	BootCmdline   string `long:"boot-cmdline" description:"command line stored in the boot image header"`
	Board         string `long:"board" description:"board name stored in the boot image header"`
	PageSize      uint32 `long:"page-size" description:"boot image page size" default:"2048"`
	KernelAddr    uint32 `long:"kernel-addr" description:"kernel load address in hex" base:"16" default:"10008000"`
	RollbackIndex uint64 `long:"rollback-index" description:"rollback index of the vbmeta image"`
	SectorSize    uint32 `long:"sector-size" description:"sector size of the disk" default:"512"`
	Slot          string `short:"s" long:"slot" description:"A/B slot suffix" default:"_a"`
	BootFooter    bool   `long:"boot-footer" description:"store vbmeta in the boot partition footer instead of a vbmeta partition"`
	Output        string `short:"o" long:"output" description:"output disk image" required:"true"`
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "builds a GPT disk image with a signed boot slot"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return `Packs the kernel, ramdisk and device tree into a version 2 boot image,
signs boot, system and vendor into a vbmeta image and lays the partitions
out on a GPT disk.`
}

type input struct {
	path string
	dst  *[]byte
}

// readInputs reads every named file, collecting all failures.
func readInputs(inputs []input) error {
	var result *multierror.Error
	for _, in := range inputs {
		if in.path == "" {
			continue
		}
		data, err := os.ReadFile(in.path)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		*in.dst = data
	}
	return result.ErrorOrNil()
}

// Execute implements flags.Commander.
func (cmd *Command) Execute(args []string) error {
	if err := commands.NoExtraArgs(args); err != nil {
		return err
	}
	var pem, kernel, ramdisk, dtb, system, vendor []byte
	if err := readInputs([]input{
		{cmd.Key, &pem},
		{cmd.Kernel, &kernel},
		{cmd.Ramdisk, &ramdisk},
		{cmd.DTB, &dtb},
		{cmd.System, &system},
		{cmd.Vendor, &vendor},
	}); err != nil {
		return err
	}
	key, err := avb.ParsePrivateKeyPEM(pem)
	if err != nil {
		return fmt.Errorf("key '%s': %w", cmd.Key, err)
	}
	if dtb == nil {
		if dtb, err = avbdisk.MinimalDeviceTree(cmd.Board); err != nil {
			return err
		}
	}
	if vendor == nil {
		vendor = make([]byte, vendorSize)
	}

	boot, err := (&bootimg.Builder{
		Version:    2,
		PageSize:   cmd.PageSize,
		KernelAddr: cmd.KernelAddr,
		Board:      cmd.Board,
		Cmdline:    cmd.BootCmdline,
		Kernel:     kernel,
		Ramdisk:    ramdisk,
		DTB:        dtb,
	}).Build()
	if err != nil {
		return fmt.Errorf("boot image: %w", err)
	}
	disk, err := avbdisk.Build(avbdisk.Spec{
		Key:           key,
		SectorSize:    cmd.SectorSize,
		Suffix:        cmd.Slot,
		Boot:          boot,
		System:        system,
		Vendor:        vendor,
		Cmdline:       cmd.Cmdline,
		RollbackIndex: cmd.RollbackIndex,
		BootFooter:    cmd.BootFooter,
	})
	if err != nil {
		return fmt.Errorf("disk image: %w", err)
	}
	if err := os.WriteFile(cmd.Output, disk, 0o644); err != nil {
		return fmt.Errorf("unable to write '%s': %w", cmd.Output, err)
	}
	fmt.Fprintf(commands.Stdout, "%s: %s disk, %s boot image\n", cmd.Output,
		humanize.IBytes(uint64(len(disk))), humanize.IBytes(uint64(len(boot))))
	return nil
}
