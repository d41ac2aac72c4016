// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// avbtool inspects, signs and builds Android Verified Boot images.
//
// Synopsis:
//
//	avbtool show -i DISK [--sector-size N]
//	avbtool verify -i DISK [-s SLOT] [--partition NAME]... [--key FILE]
//	avbtool info_image -i IMAGE
//	avbtool info_boot_image -f BOOT_IMAGE
//	avbtool add_hash_footer --image IMAGE --partition-name NAME --partition-size N --key KEY.pem
//	avbtool make_disk --key KEY.pem --kernel KERNEL --ramdisk RAMDISK -o DISK [options]
//
// An example:
//
//	avbtool make_disk --key key.pem --kernel Image.gz --ramdisk initrd.cpio.gz --cmdline console=ttyS0 -o disk.img
//	avbtool verify -i disk.img --key key.pem
//
// Description:
//
//	show:            Print the partition table of a disk image
//	verify:          Verify a slot the way the boot path does
//	info_image:      Print a vbmeta image and its descriptors
//	info_boot_image: Print an Android boot image header
//	add_hash_footer: Sign an image into a partition image with an AVB footer
//	make_disk:       Build a signed GPT disk image
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/linuxboot/boota/cmds/avbtool/commands"
	"github.com/linuxboot/boota/cmds/avbtool/commands/addhashfooter"
	"github.com/linuxboot/boota/cmds/avbtool/commands/infobootimage"
	"github.com/linuxboot/boota/cmds/avbtool/commands/infoimage"
	"github.com/linuxboot/boota/cmds/avbtool/commands/makedisk"
	"github.com/linuxboot/boota/cmds/avbtool/commands/show"
	"github.com/linuxboot/boota/cmds/avbtool/commands/verify"
	"github.com/linuxboot/boota/pkg/log"
)

// Exit statuses.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type globalOptions struct {
	Verbose bool `short:"v" long:"verbose" description:"print debug messages"`
}

func knownCommands() map[string]commands.Command {
	return map[string]commands.Command{
		"show":            &show.Command{},
		"verify":          &verify.Command{},
		"info_image":      &infoimage.Command{},
		"info_boot_image": &infobootimage.Command{},
		"add_hash_footer": &addhashfooter.Command{},
		"make_disk":       &makedisk.Command{},
	}
}

func run(args []string, stderr io.Writer) int {
	l := logrus.New()
	l.SetOutput(stderr)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	log.DefaultLogger = log.NewLogrus(l)

	var opts globalOptions
	flagsParser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	flagsParser.CommandHandler = func(command flags.Commander, args []string) error {
		if opts.Verbose {
			l.SetLevel(logrus.DebugLevel)
		}
		return command.Execute(args)
	}
	for commandName, command := range knownCommands() {
		_, err := flagsParser.AddCommand(commandName, command.ShortDescription(), command.LongDescription(), command)
		if err != nil {
			panic(err)
		}
	}

	// parse arguments and execute the appropriate command
	_, err := flagsParser.ParseArgs(args)
	var flagsErr *flags.Error
	var argsErr commands.ErrArgs
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp:
		fmt.Fprintln(commands.Stdout, err)
		return exitOK
	case errors.As(err, &flagsErr), errors.As(err, &argsErr):
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	log.Errorf("%v", err)
	return exitFailure
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}
