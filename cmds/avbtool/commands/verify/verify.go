// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package verify

import (
	"crypto"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/linuxboot/boota/cmds/avbtool/commands"
	"github.com/linuxboot/boota/pkg/avb"
	"github.com/linuxboot/boota/pkg/avbops"
	"github.com/linuxboot/boota/pkg/blockdev"
)

var _ commands.Command = (*Command)(nil)

// Command verifies a slot of a disk image the way the boot path does.
type Command struct {
	Image      string   `short:"i" long:"image" description:"path to disk image" required:"true"`
	SectorSize uint32   `long:"sector-size" description:"sector size of the disk" default:"512"`
	Slot       string   `short:"s" long:"slot" description:"A/B slot suffix" default:"_a"`
	Partitions []string `long:"partition" description:"partition to load, may be repeated (default boot, system, vendor)"`
	Key        string   `long:"key" description:"trusted key: an RSA private key in PEM or an AVB public key blob (default is the built-in root key)"`
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "verifies a slot of a disk image"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return "Runs slot verification with verification errors disallowed and prints what it loaded."
}

// ErrVerify is returned when the slot does not verify.
type ErrVerify struct {
	Result avb.SlotVerifyResult
}

func (err ErrVerify) Error() string {
	return fmt.Sprintf("slot verification failed: %s", err.Result)
}

// loadAnchor reads a trusted key from path.
func loadAnchor(path string) (*avbops.TrustAnchor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if priv, err := avb.ParsePrivateKeyPEM(data); err == nil {
		pub, err := avb.EncodePublicKey(&priv.PublicKey)
		if err != nil {
			return nil, err
		}
		return avbops.NewTrustAnchor(pub), nil
	}
	if _, err := avb.DecodePublicKey(data); err != nil {
		return nil, fmt.Errorf("'%s' is neither a PEM private key nor an AVB public key: %w", path, err)
	}
	return avbops.NewTrustAnchor(data), nil
}

// Execute implements flags.Commander.
func (cmd *Command) Execute(args []string) error {
	if err := commands.NoExtraArgs(args); err != nil {
		return err
	}
	anchor := avbops.DefaultTrustAnchor()
	if cmd.Key != "" {
		var err error
		if anchor, err = loadAnchor(cmd.Key); err != nil {
			return commands.ErrArgs{Err: err}
		}
	}
	parts := cmd.Partitions
	if len(parts) == 0 {
		parts = []string{"boot", "system", "vendor"}
	}

	img, err := blockdev.OpenFile(cmd.Image, cmd.SectorSize)
	if err != nil {
		return fmt.Errorf("unable to open disk image '%s': %w", cmd.Image, err)
	}
	defer img.Close()

	ops := avbops.New(img, anchor, avbops.FixedPolicy{})
	res, data := avb.NewVerifier().SlotVerify(ops, parts, cmd.Slot,
		avb.SlotVerifyFlagsNone, avb.HashtreeErrorModeRestartAndInvalidate)
	fmt.Fprintf(commands.Stdout, "Result: %s\n", res)
	if data == nil {
		return ErrVerify{Result: res}
	}
	defer data.Free()

	t := table.NewWriter()
	t.SetOutputMirror(commands.Stdout)
	t.SetTitle("VBMeta images")
	t.AppendHeader(table.Row{"Partition", "Size", "Result"})
	for _, v := range data.VBMetaImages {
		t.AppendRow(table.Row{v.PartitionName, humanize.IBytes(uint64(len(v.Data))), v.VerifyResult})
	}
	t.AppendFooter(table.Row{"Digest", fmt.Sprintf("%x", data.CalculateVBMetaDigest(crypto.SHA256)), ""})
	t.Render()

	t = table.NewWriter()
	t.SetOutputMirror(commands.Stdout)
	t.SetTitle("Loaded partitions")
	t.AppendHeader(table.Row{"Partition", "Size"})
	for _, p := range data.LoadedPartitions {
		t.AppendRow(table.Row{p.PartitionName, humanize.IBytes(uint64(len(p.Data)))})
	}
	t.Render()

	fmt.Fprintf(commands.Stdout, "Cmdline: %s\n", data.Cmdline)
	return nil
}
