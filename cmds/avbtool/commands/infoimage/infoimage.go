// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package infoimage

import (
	"bytes"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/linuxboot/boota/cmds/avbtool/commands"
	"github.com/linuxboot/boota/pkg/avb"
)

var _ commands.Command = (*Command)(nil)

// Command prints the vbmeta image of a file.
type Command struct {
	Image string `short:"i" long:"image" description:"vbmeta image or partition image with an AVB footer" required:"true"`
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "prints the header and descriptors of a vbmeta image"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return "The file is either a bare vbmeta image or a partition image carrying an AVB footer."
}

// locate returns the vbmeta image inside data and the footer, if any.
func locate(data []byte) ([]byte, *avb.Footer, error) {
	if bytes.HasPrefix(data, avb.VBMetaMagic[:]) {
		return data, nil, nil
	}
	if len(data) < avb.FooterSize {
		return nil, nil, fmt.Errorf("%d bytes hold neither a vbmeta image nor a footer", len(data))
	}
	f, err := avb.ParseFooter(data[len(data)-avb.FooterSize:])
	if err != nil {
		return nil, nil, err
	}
	end := f.VBMetaOffset + f.VBMetaSize
	if end < f.VBMetaOffset || end > uint64(len(data)) {
		return nil, nil, fmt.Errorf("footer points outside the image: %#x+%#x", f.VBMetaOffset, f.VBMetaSize)
	}
	return data[f.VBMetaOffset:end], f, nil
}

// describe returns a one-line rendition of d.
func describe(d avb.Descriptor) (name, details string) {
	switch d := d.(type) {
	case *avb.HashDescriptor:
		return d.PartitionName, fmt.Sprintf("%s %s size=%d digest=%x", d.Tag(), d.HashAlgorithm, d.ImageSize, d.Digest)
	case *avb.HashtreeDescriptor:
		return d.PartitionName, fmt.Sprintf("%s %s size=%d tree=%#x+%#x root=%x",
			d.Tag(), d.HashAlgorithm, d.ImageSize, d.TreeOffset, d.TreeSize, d.RootDigest)
	case *avb.KernelCmdlineDescriptor:
		return "", fmt.Sprintf("%s flags=%#x %q", d.Tag(), d.Flags, d.Cmdline)
	case *avb.ChainPartitionDescriptor:
		return d.PartitionName, fmt.Sprintf("%s location=%d key=%d bytes", d.Tag(), d.RollbackIndexLocation, len(d.PublicKey))
	case *avb.PropertyDescriptor:
		return "", fmt.Sprintf("%s %s=%q", d.Tag(), d.Key, d.Value)
	case *avb.UnknownDescriptor:
		return "", fmt.Sprintf("%s %d bytes", d.Tag(), len(d.Data))
	}
	return "", fmt.Sprintf("%T", d)
}

// Execute implements flags.Commander.
func (cmd *Command) Execute(args []string) error {
	if err := commands.NoExtraArgs(args); err != nil {
		return err
	}
	data, err := os.ReadFile(cmd.Image)
	if err != nil {
		return fmt.Errorf("unable to read '%s': %w", cmd.Image, err)
	}
	raw, footer, err := locate(data)
	if err != nil {
		return fmt.Errorf("'%s': %w", cmd.Image, err)
	}
	res, vbmeta := avb.VerifyVBMetaImage(raw)
	if vbmeta == nil {
		return fmt.Errorf("'%s': %s", cmd.Image, res)
	}
	h := vbmeta.Header

	t := table.NewWriter()
	t.SetOutputMirror(commands.Stdout)
	t.SetTitle("VBMeta image %s", cmd.Image)
	if footer != nil {
		t.AppendRow(table.Row{"Footer version", fmt.Sprintf("%d.%d", footer.VersionMajor, footer.VersionMinor)})
		t.AppendRow(table.Row{"Original image size", humanize.IBytes(footer.OriginalImageSize)})
		t.AppendRow(table.Row{"VBMeta offset", fmt.Sprintf("%#x", footer.VBMetaOffset)})
	}
	t.AppendRow(table.Row{"Minimum libavb version", fmt.Sprintf("%d.%d", h.RequiredLibavbVersionMajor, h.RequiredLibavbVersionMinor)})
	t.AppendRow(table.Row{"Size", humanize.IBytes(h.Size())})
	t.AppendRow(table.Row{"Algorithm", h.AlgorithmType})
	t.AppendRow(table.Row{"Rollback index", h.RollbackIndex})
	t.AppendRow(table.Row{"Rollback index location", h.RollbackIndexLocation})
	t.AppendRow(table.Row{"Flags", fmt.Sprintf("%#x", h.Flags)})
	t.AppendRow(table.Row{"Release", h.Release()})
	t.AppendRow(table.Row{"Public key size", humanize.IBytes(uint64(len(vbmeta.PublicKey())))})
	t.AppendRow(table.Row{"Verification", res})
	t.Render()

	descs, err := vbmeta.Descriptors()
	if err != nil {
		return fmt.Errorf("'%s': descriptors: %w", cmd.Image, err)
	}
	t = table.NewWriter()
	t.SetOutputMirror(commands.Stdout)
	t.SetTitle("Descriptors")
	t.AppendHeader(table.Row{"#", "Partition", "Details"})
	for i, d := range descs {
		name, details := describe(d)
		t.AppendRow(table.Row{i, name, details})
	}
	t.Render()
	return nil
}
