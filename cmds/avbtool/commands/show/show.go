// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package show

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/linuxboot/boota/cmds/avbtool/commands"
	"github.com/linuxboot/boota/pkg/blockdev"
)

var _ commands.Command = (*Command)(nil)

// Command prints the partition table of a disk image.
type Command struct {
	Image      string `short:"i" long:"image" description:"path to disk image" required:"true"`
	SectorSize uint32 `long:"sector-size" description:"sector size of the disk" default:"512"`
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "prints the partitions of a disk image"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return "Partitions come from a GPT or, when there is none, from a flash map."
}

// Execute implements flags.Commander.
func (cmd *Command) Execute(args []string) error {
	if err := commands.NoExtraArgs(args); err != nil {
		return err
	}
	img, err := blockdev.OpenFile(cmd.Image, cmd.SectorSize)
	if err != nil {
		return fmt.Errorf("unable to open disk image '%s': %w", cmd.Image, err)
	}
	defer img.Close()

	t := table.NewWriter()
	t.SetOutputMirror(commands.Stdout)
	t.SetTitle("%s (%v, %d-byte sectors)", cmd.Image, img.Layout(), img.SectorSize())
	t.AppendHeader(table.Row{"Name", "First Sector", "Sectors", "Size", "Unique GUID"})
	for _, p := range img.Partitions() {
		t.AppendRow(table.Row{p.Name, p.Start, p.Count, humanize.IBytes(p.Size()), p.UUID})
	}
	t.Render()
	return nil
}
