// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package infobootimage

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/linuxboot/boota/cmds/avbtool/commands"
	"github.com/linuxboot/boota/pkg/bootimg"
	"github.com/linuxboot/boota/pkg/compression"
)

var _ commands.Command = (*Command)(nil)

// Command prints an Android boot image header.
type Command struct {
	File string `short:"f" long:"file" description:"path to boot image" required:"true"`
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "prints the header and payload layout of a boot image"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return ""
}

// Execute implements flags.Commander.
func (cmd *Command) Execute(args []string) error {
	if err := commands.NoExtraArgs(args); err != nil {
		return err
	}
	data, err := os.ReadFile(cmd.File)
	if err != nil {
		return fmt.Errorf("unable to read '%s': %w", cmd.File, err)
	}
	h, err := bootimg.Parse(data)
	if err != nil {
		return fmt.Errorf("'%s': %w", cmd.File, err)
	}
	fmt.Fprint(commands.Stdout, bootimg.Summary(h))

	l := h.Layout()
	t := table.NewWriter()
	t.SetOutputMirror(commands.Stdout)
	t.SetTitle("Layout")
	t.AppendHeader(table.Row{"Section", "Offset", "Size", "Format"})
	for _, s := range []struct {
		name string
		bootimg.Section
	}{
		{"kernel", l.Kernel},
		{"ramdisk", l.Ramdisk},
		{"second", l.Second},
		{"recovery dtbo", l.RecoveryDTBO},
		{"dtb", l.DTB},
	} {
		if s.Size == 0 {
			continue
		}
		format := "raw"
		if c := compression.Detect(s.Bytes(data)); c != nil {
			format = c.Name()
		}
		t.AppendRow(table.Row{s.name, fmt.Sprintf("%#x", s.Offset), humanize.IBytes(s.Size), format})
	}
	t.AppendFooter(table.Row{"end", fmt.Sprintf("%#x", l.End()), "", ""})
	t.Render()

	if v2, ok := h.(*bootimg.HeaderV2); ok {
		for i := 0; ; i++ {
			e, err := v2.DTBEntry(data, i)
			if err != nil {
				break
			}
			fmt.Fprintf(commands.Stdout, "dtb[%d]: %#x, %s\n", i, e.Offset, humanize.IBytes(e.Size))
		}
	}
	return nil
}
