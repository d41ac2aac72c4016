// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package addhashfooter

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/linuxboot/boota/cmds/avbtool/commands"
	"github.com/linuxboot/boota/pkg/avb"
)

var _ commands.Command = (*Command)(nil)

// Command signs an image and appends a vbmeta image and footer to it.
type Command struct {
	Image         string `long:"image" description:"image to sign" required:"true"`
	PartitionName string `long:"partition-name" description:"name of the partition the image is for" required:"true"`
	PartitionSize uint64 `long:"partition-size" description:"size of the resulting partition image in bytes" required:"true"`
	Key           string `long:"key" description:"RSA private key in PEM" required:"true"`
	Algorithm     string `long:"algorithm" description:"signing algorithm" default:"SHA256_RSA2048"`
	RollbackIndex uint64 `long:"rollback-index" description:"rollback index of the vbmeta image"`
	Salt          string `long:"salt" description:"hash salt in hex"`
	Output        string `short:"o" long:"output" description:"output path (default overwrites the image)"`
}

// ShortDescription explains what this command does in one line
func (cmd *Command) ShortDescription() string {
	return "adds a hash descriptor, a signed vbmeta image and a footer to an image"
}

// LongDescription explains what this verb does (without limitation in amount of lines)
func (cmd *Command) LongDescription() string {
	return "The vbmeta image is placed at the next 4 KiB boundary after the image and the footer in the last 64 bytes of the partition."
}

// Execute implements flags.Commander.
func (cmd *Command) Execute(args []string) error {
	if err := commands.NoExtraArgs(args); err != nil {
		return err
	}
	alg, err := avb.ParseAlgorithm(cmd.Algorithm)
	if err != nil {
		return commands.ErrArgs{Err: err}
	}
	salt, err := hex.DecodeString(cmd.Salt)
	if err != nil {
		return commands.ErrArgs{Err: fmt.Errorf("salt: %w", err)}
	}
	pem, err := os.ReadFile(cmd.Key)
	if err != nil {
		return fmt.Errorf("unable to read key '%s': %w", cmd.Key, err)
	}
	key, err := avb.ParsePrivateKeyPEM(pem)
	if err != nil {
		return fmt.Errorf("key '%s': %w", cmd.Key, err)
	}
	image, err := os.ReadFile(cmd.Image)
	if err != nil {
		return fmt.Errorf("unable to read '%s': %w", cmd.Image, err)
	}

	out, err := avb.AddHashFooter(image, &avb.VBMetaBuilder{
		Algorithm:     alg,
		Key:           key,
		RollbackIndex: cmd.RollbackIndex,
	}, avb.HashFooterOptions{
		PartitionName: cmd.PartitionName,
		PartitionSize: cmd.PartitionSize,
		Salt:          salt,
	})
	if err != nil {
		return err
	}
	dst := cmd.Output
	if dst == "" {
		dst = cmd.Image
	}
	if err := os.WriteFile(dst, out, 0o644); err != nil {
		return fmt.Errorf("unable to write '%s': %w", dst, err)
	}
	fmt.Fprintf(commands.Stdout, "%s: %s partition image for %q\n", dst, humanize.IBytes(uint64(len(out))), cmd.PartitionName)
	return nil
}
