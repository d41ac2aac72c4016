// Copyright 2017-2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package commands holds what the avbtool verbs share.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
)

// Stdout receives the output of every command.
var Stdout io.Writer = os.Stdout

// Command is an interface of implementations of verbs
// (like "show", "verify" etc of "avbtool show"/"avbtool verify")
type Command interface {
	flags.Commander

	// ShortDescription explains what this command does in one line
	ShortDescription() string

	// LongDescription explains what this verb does (without limitation in amount of lines)
	LongDescription() string
}

// ErrArgs means arguments are invalid
type ErrArgs struct {
	Err error
}

func (err ErrArgs) Error() string {
	return fmt.Sprintf("invalid arguments: %v", err.Err)
}

func (err ErrArgs) Unwrap() error {
	return err.Err
}

// NoExtraArgs rejects positional arguments.
func NoExtraArgs(args []string) error {
	if len(args) != 0 {
		return ErrArgs{Err: fmt.Errorf("there are extra arguments: %q", args)}
	}
	return nil
}
