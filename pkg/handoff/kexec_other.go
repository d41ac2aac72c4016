// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux || !(amd64 || arm64)

package handoff

// Kexec is not available on this platform.
type Kexec struct {
	NoReboot bool
}

// Boot implements Executor. It always returns ErrUnsupported.
func (k *Kexec) Boot(*Images, Phase) error {
	return ErrUnsupported
}
