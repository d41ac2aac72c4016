// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avbops

import (
	"github.com/linuxboot/boota/pkg/avb"
	"github.com/linuxboot/boota/pkg/blockdev"
)

// Ops is the full capability set handed to the verification engine.
type Ops struct {
	*Partitions
	*TrustAnchor
	Policy
}

var _ avb.Ops = (*Ops)(nil)

// New binds store, anchor and policy. A nil anchor means the compiled-in
// root key; a nil policy means FixedPolicy.
func New(store blockdev.Store, anchor *TrustAnchor, policy Policy) *Ops {
	if anchor == nil {
		anchor = DefaultTrustAnchor()
	}
	if policy == nil {
		policy = FixedPolicy{}
	}
	return &Ops{
		Partitions:  NewPartitions(store),
		TrustAnchor: anchor,
		Policy:      policy,
	}
}
