// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avbops

import (
	"fmt"
	"strconv"

	"github.com/linuxboot/boota/pkg/avb"
)

// Policy answers the device-state questions of the verification engine.
type Policy interface {
	ReadIsDeviceUnlocked() (bool, error)
	ReadRollbackIndex(location int) (uint64, error)
}

// FixedPolicy reports an unlocked device with every rollback index at 0.
// It is meant for development boards without provisioned state.
type FixedPolicy struct{}

// ReadIsDeviceUnlocked implements Policy.
func (FixedPolicy) ReadIsDeviceUnlocked() (bool, error) {
	return true, nil
}

// ReadRollbackIndex implements Policy.
func (FixedPolicy) ReadRollbackIndex(int) (uint64, error) {
	return 0, nil
}

// Keys used by StoredPolicy.
const (
	KeyDeviceLocked        = "avb_device_locked"
	KeyRollbackIndexFormat = "avb_rollback_index_%d"
)

// Getter is a read-only key/value store.
type Getter interface {
	Get(key string) (string, bool)
}

// StoredPolicy reads lock state and rollback indexes from the boot
// environment. A missing lock state means locked; a missing rollback index
// is 0.
type StoredPolicy struct {
	Store Getter
}

// ReadIsDeviceUnlocked implements Policy.
func (p StoredPolicy) ReadIsDeviceUnlocked() (bool, error) {
	v, ok := p.Store.Get(KeyDeviceLocked)
	if !ok {
		return false, nil
	}
	locked, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q: %v: %w", KeyDeviceLocked, v, err, avb.ErrIO)
	}
	return !locked, nil
}

// ReadRollbackIndex implements Policy.
func (p StoredPolicy) ReadRollbackIndex(location int) (uint64, error) {
	if location < 0 || location >= avb.MaxRollbackIndexLocations {
		return 0, fmt.Errorf("rollback index location %d: %w", location, avb.ErrIO)
	}
	key := fmt.Sprintf(KeyRollbackIndexFormat, location)
	v, ok := p.Store.Get(key)
	if !ok {
		return 0, nil
	}
	idx, err := strconv.ParseUint(v, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %v: %w", key, v, err, avb.ErrIO)
	}
	return idx, nil
}
