// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avbdisk

import (
	"bytes"

	"github.com/u-root/u-root/pkg/dt"
)

// MinimalDeviceTree returns a flattened device tree holding a model
// string, a memory node and an empty /chosen node.
func MinimalDeviceTree(model string) ([]byte, error) {
	fdt := &dt.FDT{
		Header: dt.Header{Magic: 0xd00dfeed, Version: 17, LastCompVersion: 16},
		RootNode: &dt.Node{
			Properties: []dt.Property{
				{Name: "model", Value: []byte(model + "\x00")},
				{Name: "#address-cells", Value: []byte{0, 0, 0, 2}},
				{Name: "#size-cells", Value: []byte{0, 0, 0, 2}},
			},
			Children: []*dt.Node{
				{Name: "memory", Properties: []dt.Property{{Name: "device_type", Value: []byte("memory\x00")}}},
				{Name: "chosen"},
			},
		},
	}
	var b bytes.Buffer
	if _, err := fdt.Write(&b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
