// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package handoff

import (
	"bytes"
	"encoding/binary"

	"github.com/u-root/u-root/pkg/dt"
)

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func setProperty(n *dt.Node, name string, value []byte) {
	for i := range n.Properties {
		if n.Properties[i].Name == name {
			n.Properties[i].Value = value
			return
		}
	}
	n.Properties = append(n.Properties, dt.Property{Name: name, Value: value})
}

func deleteProperty(n *dt.Node, name string) {
	props := n.Properties[:0]
	for _, p := range n.Properties {
		if p.Name != name {
			props = append(props, p)
		}
	}
	n.Properties = props
}

// FixupDeviceTree returns a copy of dtb whose /chosen node carries
// cmdline as bootargs and, when initrd is not nil, the initrd location.
// A missing /chosen node is created.
func FixupDeviceTree(dtb []byte, cmdline string, initrd *[2]uint64) ([]byte, error) {
	fdt, err := dt.ReadFDT(bytes.NewReader(dtb))
	if err != nil {
		return nil, err
	}

	var chosen *dt.Node
	for _, n := range fdt.RootNode.Children {
		if n.Name == "chosen" {
			chosen = n
			break
		}
	}
	if chosen == nil {
		chosen = &dt.Node{Name: "chosen"}
		fdt.RootNode.Children = append(fdt.RootNode.Children, chosen)
	}

	setProperty(chosen, "bootargs", []byte(cmdline+"\x00"))
	if initrd != nil {
		setProperty(chosen, "linux,initrd-start", u64(initrd[0]))
		setProperty(chosen, "linux,initrd-end", u64(initrd[1]))
	} else {
		deleteProperty(chosen, "linux,initrd-start")
		deleteProperty(chosen, "linux,initrd-end")
	}

	var out bytes.Buffer
	if _, err := fdt.Write(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
