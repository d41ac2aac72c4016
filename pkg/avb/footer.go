// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avb

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// FooterSize is the size of the footer stored in the last bytes of a
// partition carrying embedded vbmeta.
const FooterSize = 64

// Footer version written by this package.
const (
	FooterVersionMajor = 1
	FooterVersionMinor = 0
)

// FooterMagic starts every footer.
var FooterMagic = [4]byte{'A', 'V', 'B', 'f'}

// Footer locates a vbmeta image inside a partition.
type Footer struct {
	Magic             [4]byte
	VersionMajor      uint32
	VersionMinor      uint32
	OriginalImageSize uint64
	VBMetaOffset      uint64
	VBMetaSize        uint64
	Reserved          [28]byte
}

// ParseFooter decodes a footer.
func ParseFooter(data []byte) (*Footer, error) {
	if len(data) != FooterSize {
		return nil, fmt.Errorf("footer must be %d bytes, got %d", FooterSize, len(data))
	}
	var f Footer
	if err := binary.Read(bytes.NewReader(data), binary.BigEndian, &f); err != nil {
		return nil, err
	}
	if f.Magic != FooterMagic {
		return nil, fmt.Errorf("bad footer magic %q", f.Magic[:])
	}
	if f.VersionMajor != FooterVersionMajor {
		return nil, fmt.Errorf("unsupported footer version %d.%d", f.VersionMajor, f.VersionMinor)
	}
	return &f, nil
}

// MarshalBinary encodes the footer.
func (f *Footer) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
