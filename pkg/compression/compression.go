// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package compression implements reading and writing of compressed kernels
// and ramdisks as they are found in boot images.
package compression

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrUnsupported is returned by compressors that can only be detected.
	ErrUnsupported = errors.New("unsupported compression")
	// ErrTooLarge is returned by DecompressLimit when the decoded stream
	// grows past the limit.
	ErrTooLarge = errors.New("decompressed data exceeds limit")
)

// Compressor defines a single compression scheme (such as LZMA).
type Compressor interface {
	// Name is typically the name of a class.
	Name() string

	// Decode and Encode obey "x == Decode(Encode(x))".
	Decode(encodedData []byte) ([]byte, error)
	Encode(decodedData []byte) ([]byte, error)

	// NewReader returns a streaming decoder reading from r.
	NewReader(r io.Reader) (io.ReadCloser, error)
}

var magics = []struct {
	magic []byte
	c     Compressor
}{
	{[]byte{0x1f, 0x8b}, &Gzip{}},
	{[]byte{0x04, 0x22, 0x4d, 0x18}, &LZ4{}},
	{[]byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, &XZ{}},
	{[]byte{0x5d, 0x00, 0x00}, &LZMA{}},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, &Zstd{}},
	{[]byte("BZh"), &Bzip2{}},
	{[]byte{0x89, 'L', 'Z', 'O'}, &LZO{}},
}

// Detect returns the compressor matching the magic at the start of data,
// or nil when data does not look compressed.
func Detect(data []byte) Compressor {
	for _, m := range magics {
		if bytes.HasPrefix(data, m.magic) {
			return m.c
		}
	}
	return nil
}

// Decompress decodes data with the detected compressor. Data without a
// known magic is returned unchanged together with an empty name.
func Decompress(data []byte) ([]byte, string, error) {
	c := Detect(data)
	if c == nil {
		return data, "", nil
	}
	out, err := c.Decode(data)
	if err != nil {
		return nil, c.Name(), fmt.Errorf("%s: %w", c.Name(), err)
	}
	return out, c.Name(), nil
}

// DecompressLimit is Decompress with the decoded size bounded by limit.
// The stream is decoded incrementally and abandoned once it produces more
// than limit bytes, so a small crafted input cannot exhaust memory.
// Uncompressed data longer than limit fails the same way.
func DecompressLimit(data []byte, limit uint64) ([]byte, string, error) {
	c := Detect(data)
	if c == nil {
		if uint64(len(data)) > limit {
			return nil, "", fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(data), limit)
		}
		return data, "", nil
	}
	r, err := c.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, c.Name(), fmt.Errorf("%s: %w", c.Name(), err)
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, c.Name(), fmt.Errorf("%s: %w", c.Name(), err)
	}
	if uint64(len(out)) > limit {
		return nil, c.Name(), fmt.Errorf("%s: %w: more than %d bytes", c.Name(), ErrTooLarge, limit)
	}
	return out, c.Name(), nil
}

// FromName returns the compressor called name, matched case-insensitively.
func FromName(name string) (Compressor, error) {
	for _, m := range magics {
		if bytes.EqualFold([]byte(m.c.Name()), []byte(name)) {
			return m.c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, name)
}
