// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compression

import (
	"bytes"
	"compress/bzip2"
	"io"

	"github.com/klauspost/compress/zstd"
	gzip "github.com/klauspost/pgzip"
)

// Gzip implements Compressor with a parallel gzip implementation.
type Gzip struct{}

// Name returns the type of compression employed.
func (c *Gzip) Name() string {
	return "GZIP"
}

// Decode decodes a byte slice of gzip data.
func (c *Gzip) Decode(encodedData []byte) ([]byte, error) {
	return decodeAll(c, encodedData)
}

// NewReader returns a gzip stream decoder.
func (c *Gzip) NewReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// Encode encodes a byte slice with gzip at the best compression level.
func (c *Gzip) Encode(decodedData []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(decodedData); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Zstd implements Compressor for zstandard frames.
type Zstd struct{}

// Name returns the type of compression employed.
func (c *Zstd) Name() string {
	return "ZSTD"
}

// Decode decodes a byte slice of zstd data.
func (c *Zstd) Decode(encodedData []byte) ([]byte, error) {
	d, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	return d.DecodeAll(encodedData, nil)
}

// NewReader returns a zstd stream decoder.
func (c *Zstd) NewReader(r io.Reader) (io.ReadCloser, error) {
	d, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}

// Encode encodes a byte slice with zstd.
func (c *Zstd) Encode(decodedData []byte) ([]byte, error) {
	e, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer e.Close()
	return e.EncodeAll(decodedData, nil), nil
}

// Bzip2 decodes bzip2 data. The Go ecosystem carries no maintained bzip2
// encoder, so Encode fails.
type Bzip2 struct{}

// Name returns the type of compression employed.
func (c *Bzip2) Name() string {
	return "BZIP2"
}

// Decode decodes a byte slice of bzip2 data.
func (c *Bzip2) Decode(encodedData []byte) ([]byte, error) {
	return decodeAll(c, encodedData)
}

// NewReader returns a bzip2 stream decoder.
func (c *Bzip2) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(bzip2.NewReader(r)), nil
}

// Encode returns ErrUnsupported.
func (c *Bzip2) Encode([]byte) ([]byte, error) {
	return nil, ErrUnsupported
}

// LZO is recognized but cannot be decoded.
type LZO struct{}

// Name returns the type of compression employed.
func (c *LZO) Name() string {
	return "LZO"
}

// Decode returns ErrUnsupported.
func (c *LZO) Decode([]byte) ([]byte, error) {
	return nil, ErrUnsupported
}

// Encode returns ErrUnsupported.
func (c *LZO) Encode([]byte) ([]byte, error) {
	return nil, ErrUnsupported
}

// NewReader returns ErrUnsupported.
func (c *LZO) NewReader(io.Reader) (io.ReadCloser, error) {
	return nil, ErrUnsupported
}

func decodeAll(c Compressor, encodedData []byte) ([]byte, error) {
	r, err := c.NewReader(bytes.NewReader(encodedData))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
