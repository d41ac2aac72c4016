// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package env reads and writes U-Boot style environment blocks.
//
// A block is a little-endian CRC32 of the data area followed by the data
// area: "key=value\0" pairs terminated by an empty string and padded with
// zeros to the block size.
package env

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// DefaultSize is the block size used when none is configured.
const DefaultSize = 0x8000

const crcSize = 4

var (
	// ErrBadCRC is returned when the stored checksum does not match.
	ErrBadCRC = errors.New("bad environment CRC")
	// ErrTooLarge is returned when the variables do not fit the block.
	ErrTooLarge = errors.New("environment does not fit")
)

// Env is an in-memory environment.
type Env struct {
	size int
	vars map[string]string
}

// New returns an empty environment of the given block size.
func New(size int) *Env {
	if size <= 0 {
		size = DefaultSize
	}
	return &Env{size: size, vars: map[string]string{}}
}

// Load decodes a block. The block size is len(data).
func Load(data []byte) (*Env, error) {
	if len(data) <= crcSize {
		return nil, fmt.Errorf("environment block of %d bytes is too small", len(data))
	}
	want := binary.LittleEndian.Uint32(data)
	body := data[crcSize:]
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, fmt.Errorf("%w: stored %#08x, computed %#08x", ErrBadCRC, want, got)
	}
	e := New(len(data))
	for len(body) > 0 && body[0] != 0 {
		end := bytes.IndexByte(body, 0)
		if end < 0 {
			return nil, errors.New("unterminated environment variable")
		}
		kv := string(body[:end])
		body = body[end+1:]
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("malformed environment entry %q", kv)
		}
		e.vars[k] = v
	}
	return e, nil
}

// Size returns the block size.
func (e *Env) Size() int { return e.size }

// Get returns the value of key.
func (e *Env) Get(key string) (string, bool) {
	v, ok := e.vars[key]
	return v, ok
}

// Set sets key to value.
func (e *Env) Set(key, value string) {
	e.vars[key] = value
}

// Delete removes key.
func (e *Env) Delete(key string) {
	delete(e.vars, key)
}

// Keys returns the variable names in sorted order.
func (e *Env) Keys() []string {
	keys := make([]string, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalBinary encodes the environment into a block of Size() bytes.
func (e *Env) MarshalBinary() ([]byte, error) {
	var (
		body bytes.Buffer
		errs error
	)
	for _, k := range e.Keys() {
		v := e.vars[k]
		if k == "" || strings.ContainsAny(k, "=\x00") {
			errs = multierror.Append(errs, fmt.Errorf("invalid variable name %q", k))
			continue
		}
		if strings.IndexByte(v, 0) >= 0 {
			errs = multierror.Append(errs, fmt.Errorf("value of %q contains NUL", k))
			continue
		}
		fmt.Fprintf(&body, "%s=%s\x00", k, v)
	}
	if errs != nil {
		return nil, errs
	}
	body.WriteByte(0)
	if body.Len() > e.size-crcSize {
		return nil, fmt.Errorf("%w: %d bytes in a %d byte block", ErrTooLarge, body.Len()+crcSize, e.size)
	}
	out := make([]byte, e.size)
	copy(out[crcSize:], body.Bytes())
	binary.LittleEndian.PutUint32(out, crc32.ChecksumIEEE(out[crcSize:]))
	return out, nil
}

// WriteTo writes the encoded block to w.
func (e *Env) WriteTo(w io.Writer) (int64, error) {
	b, err := e.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

// ReadFile loads the block stored in path.
func ReadFile(path string) (*Env, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	e, err := Load(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return e, nil
}

// WriteFile stores the encoded block in path.
func (e *Env) WriteFile(path string) error {
	b, err := e.MarshalBinary()
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
