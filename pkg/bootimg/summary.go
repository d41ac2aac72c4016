// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootimg

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/camelcase"
)

// v1Fields do not exist in version 0 headers.
var v1Fields = map[string]bool{
	"RecoveryDTBOSize":   true,
	"RecoveryDTBOOffset": true,
	"HeaderSize":         true,
}

// Summary prints a multi-line summary of the header's content.
func Summary(h Header) string {
	var b strings.Builder
	writeFields(&b, reflect.ValueOf(h).Elem(), h.Version())
	return b.String()
}

func label(name string) string {
	return strings.Join(camelcase.Split(name), " ")
}

func writeFields(b *strings.Builder, v reflect.Value, version uint32) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		fv := v.Field(i)
		if f.Anonymous {
			writeFields(b, fv, version)
			continue
		}
		if version == 0 && v1Fields[f.Name] {
			continue
		}
		fmt.Fprintf(b, "%-20s : %s\n", label(f.Name), formatField(f.Name, fv))
	}
}

func formatField(name string, v reflect.Value) string {
	switch v.Kind() {
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			raw := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(raw), v)
			return fmt.Sprintf("%q", cString(raw))
		}
		var parts []string
		for i := 0; i < v.Len(); i++ {
			parts = append(parts, fmt.Sprintf("%08x", v.Index(i).Uint()))
		}
		return strings.Join(parts, "")
	case reflect.Uint32, reflect.Uint64:
		n := v.Uint()
		switch {
		case name == "OSVersion":
			h := HeaderV0{OSVersion: uint32(n)}
			return fmt.Sprintf("%#08x (%s)", n, h.OSVersionString())
		case strings.HasSuffix(name, "Size"):
			return fmt.Sprintf("%#08x %d (%s)", n, n, humanize.IBytes(n))
		case strings.HasSuffix(name, "Addr"), strings.HasSuffix(name, "Offset"):
			return fmt.Sprintf("%#08x", n)
		}
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprint(v.Interface())
}
