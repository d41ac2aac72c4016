// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package log

import (
	"bytes"
	stdlog "log"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestStdlibPrefixes(t *testing.T) {
	var buf bytes.Buffer
	l := logWrapper{Logger: stdlog.New(&buf, "", 0)}

	l.Infof("loaded %q", "boot_a")
	l.Warnf("slot %s", "_a")
	l.Errorf("code %d", 3)
	l.Debugf("dropped")

	require.Equal(t, "[boota][INFO] loaded \"boot_a\"\n[boota][WARN] slot _a\n[boota][ERROR] code 3\n", buf.String())
}

func TestLogrusBackend(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	prev := DefaultLogger
	defer func() { DefaultLogger = prev }()
	DefaultLogger = NewLogrus(l)

	Debugf("reading %d bytes", 64)
	Errorf("partition %q not found", "vbmeta_a")

	out := buf.String()
	require.Contains(t, out, `level=debug msg="reading 64 bytes" component=boota`)
	require.Contains(t, out, `level=error msg="partition \"vbmeta_a\" not found" component=boota`)
}
