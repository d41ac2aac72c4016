// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package log

import (
	"github.com/sirupsen/logrus"
)

type logrusWrapper struct {
	entry *logrus.Entry
}

// NewLogrus returns a Logger backed by logrus. Every message carries
// the "component" field so the output can be filtered when boota runs
// inside a larger init.
func NewLogrus(l *logrus.Logger) Logger {
	return logrusWrapper{entry: l.WithField("component", "boota")}
}

// Debugf implements Logger.
func (w logrusWrapper) Debugf(format string, args ...interface{}) {
	w.entry.Debugf(format, args...)
}

// Infof implements Logger.
func (w logrusWrapper) Infof(format string, args ...interface{}) {
	w.entry.Infof(format, args...)
}

// Warnf implements Logger.
func (w logrusWrapper) Warnf(format string, args ...interface{}) {
	w.entry.Warnf(format, args...)
}

// Errorf implements Logger.
func (w logrusWrapper) Errorf(format string, args ...interface{}) {
	w.entry.Errorf(format, args...)
}

// Fatalf implements Logger.
func (w logrusWrapper) Fatalf(format string, args ...interface{}) {
	w.entry.Fatalf(format, args...)
}
