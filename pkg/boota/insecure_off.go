// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !boota_insecure

package boota

// insecureBuild is false: Config.AllowUnverified has no effect.
const insecureBuild = false
