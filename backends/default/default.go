// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package _default includes the default backends, currently only hostgo.
//
// To use it simply include:
//
//	import _ "github.com/gomlx/xrt/backends/default"
//
// Accelerator backends live in their own modules and register themselves the
// same way when imported.
package _default

import (
	_ "github.com/gomlx/xrt/backends/hostgo"
)
