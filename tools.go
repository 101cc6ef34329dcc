// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

//go:build tools

// Package main pins the ginkgo CLI used to run test/integration:
//
//	go run github.com/onsi/ginkgo/v2/ginkgo --tags integration ./test/integration
package main

import (
	_ "github.com/onsi/ginkgo/v2/ginkgo"
)
