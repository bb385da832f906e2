// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers: channel assertions
// with timeout safety valves and unique ID generation. Production
// code must not import this package.
package testutil
