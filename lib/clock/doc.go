// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the broker's timeout paths (worker
// spawn deadlines, ticket claim deadlines) so tests can drive them
// deterministically instead of sleeping.
package clock
