// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

// Package ticket implements the one-time authentication tickets the
// broker exchanges for identities.
//
// Tickets are issued out-of-band over the trusted broker link before
// the client they belong to ever connects. [Store] holds the pending
// set and guarantees single use: Consume removes the ticket atomically,
// so of any number of concurrent claims for the same ticket ID exactly
// one observes it. A ticket stays consumed even when the subsequent
// external claim fails — replaying a ticket after a failed claim is a
// rejection, not a retry.
//
// [Claimer] performs the claim-session call against the external
// identity service, which is the sole authority on what a ticket is
// worth. The broker never inspects ticket keys beyond forwarding them.
package ticket
