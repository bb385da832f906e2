// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ErrClaimRejected is returned by Claim when the identity service did
// not accept the ticket: any non-200 status, a transport failure, or
// an undecodable body. The caller treats all of these as terminal for
// the handshake; the ticket is already consumed and is not retried.
var ErrClaimRejected = errors.New("ticket: claim rejected")

// Identity is the authenticated account a successful claim resolves.
type Identity struct {
	AccountID string `json:"accountId"`
	Username  string `json:"username"`
}

// ClaimRequest is the body of the claim-session call.
type ClaimRequest struct {
	TicketID  string `json:"ticketId"`
	TicketKey string `json:"ticketKey"`
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
}

// Claimer exchanges consumed tickets for identities against the
// external identity service.
type Claimer struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

// NewClaimer creates a claimer for the identity service at baseURL
// (e.g. "https://auth.example.net"). Each claim call is bounded by
// timeout on top of whatever deadline the caller's context carries.
func NewClaimer(baseURL string, timeout time.Duration, logger *slog.Logger) *Claimer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Claimer{
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{},
		logger:  logger,
	}
}

// Claim performs the claim-session call. Success is HTTP 200 with a
// decodable identity body; everything else maps to ErrClaimRejected.
// A timed-out call is a rejection, not a retry — the ticket was
// consumed before Claim and stays consumed.
func (c *Claimer) Claim(ctx context.Context, request ClaimRequest) (Identity, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return Identity{}, fmt.Errorf("encoding claim request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/claim-session", bytes.NewReader(body))
	if err != nil {
		return Identity{}, fmt.Errorf("building claim request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	response, err := c.client.Do(httpRequest)
	if err != nil {
		c.logger.Warn("claim-session call failed", "ticket_id", request.TicketID, "error", err)
		return Identity{}, fmt.Errorf("%w: %v", ErrClaimRejected, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		c.logger.Info("claim-session refused", "ticket_id", request.TicketID, "status", response.StatusCode)
		return Identity{}, fmt.Errorf("%w: status %d", ErrClaimRejected, response.StatusCode)
	}

	var identity Identity
	if err := json.NewDecoder(response.Body).Decode(&identity); err != nil {
		return Identity{}, fmt.Errorf("%w: decoding identity: %v", ErrClaimRejected, err)
	}
	if identity.AccountID == "" {
		return Identity{}, fmt.Errorf("%w: identity has no account ID", ErrClaimRejected)
	}
	return identity, nil
}
