// Copyright 2026 The Coredrain Authors
// This file is part of Coredrain.
//
// Coredrain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Coredrain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Coredrain. If not, see <http://www.gnu.org/licenses/>.

// Package coreclient is the external CORE ledger endpoint: a POST
// accepting an inclusive-start cursor for one user and returning an
// ascending-by-time array of ledger entries.
package coreclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/d4mr/coredrain/internal/model"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

type deltaWire struct {
	Kind          string  `json:"kind"`
	Token         string  `json:"token"`
	Amount        string  `json:"amount"`
	User          string  `json:"user"`
	Destination   string  `json:"destination"`
	USDCValue     *string `json:"usdcValue"`
	Fee           *string `json:"fee"`
	NativeTokenFee *string `json:"nativeTokenFee"`
}

type ledgerEntryWire struct {
	Time  int64     `json:"time"`
	Hash  string    `json:"hash"`
	Delta deltaWire `json:"delta"`
}

// SpotTransferDelta is the normalized shape of a single ledger entry
// whose delta.kind == "spotTransfer".
type SpotTransferDelta struct {
	Time        int64
	Hash        string
	Token       string
	Amount      string
	User        string
	Destination string
	USDCValue   *string
	Fee         *string
	NativeFee   *string
}

// RateLimitedError reports an HTTP 429 from the ledger endpoint, with
// the Retry-After value in seconds (60 when the header is absent or
// unparseable). The indexer worker type-asserts on it directly.
type RateLimitedError struct {
	RetryAfterSeconds int64
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("core ledger rate limited, retry after %ds", e.RetryAfterSeconds)
}

// FetchLedgerUpdates fetches every ledger entry for user from cursor
// (inclusive) onward. The API may redeliver entries at or before
// cursor; callers must derive progress from what was actually inserted,
// never from len(result).
func (c *Client) FetchLedgerUpdates(ctx context.Context, user string, cursor int64) ([]SpotTransferDelta, error) {
	reqBody, _ := json.Marshal(map[string]interface{}{
		"kind":      "userNonFundingLedgerUpdates",
		"user":      user,
		"startTime": cursor,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := int64(60)
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if v, err := strconv.ParseInt(ra, 10, 64); err == nil {
				retryAfter = v
			}
		}
		return nil, &RateLimitedError{RetryAfterSeconds: retryAfter}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("core ledger endpoint returned %d", resp.StatusCode)
	}

	var entries []ledgerEntryWire
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode ledger response: %w", err)
	}

	out := make([]SpotTransferDelta, 0, len(entries))
	for _, e := range entries {
		if e.Delta.Kind != "spotTransfer" {
			continue
		}
		out = append(out, SpotTransferDelta{
			Time:        e.Time,
			Hash:        e.Hash,
			Token:       e.Delta.Token,
			Amount:      e.Delta.Amount,
			User:        e.Delta.User,
			Destination: e.Delta.Destination,
			USDCValue:   e.Delta.USDCValue,
			Fee:         e.Delta.Fee,
			NativeFee:   e.Delta.NativeTokenFee,
		})
	}
	return out, nil
}

// ToPendingTransfer converts a spot-transfer delta destined for a system
// address into a PENDING Transfer row, tagging it with the watched
// sender whose indexer worker observed it. Destination is the system
// address the funds were moved to (it encodes which token is bridged);
// User is the actual EVM-side beneficiary the finder must match against
// a system transaction's assetRecipient.
func ToPendingTransfer(d SpotTransferDelta, watchedSender string) model.Transfer {
	return model.Transfer{
		CoreHash:      d.Hash,
		CoreTime:      d.Time,
		Token:         d.Token,
		Amount:        d.Amount,
		Recipient:     d.User,
		SystemAddress: d.Destination,
		WatchedSender: watchedSender,
		USDValue:      d.USDCValue,
		Fee:           d.Fee,
		NativeFee:     d.NativeFee,
		Status:        model.StatusPending,
	}
}
