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

// Package model holds the durable and transient entities shared across
// every subsystem: transfers awaiting correlation, the anchor
// transactions used both as a correlation cache and as timestamp
// reference points, watched-address cursors, and the transient block/tx
// shapes the fetchers produce.
package model

import "time"

// Status is a Transfer's correlation state.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusMatched Status = "MATCHED"
	StatusFailed  Status = "FAILED"
)

// Transfer is a CORE-side spot-transfer event awaiting or holding
// correlation with its EVM-side materialization.
//
// Invariants: CoreHash is unique; the EVM fields are all non-nil iff
// Status == StatusMatched, except ContractAddress, which stays nil for a
// native-token match; Status transitions only PENDING->{MATCHED,
// FAILED}, and MATCHED is terminal.
type Transfer struct {
	CoreHash      string
	CoreTime      int64 // ms since epoch
	Token         string
	Amount        string // decimal string, human-scale
	Recipient     string
	SystemAddress string
	WatchedSender string
	USDValue      *string
	Fee           *string
	NativeFee     *string

	EVMInternalHash  *string
	EVMExplorerHash  *string
	EVMBlockNumber   *uint64
	EVMBlockHash     *string
	EVMBlockTime     *int64
	ContractAddress  *string

	Status     Status
	FailReason *string
}

// IsTerminal reports whether the transfer is MATCHED, the one status the
// invariants above treat as final. It returns false for FAILED, even
// though the matcher does not pick a FAILED transfer up again either.
func (t *Transfer) IsTerminal() bool {
	return t.Status == StatusMatched
}

// AnchorTx is a system transaction observed in an EVM block. It serves
// dual duty: a correlation-cache entry keyed by its match tuple, and a
// timestamp<->block reference point for the finder's binary search.
//
// Invariants: InternalHash is unique; (From, AssetRecipient,
// AmountSmallestUnit) is the match key; anchors are inserted idempotently
// whenever a block is fetched, never mutated, never deleted by this
// system.
type AnchorTx struct {
	InternalHash       string
	ExplorerHash        string
	BlockNumber          uint64
	BlockHash            string
	BlockTimestamp       int64 // ms
	From                 string
	AssetRecipient       string
	AmountSmallestUnit   string // decimal string, arbitrary-width integer
	ContractAddress      *string
}

// WatchedAddress is an indexer worker's configuration and progress
// cursor.
type WatchedAddress struct {
	Address         string
	LastIndexedTime int64 // ms, 0 = from the beginning
	IsActive        bool
}

// SystemTx is the normalized, transient representation of a single
// asset-transfer transaction extracted from a fetched block. Matching
// logic never looks past these five fields, hiding whether the
// underlying transaction was a native-value transfer or a contract call.
type SystemTx struct {
	InternalHash       string
	ExplorerHash       string
	From               string
	AssetRecipient     string
	AmountSmallestUnit string
	ContractAddress    *string
}

// BlockData is a fetched block reduced to the fields the finder and
// anchor index need.
type BlockData struct {
	Number    uint64
	Hash      string
	Timestamp int64 // ms
	Txs       []SystemTx
}

// AnchorRef is an anchor projected to its block number and timestamp.
// Bracket is the result of FindBracketingAnchors: the anchor immediately
// at-or-before a target time, and the one immediately after.
type AnchorRef struct {
	BlockNumber    uint64
	BlockTimestamp int64
}

type Bracket struct {
	Before *AnchorRef
	After  *AnchorRef
}

// InsertBatchResult reports how many documents of a batch insert were
// newly stored versus already present.
type InsertBatchResult struct {
	Inserted   int
	Duplicates int
}

// FindResult is returned by the finder on a successful correlation.
type FindResult struct {
	InternalHash    string
	ExplorerHash    string
	BlockNumber     uint64
	BlockHash       string
	BlockTimestamp  int64
	ContractAddress *string

	Rounds        int
	BlocksSearched int
	Elapsed       time.Duration
}
