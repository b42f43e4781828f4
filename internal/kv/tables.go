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

// Package kv is a thin facade over the embedded key-value store: table
// constants plus a Tx/RwTx/Cursor interface so the rest of the tree
// never imports the cgo binding directly.
package kv

// Table names. Keys and values are documented inline.
const (
	// Transfers: key = coreHash (32B), value = msgpack(Transfer)
	Transfers = "Transfers"

	// PendingByTime: key = coreTime(8B BE) + coreHash(32B), value = empty.
	// Secondary index over Transfers maintained only while PENDING; an
	// entry is removed the instant a transfer leaves PENDING so
	// GetPendingTransfers never has to filter by status.
	PendingByTime = "PendingByTime"

	// AnchorTxs: key = internalHash (32B), value = msgpack(AnchorTx)
	AnchorTxs = "AnchorTxs"

	// AnchorsByTime: key = blockTimestamp(8B BE) + internalHash(32B),
	// value = internalHash. Supports FindBracketingAnchors' two
	// one-shot directional lookups.
	AnchorsByTime = "AnchorsByTime"

	// AnchorsByMatchKey: key = from(20B) + assetRecipient(20B) +
	// amountSmallestUnit (fixed-width 32-byte big-endian) +
	// blockTimestamp(8B BE), value = internalHash. Supports
	// FindMatchingAnchor: seek to the (from,recipient,amount) prefix,
	// scan forward filtering by the timestamp window.
	AnchorsByMatchKey = "AnchorsByMatchKey"

	// WatchedAddresses: key = address (20B), value = msgpack(WatchedAddress)
	WatchedAddresses = "WatchedAddresses"
)

// Tables lists every table the store must create/verify at startup.
var Tables = []string{
	Transfers,
	PendingByTime,
	AnchorTxs,
	AnchorsByTime,
	AnchorsByMatchKey,
	WatchedAddresses,
}
