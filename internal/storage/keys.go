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

package storage

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"strings"
)

// hashKey turns a 0x-prefixed hex hash/address into its raw bytes. Input
// is expected well-formed (validated upstream); malformed input falls
// back to the trimmed string bytes so a lookup simply misses rather than
// panicking.
func hashKey(hexStr string) []byte {
	s := strings.TrimPrefix(hexStr, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return []byte(s)
	}
	return b
}

func beUint64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// pendingByTimeKey is coreTime (8B BE) + coreHash, giving oldest-first
// iteration order for GetPendingTransfers.
func pendingByTimeKey(coreTime int64, coreHash string) []byte {
	k := make([]byte, 0, 8+32)
	k = append(k, beUint64(coreTime)...)
	k = append(k, hashKey(coreHash)...)
	return k
}

// anchorsByTimeKey is blockTimestamp (8B BE) + internalHash, giving
// ascending-timestamp iteration for the bracketing-anchor lookups.
func anchorsByTimeKey(blockTimestamp int64, internalHash string) []byte {
	k := make([]byte, 0, 8+32)
	k = append(k, beUint64(blockTimestamp)...)
	k = append(k, hashKey(internalHash)...)
	return k
}

// amountBytes encodes a decimal-string smallest-unit amount as a
// fixed-width (32-byte) big-endian integer so that byte-lexicographic
// order on the key matches numeric order on the amount, which
// matchTuplePrefix below depends on only for exact-equality comparisons
// (not range scans), so the width just needs to be consistent.
func amountBytes(amount string) []byte {
	n := new(big.Int)
	n.SetString(amount, 10)
	b := n.Bytes()
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// matchTuplePrefix is the fixed-width (20+20+32 = 72 byte) prefix shared
// by every AnchorsByMatchKey entry for a given (from, recipient, amount)
// triple; the trailing blockTimestamp varies per entry.
func matchTuplePrefix(from, recipient, amountSmallestUnit string) []byte {
	k := make([]byte, 0, 20+20+32)
	k = append(k, hashKey(from)...)
	k = append(k, hashKey(recipient)...)
	k = append(k, amountBytes(amountSmallestUnit)...)
	return k
}

func anchorsByMatchKey(from, recipient, amountSmallestUnit string, blockTimestamp int64) []byte {
	k := matchTuplePrefix(from, recipient, amountSmallestUnit)
	k = append(k, beUint64(blockTimestamp)...)
	return k
}
