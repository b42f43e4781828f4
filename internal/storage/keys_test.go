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
	"bytes"
	"testing"
)

func TestPendingByTimeKeyOrdersByTimeThenHash(t *testing.T) {
	a := pendingByTimeKey(100, "0xaa")
	b := pendingByTimeKey(200, "0xaa")
	if bytes.Compare(a, b) >= 0 {
		t.Fatal("a later coreTime must sort after an earlier one")
	}

	c := pendingByTimeKey(100, "0xab")
	d := pendingByTimeKey(100, "0xaa")
	if bytes.Compare(d, c) >= 0 {
		t.Fatal("equal times must tie-break on the hash suffix")
	}
}

func TestAnchorsByTimeKeyRoundTripsTimestamp(t *testing.T) {
	k := anchorsByTimeKey(1_700_000_000_000, "0xdeadbeef")
	if len(k) < 8 {
		t.Fatalf("key too short: %d bytes", len(k))
	}
	got := int64(beToUint64(k[:8]))
	if got != 1_700_000_000_000 {
		t.Fatalf("got %d, want 1_700_000_000_000", got)
	}
}

func TestAmountBytesPreservesNumericOrder(t *testing.T) {
	small := amountBytes("5")
	large := amountBytes("5000000000000000000")
	if bytes.Compare(small, large) >= 0 {
		t.Fatal("fixed-width big-endian encoding must preserve numeric order")
	}
	if len(small) != 32 || len(large) != 32 {
		t.Fatalf("expected 32-byte encoding, got %d and %d", len(small), len(large))
	}
}

func TestMatchTuplePrefixIsFixedWidth(t *testing.T) {
	p := matchTuplePrefix("0x2222222222222222222222222222222222222222", "0x3333333333333333333333333333333333333333", "5000000000000000000")
	if len(p) != 20+20+32 {
		t.Fatalf("got %d bytes, want 72", len(p))
	}
}

func TestAnchorsByMatchKeyAppendsTimestampAfterPrefix(t *testing.T) {
	from := "0x2222222222222222222222222222222222222222"
	recipient := "0x3333333333333333333333333333333333333333"
	amount := "5000000000000000000"
	k1 := anchorsByMatchKey(from, recipient, amount, 100)
	k2 := anchorsByMatchKey(from, recipient, amount, 200)
	prefix := matchTuplePrefix(from, recipient, amount)
	if !bytes.HasPrefix(k1, prefix) || !bytes.HasPrefix(k2, prefix) {
		t.Fatal("both keys must share the match-tuple prefix")
	}
	if bytes.Compare(k1, k2) >= 0 {
		t.Fatal("earlier blockTimestamp must sort before later")
	}
}
