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

package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/d4mr/coredrain/internal/storage"
)

func openTestStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "coredrain.mdbx"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedWatchedAddresses must not reset an address's progress on a
// restart: re-seeding the same address after its cursor has advanced
// must leave LastIndexedTime untouched.
func TestSeedWatchedAddressesPreservesExistingCursor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := seedWatchedAddresses(ctx, s, []string{"0xaaaa"}); err != nil {
		t.Fatalf("initial seed: %v", err)
	}
	if err := s.UpdateCursor(ctx, "0xaaaa", 123456); err != nil {
		t.Fatalf("UpdateCursor: %v", err)
	}

	// Simulate a restart: seed the same configured addresses again.
	if err := seedWatchedAddresses(ctx, s, []string{"0xaaaa"}); err != nil {
		t.Fatalf("re-seed: %v", err)
	}

	addrs, err := s.ListWatchedAddresses(ctx)
	if err != nil {
		t.Fatalf("ListWatchedAddresses: %v", err)
	}
	if len(addrs) != 1 {
		t.Fatalf("got %d watched addresses, want 1", len(addrs))
	}
	if addrs[0].LastIndexedTime != 123456 {
		t.Fatalf("got LastIndexedTime %d, want 123456 (re-seeding must not reset progress)", addrs[0].LastIndexedTime)
	}
}

func TestSeedWatchedAddressesAddsNewAddressesOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := seedWatchedAddresses(ctx, s, []string{"0xaaaa"}); err != nil {
		t.Fatalf("initial seed: %v", err)
	}
	if err := s.UpdateCursor(ctx, "0xaaaa", 500); err != nil {
		t.Fatalf("UpdateCursor: %v", err)
	}

	if err := seedWatchedAddresses(ctx, s, []string{"0xaaaa", "0xbbbb", ""}); err != nil {
		t.Fatalf("seed with a new address: %v", err)
	}

	addrs, err := s.ListWatchedAddresses(ctx)
	if err != nil {
		t.Fatalf("ListWatchedAddresses: %v", err)
	}
	byAddr := make(map[string]int64, len(addrs))
	for _, a := range addrs {
		byAddr[a.Address] = a.LastIndexedTime
	}
	if len(byAddr) != 2 {
		t.Fatalf("got %d watched addresses, want 2 (empty strings must be skipped)", len(byAddr))
	}
	if byAddr["0xaaaa"] != 500 {
		t.Fatalf("existing address's cursor was reset: got %d, want 500", byAddr["0xaaaa"])
	}
	if got, ok := byAddr["0xbbbb"]; !ok || got != 0 {
		t.Fatalf("new address should start at cursor 0, got %d (present=%v)", got, ok)
	}
}
