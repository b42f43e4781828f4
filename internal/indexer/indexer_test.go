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

package indexer

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	coordpkg "github.com/d4mr/coredrain/internal/backoff"
	"github.com/d4mr/coredrain/internal/coreclient"
	"github.com/d4mr/coredrain/internal/model"
	"github.com/d4mr/coredrain/internal/storage"
)

// fakeCoreClient answers FetchLedgerUpdates from a fixed script keyed by
// cursor; unscripted cursors return no deltas.
type fakeCoreClient struct {
	byCursor map[int64][]coreclient.SpotTransferDelta
	calls    []int64
}

func (f *fakeCoreClient) FetchLedgerUpdates(ctx context.Context, user string, cursor int64) ([]coreclient.SpotTransferDelta, error) {
	f.calls = append(f.calls, cursor)
	return f.byCursor[cursor], nil
}

// fakeStore implements storage.Store with only the methods the indexer
// actually exercises behaving meaningfully; everything else is an unused
// stub to satisfy the interface.
type fakeStore struct {
	watched   []model.WatchedAddress
	inserted  []model.Transfer
	cursorSet map[string]int64
}

func newFakeStore() *fakeStore { return &fakeStore{cursorSet: map[string]int64{}} }

func (s *fakeStore) InsertTransferBatch(ctx context.Context, transfers []model.Transfer) (model.InsertBatchResult, error) {
	s.inserted = append(s.inserted, transfers...)
	return model.InsertBatchResult{Inserted: len(transfers)}, nil
}
func (s *fakeStore) GetPendingTransfers(ctx context.Context, limit int) ([]model.Transfer, error) {
	return nil, nil
}
func (s *fakeStore) MarkMatched(ctx context.Context, coreHash string, fields storage.MatchedFields) error {
	return nil
}
func (s *fakeStore) MarkFailed(ctx context.Context, coreHash, reason string) error { return nil }
func (s *fakeStore) InsertAnchorTxBatch(ctx context.Context, anchors []model.AnchorTx) (model.InsertBatchResult, error) {
	return model.InsertBatchResult{}, nil
}
func (s *fakeStore) FindBracketingAnchors(ctx context.Context, targetTime int64) (model.Bracket, error) {
	return model.Bracket{}, nil
}
func (s *fakeStore) FindMatchingAnchor(ctx context.Context, from, recipient, amount string, minTime, maxTime int64) (*model.AnchorTx, error) {
	return nil, nil
}
func (s *fakeStore) UpsertWatchedAddress(ctx context.Context, addr model.WatchedAddress) error {
	s.watched = append(s.watched, addr)
	return nil
}
func (s *fakeStore) UpdateCursor(ctx context.Context, address string, lastIndexedTime int64) error {
	s.cursorSet[address] = lastIndexedTime
	return nil
}
func (s *fakeStore) ListWatchedAddresses(ctx context.Context) ([]model.WatchedAddress, error) {
	return s.watched, nil
}
func (s *fakeStore) GetPendingCount(ctx context.Context) (int, error) { return 0, nil }
func (s *fakeStore) Close() error                                    { return nil }

type fakeAssetLookup struct {
	systemAddrs map[string]bool
}

func (f *fakeAssetLookup) IsSystemAddress(addr string) bool { return f.systemAddrs[addr] }

func newTestWorker(store storage.Store, client CoreClient, isSystemAddress func(string) bool) *worker {
	return &worker{
		address:         "0xwatched",
		store:           store,
		client:          client,
		coord:           coordpkg.New(),
		logger:          zap.NewNop(),
		isSystemAddress: isSystemAddress,
	}
}

func TestPollOnceFiltersToSystemAddressDestinations(t *testing.T) {
	store := newFakeStore()
	client := &fakeCoreClient{byCursor: map[int64][]coreclient.SpotTransferDelta{
		0: {
			{Time: 100, Hash: "0x1", Destination: "0xsystem", Amount: "1"},
			{Time: 200, Hash: "0x2", Destination: "0xnotsystem", Amount: "1"},
		},
	}}
	w := newTestWorker(store, client, func(addr string) bool { return addr == "0xsystem" })

	inserted, err := w.pollOnce(context.Background())
	if err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("got %d inserted, want 1 (only the system-address destination)", inserted)
	}
	if len(store.inserted) != 1 || store.inserted[0].CoreHash != "0x1" {
		t.Fatalf("unexpected stored transfers: %+v", store.inserted)
	}
}

func TestPollOnceAdvancesCursorEvenWithNoMatches(t *testing.T) {
	store := newFakeStore()
	client := &fakeCoreClient{byCursor: map[int64][]coreclient.SpotTransferDelta{
		0: {{Time: 500, Hash: "0x1", Destination: "0xnotsystem", Amount: "1"}},
	}}
	w := newTestWorker(store, client, func(addr string) bool { return false })

	inserted, err := w.pollOnce(context.Background())
	if err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("got %d inserted, want 0", inserted)
	}
	if w.cursor != 500 {
		t.Fatalf("cursor = %d, want 500 (must advance on observed time, not on matches)", w.cursor)
	}
	if store.cursorSet["0xwatched"] != 500 {
		t.Fatalf("cursor not persisted: %+v", store.cursorSet)
	}
}

func TestPollOnceRateLimitTriggersCoordinatorWithoutError(t *testing.T) {
	store := newFakeStore()
	client := &rateLimitedClient{retryAfterSeconds: 3}
	coord := coordpkg.New()
	w := &worker{
		address:         "0xwatched",
		store:           store,
		client:          client,
		coord:           coord,
		logger:          zap.NewNop(),
		isSystemAddress: func(string) bool { return false },
	}

	inserted, err := w.pollOnce(context.Background())
	if err != nil {
		t.Fatalf("pollOnce on rate limit should not return an error: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("got %d inserted, want 0", inserted)
	}
	if coord.Deadline() == 0 {
		t.Fatal("expected the rate limit to trigger the shared backoff coordinator")
	}
}

type rateLimitedClient struct {
	retryAfterSeconds int64
}

func (c *rateLimitedClient) FetchLedgerUpdates(ctx context.Context, user string, cursor int64) ([]coreclient.SpotTransferDelta, error) {
	return nil, &coreclient.RateLimitedError{RetryAfterSeconds: c.retryAfterSeconds}
}

// retryBackoff escalates its delay with each consecutive failure and
// wraps back to the base delay once retryMaxAttempts is reached.
func TestRetryBackoffEscalatesThenWraps(t *testing.T) {
	w := &worker{logger: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled up front: sleepCtx returns immediately regardless of delay

	wantSequence := []int{1, 2, 3, 4, 5, 1}
	for i, want := range wantSequence {
		w.retryBackoff(ctx)
		if w.consecutiveFailures != want {
			t.Fatalf("call %d: consecutiveFailures = %d, want %d", i+1, w.consecutiveFailures, want)
		}
	}
}

func TestFleetReconcileStartsAndStopsWorkers(t *testing.T) {
	store := newFakeStore()
	store.watched = []model.WatchedAddress{{Address: "0xa", IsActive: true}}
	f := NewFleet(store, &fakeCoreClient{}, coordpkg.New(), zap.NewNop(), &fakeAssetLookup{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.reconcile(ctx)
	if _, running := f.workers["0xa"]; !running {
		t.Fatal("expected a worker for the active address")
	}

	store.watched[0].IsActive = false
	f.reconcile(ctx)
	if _, running := f.workers["0xa"]; running {
		t.Fatal("expected the worker to stop once its address goes inactive")
	}

	// give the stopped worker's goroutine a moment to observe cancellation
	time.Sleep(10 * time.Millisecond)
}
