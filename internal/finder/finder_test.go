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

package finder

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/d4mr/coredrain/internal/assetcache"
	"github.com/d4mr/coredrain/internal/model"
)

type emptyMetadataClient struct{}

func (emptyMetadataClient) FetchTokens(ctx context.Context) ([]assetcache.TokenMeta, error) {
	return nil, nil
}

func newTestAssets(t *testing.T) *assetcache.Cache {
	t.Helper()
	c := assetcache.New(emptyMetadataClient{}, zap.NewNop())
	if err := c.Populate(context.Background()); err != nil {
		t.Fatalf("Populate: %v", err)
	}
	return c
}

// fakeIndex lets each test script the cache probe, the bracket, and
// records every block handed to StoreBlocksAsync.
type fakeIndex struct {
	matchAnchor *model.AnchorTx
	matchErr    error
	bracket     model.Bracket
	bracketErr  error
	stored      []model.BlockData
}

func (f *fakeIndex) FindMatchingAnchor(ctx context.Context, from, recipient, amount string, minTime, maxTime int64) (*model.AnchorTx, error) {
	return f.matchAnchor, f.matchErr
}

func (f *fakeIndex) FindBracketingAnchors(ctx context.Context, targetTime int64) (model.Bracket, error) {
	return f.bracket, f.bracketErr
}

func (f *fakeIndex) StoreBlocksAsync(ctx context.Context, blocks []model.BlockData) {
	f.stored = append(f.stored, blocks...)
}

// fakeFetcher answers FetchBlocks from a fixed in-memory block set keyed
// by number; numbers with no entry are simply omitted from the result,
// matching the real fetchers' behavior for blocks they could not retrieve.
type fakeFetcher struct {
	blocks map[uint64]model.BlockData
	err    error
	calls  [][]uint64
}

func (f *fakeFetcher) FetchBlocks(ctx context.Context, nums []uint64) ([]model.BlockData, error) {
	f.calls = append(f.calls, append([]uint64(nil), nums...))
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.BlockData, 0, len(nums))
	for _, n := range nums {
		if b, ok := f.blocks[n]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func sysTx(from, recipient, amount string) model.SystemTx {
	return model.SystemTx{
		InternalHash:       "0xinternal",
		ExplorerHash:       "0xexplorer",
		From:               from,
		AssetRecipient:     recipient,
		AmountSmallestUnit: amount,
	}
}

func wantTransfer() model.Transfer {
	return model.Transfer{
		CoreHash:      "0xcore",
		CoreTime:      1_700_001_000_000,
		Amount:        "5",
		Recipient:     "0xrecipient",
		SystemAddress: "0xsystem",
	}
}

// S1: a cache hit resolves in zero rounds without touching the fetcher.
func TestFindCacheHitSkipsSearch(t *testing.T) {
	idx := &fakeIndex{
		matchAnchor: &model.AnchorTx{
			InternalHash:   "0xcached",
			BlockNumber:    42,
			BlockTimestamp: 1_700_000_999_000,
		},
	}
	f := New(idx, newTestAssets(t))
	fetcher := &fakeFetcher{}

	result, findErr := f.Find(context.Background(), wantTransfer(), fetcher)
	if findErr != nil {
		t.Fatalf("Find: %v", findErr)
	}
	if result.Rounds != 0 || result.BlocksSearched != 0 {
		t.Fatalf("cache hit should cost zero rounds, got rounds=%d blocks=%d", result.Rounds, result.BlocksSearched)
	}
	if result.InternalHash != "0xcached" {
		t.Fatalf("got hash %s, want 0xcached", result.InternalHash)
	}
	if len(fetcher.calls) != 0 {
		t.Fatal("cache hit must not invoke the fetcher")
	}
}

// S2: no cache hit, a bracket is known on both sides, and the target
// block is inside the first fetched batch.
func TestFindInterpolatesWithinBracket(t *testing.T) {
	transfer := wantTransfer()
	idx := &fakeIndex{
		bracket: model.Bracket{
			Before: &model.AnchorRef{BlockNumber: 100, BlockTimestamp: 1_700_000_900_000},
			After:  &model.AnchorRef{BlockNumber: 200, BlockTimestamp: 1_700_001_100_000},
		},
	}
	// Linear interpolation puts the target (1_700_001_000_000) exactly
	// halfway between the bracket: block 150.
	fetcher := &fakeFetcher{blocks: map[uint64]model.BlockData{
		150: {
			Number:    150,
			Hash:      "0xblockhash",
			Timestamp: 1_700_001_000_000,
			Txs:       []model.SystemTx{sysTx(transfer.SystemAddress, transfer.Recipient, "5000000000000000000")},
		},
	}}
	f := New(idx, newTestAssets(t))

	result, findErr := f.Find(context.Background(), transfer, fetcher)
	if findErr != nil {
		t.Fatalf("Find: %v", findErr)
	}
	if result.Rounds != 1 {
		t.Fatalf("expected a match on the first round, got %d rounds", result.Rounds)
	}
	if result.BlockNumber != 150 {
		t.Fatalf("got block %d, want 150", result.BlockNumber)
	}
	if len(fetcher.calls) != 1 {
		t.Fatalf("expected exactly one fetch round, got %d", len(fetcher.calls))
	}
}

// Every block fetched along the way is fed back into the anchor index,
// regardless of whether it is the match.
func TestFindStoresAllFetchedBlocks(t *testing.T) {
	transfer := wantTransfer()
	idx := &fakeIndex{
		bracket: model.Bracket{
			Before: &model.AnchorRef{BlockNumber: 100, BlockTimestamp: 1_700_000_900_000},
			After:  &model.AnchorRef{BlockNumber: 200, BlockTimestamp: 1_700_001_100_000},
		},
	}
	fetcher := &fakeFetcher{blocks: map[uint64]model.BlockData{
		148: {Number: 148, Timestamp: 1_700_000_990_000},
		149: {Number: 149, Timestamp: 1_700_000_995_000},
		150: {
			Number: 150, Hash: "0xblockhash", Timestamp: 1_700_001_000_000,
			Txs: []model.SystemTx{sysTx(transfer.SystemAddress, transfer.Recipient, "5000000000000000000")},
		},
		151: {Number: 151, Timestamp: 1_700_001_005_000},
		152: {Number: 152, Timestamp: 1_700_001_010_000},
	}}
	f := New(idx, newTestAssets(t))

	if _, findErr := f.Find(context.Background(), transfer, fetcher); findErr != nil {
		t.Fatalf("Find: %v", findErr)
	}
	if len(idx.stored) != 5 {
		t.Fatalf("expected all 5 fetched blocks stored, got %d", len(idx.stored))
	}
}

// No bracket at all (a cold cache) seeds the lower bound from the
// genesis constant rather than failing outright.
func TestFindWithNoBracketUsesGenesisSeed(t *testing.T) {
	transfer := wantTransfer()
	transfer.CoreTime = genesisTimestampMs + 10_000 // 10s after genesis
	idx := &fakeIndex{}                             // empty bracket: both nil
	fetcher := &fakeFetcher{blocks: map[uint64]model.BlockData{
		11: {
			Number: 11, Timestamp: genesisTimestampMs + 10_000,
			Txs: []model.SystemTx{sysTx(transfer.SystemAddress, transfer.Recipient, "5000000000000000000")},
		},
	}}
	f := New(idx, newTestAssets(t))

	result, findErr := f.Find(context.Background(), transfer, fetcher)
	if findErr != nil {
		t.Fatalf("Find: %v", findErr)
	}
	if result.BlockNumber != 11 {
		t.Fatalf("got block %d, want 11 (genesis + 10 blocks at 1 block/sec)", result.BlockNumber)
	}
}

// Exhausting every round without a match is a definitive NotFoundError,
// not a transient one, and reports how much work was done.
func TestFindExhaustsRoundsReturnsNotFound(t *testing.T) {
	transfer := wantTransfer()
	idx := &fakeIndex{
		bracket: model.Bracket{
			Before: &model.AnchorRef{BlockNumber: 100, BlockTimestamp: 1_700_000_900_000},
			After:  &model.AnchorRef{BlockNumber: 200, BlockTimestamp: 1_700_001_100_000},
		},
	}
	fetcher := &fakeFetcher{blocks: map[uint64]model.BlockData{}} // nothing ever matches
	f := New(idx, newTestAssets(t))

	_, findErr := f.Find(context.Background(), transfer, fetcher)
	if findErr == nil {
		t.Fatal("expected a FindError")
	}
	var notFound *model.NotFoundError
	if !errors.As(findErr, &notFound) {
		t.Fatalf("got %T, want *model.NotFoundError", findErr)
	}
}

// A fetcher failure is transient (FetchErr), not a definitive absence.
func TestFindFetcherErrorIsTransient(t *testing.T) {
	transfer := wantTransfer()
	idx := &fakeIndex{
		bracket: model.Bracket{
			Before: &model.AnchorRef{BlockNumber: 100, BlockTimestamp: 1_700_000_900_000},
		},
	}
	fetcher := &fakeFetcher{err: errors.New("upstream unavailable")}
	f := New(idx, newTestAssets(t))

	_, findErr := f.Find(context.Background(), transfer, fetcher)
	var fetchErr *model.FetchErr
	if !errors.As(findErr, &fetchErr) {
		t.Fatalf("got %T, want *model.FetchErr", findErr)
	}
}

func TestEstimateClampsToBoundsAndExtrapolates(t *testing.T) {
	lo := &model.AnchorRef{BlockNumber: 100, BlockTimestamp: 1000}
	hi := &model.AnchorRef{BlockNumber: 200, BlockTimestamp: 2000}

	if got := estimate(lo, hi, 1500); got != 150 {
		t.Fatalf("midpoint: got %d, want 150", got)
	}
	if got := estimate(lo, hi, 0); got != 100 {
		t.Fatalf("below lo clamps to lo: got %d", got)
	}
	if got := estimate(lo, hi, 5000); got != 200 {
		t.Fatalf("above hi clamps to hi: got %d", got)
	}
	if got := estimate(lo, nil, 1000+5000); got != 105 {
		t.Fatalf("extrapolation at 1 block/sec: got %d, want 105", got)
	}
}

func TestBuildBatchNeverCrossesBoundsOrGoesBelowOne(t *testing.T) {
	lo := &model.AnchorRef{BlockNumber: 100}
	hi := &model.AnchorRef{BlockNumber: 103}
	batch := buildBatch(101, lo, hi)
	for _, n := range batch {
		if n <= lo.BlockNumber || n >= hi.BlockNumber {
			t.Fatalf("batch %v crosses bounds (%d, %d)", batch, lo.BlockNumber, hi.BlockNumber)
		}
	}

	nearGenesis := buildBatch(2, &model.AnchorRef{BlockNumber: 0}, nil)
	for _, n := range nearGenesis {
		if n < 1 {
			t.Fatalf("batch %v contains a block below 1", nearGenesis)
		}
	}
}
