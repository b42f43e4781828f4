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

// Package finder resolves a pending CORE transfer to its EVM
// materialization by binary search with interpolation over a growing
// anchor cache. Every block it fetches along the way is fed
// back into the anchor index, so the cache densifies and later searches
// for nearby timestamps need fewer rounds.
package finder

import (
	"context"
	"math/big"
	"time"

	"github.com/d4mr/coredrain/internal/assetcache"
	"github.com/d4mr/coredrain/internal/evmtx"
	"github.com/d4mr/coredrain/internal/fetch"
	"github.com/d4mr/coredrain/internal/model"
)

const (
	maxRounds = 20
	batchSize = 5

	// cacheWindowBefore/After bound the cache-probe window around a
	// transfer's CORE-side timestamp: CORE and EVM clocks are not
	// perfectly aligned, and EVM finality trails CORE by up to ~2min.
	cacheWindowBefore = 5 * time.Second
	cacheWindowAfter  = 120 * time.Second

	// extrapolationBlocksPerSecond is the default block-production rate assumed
	// when only a lower anchor is available.
	extrapolationBlocksPerSecond = 1

	// genesisBlockNumber/genesisTimestampMs seed the lower bound when no
	// anchor exists below the target time yet.
	genesisBlockNumber    = 1
	genesisTimestampMs    = 1_700_000_000_000
)

// Index is the subset of anchorindex.Index the finder depends on.
type Index interface {
	FindMatchingAnchor(ctx context.Context, from, recipient, amountSmallestUnit string, minTime, maxTime int64) (*model.AnchorTx, error)
	FindBracketingAnchors(ctx context.Context, targetTime int64) (model.Bracket, error)
	StoreBlocksAsync(ctx context.Context, blocks []model.BlockData)
}

type Finder struct {
	index  Index
	assets *assetcache.Cache
}

func New(index Index, assets *assetcache.Cache) *Finder {
	return &Finder{index: index, assets: assets}
}

// Find resolves transfer to its EVM-side materialization, or reports a
// definitive absence / transient failure via model.FindError.
func (f *Finder) Find(ctx context.Context, transfer model.Transfer, fetcher fetch.Fetcher) (*model.FindResult, model.FindError) {
	start := time.Now()
	asset := f.assets.BySystemAddress(ctx, transfer.SystemAddress)
	wantAmount, err := evmtx.ParseAmount(transfer.Amount, asset.EVMDecimals)
	if err != nil {
		return nil, &model.StorageErr{Cause: err}
	}

	if anchor, err := f.index.FindMatchingAnchor(ctx,
		transfer.SystemAddress, transfer.Recipient, wantAmount.String(),
		transfer.CoreTime-cacheWindowBefore.Milliseconds(), transfer.CoreTime+cacheWindowAfter.Milliseconds(),
	); err != nil {
		return nil, &model.StorageErr{Cause: err}
	} else if anchor != nil {
		return anchorToResult(anchor, 0, 0, start), nil
	}

	bracket, err := f.index.FindBracketingAnchors(ctx, transfer.CoreTime)
	if err != nil {
		return nil, &model.StorageErr{Cause: err}
	}
	lo := bracket.Before
	if lo == nil {
		lo = &model.AnchorRef{BlockNumber: genesisBlockNumber, BlockTimestamp: genesisTimestampMs}
	}
	hi := bracket.After
	if hi != nil && hi.BlockTimestamp == lo.BlockTimestamp {
		// Identical timestamps carry no interval information.
		hi = nil
	}

	blocksSearched := 0
	rounds := 0
	for round := 0; round < maxRounds; round++ {
		rounds = round + 1
		est := estimate(lo, hi, transfer.CoreTime)
		batch := buildBatch(est, lo, hi)

		blocks, err := fetcher.FetchBlocks(ctx, batch)
		if err != nil {
			return nil, &model.FetchErr{Cause: err}
		}
		blocksSearched += len(blocks)
		f.index.StoreBlocksAsync(ctx, blocks)

		if result := scanForMatch(blocks, transfer, wantAmount, round+1, blocksSearched, start); result != nil {
			return result, nil
		}

		lo, hi = tightenBounds(lo, hi, blocks, transfer.CoreTime)
		if hi != nil && hi.BlockNumber <= lo.BlockNumber+1 {
			break
		}
	}

	return nil, &model.NotFoundError{BlocksSearched: blocksSearched, Rounds: rounds}
}

func anchorToResult(anchor *model.AnchorTx, rounds, blocksSearched int, start time.Time) *model.FindResult {
	return &model.FindResult{
		InternalHash:    anchor.InternalHash,
		ExplorerHash:    anchor.ExplorerHash,
		BlockNumber:     anchor.BlockNumber,
		BlockHash:       anchor.BlockHash,
		BlockTimestamp:  anchor.BlockTimestamp,
		ContractAddress: anchor.ContractAddress,
		Rounds:          rounds,
		BlocksSearched:  blocksSearched,
		Elapsed:         time.Since(start),
	}
}

// estimate linearly interpolates the target block within [lo, hi], or
// extrapolates at a fixed rate when hi is unknown.
func estimate(lo, hi *model.AnchorRef, targetTime int64) uint64 {
	if hi == nil {
		deltaSeconds := (targetTime - lo.BlockTimestamp) / 1000
		if deltaSeconds < 0 {
			deltaSeconds = 0
		}
		return lo.BlockNumber + uint64(deltaSeconds)*extrapolationBlocksPerSecond
	}
	if hi.BlockTimestamp == lo.BlockTimestamp || hi.BlockNumber <= lo.BlockNumber {
		return lo.BlockNumber
	}
	span := hi.BlockTimestamp - lo.BlockTimestamp
	blockSpan := int64(hi.BlockNumber - lo.BlockNumber)
	offset := roundDiv((targetTime-lo.BlockTimestamp)*blockSpan, span)
	est := int64(lo.BlockNumber) + offset
	if est < int64(lo.BlockNumber) {
		est = int64(lo.BlockNumber)
	}
	if est > int64(hi.BlockNumber) {
		est = int64(hi.BlockNumber)
	}
	return uint64(est)
}

func roundDiv(num, den int64) int64 {
	if den == 0 {
		return 0
	}
	half := den / 2
	if (num < 0) != (den < 0) {
		return (num - half) / den
	}
	return (num + half) / den
}

// buildBatch centers a contiguous run of batchSize block numbers on est,
// shifted so it never crosses either known bound, clamped at 1.
func buildBatch(est uint64, lo, hi *model.AnchorRef) []uint64 {
	half := uint64(batchSize / 2)
	var start uint64
	if est > half {
		start = est - half
	} else {
		start = 1
	}
	end := start + batchSize - 1

	if start <= lo.BlockNumber {
		start = lo.BlockNumber + 1
		end = start + batchSize - 1
	}
	if hi != nil && end >= hi.BlockNumber {
		end = hi.BlockNumber - 1
		if end < start {
			end = start
		}
	}
	if start < 1 {
		start = 1
	}
	if end < start {
		end = start
	}

	out := make([]uint64, 0, end-start+1)
	for n := start; n <= end; n++ {
		out = append(out, n)
	}
	return out
}

func scanForMatch(blocks []model.BlockData, transfer model.Transfer, wantAmount *big.Int, rounds, blocksSearched int, start time.Time) *model.FindResult {
	for _, b := range blocks {
		for _, tx := range b.Txs {
			if !matches(tx, transfer, wantAmount) {
				continue
			}
			return &model.FindResult{
				InternalHash:    tx.InternalHash,
				ExplorerHash:    tx.ExplorerHash,
				BlockNumber:     b.Number,
				BlockHash:       b.Hash,
				BlockTimestamp:  b.Timestamp,
				ContractAddress: tx.ContractAddress,
				Rounds:          rounds,
				BlocksSearched:  blocksSearched,
				Elapsed:         time.Since(start),
			}
		}
	}
	return nil
}

// matches is the three-conjunct match predicate.
func matches(tx model.SystemTx, transfer model.Transfer, wantAmount *big.Int) bool {
	if tx.From != transfer.SystemAddress || tx.AssetRecipient != transfer.Recipient {
		return false
	}
	got, ok := new(big.Int).SetString(tx.AmountSmallestUnit, 10)
	if !ok {
		return false
	}
	return got.Cmp(wantAmount) == 0
}

// tightenBounds raises lo / lowers hi using only strictly tighter
// candidates among this round's fetched blocks. An empty fetch leaves
// the bounds untouched.
func tightenBounds(lo, hi *model.AnchorRef, blocks []model.BlockData, targetTime int64) (*model.AnchorRef, *model.AnchorRef) {
	for _, b := range blocks {
		ref := &model.AnchorRef{BlockNumber: b.Number, BlockTimestamp: b.Timestamp}
		if b.Timestamp <= targetTime && b.Number > lo.BlockNumber {
			lo = ref
		}
		if b.Timestamp > targetTime && (hi == nil || b.Number < hi.BlockNumber) {
			hi = ref
		}
	}
	return lo, hi
}
