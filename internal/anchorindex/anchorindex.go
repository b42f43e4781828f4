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

// Package anchorindex is the thin query surface the finder uses to
// bracket a target timestamp and probe the correlation cache. It adds
// one thing storage.Store doesn't provide on its own: fire-and-forget
// background persistence of freshly fetched blocks.
package anchorindex

import (
	"context"

	"go.uber.org/zap"

	"github.com/d4mr/coredrain/internal/model"
	"github.com/d4mr/coredrain/internal/storage"
)

type Index struct {
	store  storage.Store
	logger *zap.Logger
}

func New(store storage.Store, logger *zap.Logger) *Index {
	return &Index{store: store, logger: logger}
}

func (i *Index) FindMatchingAnchor(ctx context.Context, from, recipient, amountSmallestUnit string, minTime, maxTime int64) (*model.AnchorTx, error) {
	return i.store.FindMatchingAnchor(ctx, from, recipient, amountSmallestUnit, minTime, maxTime)
}

func (i *Index) FindBracketingAnchors(ctx context.Context, targetTime int64) (model.Bracket, error) {
	return i.store.FindBracketingAnchors(ctx, targetTime)
}

// StoreBlocksAsync persists every system tx of every block as an anchor
// without making the caller wait. Failures are logged, never
// propagated: a block that failed to cache as an anchor is simply
// fetched again later at no correctness cost.
//
// The insert deliberately runs against context.Background() rather than
// the caller's ctx: callers cancel ctx as soon as they return (the
// matcher wraps every Find in a deferred per-transfer timeout), which
// would otherwise race the background write and drop anchors that
// would have persisted fine a few microseconds later.
func (i *Index) StoreBlocksAsync(ctx context.Context, blocks []model.BlockData) {
	go func() {
		anchors := blocksToAnchors(blocks)
		if len(anchors) == 0 {
			return
		}
		res, err := i.store.InsertAnchorTxBatch(context.Background(), anchors)
		if err != nil {
			i.logger.Warn("background anchor insert failed", zap.Error(err), zap.Int("count", len(anchors)))
			return
		}
		i.logger.Debug("anchors stored", zap.Int("inserted", res.Inserted), zap.Int("duplicates", res.Duplicates))
	}()
}

func blocksToAnchors(blocks []model.BlockData) []model.AnchorTx {
	var anchors []model.AnchorTx
	for _, b := range blocks {
		for _, tx := range b.Txs {
			anchors = append(anchors, model.AnchorTx{
				InternalHash:       tx.InternalHash,
				ExplorerHash:       tx.ExplorerHash,
				BlockNumber:        b.Number,
				BlockHash:          b.Hash,
				BlockTimestamp:     b.Timestamp,
				From:               tx.From,
				AssetRecipient:     tx.AssetRecipient,
				AmountSmallestUnit: tx.AmountSmallestUnit,
				ContractAddress:    tx.ContractAddress,
			})
		}
	}
	return anchors
}
