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

// Package fetch retrieves EVM blocks reduced to their system
// transactions. Two variants share this contract: an RPC
// client for a freshly-synced range, and an object-store reader for bulk
// historical backfill. The finder and matcher depend only on this
// interface, never on which variant is active.
package fetch

import (
	"context"

	"github.com/d4mr/coredrain/internal/model"
)

// MaxBatchSize bounds a single upstream call: the JSON-RPC batch cap
// the RPC fetcher splits its requests under.
const MaxBatchSize = 20

// Fetcher fetches a set of blocks by number, returning whichever subset
// it could retrieve reduced to BlockData. Implementations retry
// transient errors internally (internal/fetchretry) and only return an
// error once retries are exhausted.
type Fetcher interface {
	FetchBlocks(ctx context.Context, blockNumbers []uint64) ([]model.BlockData, error)
}
