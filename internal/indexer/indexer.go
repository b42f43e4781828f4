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

// Package indexer discovers CORE-side transfers per watched address and
// enqueues them as pending work. A fleet controller
// reconciles one worker goroutine per active address against the
// durable WatchedAddress set; each worker owns a simple cursor and polls
// until it catches up, then backs off to a steady poll interval.
package indexer

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	coordpkg "github.com/d4mr/coredrain/internal/backoff"
	"github.com/d4mr/coredrain/internal/coreclient"
	"github.com/d4mr/coredrain/internal/model"
	"github.com/d4mr/coredrain/internal/storage"
)

const (
	reconcileInterval = 30 * time.Second
	pollInterval      = 30 * time.Second
	fetchTimeout      = 30 * time.Second

	retryBaseDelay  = time.Second
	retryMaxAttempts = 5
)

// CoreClient is the subset of coreclient.Client a worker depends on.
type CoreClient interface {
	FetchLedgerUpdates(ctx context.Context, user string, cursor int64) ([]coreclient.SpotTransferDelta, error)
}

// AssetLookup reports whether an address is a known system address,
// implemented by assetcache.Cache.
type AssetLookup interface {
	IsSystemAddress(addr string) bool
}

// Fleet reconciles running workers against the durable watched-address
// set every reconcileInterval.
type Fleet struct {
	store  storage.Store
	client CoreClient
	coord  *coordpkg.Coordinator
	logger *zap.Logger

	assets AssetLookup

	workers map[string]context.CancelFunc
}

func NewFleet(store storage.Store, client CoreClient, coord *coordpkg.Coordinator, logger *zap.Logger, assets AssetLookup) *Fleet {
	return &Fleet{
		store:   store,
		client:  client,
		coord:   coord,
		logger:  logger,
		assets:  assets,
		workers: make(map[string]context.CancelFunc),
	}
}

// Run reconciles workers until ctx is cancelled, at which point every
// running worker is also stopped before Run returns.
func (f *Fleet) Run(ctx context.Context) error {
	defer f.stopAll()

	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	f.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.reconcile(ctx)
		}
	}
}

func (f *Fleet) reconcile(ctx context.Context) {
	addrs, err := f.store.ListWatchedAddresses(ctx)
	if err != nil {
		f.logger.Warn("list watched addresses failed", zap.Error(err))
		return
	}

	wantActive := make(map[string]model.WatchedAddress, len(addrs))
	for _, a := range addrs {
		if a.IsActive {
			wantActive[a.Address] = a
		}
	}

	for addr, cancel := range f.workers {
		if _, ok := wantActive[addr]; !ok {
			cancel()
			delete(f.workers, addr)
			f.logger.Info("indexer worker stopped", zap.String("address", addr))
		}
	}

	for addr, wa := range wantActive {
		if _, running := f.workers[addr]; running {
			continue
		}
		workerCtx, cancel := context.WithCancel(ctx)
		f.workers[addr] = cancel
		w := &worker{
			address: wa.Address,
			cursor:  wa.LastIndexedTime,
			store:   f.store,
			client:  f.client,
			coord:   f.coord,
			logger:  f.logger.With(zap.String("address", wa.Address)),
			isSystemAddress: func(addr string) bool {
				return f.assets.IsSystemAddress(strings.ToLower(addr))
			},
		}
		go w.run(workerCtx)
		f.logger.Info("indexer worker started", zap.String("address", wa.Address))
	}
}

func (f *Fleet) stopAll() {
	for _, cancel := range f.workers {
		cancel()
	}
}

// worker owns one watched address's ingestion cursor.
type worker struct {
	address string
	cursor  int64

	store  storage.Store
	client CoreClient
	coord  *coordpkg.Coordinator
	logger *zap.Logger

	isSystemAddress func(string) bool

	consecutiveFailures int
}

func (w *worker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := w.coord.Wait(ctx); err != nil {
			return
		}

		inserted, err := w.pollOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("poll failed, will retry", zap.Error(err))
			if !w.retryBackoff(ctx) {
				return
			}
			continue
		}
		w.consecutiveFailures = 0

		if inserted > 0 {
			continue // still backfilling, loop immediately
		}
		if !sleepCtx(ctx, pollInterval) {
			return
		}
	}
}

func (w *worker) pollOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	deltas, err := w.client.FetchLedgerUpdates(ctx, w.address, w.cursor)
	if err != nil {
		if rl, ok := err.(*coreclient.RateLimitedError); ok {
			retryAfter := time.Duration(float64(rl.RetryAfterSeconds)*1.1) * time.Second
			w.coord.Trigger(retryAfter)
			return 0, nil
		}
		return 0, err
	}

	transfers := make([]model.Transfer, 0, len(deltas))
	maxTime := w.cursor
	for _, d := range deltas {
		if d.Time > maxTime {
			maxTime = d.Time
		}
		if !w.isSystemAddress(d.Destination) {
			continue
		}
		transfers = append(transfers, coreclient.ToPendingTransfer(d, w.address))
	}

	inserted := 0
	if len(transfers) > 0 {
		res, err := w.store.InsertTransferBatch(ctx, transfers)
		if err != nil {
			return 0, err
		}
		inserted = res.Inserted
	}

	if maxTime > w.cursor {
		w.cursor = maxTime
		if err := w.store.UpdateCursor(ctx, w.address, w.cursor); err != nil {
			w.logger.Warn("cursor persist failed", zap.Error(err))
		}
	}

	return inserted, nil
}

// retryBackoff waits a jittered exponential delay keyed off the worker's
// consecutive-failure count: retryBaseDelay doubled once per failure for
// retryMaxAttempts escalating delays, after which the count wraps and the
// delay starts again at retryBaseDelay.
// Returns false if ctx was cancelled mid-wait.
func (w *worker) retryBackoff(ctx context.Context) bool {
	if w.consecutiveFailures >= retryMaxAttempts {
		w.consecutiveFailures = 0
	}
	delay := retryBaseDelay * time.Duration(1<<w.consecutiveFailures)
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	w.consecutiveFailures++
	return sleepCtx(ctx, delay+jitter)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
