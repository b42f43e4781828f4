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

// Package matcher is the streaming worker pool that drains pending
// transfers through the finder: a single producer keeps a
// bounded queue topped up with oldest-first pending work, and N
// consumers resolve each transfer against whichever fetcher strategy is
// currently selected.
package matcher

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/d4mr/coredrain/internal/fetch"
	"github.com/d4mr/coredrain/internal/model"
	"github.com/d4mr/coredrain/internal/storage"
)

const (
	queueCapacity     = 2048
	lowWatermark      = 100
	refillInterval    = time.Second
	batchSize         = 256
	concurrency       = 256
	backfillThreshold = 10
	matchTimeout      = 60 * time.Second

	dedupCap    = 10_000
	dedupRetain = 5_000
)

// Finder is the subset of finder.Finder the pool depends on.
type Finder interface {
	Find(ctx context.Context, transfer model.Transfer, fetcher fetch.Fetcher) (*model.FindResult, model.FindError)
}

// Counters are the internally-tracked stats, registered with a
// prometheus.Registerer but never exposed over HTTP in this repository;
// the stats logger is their only consumer.
type Counters struct {
	Matched  prometheus.Counter
	Failed   prometheus.Counter
	Errored  prometheus.Counter
	Pending  prometheus.Gauge
	QueueLen prometheus.Gauge
}

// NewCounters creates and registers the pool's counters.
func NewCounters(reg prometheus.Registerer) *Counters {
	c := &Counters{
		Matched:  prometheus.NewCounter(prometheus.CounterOpts{Name: "coredrain_matcher_matched_total"}),
		Failed:   prometheus.NewCounter(prometheus.CounterOpts{Name: "coredrain_matcher_failed_total"}),
		Errored:  prometheus.NewCounter(prometheus.CounterOpts{Name: "coredrain_matcher_errored_total"}),
		Pending:  prometheus.NewGauge(prometheus.GaugeOpts{Name: "coredrain_matcher_pending"}),
		QueueLen: prometheus.NewGauge(prometheus.GaugeOpts{Name: "coredrain_matcher_queue_length"}),
	}
	reg.MustRegister(c.Matched, c.Failed, c.Errored, c.Pending, c.QueueLen)
	return c
}

// Pool is the matcher's producer/consumer/stats-logger goroutine group.
type Pool struct {
	store    storage.Store
	finder   Finder
	logger   *zap.Logger
	counters *Counters

	rpcFetcher         fetch.Fetcher
	objectStoreFetcher fetch.Fetcher
	active             atomic.Pointer[fetch.Fetcher]

	queue chan model.Transfer

	dedupMu sync.Mutex
	dedup   map[string]time.Time
}

func New(store storage.Store, finder Finder, rpcFetcher, objectStoreFetcher fetch.Fetcher, logger *zap.Logger, counters *Counters) *Pool {
	p := &Pool{
		store:              store,
		finder:             finder,
		logger:             logger,
		counters:           counters,
		rpcFetcher:         rpcFetcher,
		objectStoreFetcher: objectStoreFetcher,
		queue:              make(chan model.Transfer, queueCapacity),
		dedup:              make(map[string]time.Time),
	}
	p.active.Store(&p.rpcFetcher)
	return p
}

// Run starts the producer, concurrency consumers, and the stats logger,
// returning once ctx is cancelled and every goroutine has exited.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { p.runProducer(ctx); return nil })
	for i := 0; i < concurrency; i++ {
		g.Go(func() error { p.runConsumer(ctx); return nil })
	}
	g.Go(func() error { p.runStatsLogger(ctx); return nil })

	return g.Wait()
}

func (p *Pool) runProducer(ctx context.Context) {
	ticker := time.NewTicker(refillInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refill(ctx)
		}
	}
}

func (p *Pool) refill(ctx context.Context) {
	if len(p.queue) >= lowWatermark {
		return
	}

	pendingCount, err := p.store.GetPendingCount(ctx)
	if err != nil {
		p.logger.Warn("pending count failed", zap.Error(err))
		return
	}
	p.counters.Pending.Set(float64(pendingCount))

	if pendingCount > backfillThreshold {
		p.active.Store(&p.objectStoreFetcher)
	} else {
		p.active.Store(&p.rpcFetcher)
	}

	room := queueCapacity - len(p.queue)
	want := room
	if want > batchSize {
		want = batchSize
	}
	if want <= 0 {
		return
	}

	pending, err := p.store.GetPendingTransfers(ctx, want)
	if err != nil {
		p.logger.Warn("pending fetch failed", zap.Error(err))
		return
	}

	p.dedupMu.Lock()
	defer p.dedupMu.Unlock()
	for _, t := range pending {
		if _, queued := p.dedup[t.CoreHash]; queued {
			continue
		}
		select {
		case p.queue <- t:
			p.dedup[t.CoreHash] = time.Now()
		default:
			p.trimDedupLocked()
			return
		}
	}
	p.trimDedupLocked()
	p.counters.QueueLen.Set(float64(len(p.queue)))
}

// trimDedupLocked retains only the dedupRetain most-recently-added
// entries once the set exceeds dedupCap. Must be called with dedupMu
// held. This is a best-effort de-duplicator: the persistence layer's
// idempotent marks are what actually prevent double-processing.
func (p *Pool) trimDedupLocked() {
	if len(p.dedup) <= dedupCap {
		return
	}
	type entry struct {
		hash string
		at   time.Time
	}
	entries := make([]entry, 0, len(p.dedup))
	for h, at := range p.dedup {
		entries = append(entries, entry{h, at})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.After(entries[j].at) })
	if len(entries) > dedupRetain {
		entries = entries[:dedupRetain]
	}
	next := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		next[e.hash] = e.at
	}
	p.dedup = next
}

func (p *Pool) unqueue(coreHash string) {
	p.dedupMu.Lock()
	delete(p.dedup, coreHash)
	p.dedupMu.Unlock()
}

func (p *Pool) runConsumer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.queue:
			p.process(ctx, t)
		}
	}
}

func (p *Pool) process(ctx context.Context, t model.Transfer) {
	ctx, cancel := context.WithTimeout(ctx, matchTimeout)
	defer cancel()

	fetcher := *p.active.Load()
	result, findErr := p.finder.Find(ctx, t, fetcher)
	switch {
	case findErr == nil:
		err := p.store.MarkMatched(ctx, t.CoreHash, storage.MatchedFields{
			InternalHash:    result.InternalHash,
			ExplorerHash:    result.ExplorerHash,
			BlockNumber:     result.BlockNumber,
			BlockHash:       result.BlockHash,
			BlockTime:       result.BlockTimestamp,
			ContractAddress: result.ContractAddress,
		})
		if err != nil {
			p.logger.Warn("mark matched failed", zap.String("core_hash", t.CoreHash), zap.Error(err))
			p.counters.Errored.Inc()
			p.unqueue(t.CoreHash)
			return
		}
		p.counters.Matched.Inc()
		// deliberately left in dedup: MarkMatched is terminal, a
		// subsequent refill will never see it as pending again.

	case isNotFound(findErr):
		if err := p.store.MarkFailed(ctx, t.CoreHash, findErr.Error()); err != nil {
			p.logger.Warn("mark failed failed", zap.String("core_hash", t.CoreHash), zap.Error(err))
		}
		p.counters.Failed.Inc()

	default:
		p.logger.Debug("transfer left pending", zap.String("core_hash", t.CoreHash), zap.Error(findErr))
		p.counters.Errored.Inc()
		p.unqueue(t.CoreHash)
	}
}

func isNotFound(err model.FindError) bool {
	_, ok := err.(*model.NotFoundError)
	return ok
}

func (p *Pool) runStatsLogger(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.logger.Info("matcher stats",
				zap.Float64("matched_total", readCounter(p.counters.Matched)),
				zap.Float64("failed_total", readCounter(p.counters.Failed)),
				zap.Float64("errored_total", readCounter(p.counters.Errored)),
				zap.Int("queue_length", len(p.queue)),
			)
		}
	}
}

func readCounter(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
