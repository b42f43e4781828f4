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

// Package app wires every component into the running process:
// persistence, the asset cache, both fetcher variants, the finder,
// the matcher pool, and the indexer fleet, all parented to one
// errgroup.Group so any component's failure or the root context's
// cancellation brings the whole tree down together.
package app

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/d4mr/coredrain/internal/anchorindex"
	"github.com/d4mr/coredrain/internal/assetcache"
	"github.com/d4mr/coredrain/internal/backoff"
	"github.com/d4mr/coredrain/internal/config"
	"github.com/d4mr/coredrain/internal/coreclient"
	"github.com/d4mr/coredrain/internal/fetch"
	"github.com/d4mr/coredrain/internal/finder"
	"github.com/d4mr/coredrain/internal/indexer"
	"github.com/d4mr/coredrain/internal/matcher"
	"github.com/d4mr/coredrain/internal/metadataclient"
	"github.com/d4mr/coredrain/internal/model"
	"github.com/d4mr/coredrain/internal/storage"
)

// App holds every long-lived component once wired, so Run and Close can
// share them.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  storage.Store

	coord    *backoff.Coordinator
	assets   *assetcache.Cache
	index    *anchorindex.Index
	finder   *finder.Finder
	pool     *matcher.Pool
	fleet    *indexer.Fleet
}

// New constructs every component but does not start any goroutines.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, err := storage.Open(cfg.StoragePath)
	if err != nil {
		return nil, &model.ConfigError{Reason: fmt.Sprintf("open storage: %v", err)}
	}

	coord := backoff.New()
	assets := assetcache.New(metadataclient.New(cfg.AssetMetadataURL), logger)
	if err := assets.Populate(ctx); err != nil {
		store.Close()
		return nil, &model.ConfigError{Reason: fmt.Sprintf("populate asset cache: %v", err)}
	}

	index := anchorindex.New(store, logger)
	find := finder.New(index, assets)

	rpcClient, err := gethrpc.DialContext(ctx, cfg.EVMRPCURL)
	if err != nil {
		store.Close()
		return nil, &model.ConfigError{Reason: fmt.Sprintf("dial evm rpc: %v", err)}
	}
	rpcFetcher := fetch.NewRPCFetcher(rpcClient, cfg.EVMChainID, coord, logger)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.ObjectStoreRegion))
	if err != nil {
		store.Close()
		return nil, &model.ConfigError{Reason: fmt.Sprintf("load aws config: %v", err)}
	}
	s3Client := s3.NewFromConfig(awsCfg)
	objectFetcher := fetch.NewObjectStoreFetcher(s3Client, cfg.ObjectStoreBucket, cfg.EVMChainID, coord, logger)

	registry := prometheus.NewRegistry()
	counters := matcher.NewCounters(registry)
	pool := matcher.New(store, find, rpcFetcher, objectFetcher, logger, counters)

	coreClient := coreclient.New(cfg.CoreLedgerURL)
	fleet := indexer.NewFleet(store, coreClient, coord, logger, assets)

	if err := seedWatchedAddresses(ctx, store, cfg.WatchedAddresses); err != nil {
		store.Close()
		return nil, &model.ConfigError{Reason: fmt.Sprintf("seed watched addresses: %v", err)}
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
		coord:  coord,
		assets: assets,
		index:  index,
		finder: find,
		pool:   pool,
		fleet:  fleet,
	}, nil
}

// seedWatchedAddresses inserts each configured address exactly once, on
// the boot that first introduces it. An address already present in the
// store is left untouched: re-upserting it on every restart would reset
// LastIndexedTime to zero and force a full re-scan from genesis.
func seedWatchedAddresses(ctx context.Context, store storage.Store, addresses []string) error {
	existing, err := store.ListWatchedAddresses(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, a := range existing {
		known[a.Address] = true
	}

	for _, addr := range addresses {
		if addr == "" || known[addr] {
			continue
		}
		if err := store.UpsertWatchedAddress(ctx, model.WatchedAddress{Address: addr, IsActive: true}); err != nil {
			return err
		}
	}
	return nil
}

// Run starts the matcher pool and the indexer fleet, blocking until ctx
// is cancelled or either subsystem reports a fatal error.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.pool.Run(ctx) })
	g.Go(func() error { return a.fleet.Run(ctx) })
	return g.Wait()
}

// Close releases the storage engine's resources. Callers defer this
// immediately after New succeeds.
func (a *App) Close() error {
	return a.store.Close()
}
