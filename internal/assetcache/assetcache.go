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

// Package assetcache is the process-wide token-identifier -> EVM
// encoding mapping. It is populated once at startup and refreshed on
// demand when an unknown system address is looked up.
package assetcache

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// NativeSystemAddress is the fixed sender prefix for the chain's own
// native-value system transactions.
const NativeSystemAddress = "0x2222222222222222222222222222222222222222"

// nativeDecimals overrides whatever the upstream metadata endpoint
// reports for the native token: it is always treated as 18 decimals.
const nativeDecimals = 18

// defaultDecimals is used when a system address is unknown even after a
// refresh.
const defaultDecimals = 18

// Asset is one token's EVM-side encoding.
type Asset struct {
	Name          string
	Index         int
	SystemAddress string
	EVMDecimals   int
}

// MetadataClient is the external asset-metadata endpoint, implemented
// by internal/metadataclient.
type MetadataClient interface {
	FetchTokens(ctx context.Context) ([]TokenMeta, error)
}

// TokenMeta is the upstream response shape for a single token.
type TokenMeta struct {
	Name                string
	Index               int
	WeiDecimals         int
	HasEVMContract      bool
	EVMExtraWeiDecimals int
}

// systemAddressPrefix is the fixed 37-hex-digit prefix every non-native
// system address shares; the remaining 3 digits are the token index.
const systemAddressPrefix = "2000000000000000000000000000000000000"

// SystemAddressForIndex derives the 0x2000...-prefixed system address
// for a non-native token index: systemAddressPrefix concatenated with
// the index as 3 lowercase hex digits, for a full 20-byte address.
func SystemAddressForIndex(index int) string {
	return fmt.Sprintf("0x%s%03x", systemAddressPrefix, index)
}

type snapshot struct {
	byName          map[string]Asset
	bySystemAddress map[string]Asset
	byIndex         map[int]Asset
}

// Cache is safe for concurrent readers; writes only happen inside
// populate, which swaps the whole snapshot atomically so readers never
// observe a partially updated set of maps.
type Cache struct {
	client MetadataClient
	logger *zap.Logger
	snap   atomic.Pointer[snapshot]
}

func New(client MetadataClient, logger *zap.Logger) *Cache {
	c := &Cache{client: client, logger: logger}
	c.snap.Store(&snapshot{
		byName:          map[string]Asset{},
		bySystemAddress: map[string]Asset{},
		byIndex:         map[int]Asset{},
	})
	return c
}

// Populate performs the initial full load. Call once at startup.
func (c *Cache) Populate(ctx context.Context) error {
	return c.refresh(ctx)
}

func (c *Cache) refresh(ctx context.Context) error {
	tokens, err := c.client.FetchTokens(ctx)
	if err != nil {
		return fmt.Errorf("fetch asset metadata: %w", err)
	}
	next := &snapshot{
		byName:          make(map[string]Asset, len(tokens)),
		bySystemAddress: make(map[string]Asset, len(tokens)),
		byIndex:         make(map[int]Asset, len(tokens)),
	}
	for _, t := range tokens {
		decimals := t.WeiDecimals
		if t.HasEVMContract {
			decimals += t.EVMExtraWeiDecimals
		}
		sysAddr := SystemAddressForIndex(t.Index)
		isNative := !t.HasEVMContract && t.Index == 0
		if isNative {
			decimals = nativeDecimals
			sysAddr = NativeSystemAddress
		}
		a := Asset{Name: t.Name, Index: t.Index, SystemAddress: sysAddr, EVMDecimals: decimals}
		next.byName[a.Name] = a
		next.bySystemAddress[a.SystemAddress] = a
		next.byIndex[a.Index] = a
	}
	c.snap.Store(next)
	c.logger.Info("asset cache populated", zap.Int("count", len(tokens)))
	return nil
}

func (c *Cache) ByName(name string) (Asset, bool) {
	s := c.snap.Load()
	a, ok := s.byName[name]
	return a, ok
}

func (c *Cache) ByIndex(index int) (Asset, bool) {
	s := c.snap.Load()
	a, ok := s.byIndex[index]
	return a, ok
}

// IsSystemAddress reports whether addr is a known system address without
// triggering a refresh on miss: callers filtering a high-volume stream
// (the indexer) should not pay a network round trip per unknown address.
func (c *Cache) IsSystemAddress(addr string) bool {
	s := c.snap.Load()
	_, ok := s.bySystemAddress[addr]
	return ok
}

// BySystemAddress resolves decimals for a system address. If the address
// is unknown, it triggers a single synchronous refresh before falling
// back to defaultDecimals.
func (c *Cache) BySystemAddress(ctx context.Context, addr string) Asset {
	s := c.snap.Load()
	if a, ok := s.bySystemAddress[addr]; ok {
		return a
	}
	if err := c.refresh(ctx); err != nil {
		c.logger.Warn("asset cache refresh failed", zap.Error(err), zap.String("system_address", addr))
	} else if a, ok := c.snap.Load().bySystemAddress[addr]; ok {
		return a
	}
	return Asset{SystemAddress: addr, EVMDecimals: defaultDecimals}
}
