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

// Package storage is the durable store for transfers, anchor
// transactions, and watched-address cursors. All duplicate detection is
// delegated to table primary keys; callers never do read-then-write to
// enforce uniqueness themselves.
package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/d4mr/coredrain/internal/kv"
	"github.com/d4mr/coredrain/internal/model"
)

// Store is the full persistence contract.
type Store interface {
	InsertTransferBatch(ctx context.Context, transfers []model.Transfer) (model.InsertBatchResult, error)
	GetPendingTransfers(ctx context.Context, limit int) ([]model.Transfer, error)
	MarkMatched(ctx context.Context, coreHash string, fields MatchedFields) error
	MarkFailed(ctx context.Context, coreHash, reason string) error

	InsertAnchorTxBatch(ctx context.Context, anchors []model.AnchorTx) (model.InsertBatchResult, error)
	FindBracketingAnchors(ctx context.Context, targetTime int64) (model.Bracket, error)
	FindMatchingAnchor(ctx context.Context, from, recipient, amountSmallestUnit string, minTime, maxTime int64) (*model.AnchorTx, error)

	UpsertWatchedAddress(ctx context.Context, addr model.WatchedAddress) error
	UpdateCursor(ctx context.Context, address string, lastIndexedTime int64) error
	ListWatchedAddresses(ctx context.Context) ([]model.WatchedAddress, error)
	GetPendingCount(ctx context.Context) (int, error)

	Close() error
}

// MatchedFields is the set of EVM-side fields written by MarkMatched.
type MatchedFields struct {
	InternalHash    string
	ExplorerHash    string
	BlockNumber     uint64
	BlockHash       string
	BlockTime       int64
	ContractAddress *string
}

var mh codec.MsgpackHandle

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, &mh)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(b []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(b, &mh)
	return dec.Decode(v)
}

type store struct {
	db kv.DB
}

// Open opens (and, on first run, creates) the mdbx-backed store at path,
// verifying every table exists. Failure here is fatal at process startup.
func Open(path string) (Store, error) {
	db, err := kv.OpenMdbx(path)
	if err != nil {
		return nil, wrap("open", err)
	}
	return &store{db: db}, nil
}

func (s *store) Close() error { return s.db.Close() }

func (s *store) InsertTransferBatch(ctx context.Context, transfers []model.Transfer) (model.InsertBatchResult, error) {
	var res model.InsertBatchResult
	err := s.db.Update(ctx, func(tx kv.RwTx) error {
		for i := range transfers {
			t := &transfers[i]
			key := hashKey(t.CoreHash)
			has, err := tx.Has(kv.Transfers, key)
			if err != nil {
				return err
			}
			if has {
				res.Duplicates++
				continue
			}
			t.Status = model.StatusPending
			val, err := encode(t)
			if err != nil {
				return err
			}
			if err := tx.Put(kv.Transfers, key, val); err != nil {
				return err
			}
			if err := tx.Put(kv.PendingByTime, pendingByTimeKey(t.CoreTime, t.CoreHash), []byte{}); err != nil {
				return err
			}
			res.Inserted++
		}
		return nil
	})
	if err != nil {
		return model.InsertBatchResult{}, wrap("InsertTransferBatch", err)
	}
	return res, nil
}

func (s *store) GetPendingTransfers(ctx context.Context, limit int) ([]model.Transfer, error) {
	var out []model.Transfer
	err := s.db.View(ctx, func(tx kv.Tx) error {
		c, err := tx.Cursor(kv.PendingByTime)
		if err != nil {
			return err
		}
		defer c.Close()
		for k, _, err := c.First(); k != nil; k, _, err = c.Next() {
			if err != nil {
				return err
			}
			if len(out) >= limit {
				break
			}
			coreHash := k[8:]
			v, err := tx.GetOne(kv.Transfers, coreHash)
			if err != nil {
				return err
			}
			if v == nil {
				continue // index/row race during a concurrent terminal transition; harmless
			}
			var t model.Transfer
			if err := decode(v, &t); err != nil {
				return err
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, wrap("GetPendingTransfers", err)
	}
	return out, nil
}

func (s *store) GetPendingCount(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(ctx, func(tx kv.Tx) error {
		c, err := tx.Cursor(kv.PendingByTime)
		if err != nil {
			return err
		}
		defer c.Close()
		for k, _, err := c.First(); k != nil; k, _, err = c.Next() {
			if err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, wrap("GetPendingCount", err)
	}
	return count, nil
}

func (s *store) markTerminal(ctx context.Context, coreHash string, mutate func(t *model.Transfer)) error {
	return s.db.Update(ctx, func(tx kv.RwTx) error {
		key := hashKey(coreHash)
		v, err := tx.GetOne(kv.Transfers, key)
		if err != nil {
			return err
		}
		if v == nil {
			return nil // unknown coreHash: idempotent no-op
		}
		var t model.Transfer
		if err := decode(v, &t); err != nil {
			return err
		}
		if t.Status != model.StatusPending {
			return nil // already terminal: idempotent no-op
		}
		mutate(&t)
		nv, err := encode(&t)
		if err != nil {
			return err
		}
		if err := tx.Put(kv.Transfers, key, nv); err != nil {
			return err
		}
		return tx.Delete(kv.PendingByTime, pendingByTimeKey(t.CoreTime, t.CoreHash))
	})
}

func (s *store) MarkMatched(ctx context.Context, coreHash string, f MatchedFields) error {
	err := s.markTerminal(ctx, coreHash, func(t *model.Transfer) {
		t.Status = model.StatusMatched
		t.EVMInternalHash = &f.InternalHash
		t.EVMExplorerHash = &f.ExplorerHash
		t.EVMBlockNumber = &f.BlockNumber
		t.EVMBlockHash = &f.BlockHash
		t.EVMBlockTime = &f.BlockTime
		t.ContractAddress = f.ContractAddress
	})
	return wrap("MarkMatched", err)
}

func (s *store) MarkFailed(ctx context.Context, coreHash, reason string) error {
	err := s.markTerminal(ctx, coreHash, func(t *model.Transfer) {
		t.Status = model.StatusFailed
		t.FailReason = &reason
	})
	return wrap("MarkFailed", err)
}

func (s *store) InsertAnchorTxBatch(ctx context.Context, anchors []model.AnchorTx) (model.InsertBatchResult, error) {
	var res model.InsertBatchResult
	err := s.db.Update(ctx, func(tx kv.RwTx) error {
		for i := range anchors {
			a := &anchors[i]
			key := hashKey(a.InternalHash)
			has, err := tx.Has(kv.AnchorTxs, key)
			if err != nil {
				return err
			}
			if has {
				res.Duplicates++
				continue
			}
			val, err := encode(a)
			if err != nil {
				return err
			}
			if err := tx.Put(kv.AnchorTxs, key, val); err != nil {
				return err
			}
			if err := tx.Put(kv.AnchorsByTime, anchorsByTimeKey(a.BlockTimestamp, a.InternalHash), key); err != nil {
				return err
			}
			mk := anchorsByMatchKey(a.From, a.AssetRecipient, a.AmountSmallestUnit, a.BlockTimestamp)
			if err := tx.Put(kv.AnchorsByMatchKey, mk, key); err != nil {
				return err
			}
			res.Inserted++
		}
		return nil
	})
	if err != nil {
		return model.InsertBatchResult{}, wrap("InsertAnchorTxBatch", err)
	}
	return res, nil
}

func (s *store) getAnchorByInternalHash(tx kv.Tx, internalHash []byte) (*model.AnchorTx, error) {
	v, err := tx.GetOne(kv.AnchorTxs, internalHash)
	if err != nil || v == nil {
		return nil, err
	}
	var a model.AnchorTx
	if err := decode(v, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// FindBracketingAnchors implements two independent one-shot lookups: a
// reverse scan for the greatest anchor with timestamp <= targetTime, and
// a forward scan for the least anchor with
// timestamp > targetTime. A single composite query cannot use both sort
// directions efficiently, hence the two passes.
func (s *store) FindBracketingAnchors(ctx context.Context, targetTime int64) (model.Bracket, error) {
	var bracket model.Bracket
	err := s.db.View(ctx, func(tx kv.Tx) error {
		c, err := tx.Cursor(kv.AnchorsByTime)
		if err != nil {
			return err
		}
		defer c.Close()

		// "before": seek to the first key > targetTime (using the max
		// possible hash suffix would require knowing its width up front,
		// so we instead seek to targetTime+1's floor and step back).
		seekKey := beUint64(targetTime + 1)
		k, _, err := c.Seek(seekKey)
		if err != nil {
			return err
		}
		if k == nil {
			k, _, err = c.Last()
		} else {
			k, _, err = c.Prev()
		}
		if err != nil {
			return err
		}
		if k != nil {
			ts := int64(beToUint64(k[:8]))
			if ts <= targetTime {
				a, err := s.getAnchorByInternalHash(tx, k[8:])
				if err != nil {
					return err
				}
				if a != nil {
					bracket.Before = &model.AnchorRef{BlockNumber: a.BlockNumber, BlockTimestamp: a.BlockTimestamp}
				}
			}
		}

		// "after": seek to the first key > targetTime.
		k, _, err = c.Seek(seekKey)
		if err != nil {
			return err
		}
		if k != nil {
			ts := int64(beToUint64(k[:8]))
			if ts > targetTime {
				a, err := s.getAnchorByInternalHash(tx, k[8:])
				if err != nil {
					return err
				}
				if a != nil {
					bracket.After = &model.AnchorRef{BlockNumber: a.BlockNumber, BlockTimestamp: a.BlockTimestamp}
				}
			}
		}
		return nil
	})
	if err != nil {
		return model.Bracket{}, wrap("FindBracketingAnchors", err)
	}
	return bracket, nil
}

func beToUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

// FindMatchingAnchor seeks the (from, recipient, amount) prefix in
// AnchorsByMatchKey and scans forward over the trailing timestamp,
// returning the earliest anchor inside [minTime, maxTime].
func (s *store) FindMatchingAnchor(ctx context.Context, from, recipient, amountSmallestUnit string, minTime, maxTime int64) (*model.AnchorTx, error) {
	var found *model.AnchorTx
	err := s.db.View(ctx, func(tx kv.Tx) error {
		prefix := matchTuplePrefix(from, recipient, amountSmallestUnit)
		seek := append(append([]byte{}, prefix...), beUint64(minTime)...)
		c, err := tx.Cursor(kv.AnchorsByMatchKey)
		if err != nil {
			return err
		}
		defer c.Close()
		for k, v, err := c.Seek(seek); k != nil; k, v, err = c.Next() {
			if err != nil {
				return err
			}
			if !bytes.HasPrefix(k, prefix) {
				break
			}
			ts := int64(beToUint64(k[len(prefix):]))
			if ts > maxTime {
				break
			}
			a, err := s.getAnchorByInternalHash(tx, v)
			if err != nil {
				return err
			}
			found = a
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, wrap("FindMatchingAnchor", err)
	}
	return found, nil
}

func (s *store) UpsertWatchedAddress(ctx context.Context, addr model.WatchedAddress) error {
	err := s.db.Update(ctx, func(tx kv.RwTx) error {
		val, err := encode(&addr)
		if err != nil {
			return err
		}
		return tx.Put(kv.WatchedAddresses, hashKey(addr.Address), val)
	})
	return wrap("UpsertWatchedAddress", err)
}

func (s *store) UpdateCursor(ctx context.Context, address string, lastIndexedTime int64) error {
	err := s.db.Update(ctx, func(tx kv.RwTx) error {
		key := hashKey(address)
		v, err := tx.GetOne(kv.WatchedAddresses, key)
		if err != nil {
			return err
		}
		if v == nil {
			return fmt.Errorf("unknown watched address %s", address)
		}
		var a model.WatchedAddress
		if err := decode(v, &a); err != nil {
			return err
		}
		if lastIndexedTime > a.LastIndexedTime {
			a.LastIndexedTime = lastIndexedTime
		}
		nv, err := encode(&a)
		if err != nil {
			return err
		}
		return tx.Put(kv.WatchedAddresses, key, nv)
	})
	return wrap("UpdateCursor", err)
}

func (s *store) ListWatchedAddresses(ctx context.Context) ([]model.WatchedAddress, error) {
	var out []model.WatchedAddress
	err := s.db.View(ctx, func(tx kv.Tx) error {
		c, err := tx.Cursor(kv.WatchedAddresses)
		if err != nil {
			return err
		}
		defer c.Close()
		for k, v, err := c.First(); k != nil; k, v, err = c.Next() {
			if err != nil {
				return err
			}
			var a model.WatchedAddress
			if err := decode(v, &a); err != nil {
				return err
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, wrap("ListWatchedAddresses", err)
	}
	return out, nil
}
