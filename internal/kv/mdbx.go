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

package kv

import (
	"context"
	"fmt"
	"os"

	"github.com/erigontech/mdbx-go/mdbx"
)

// mdbxDB is the concrete DB backed by libmdbx.
type mdbxDB struct {
	env *mdbx.Env
}

// OpenMdbx opens (creating if necessary) an mdbx environment at path and
// ensures every table in Tables exists. It is the only place in the tree
// that touches the mdbx-go binding directly.
func OpenMdbx(path string) (DB, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("mdbx new env: %w", err)
	}
	if err := env.SetOption(mdbx.OptMaxDB, uint64(len(Tables))); err != nil {
		return nil, fmt.Errorf("mdbx set max dbs: %w", err)
	}
	if err := env.SetGeometry(-1, -1, 4<<30, 2<<20, -1, 4096); err != nil {
		return nil, fmt.Errorf("mdbx set geometry: %w", err)
	}
	if err := env.Open(path, mdbx.Coalesce|mdbx.LifoReclaim, 0o664); err != nil {
		return nil, fmt.Errorf("mdbx open: %w", err)
	}

	db := &mdbxDB{env: env}
	if err := db.ensureTables(); err != nil {
		env.Close()
		return nil, fmt.Errorf("ensure tables: %w", err)
	}
	return db, nil
}

func (d *mdbxDB) ensureTables() error {
	return d.env.Update(func(txn *mdbx.Txn) error {
		for _, table := range Tables {
			if _, err := txn.OpenDBISimple(table, mdbx.Create); err != nil {
				return fmt.Errorf("create table %s: %w", table, err)
			}
		}
		return nil
	})
}

func (d *mdbxDB) Close() error {
	d.env.Close()
	return nil
}

func (d *mdbxDB) View(_ context.Context, f func(tx Tx) error) error {
	return d.env.View(func(txn *mdbx.Txn) error {
		return f(&mdbxTx{txn: txn})
	})
}

func (d *mdbxDB) Update(_ context.Context, f func(tx RwTx) error) error {
	return d.env.Update(func(txn *mdbx.Txn) error {
		return f(&mdbxTx{txn: txn})
	})
}

// mdbxTx implements both Tx and RwTx; the distinction is enforced by
// which interface the caller was handed (View vs. Update), not by the
// type itself.
type mdbxTx struct {
	txn *mdbx.Txn
}

func (t *mdbxTx) dbi(table string) (mdbx.DBI, error) {
	return t.txn.OpenDBISimple(table, mdbx.Create)
}

func (t *mdbxTx) GetOne(table string, key []byte) ([]byte, error) {
	dbi, err := t.dbi(table)
	if err != nil {
		return nil, err
	}
	v, err := t.txn.Get(dbi, key)
	if mdbx.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (t *mdbxTx) Has(table string, key []byte) (bool, error) {
	v, err := t.GetOne(table, key)
	return v != nil, err
}

func (t *mdbxTx) Put(table string, key, value []byte) error {
	dbi, err := t.dbi(table)
	if err != nil {
		return err
	}
	return t.txn.Put(dbi, key, value, 0)
}

func (t *mdbxTx) Delete(table string, key []byte) error {
	dbi, err := t.dbi(table)
	if err != nil {
		return err
	}
	err = t.txn.Del(dbi, key, nil)
	if mdbx.IsNotFound(err) {
		return nil
	}
	return err
}

func (t *mdbxTx) Cursor(table string) (Cursor, error) {
	dbi, err := t.dbi(table)
	if err != nil {
		return nil, err
	}
	c, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, err
	}
	return &mdbxCursor{c: c}, nil
}

func (t *mdbxTx) Commit() error {
	_, err := t.txn.Commit()
	return err
}

func (t *mdbxTx) Rollback() {
	t.txn.Abort()
}

type mdbxCursor struct {
	c *mdbx.Cursor
}

func copyKV(k, v []byte) ([]byte, []byte) {
	if k == nil && v == nil {
		return nil, nil
	}
	kc := append([]byte(nil), k...)
	vc := append([]byte(nil), v...)
	return kc, vc
}

func (mc *mdbxCursor) First() ([]byte, []byte, error) {
	k, v, err := mc.c.Get(nil, nil, mdbx.First)
	if mdbx.IsNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	k, v = copyKV(k, v)
	return k, v, nil
}

func (mc *mdbxCursor) Last() ([]byte, []byte, error) {
	k, v, err := mc.c.Get(nil, nil, mdbx.Last)
	if mdbx.IsNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	k, v = copyKV(k, v)
	return k, v, nil
}

func (mc *mdbxCursor) Next() ([]byte, []byte, error) {
	k, v, err := mc.c.Get(nil, nil, mdbx.Next)
	if mdbx.IsNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	k, v = copyKV(k, v)
	return k, v, nil
}

func (mc *mdbxCursor) Prev() ([]byte, []byte, error) {
	k, v, err := mc.c.Get(nil, nil, mdbx.Prev)
	if mdbx.IsNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	k, v = copyKV(k, v)
	return k, v, nil
}

func (mc *mdbxCursor) Seek(seek []byte) ([]byte, []byte, error) {
	k, v, err := mc.c.Get(seek, nil, mdbx.SetRange)
	if mdbx.IsNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	k, v = copyKV(k, v)
	return k, v, nil
}

func (mc *mdbxCursor) Close() {
	mc.c.Close()
}
