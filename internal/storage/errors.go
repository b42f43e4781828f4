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

package storage

import (
	"errors"
	"fmt"
)

// ErrDuplicateKey names the duplicate-key condition. No operation of this
// package returns it: InsertTransferBatch/InsertAnchorTxBatch look up
// each document's primary key inside the write transaction and report an
// existing one in the returned Duplicates count instead.
var ErrDuplicateKey = errors.New("duplicate key")

// Error wraps any other persistence failure. Storage errors are
// transient from the matcher's point of view (the transfer just stays
// PENDING) but fatal during startup schema verification.
type Error struct {
	Op    string
	Cause error
}

func (e *Error) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Cause) }
func (e *Error) Unwrap() error { return e.Cause }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Cause: err}
}
