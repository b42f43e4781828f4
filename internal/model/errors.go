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

package model

import "fmt"

// FindError is the tagged union of terminal outcomes the finder can
// return besides a FindResult. It is a sum type rather than a plain
// error string so the matcher can switch on the concrete case instead
// of pattern-matching messages.
type FindError interface {
	error
	isFindError()
}

// NotFoundError means the search exhausted its bounds without a match:
// the transfer is definitively absent from the EVM chain as searched.
type NotFoundError struct {
	BlocksSearched int
	Rounds         int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found after searching %d blocks over %d rounds", e.BlocksSearched, e.Rounds)
}
func (*NotFoundError) isFindError() {}

// FetchErr wraps a transient failure from a block fetcher. It leaves the
// transfer PENDING for a later retry.
type FetchErr struct {
	Cause error
}

func (e *FetchErr) Error() string { return fmt.Sprintf("fetch: %v", e.Cause) }
func (e *FetchErr) Unwrap() error { return e.Cause }
func (*FetchErr) isFindError()    {}

// StorageErr wraps a persistence-layer failure encountered mid-search;
// Find also returns it when the transfer's amount cannot be parsed.
// Transient from the finder's viewpoint; the transfer stays PENDING.
type StorageErr struct {
	Cause error
}

func (e *StorageErr) Error() string { return fmt.Sprintf("storage: %v", e.Cause) }
func (e *StorageErr) Unwrap() error { return e.Cause }
func (*StorageErr) isFindError()    {}

// RateLimitedError signals a 429 (or protocol-equivalent) response. The
// caller's retry policy decides what happens next; the shared backoff
// coordinator is always triggered as a side effect of observing one.
type RateLimitedError struct {
	RetryAfter int64 // seconds, as reported upstream
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds", e.RetryAfter)
}

// ConfigError is fatal at startup.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("configuration: %s", e.Reason) }
