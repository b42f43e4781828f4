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

// Package fetchretry is the jittered exponential backoff both block
// fetcher variants retry transient errors with. It also recognizes
// rate-limit responses and routes them through the shared coordinator
// before retrying, so a single 429 anywhere throttles every outbound
// caller.
package fetchretry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	coordpkg "github.com/d4mr/coredrain/internal/backoff"
	"github.com/d4mr/coredrain/internal/model"
)

// RateLimited is an error carrying an upstream Retry-After, in seconds.
type RateLimited interface {
	error
	RetryAfterSeconds() int64
}

// Do retries op up to maxAttempts times with jittered exponential
// backoff (cenkalti/backoff/v4's default randomization), consulting
// coord.Wait before every attempt and coord.Trigger whenever op reports
// a rate limit.
func Do(ctx context.Context, coord *coordpkg.Coordinator, maxAttempts int, op func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 200 * time.Millisecond
	eb.MaxInterval = 5 * time.Second
	eb.RandomizationFactor = 0.5
	bo := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(maxAttempts-1)), ctx)

	return backoff.Retry(func() error {
		if err := coord.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := op(ctx)
		if err == nil {
			return nil
		}

		var rl RateLimited
		var modelRL *model.RateLimitedError
		if errors.As(err, &rl) {
			coord.Trigger(time.Duration(rl.RetryAfterSeconds()) * time.Second)
		} else if errors.As(err, &modelRL) {
			coord.Trigger(time.Duration(modelRL.RetryAfter) * time.Second)
		}
		return err
	}, bo)
}
