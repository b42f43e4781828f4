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

package backoff

import (
	"context"
	"testing"
	"time"
)

func TestWaitNoDeadlineReturnsImmediately(t *testing.T) {
	c := New()
	start := time.Now()
	if err := c.Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("Wait blocked %v with no deadline set", elapsed)
	}
}

func TestTriggerIsMonotonic(t *testing.T) {
	c := New()
	c.Trigger(5 * time.Second)
	first := c.Deadline()

	c.Trigger(1 * time.Second) // earlier: must not move the deadline back
	if c.Deadline() != first {
		t.Fatalf("Trigger moved deadline earlier: got %d, want %d", c.Deadline(), first)
	}

	c.Trigger(10 * time.Second) // later: must move forward
	if c.Deadline() <= first {
		t.Fatalf("Trigger with a later retryAfter did not advance the deadline")
	}
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	c := New()
	c.Trigger(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Wait(ctx); err == nil {
		t.Fatal("Wait returned nil error on an already-cancelled context")
	}
}

func TestWaitBlocksUntilDeadline(t *testing.T) {
	c := New()
	c.Trigger(50 * time.Millisecond)

	start := time.Now()
	if err := c.Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("Wait returned after only %v, deadline was 50ms out", elapsed)
	}
}
