// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package latch provides a releaseable counting semaphore used to
// bound concurrency of a class of operations, such as the number of
// parallel SSH sessions opened against one machine.
package latch

import (
	"context"
	"fmt"
	"sync"

	"github.com/juju/errors"
)

// ReleaseableLatch gates access to a bounded resource. Acquire blocks
// until a permit is free or the context is cancelled; Release returns
// a permit. The caller identity is recorded for diagnostics only, it
// confers no fairness beyond the blocking order.
type ReleaseableLatch interface {
	Acquire(ctx context.Context, caller string) error
	Release(caller string)
}

// Nop returns an unbounded latch; both operations do nothing.
func Nop() ReleaseableLatch {
	return nopLatch{}
}

type nopLatch struct{}

func (nopLatch) Acquire(context.Context, string) error { return nil }
func (nopLatch) Release(string)                        {}
func (nopLatch) String() string                        { return "latch[unbounded]" }

// NewMaxConcurrency returns a latch with the given number of permits.
// Permits in use reset to zero when the latch is reconstructed after a
// restart; in-flight acquisitions do not survive.
func NewMaxConcurrency(permits int) (ReleaseableLatch, error) {
	if permits <= 0 {
		return nil, errors.NotValidf("latch with %d permits", permits)
	}
	return &maxConcurrencyLatch{
		permits: permits,
		slots:   make(chan struct{}, permits),
	}, nil
}

type maxConcurrencyLatch struct {
	permits int
	slots   chan struct{}

	mu      sync.Mutex
	holders map[string]int
}

func (l *maxConcurrencyLatch) Acquire(ctx context.Context, caller string) error {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
	l.mu.Lock()
	if l.holders == nil {
		l.holders = make(map[string]int)
	}
	l.holders[caller]++
	l.mu.Unlock()
	return nil
}

func (l *maxConcurrencyLatch) Release(caller string) {
	l.mu.Lock()
	if l.holders[caller] > 0 {
		l.holders[caller]--
		if l.holders[caller] == 0 {
			delete(l.holders, caller)
		}
	}
	l.mu.Unlock()
	select {
	case <-l.slots:
	default:
		// Releasing more permits than were acquired is a programming
		// error, not a state to recover from.
		panic(fmt.Sprintf("latch released by %q with all %d permits free", caller, l.permits))
	}
}

func (l *maxConcurrencyLatch) String() string {
	return fmt.Sprintf("latch[permits=%d/%d]", l.permits-len(l.slots), l.permits)
}
