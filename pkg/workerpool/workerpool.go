// Copyright 2024 Bolt Server Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package workerpool provides a small bounded goroutine pool for running
// event callbacks, adapted from the EventHandle/RegisterEvent/AddEvent/
// OnExit shape used by tiflow's internal pkg/workerpool (as consumed in
// pkg/p2p/server.go's AddHandler/RemoveHandler). That package is not an
// externally importable third-party module, so its concern — bounded
// concurrent handler execution without an unbounded goroutine-per-event
// model — is reimplemented here for the execution engine's inbound-message
// dispatch (pkg/engine).
package workerpool

import (
	"context"
	"sync"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// EventFunc handles one event posted to an EventHandle.
type EventFunc func(ctx context.Context, event interface{}) error

// EventHandle is a single registered event callback, running on the pool's
// goroutines. Events posted to the same handle are processed in order.
type EventHandle struct {
	fn      EventFunc
	onExit  func(error)
	events  chan interface{}
	errCh   chan error
	pool    *WorkerPool
	closeCh chan struct{}
	once    sync.Once
}

// AddEvent enqueues event for processing. Returns an error if ctx is done
// or the handle has been unregistered; stopping the pool's Run does not
// close the handle.
func (h *EventHandle) AddEvent(ctx context.Context, event interface{}) error {
	select {
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	case <-h.closeCh:
		return errors.New("workerpool: handle closed")
	case h.events <- event:
		return nil
	}
}

// OnExit registers a callback invoked with the first error returned by fn,
// if any. Mirrors tiflow's poolHandle.OnExit.
func (h *EventHandle) OnExit(fn func(error)) *EventHandle {
	h.onExit = fn
	return h
}

// ErrCh exposes the channel errors surfaced by fn are delivered on.
func (h *EventHandle) ErrCh() <-chan error {
	return h.errCh
}

// GracefulUnregister waits up to timeout for the handle's queue to empty,
// then stops the handle from accepting new events. Events added during the
// wait are still accepted. On timeout or ctx cancellation the handle is
// stopped and any events still queued are dropped.
func (h *EventHandle) GracefulUnregister(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for len(h.events) > 0 {
		select {
		case <-ctx.Done():
			h.Unregister()
			return errors.Trace(ctx.Err())
		case <-deadline.C:
			h.Unregister()
			return errors.New("workerpool: timed out waiting for handle to drain")
		case <-ticker.C:
		}
	}
	h.once.Do(func() { close(h.closeCh) })
	return nil
}

// Unregister stops the handle immediately, dropping any unprocessed
// events still queued.
func (h *EventHandle) Unregister() {
	h.once.Do(func() { close(h.closeCh) })
}

func (h *EventHandle) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.closeCh:
			return
		case ev := <-h.events:
			if err := h.fn(ctx, ev); err != nil {
				log.Warn("workerpool event handler returned error", zap.Error(err))
				select {
				case h.errCh <- err:
				default:
				}
				if h.onExit != nil {
					h.onExit(err)
				}
				return
			}
		}
	}
}

// WorkerPool runs a bounded set of EventHandles concurrently, each with
// its own ordered event queue and its own goroutine.
type WorkerPool struct {
	size int

	mu      sync.Mutex
	handles []*EventHandle
	wg      sync.WaitGroup
}

// New returns a WorkerPool. size is stored but not enforced: RegisterEvent
// accepts any number of handles, and each handle gets its own goroutine.
func New(size int) *WorkerPool {
	return &WorkerPool{size: size}
}

// RegisterEvent registers fn as a new EventHandle. Its processing goroutine
// is started by Run; a handle registered after Run has started is not run.
func (p *WorkerPool) RegisterEvent(fn EventFunc) *EventHandle {
	h := &EventHandle{
		fn:      fn,
		events:  make(chan interface{}, 256),
		errCh:   make(chan error, 1),
		pool:    p,
		closeCh: make(chan struct{}),
	}
	p.mu.Lock()
	p.handles = append(p.handles, h)
	p.mu.Unlock()
	return h
}

// Run drives every registered handle's goroutine until ctx is cancelled.
func (p *WorkerPool) Run(ctx context.Context) error {
	p.mu.Lock()
	handles := append([]*EventHandle(nil), p.handles...)
	p.mu.Unlock()

	for _, h := range handles {
		p.wg.Add(1)
		go h.run(ctx, &p.wg)
	}
	<-ctx.Done()
	p.wg.Wait()
	return errors.Trace(ctx.Err())
}
