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

// Package scheduler drives the execution engine's cycleTasks on a
// periodic ticker and exposes an on-demand trigger channel, grounded on
// pkg/p2p/server.go's run() select-loop combining a ticker case with a
// task-queue case.
package scheduler

import (
	"context"
	"time"
)

// Cycler is the subset of *engine.Engine the scheduler needs.
type Cycler interface {
	CycleTasks()
}

// Scheduler runs Cycler.CycleTasks on an interval, or immediately when
// Trigger is called.
type Scheduler struct {
	interval time.Duration
	cycler   Cycler
	trigger  chan struct{}
}

// New builds a Scheduler that calls cycler.CycleTasks every interval.
func New(interval time.Duration, cycler Cycler) *Scheduler {
	return &Scheduler{
		interval: interval,
		cycler:   cycler,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests an out-of-band cycle as soon as the run loop next
// selects, without waiting for the next tick.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks, driving cycles until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.cycler.CycleTasks()
		case <-s.trigger:
			s.cycler.CycleTasks()
		}
	}
}
