// Copyright 2024 privexec authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package isolate runs short operations on a private OS thread whose root
// directory, working directory, umask and effective ids are detached from
// the rest of the process.
//
// The calling goroutine blocks until the isolated thread has finished and is
// handed the payload's status and error as if the payload had run inline.
// The thread is never returned to the Go scheduler: it exits together with
// the goroutine that ran the payload, taking its altered kernel state with
// it.
//
// Payloads must not start goroutines of their own and expect them to share
// the isolated view; any goroutine started from a payload runs on an
// ordinary thread.
package isolate

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/docker/privexec/internal/errdefs"
	"github.com/docker/privexec/internal/log"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxThreads bounds the isolated threads alive at once in the
// default executor.
const DefaultMaxThreads = 64

// Identity is an effective uid/gid pair.
type Identity struct {
	UID int
	GID int
}

func (id Identity) String() string {
	return fmt.Sprintf("%d:%d", id.UID, id.GID)
}

// Request describes the view a payload runs under. The zero Request still
// runs the payload on a private thread with an unshared fs context.
type Request struct {
	// Root is chrooted into before the payload runs, when set.
	Root string
	// Identity is assumed after entering Root, when set.
	Identity *Identity
}

// Payload is the operation run inside the isolated thread. It returns an
// operation-specific status (a file descriptor, zero for success) and the
// error that caused a failure.
type Payload func() (int, error)

type result struct {
	status int
	err    error
}

// Executor spawns isolated threads. Each Run gets its own thread; threads
// are never pooled or reused.
type Executor struct {
	threads *semaphore.Weighted
}

// NewExecutor returns an executor allowing at most maxThreads isolated
// threads at a time. A non-positive value selects DefaultMaxThreads.
func NewExecutor(maxThreads int64) *Executor {
	if maxThreads <= 0 {
		maxThreads = DefaultMaxThreads
	}
	return &Executor{threads: semaphore.NewWeighted(maxThreads)}
}

// Run executes fn under req on a fresh isolated thread and waits for it.
//
// ctx only bounds the wait for a free thread slot; once the thread is
// spawned the payload runs to completion.
func (e *Executor) Run(ctx context.Context, req Request, fn Payload) (int, error) {
	if err := e.threads.Acquire(ctx, 1); err != nil {
		return -1, errdefs.Wrapf(errdefs.ResourceExhausted, err, "acquiring isolated thread")
	}
	defer e.threads.Release(1)

	logger := log.WithFields("root", req.Root, "identity", req.Identity)
	logger.Tracef("spawning isolated thread")

	done := make(chan result, 1)
	go isolated(req, fn, done)
	res := <-done

	if res.err != nil {
		logger.Debugf("isolated thread finished with status %d: %v", res.status, res.err)
	}
	return res.status, res.err
}

func isolated(req Request, fn Payload, done chan<- result) {
	// Never unlocked: the runtime terminates the thread when this goroutine
	// exits instead of scheduling other goroutines onto its altered state.
	// Threads the runtime needs to create meanwhile come from its template
	// thread, not from this one.
	runtime.LockOSThread()

	reported := false
	defer func() {
		if reported {
			return
		}
		if r := recover(); r != nil {
			done <- result{status: -1, err: errdefs.Errorf(errdefs.WaitFailed, "isolated payload panicked: %v", r)}
			return
		}
		done <- result{status: -1, err: errdefs.Errorf(errdefs.WaitFailed, "isolated payload exited without a result")}
	}()

	status, err := enter(req, fn)
	reported = true
	done <- result{status: status, err: err}
}

var (
	defaultMu       sync.RWMutex
	defaultExecutor = NewExecutor(DefaultMaxThreads)
)

// SetDefault replaces the executor used by the package-level Run.
func SetDefault(e *Executor) {
	if e == nil {
		e = NewExecutor(DefaultMaxThreads)
	}
	defaultMu.Lock()
	defaultExecutor = e
	defaultMu.Unlock()
}

// Default returns the executor used by the package-level Run.
func Default() *Executor {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultExecutor
}

// Run executes fn under req with the default executor.
func Run(ctx context.Context, req Request, fn Payload) (int, error) {
	return Default().Run(ctx, req, fn)
}
