/*
Copyright 2026 The linkreg Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package registry

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var nextThreadID atomic.Uint64

// maxProxiedCallers bounds how many foreign-thread callers may be
// blocked waiting on one Thread's dispatch loop at once. Without this, a
// Threaded subtree hit by many concurrent foreign callers would pile up
// an unbounded number of blocked goroutines each holding a result
// channel; the semaphore turns that into backpressure on the caller
// instead.
const maxProxiedCallers = 256

// Thread stands in for the registry's notion of a "home thread" for a
// Threaded subtree. The original runs each such subtree's
// owner on its own OS thread with an event loop; Go has no equivalent
// concept of goroutine identity, so callers instead carry an explicit
// Thread token identifying which logical actor they are running as, and
// pass it into every registry/link call. A call whose caller token does
// not match the target link's owning Thread is proxied: it is queued
// onto the owner's Run loop and the caller blocks for the result,
// exactly as the original blocks a foreign-thread caller on a condition
// variable until the home thread services the request.
type Thread struct {
	id   uint64
	work chan func()
	done chan struct{}
	sem  *semaphore.Weighted
}

// NewThread starts a new logical actor with its own dispatch loop,
// running on a fresh goroutine until Stop is called.
func NewThread() *Thread {
	t := &Thread{
		id:   nextThreadID.Add(1),
		work: make(chan func(), 64),
		done: make(chan struct{}),
		sem:  semaphore.NewWeighted(maxProxiedCallers),
	}
	go t.loop()
	return t
}

func (t *Thread) loop() {
	for {
		select {
		case fn := <-t.work:
			fn()
		case <-t.done:
			return
		}
	}
}

// Stop terminates the thread's dispatch loop. Any work still queued is
// dropped, mirroring a process-exit teardown rather than a graceful
// drain; there is no drain-on-shutdown requirement here.
func (t *Thread) Stop() {
	close(t.done)
}

// run submits fn to t's dispatch loop and blocks for its result. It
// first acquires t's proxied-caller semaphore, so a burst of foreign
// callers queues on Acquire rather than piling up inside the channel
// send and the result wait below.
func run[T any](t *Thread, fn func() (T, error)) (T, error) {
	var zero T
	if err := t.sem.Acquire(context.Background(), 1); err != nil {
		return zero, err
	}
	defer t.sem.Release(1)

	type result struct {
		v   T
		err error
	}
	resc := make(chan result, 1)
	t.work <- func() {
		v, err := fn()
		resc <- result{v, err}
	}
	res := <-resc
	return res.v, res.err
}
