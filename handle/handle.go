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

// Package handle implements the three client-facing handle shapes a
// caller opens onto a link: Basic (poll/drain on the caller's own
// goroutine), Signal (like Basic, but each explicit Pump call hands the
// drained events to a registered callback), and Adaptive (callbacks
// invoked from a private background goroutine, so the caller never
// drives delivery itself). All three share Queue-based delivery from
// package event and the same open/close/typed-accessor contract.
package handle

import (
	"sync"
	"sync/atomic"

	"github.com/linkreg/linkreg/event"
	"github.com/linkreg/linkreg/link"
	"github.com/linkreg/linkreg/wire"
)

var nextHandleID atomic.Uint64

func allocID() uint64 { return nextHandleID.Add(1) }

// base is the shared state and accessor surface of every handle shape.
type base struct {
	id     uint64
	link   *link.Link
	linkID uint32
	path   string
	queue  *event.Queue
	closed atomic.Bool

	refMu sync.Mutex
	ref   interface{}
}

func newBase(l *link.Link) base {
	id := allocID()
	return base{id: id, link: l, linkID: l.ID(), path: l.Path(), queue: event.NewQueue(id)}
}

// ID returns the handle's own recipient id (stable for its lifetime).
func (b *base) ID() uint64 { return b.id }

// ItemID is an alias for ID, matching the public handle contract's
// naming for the handle's own identity as distinct from LinkID.
func (b *base) ItemID() uint64 { return b.id }

// LinkID returns the id of the link this handle is open on.
func (b *base) LinkID() uint32 { return b.linkID }

// Mode returns the link's current mode flags, or 0 once the handle has
// been closed.
func (b *base) Mode() event.Mode {
	if b.closed.Load() {
		return 0
	}
	return b.link.Mode()
}

// RefCount returns the underlying link's reference count, or 0 once the
// handle has been closed.
func (b *base) RefCount() int {
	if b.closed.Load() {
		return 0
	}
	return b.link.RefCount()
}

// Path returns the path the handle was opened on.
func (b *base) Path() string { return b.path }

// Reference returns the opaque value last installed by SetReference, or
// nil if none has been. It carries no meaning to the handle itself —
// callers use it to attach their own context (an error-log callback
// argument, a correlation id) to a specific open handle.
func (b *base) Reference() interface{} {
	b.refMu.Lock()
	defer b.refMu.Unlock()
	return b.ref
}

// SetReference installs an opaque reference value on the handle.
func (b *base) SetReference(ref interface{}) {
	b.refMu.Lock()
	b.ref = ref
	b.refMu.Unlock()
}

func (b *base) open() {
	b.link.IncRef()
	b.link.Subscribe(b.queue)
}

// Close releases the handle: it stops receiving events and drops its
// reference on the underlying link. Close is idempotent. Once closed,
// every Get accessor returns the type's zero value with ok=false and
// every Set accessor is silently discarded.
func (b *base) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.queue.Close()
	b.link.Hub().Unsubscribe(b.id)
	b.link.DecRef()
	b.link = nil
}

// DestroyLink retires the underlying link (global selects
// RetireLeafGlobal over RetireLeafLocal), or is a no-op if the handle
// is already closed.
func (b *base) DestroyLink(global bool) {
	if b.closed.Load() {
		return
	}
	b.link.DestroyLink(global)
}

// typed value accessors, identical across all three shapes: they read
// and write straight through to the link's cell, with the handle
// contributing only its own identity as the write's Origin (so an
// echoing sync peer can recognize and drop its own write). Every one
// of them honors the closed-handle contract above.

func (b *base) Int() (int64, bool) {
	if b.closed.Load() {
		return 0, false
	}
	return b.link.Cell().ToInt()
}
func (b *base) Real() (float64, bool) {
	if b.closed.Load() {
		return 0, false
	}
	return b.link.Cell().ToReal()
}
func (b *base) Text() (string, bool) {
	if b.closed.Load() {
		return "", false
	}
	return b.link.Cell().ToText()
}
func (b *base) Bytes() ([]byte, bool) {
	if b.closed.Load() {
		return nil, false
	}
	return b.link.Cell().ToBytes()
}
func (b *base) Variant() (*wire.Map, bool) {
	if b.closed.Load() {
		return nil, false
	}
	return b.link.Cell().ToVariant()
}

// Export renders the link's current value as a tagged binary blob (see
// value.Cell.Export), or returns nil with no error once the handle is
// closed.
func (b *base) Export() ([]byte, error) {
	if b.closed.Load() {
		return nil, nil
	}
	return b.link.Cell().Export()
}

// Import parses a blob produced by Export and writes the value it
// describes to the link, or is silently discarded once the handle is
// closed.
func (b *base) Import(data []byte) error {
	if b.closed.Load() {
		return nil
	}
	return b.link.Cell().Import(data)
}

func (b *base) SetInt(v int64, suppressEqual bool) (bool, error) {
	if b.closed.Load() {
		return false, nil
	}
	return b.link.SetInt(v, link.WriteOpts{SuppressEqual: suppressEqual, Origin: b})
}
func (b *base) SetReal(v float64, suppressEqual bool) (bool, error) {
	if b.closed.Load() {
		return false, nil
	}
	return b.link.SetReal(v, link.WriteOpts{SuppressEqual: suppressEqual, Origin: b})
}
func (b *base) SetText(v string, suppressEqual bool) (bool, error) {
	if b.closed.Load() {
		return false, nil
	}
	return b.link.SetText(v, link.WriteOpts{SuppressEqual: suppressEqual, Origin: b})
}
func (b *base) SetBytes(v []byte, suppressEqual bool) (bool, error) {
	if b.closed.Load() {
		return false, nil
	}
	return b.link.SetBytes(v, link.WriteOpts{SuppressEqual: suppressEqual, Origin: b})
}
func (b *base) SetVariant(v *wire.Map, suppressEqual bool) (bool, error) {
	if b.closed.Load() {
		return false, nil
	}
	return b.link.SetVariant(v, link.WriteOpts{SuppressEqual: suppressEqual, Origin: b})
}

// Basic is a handle whose owner drains events explicitly by calling
// Poll or Wait, typically from the same goroutine that opened it.
type Basic struct{ base }

// OpenBasic opens a Basic handle on l.
func OpenBasic(l *link.Link) *Basic {
	h := &Basic{base: newBase(l)}
	h.open()
	return h
}

// Poll returns the next pending event without blocking. ok is false if
// none is pending.
func (h *Basic) Poll() (event.Event, bool) { return h.queue.Pull() }

// Wait blocks until an event is available or the handle is closed.
func (h *Basic) Wait() (event.Event, bool) { return h.queue.Wait() }

// Signal is a handle that dispatches events to a registered callback
// the caller drives by repeatedly calling Pump (observer-pattern
// delivery), as opposed to Adaptive's private goroutine.
type Signal struct {
	base
	mu sync.Mutex
	cb func(event.Event)
}

// OpenSignal opens a Signal handle on l with the given callback.
func OpenSignal(l *link.Link, cb func(event.Event)) *Signal {
	h := &Signal{base: newBase(l), cb: cb}
	h.open()
	return h
}

// Pump drains every currently pending event through the callback,
// returning the count delivered. The caller is responsible for calling
// it (e.g. from a UI event loop tick); Signal never spawns a goroutine
// of its own.
func (h *Signal) Pump() int {
	n := 0
	for {
		ev, ok := h.queue.Pull()
		if !ok {
			return n
		}
		h.mu.Lock()
		cb := h.cb
		h.mu.Unlock()
		if cb != nil {
			cb(ev)
		}
		n++
	}
}

// SetCallback replaces the callback invoked by Pump.
func (h *Signal) SetCallback(cb func(event.Event)) {
	h.mu.Lock()
	h.cb = cb
	h.mu.Unlock()
}

// Adaptive is a handle whose callback runs on its own background
// goroutine: the caller never drives delivery, and the callback may be
// invoked concurrently with any other goroutine's access to the handle.
type Adaptive struct {
	base
	mu sync.Mutex
	cb func(event.Event)
}

// OpenAdaptive opens an Adaptive handle on l and starts its delivery
// goroutine.
func OpenAdaptive(l *link.Link, cb func(event.Event)) *Adaptive {
	h := &Adaptive{base: newBase(l), cb: cb}
	h.open()
	go h.loop()
	return h
}

func (h *Adaptive) loop() {
	for {
		ev, ok := h.queue.Wait()
		if !ok {
			return
		}
		h.mu.Lock()
		cb := h.cb
		h.mu.Unlock()
		if cb != nil {
			cb(ev)
		}
	}
}

// SetCallback replaces the callback invoked for subsequent events. Safe
// to call from any goroutine, including from within the callback
// itself.
func (h *Adaptive) SetCallback(cb func(event.Event)) {
	h.mu.Lock()
	h.cb = cb
	h.mu.Unlock()
}

// Close stops the delivery goroutine in addition to the base behavior.
func (h *Adaptive) Close() {
	h.base.Close()
}
