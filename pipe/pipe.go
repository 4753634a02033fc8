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

// Package pipe implements the registry's sequence-numbered, ordered
// discrete-message stream on top of a Pipe-mode link: gap
// detection on the receiving side, and regex-coalescing outbound
// mailboxes for the peers that relay a pipe's traffic over the wire.
package pipe

import (
	"regexp"
	"sync"

	"github.com/google/uuid"
	"github.com/linkreg/linkreg/event"
	"github.com/linkreg/linkreg/link"
	"github.com/linkreg/linkreg/registry"
)

// Factory creates anonymous, uniquely-named Pipe-mode links, the way a
// caller asks for "a pipe, I don't care what it's called".
// Names are minted under pipe/<uuid> so two factories sharing a
// registry never collide.
type Factory struct {
	reg *registry.Registry
}

// NewFactory returns a Factory that creates pipes under the given
// registry.
func NewFactory(reg *registry.Registry) *Factory {
	return &Factory{reg: reg}
}

// Create resolves (creating) a fresh pipe link and marks it Pipe-mode
// (which also implies BiDir, per link.SetMode).
func (f *Factory) Create(caller *registry.Thread) (*link.Link, error) {
	name := "pipe/" + uuid.NewString()
	l, err := f.reg.Resolve(caller, "/"+name, registry.CreateAllowed)
	if err != nil {
		return nil, err
	}
	l.SetMode(event.ModePipe)
	return l, nil
}

// Message is one outbound pipe payload, carrying the sequence number it
// was written with, if the link tracks one.
type Message struct {
	Bytes  []byte
	Seq    uint64
	HasSeq bool
}

// SendQueue is the per-peer outbound mailbox for a pipe's traffic. Push
// optionally coalesces: if overwriteRegex is non-nil and matches an
// already-queued message's Bytes, that message is replaced in place
// instead of appending a new one, bounding the mailbox's growth for a
// peer that cannot keep up with a high-frequency pipe.
type SendQueue struct {
	mu    sync.Mutex
	items []Message
}

// NewSendQueue returns an empty send queue.
func NewSendQueue() *SendQueue { return &SendQueue{} }

// Push enqueues msg, coalescing against the first existing entry whose
// Bytes match overwriteRegex, if given.
func (q *SendQueue) Push(msg Message, overwriteRegex *regexp.Regexp) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if overwriteRegex != nil {
		for i, existing := range q.items {
			if overwriteRegex.Match(existing.Bytes) {
				q.items[i] = msg
				return
			}
		}
	}
	q.items = append(q.items, msg)
}

// PopAll drains and returns every queued message, in push order.
func (q *SendQueue) PopAll() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len reports the number of messages currently queued.
func (q *SendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// GapDetector tracks the last sequence number observed on one pipe link
// from one sender and flags a discontinuity.
type GapDetector struct {
	mu   sync.Mutex
	last uint64
	have bool
}

// Check records seq and reports whether it represents a gap (not
// exactly one more than the previous sequence number observed). The
// first call never reports a gap.
func (g *GapDetector) Check(seq uint64) (gap bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.have {
		g.have = true
		g.last = seq
		return false
	}
	gap = seq != g.last+1
	g.last = seq
	return gap
}

// Reset forgets any previously observed sequence number, so the next
// Check never reports a gap — used when a pipe's sender reconnects and
// its sequence numbering necessarily restarts.
func (g *GapDetector) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.have = false
}
