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

// Package event implements the registry's ordered, cross-thread event
// fabric: the hub that a link's subscriber set delivers
// through, and the per-recipient mailbox that keeps delivery ordered
// without ever invoking a user callback while holding the hub's lock.
//
// The fan-out technique mirrors the teacher's blobserver.BlobHub: a
// snapshot of the subscriber set is taken under lock, callbacks run
// outside it. The difference here is that per-link ordering to each
// recipient is a hard requirement, so delivery goes through
// an ordered per-recipient Queue instead of a bare "go func(){ch<-x}()".
package event

import (
	"sync"

	"github.com/linkreg/linkreg/regerr"
)

// Mode is the additive bitmask of link mode and sync-mode flags. It
// lives here, rather than in package link, so that both link
// and syncpeer can reference it without an import cycle.
type Mode uint32

const (
	ModeFolder Mode = 1 << iota
	ModeProvider
	ModeBiDir
	ModePipe
	ModeSave
	ModeThreaded

	// Sync-mode flags: sent to peers on subscribe.
	ModeMonitor
	ModeMaster
	ModeAutoDestroy
)

func (m Mode) Has(flag Mode) bool { return m&flag != 0 }

// Kind identifies what changed.
type Kind int

const (
	ValueChange Kind = iota
	ModeChange
	ChildCreated
	Retired
	MonitorReload
	LinkOwnershipReleased
)

func (k Kind) String() string {
	switch k {
	case ValueChange:
		return "ValueChange"
	case ModeChange:
		return "ModeChange"
	case ChildCreated:
		return "ChildCreated"
	case Retired:
		return "Retired"
	case MonitorReload:
		return "MonitorReload"
	case LinkOwnershipReleased:
		return "LinkOwnershipReleased"
	default:
		return "Unknown"
	}
}

// RetireKind is the scope of a Retired event.
type RetireKind int

const (
	RetireNone RetireKind = iota
	RetireLeafLocal
	RetireLeafGlobal
	RetireTree
)

// Event is one notification traveling through the fabric. Not every
// field is meaningful for every Kind; each field's comment names the
// Kinds that use it.
type Event struct {
	Kind Kind

	// LinkID is the id of the link this event concerns. Delivery to a
	// recipient whose link no longer matches this id is dropped
	// silently by the recipient.
	LinkID uint32
	Path   string // ValueChange, ModeChange, ChildCreated, Retired

	Bytes  []byte // ValueChange: the written value's canonical bytes
	SendID uint64 // ValueChange: a fresh id per write, for echo suppression
	Origin any    // ValueChange: opaque handle/peer that caused the write

	SeqNum    uint64 // ValueChange on a Pipe link: the send sequence number
	HasSeqNum bool

	Mode Mode // ModeChange: the mode bits now set (monotonic-additive)

	Retire RetireKind // Retired

	// Alien marks that this event crossed a thread boundary to reach
	// its recipient, so the handler knows it must re-acquire locks
	// before touching thread-local state.
	Alien bool
}

// MonitorFeed is the seam an external readiness/observability coordinator
// subscribes through: a subtree-scoped stream of structural change
// notifications, distinct from an ordinary handle's value-level
// subscription. registry.Registry implements it.
type MonitorFeed interface {
	// SubscribeSubtree subscribes recv to the links that currently
	// exist under path, until the returned func is called.
	SubscribeSubtree(path string, recv Recipient) (unsubscribe func())
}

// Recipient is anything that can receive events from a Hub. Handles of
// every shape (Basic/Signal/Adaptive) implement it via a Queue (below).
type Recipient interface {
	// RecipientID uniquely identifies this recipient for
	// subscribe/unsubscribe/dedup.
	RecipientID() uint64

	// Alive reports whether the recipient can still accept events. A
	// dead recipient (closed handle) is swept from the hub lazily, at
	// the next Emit.
	Alive() bool

	// Enqueue hands the event to the recipient's mailbox. It must
	// never block for long and must never itself invoke user code —
	// that happens later, when the recipient drains its mailbox.
	Enqueue(Event)
}

// Hub fans an ordered stream of events for one link out to its
// subscriber set. All mutation of the subscriber set, and the snapshot
// step of Emit, happens under hub.mu; no recipient callback ever runs
// while that lock is held.
type Hub struct {
	mu       sync.Mutex
	subs     map[uint64]Recipient
	retired  bool
}

// NewHub returns an empty, live hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]Recipient)}
}

// Subscribe adds r to the hub's subscriber set. It returns false
// without adding r if the hub has been retired.
func (h *Hub) Subscribe(r Recipient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.retired {
		return false
	}
	h.subs[r.RecipientID()] = r
	return true
}

// Unsubscribe removes a recipient. It is idempotent.
func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// Len reports the current subscriber count (for refcounting: a link's
// reference count must stay at least its subscriber count, since a
// live subscriber pins the link).
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Emit enqueues ev to each live subscriber while holding hub.mu, so that
// two Emit calls racing on the same Hub still enqueue in a single
// serialized order per recipient. Dead recipients are dropped from the
// set instead of receiving the event.
func (h *Hub) Emit(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, r := range h.subs {
		if !r.Alive() {
			delete(h.subs, id)
			continue
		}
		r.Enqueue(ev)
	}
}

// Retire marks the hub retired: no further Subscribe calls succeed, but
// already-subscribed recipients keep draining their mailboxes: a
// retired link's children may still drain pending events.
func (h *Hub) Retire() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retired = true
}

// DefaultQueueCapacity bounds a Queue's mailbox. A recipient that falls
// this far behind starts losing events (reported via regerr, kind
// Warning) rather than making Emit block — emission must never wait on
// a slow subscriber.
const DefaultQueueCapacity = 256

// Queue is an ordered, bounded, drop-when-full mailbox: the concrete
// Recipient implementation used by every handle shape. A Basic or
// Signal handle drains it synchronously from its owning goroutine
// (Pull); an Adaptive handle drains it from a background goroutine
// that invokes the user's callbacks (see package handle).
type Queue struct {
	id       uint64
	capacity int

	mu     sync.Mutex
	cond   *sync.Cond
	events []Event
	closed bool
}

// NewQueue returns a Queue identified by id (typically the owning
// handle's own id), bounded by DefaultQueueCapacity.
func NewQueue(id uint64) *Queue {
	return NewQueueWithCapacity(id, DefaultQueueCapacity)
}

// NewQueueWithCapacity is like NewQueue but with an explicit mailbox
// bound, for a recipient (such as a sync peer) that needs a larger
// cushion than an ordinary handle's.
func NewQueueWithCapacity(id uint64, capacity int) *Queue {
	q := &Queue{id: id, capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Queue) RecipientID() uint64 { return q.id }

func (q *Queue) Alive() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.closed
}

func (q *Queue) Enqueue(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if len(q.events) >= q.capacity {
		regerr.Report("event: queue overflow, dropping oldest", regerr.Warning, q)
		q.events = q.events[1:]
	}
	q.events = append(q.events, ev)
	q.cond.Signal()
}

// Pull removes and returns the oldest pending event, in emission order.
// ok is false if the queue is empty.
func (q *Queue) Pull() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return Event{}, false
	}
	ev := q.events[0]
	q.events = q.events[1:]
	return ev, true
}

// Wait blocks until an event is available or the queue is closed, then
// behaves like Pull.
func (q *Queue) Wait() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.events) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.events) == 0 {
		return Event{}, false
	}
	ev := q.events[0]
	q.events = q.events[1:]
	return ev, true
}

// Close marks the queue dead: Alive() becomes false (so the next Emit
// sweeps it from its hub) and any blocked Wait returns.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
