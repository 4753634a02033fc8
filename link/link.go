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

// Package link implements the tree node at the center of the registry:
// a named slot with a parent, children, an optional twin, a value cell,
// additive mode flags, a retirement state machine and refcount, and the
// event hub its subscribers drain.
//
// The fan-out side is delegated to package event (grounded on the
// teacher's blobserver.BlobHub); link itself owns only tree structure
// and the write-then-notify sequencing for a cell's value changes.
package link

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/linkreg/linkreg/event"
	"github.com/linkreg/linkreg/value"
	"github.com/linkreg/linkreg/wire"
)

var (
	// ErrRetired is returned by any mutating call on a link that has
	// already begun retiring.
	ErrRetired = errors.New("link: retired")

	// ErrNotValue is returned by value operations on a folder link,
	// which has no cell.
	ErrNotValue = errors.New("link: folder link carries no value")
)

var nextID atomic.Uint32

func allocID() uint32 { return nextID.Add(1) }

var nextSendID atomic.Uint64

// NextSendID returns a fresh, process-wide unique id for a write's
// ValueChange event, used by sync peers for echo suppression.
func NextSendID() uint64 { return nextSendID.Add(1) }

// WriteOpts controls a value-setting call.
type WriteOpts struct {
	// SuppressEqual, when true, skips the write (and the resulting
	// event) if the new value is identical in type and canonical bytes
	// to the cell's current value. Ignored on a Pipe-mode link, where
	// every write is a discrete message.
	SuppressEqual bool

	// Origin is carried on the resulting event unchanged, so a sync
	// peer can recognize and drop its own echo.
	Origin any
}

// Link is one node of the registry tree.
type Link struct {
	id     uint32
	name   string
	path   string
	folder bool

	mu       sync.Mutex
	parent   *Link
	children []*Link
	twin     *Link
	cell     *value.Cell
	mode     event.Mode
	retire   event.RetireKind
	refCount int
	zeroGen  uint64
	pipeSeq  uint64

	hub *event.Hub
}

// NewRoot constructs the registry's root folder link, with id 0 and path
// "/". It is never retired by ordinary traffic; the registry pins it for
// the process lifetime.
func NewRoot() *Link {
	l := &Link{
		id:     0,
		name:   "",
		path:   "/",
		folder: true,
		mode:   event.ModeFolder,
		hub:    event.NewHub(),
	}
	l.refCount = 1
	return l
}

// New constructs a child link named name under parent. folder and
// provider determine whether it is a folder (no cell) and, if not,
// which polarity of a potential twin pair it is. path is the child's
// full canonical path, computed by the caller (package registry), which
// alone knows how to walk and join path segments.
func New(parent *Link, name, path string, folder, provider bool) *Link {
	l := &Link{
		id:     allocID(),
		name:   name,
		path:   path,
		folder: folder,
		parent: parent,
		hub:    event.NewHub(),
	}
	if folder {
		l.mode = event.ModeFolder
	} else {
		l.cell = value.New()
		if provider {
			l.mode = event.ModeProvider
		}
	}
	return l
}

func (l *Link) ID() uint32 { return l.id }
func (l *Link) Name() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.name
}
func (l *Link) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}
func (l *Link) IsFolder() bool { return l.folder }

func (l *Link) Mode() event.Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

func (l *Link) IsProvider() bool { return l.Mode().Has(event.ModeProvider) }

// RetireState reports the link's current retirement state.
func (l *Link) RetireState() event.RetireKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.retire
}

// Parent returns the link's parent, or nil at the root.
func (l *Link) Parent() *Link {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.parent
}

// Children returns a snapshot of the link's current children.
func (l *Link) Children() []*Link {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Link, len(l.children))
	copy(out, l.children)
	return out
}

// FindChild returns the existing child named name with the requested
// provider polarity, or nil if there is none.
func (l *Link) FindChild(name string, provider bool) *Link {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.children {
		if c.name == name && c.IsProvider() == provider {
			return c
		}
	}
	return nil
}

// AddChild links child under l, bumps l's refcount to reflect the new
// structural reference, and emits ChildCreated on l's own hub and every
// ancestor's, mirroring SetMode's ancestor walk — a mount point or
// monitor subscribed anywhere above l learns about the addition without
// having to poll the tree.
func (l *Link) AddChild(child *Link) {
	l.mu.Lock()
	l.children = append(l.children, child)
	l.refCount++
	l.mu.Unlock()

	ev := event.Event{Kind: event.ChildCreated, LinkID: child.id, Path: child.path}
	l.hub.Emit(ev)
	for anc := l.Parent(); anc != nil; anc = anc.Parent() {
		anc.hub.Emit(ev)
	}
}

// Twin returns the link's bidirectional counterpart, or nil if none has
// been created yet.
func (l *Link) Twin() *Link {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.twin
}

// LinkTwins records that a and b are each other's provider/request
// counterpart and marks both BiDir. Called once, by the registry, at
// first resolution of a path carrying a provider mark.
func LinkTwins(a, b *Link) {
	a.mu.Lock()
	a.twin = b
	a.mode |= event.ModeBiDir
	a.mu.Unlock()

	b.mu.Lock()
	b.twin = a
	b.mode |= event.ModeBiDir
	b.mu.Unlock()
}

// Hub exposes the link's event hub for subscription by handles and sync
// peers.
func (l *Link) Hub() *event.Hub { return l.hub }

// Subscribe registers r to receive this link's events. It fails once the
// link has begun retiring.
func (l *Link) Subscribe(r event.Recipient) bool { return l.hub.Subscribe(r) }

// SetMode additively sets the given flags (mode bits never clear once
// set) and, if any new bit was actually set, emits a ModeChange
// both on this link's own hub and on every ancestor's hub, so a mount
// point higher up learns about a newly exposed descendant.
// It returns the bits that were newly set (zero if add was already a
// subset of the current mode, or the link is retired).
func (l *Link) SetMode(add event.Mode) event.Mode {
	if add.Has(event.ModePipe) {
		add |= event.ModeBiDir
	}
	l.mu.Lock()
	if l.retire != event.RetireNone {
		l.mu.Unlock()
		return 0
	}
	newBits := add &^ l.mode
	l.mode |= add
	full := l.mode
	path := l.path
	id := l.id
	l.mu.Unlock()

	if newBits == 0 {
		return 0
	}

	ev := event.Event{Kind: event.ModeChange, LinkID: id, Path: path, Mode: full}
	l.hub.Emit(ev)
	for anc := l.Parent(); anc != nil; anc = anc.Parent() {
		anc.hub.Emit(ev)
	}
	return newBits
}

// Cell returns the link's value cell, or nil on a folder link.
func (l *Link) Cell() *value.Cell { return l.cell }

func (l *Link) writeCell(typ value.Type, raw []byte, apply func(*value.Cell), opts WriteOpts) (bool, error) {
	l.mu.Lock()
	if l.retire != event.RetireNone {
		l.mu.Unlock()
		return false, ErrRetired
	}
	if l.cell == nil {
		l.mu.Unlock()
		return false, ErrNotValue
	}
	pipeMode := l.mode.Has(event.ModePipe)
	if opts.SuppressEqual && !pipeMode && l.cell.SameAs(typ, raw) {
		l.mu.Unlock()
		return false, nil
	}
	apply(l.cell)

	var seq uint64
	hasSeq := false
	if pipeMode {
		l.pipeSeq++
		seq = l.pipeSeq
		hasSeq = true
	}
	bytes, _ := l.cell.ToBytes()
	id := l.id
	p := l.path
	l.mu.Unlock()

	l.hub.Emit(event.Event{
		Kind:      event.ValueChange,
		LinkID:    id,
		Path:      p,
		Bytes:     bytes,
		SendID:    NextSendID(),
		Origin:    opts.Origin,
		SeqNum:    seq,
		HasSeqNum: hasSeq,
	})
	return true, nil
}

func canonicalBytes(set func(*value.Cell)) []byte {
	tmp := value.New()
	set(tmp)
	raw, _ := tmp.ToBytes()
	return raw
}

func (l *Link) SetInt(v int64, opts WriteOpts) (bool, error) {
	raw := canonicalBytes(func(c *value.Cell) { c.SetInt(v) })
	return l.writeCell(value.Int, raw, func(c *value.Cell) { c.SetInt(v) }, opts)
}

func (l *Link) SetReal(v float64, opts WriteOpts) (bool, error) {
	raw := canonicalBytes(func(c *value.Cell) { c.SetReal(v) })
	return l.writeCell(value.Real, raw, func(c *value.Cell) { c.SetReal(v) }, opts)
}

func (l *Link) SetText(v string, opts WriteOpts) (bool, error) {
	return l.writeCell(value.Text, []byte(v), func(c *value.Cell) { c.SetText(v) }, opts)
}

func (l *Link) SetBytes(v []byte, opts WriteOpts) (bool, error) {
	return l.writeCell(value.Bytes, v, func(c *value.Cell) { c.SetBytes(v) }, opts)
}

func (l *Link) SetVariant(v *wire.Map, opts WriteOpts) (bool, error) {
	raw := canonicalBytes(func(c *value.Cell) { c.SetVariant(v) })
	return l.writeCell(value.Variant, raw, func(c *value.Cell) { c.SetVariant(v) }, opts)
}

func (l *Link) SetNull(opts WriteOpts) (bool, error) {
	return l.writeCell(value.Null, nil, func(c *value.Cell) { c.SetNull() }, opts)
}

// IncRef bumps the link's reference count (a handle open, a sync-peer
// subscribe, or a structural child link all pin it this way).
func (l *Link) IncRef() {
	l.mu.Lock()
	l.refCount++
	l.mu.Unlock()
}

// DecRef releases one reference. If the link has begun retiring and this
// was its last reference, it is unlinked from its parent.
func (l *Link) DecRef() {
	l.mu.Lock()
	l.refCount--
	retired := l.retire != event.RetireNone
	l.mu.Unlock()
	if retired {
		l.tryUnlink()
	}
}

// RefCount reports the link's current reference count.
func (l *Link) RefCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refCount
}

// Retire begins retirement with the given scope. It is idempotent: a
// link already retiring ignores a second call. Retirement cascades to
// every existing child as RetireTree, regardless of the scope requested
// on this link, and attempts to unlink the subtree immediately if it is
// already unreferenced.
func (l *Link) Retire(kind event.RetireKind) {
	l.mu.Lock()
	if l.retire != event.RetireNone {
		l.mu.Unlock()
		return
	}
	l.retire = kind
	l.hub.Retire()
	path := l.path
	id := l.id
	kids := make([]*Link, len(l.children))
	copy(kids, l.children)
	l.mu.Unlock()

	l.hub.Emit(event.Event{Kind: event.Retired, LinkID: id, Path: path, Retire: kind})

	for _, c := range kids {
		c.Retire(event.RetireTree)
	}
	l.tryUnlink()
}

// DestroyLink retires l directly, bypassing any registry-level thread
// proxying (a handle already operates on its link without one). global
// selects RetireLeafGlobal over RetireLeafLocal; descendants always
// cascade as RetireTree regardless.
func (l *Link) DestroyLink(global bool) {
	kind := event.RetireLeafLocal
	if global {
		kind = event.RetireLeafGlobal
	}
	l.Retire(kind)
}

// tryUnlink removes l from its parent's child list once it is both
// retired and unreferenced (refcount zero, no remaining children). Two
// consecutive zero-ref observations at the same generation counter are
// required, so a reference taken concurrently between the first check
// and the actual unlink aborts the attempt instead of racing it.
func (l *Link) tryUnlink() {
	l.mu.Lock()
	if l.retire == event.RetireNone {
		l.mu.Unlock()
		return
	}
	if l.refCount > 0 || len(l.children) > 0 {
		l.mu.Unlock()
		return
	}
	l.zeroGen++
	gen := l.zeroGen
	l.mu.Unlock()

	l.mu.Lock()
	stillZero := l.refCount == 0 && len(l.children) == 0 && l.zeroGen == gen
	parent := l.parent
	l.mu.Unlock()
	if !stillZero || parent == nil {
		return
	}
	parent.removeChild(l)
}

func (l *Link) removeChild(child *Link) {
	l.mu.Lock()
	for i, c := range l.children {
		if c == child {
			l.children = append(l.children[:i], l.children[i+1:]...)
			l.refCount--
			break
		}
	}
	wasEmpty := len(l.children) == 0
	retired := l.retire != event.RetireNone
	l.mu.Unlock()
	if wasEmpty && retired {
		l.tryUnlink()
	}
}
