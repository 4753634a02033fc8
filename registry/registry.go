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

// Package registry implements the process-wide link tree: path
// resolution with optional auto-creation, twin pairing, mount-point
// bookkeeping for sync peers, and the cross-thread proxy mechanism for
// Threaded subtrees.
package registry

import (
	"errors"
	"strings"
	"sync"

	"github.com/linkreg/linkreg/event"
	"github.com/linkreg/linkreg/link"
	"github.com/linkreg/linkreg/path"
	"github.com/linkreg/linkreg/regerr"
)

// ErrNotFound is returned by Resolve when a path segment does not exist
// and CreateAllowed was not requested.
var ErrNotFound = errors.New("registry: link not found")

// Flags controls how Resolve treats a path that does not already exist.
type Flags int

const (
	// CreateAllowed creates any missing folder/leaf segment instead of
	// failing. Without it, Resolve only ever looks up existing links.
	CreateAllowed Flags = 1 << iota

	// SilentError suppresses the regerr.Report call a failed resolution
	// would otherwise make (the caller intends to handle the error
	// itself, e.g. a "does this exist" probe).
	SilentError
)

// PeerForwarder is the interface a sync peer exposes to the registry's
// mount bookkeeping. The registry never calls it
// directly — forwarding rides the ordinary event.Recipient mechanism,
// with the peer subscribing to the mounted link like any other handle —
// but Mount/Unmount record which forwarder owns which mount for
// introspection (an "ls" or monitor reply).
type PeerForwarder interface {
	// Describe returns a short, human-readable identity for listings.
	Describe() string
}

// MountRecord is one entry in the registry's mount table.
type MountRecord struct {
	LocalPath string
	PeerPath  string
	Peer      PeerForwarder
}

// DiscoveryFacade is the seam an external service-discovery process
// mounts onto: it learns about this registry's mount table and can
// react to changes in it, without the registry depending on any
// concrete discovery mechanism. No production
// implementation lives in this repo; a consuming process satisfies it.
type DiscoveryFacade interface {
	// Advertise registers localPath as reachable for peerPath-rooted
	// requests from addr, returning a deregistration func.
	Advertise(localPath, peerPath, addr string) (deregister func(), err error)

	// Mounts returns every mount currently advertised.
	Mounts() []MountRecord
}

var _ event.MonitorFeed = (*Registry)(nil)

// Registry owns one link tree.
type Registry struct {
	root       *link.Link
	mainThread *Thread

	mu     sync.Mutex // guards owners and mounts only; link.Link guards its own state
	owners map[uint32]*Thread
	mounts []MountRecord
}

// New returns a fresh registry with just a root folder link. The
// returned registry's MainThread is the conventional owner of every
// link that is not explicitly bound to some other Thread via
// BindThread.
func New() *Registry {
	return &Registry{
		root:       link.NewRoot(),
		mainThread: NewThread(),
		owners:     make(map[uint32]*Thread),
	}
}

// MainThread returns the registry's default owning thread.
func (r *Registry) MainThread() *Thread { return r.mainThread }

// Root returns the registry's root link.
func (r *Registry) Root() *link.Link { return r.root }

func (r *Registry) ownerOf(l *link.Link) *Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.owners[l.ID()]; ok {
		return t
	}
	return r.mainThread
}

// BindThread marks the link at path (creating it if needed) as
// Threaded and owned by t: every subsequent call on it or its
// descendants from a different caller Thread is proxied onto t.
func (r *Registry) BindThread(caller *Thread, subtreePath string, t *Thread) error {
	l, err := r.Resolve(caller, subtreePath, CreateAllowed)
	if err != nil {
		return err
	}
	l.SetMode(event.ModeThreaded)
	r.mu.Lock()
	r.owners[l.ID()] = t
	r.mu.Unlock()
	return nil
}

// UnbindThread releases the link at subtreePath from its Threaded
// owner, reverting it to MainThread and emitting LinkOwnershipReleased
// so anything watching the subtree (a monitor, a reassignment
// coordinator) learns the hand-off happened. The ModeThreaded bit is
// left set, same as every other mode flag: mode is monotonic-additive,
// it never reports that a link stops requiring single-owner access.
func (r *Registry) UnbindThread(caller *Thread, subtreePath string) error {
	l, err := r.Resolve(caller, subtreePath, SilentError)
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.owners, l.ID())
	r.mu.Unlock()
	l.Hub().Emit(event.Event{Kind: event.LinkOwnershipReleased, LinkID: l.ID(), Path: l.Path()})
	return nil
}

// SubscribeSubtree implements event.MonitorFeed: recv is subscribed to
// every link already reachable under path, live. A caller must also
// forward every ChildCreated event it receives on that subscription to
// ExtendSubtree, so a link created after this call still reaches recv —
// ChildCreated bubbles to every ancestor (link.Link.AddChild), so the
// subtree's root always sees it, but recv only starts receiving that new
// link's own ValueChange/ModeChange/Retired traffic once ExtendSubtree
// subscribes it there directly.
func (r *Registry) SubscribeSubtree(path string, recv event.Recipient) (unsubscribe func()) {
	root, err := r.Resolve(nil, path, CreateAllowed)
	if err != nil {
		return func() {}
	}
	var subscribed []*link.Link
	var walk func(*link.Link)
	walk = func(l *link.Link) {
		l.Subscribe(recv)
		subscribed = append(subscribed, l)
		for _, c := range l.Children() {
			walk(c)
		}
	}
	walk(root)
	return func() {
		for _, l := range subscribed {
			l.Hub().Unsubscribe(recv.RecipientID())
		}
	}
}

// ExtendSubtree subscribes recv to the link a ChildCreated event names.
// Callers drive this from their own event-drain loop for every event
// received on a subscription obtained from SubscribeSubtree; events of
// any other Kind are ignored.
func (r *Registry) ExtendSubtree(ev event.Event, recv event.Recipient) {
	if ev.Kind != event.ChildCreated {
		return
	}
	l, err := r.Resolve(nil, ev.Path, SilentError)
	if err != nil {
		return
	}
	l.Subscribe(recv)
}

// proxy runs fn as though executing on l's owning thread: directly, if
// caller already is that thread (or no caller was supplied, i.e. the
// call is coming from outside any modeled thread and is trusted to be
// serialized by some other means); proxied through the owner's work
// queue otherwise.
func proxy[T any](r *Registry, caller *Thread, l *link.Link, fn func() (T, error)) (T, error) {
	owner := r.ownerOf(l)
	if caller == nil || caller == owner {
		return fn()
	}
	return run(owner, fn)
}

// Resolve walks p from the root, optionally auto-creating missing
// segments, and returns the link it names. Each step is proxied onto
// the owning thread of the link being descended from, so a resolution
// that crosses into a Threaded subtree is serialized with that
// subtree's other traffic exactly like any other mutating call.
func (r *Registry) Resolve(caller *Thread, p string, flags Flags) (*link.Link, error) {
	np, err := path.Normalize(p)
	if err != nil {
		r.reportFail(err, flags, p)
		return nil, err
	}
	segs, folder, err := path.Segments(np)
	if err != nil {
		r.reportFail(err, flags, p)
		return nil, err
	}
	if len(segs) == 0 {
		return r.root, nil
	}

	cur := r.root
	built := ""
	for i, seg := range segs {
		isLast := i == len(segs)-1
		childFolder := !isLast || folder
		provider := false
		name := seg
		if !childFolder && strings.HasSuffix(seg, "!") {
			provider = true
			name = strings.TrimSuffix(seg, "!")
		}
		if built == "" {
			built = "/" + seg
		} else {
			built = built + "/" + seg
		}
		childPath := built
		if childFolder {
			childPath += "/"
		}

		next, err := r.descend(caller, cur, name, provider, childFolder, childPath, flags)
		if err != nil {
			r.reportFail(err, flags, p)
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func (r *Registry) reportFail(err error, flags Flags, p string) {
	if flags&SilentError != 0 {
		return
	}
	regerr.Report("registry: resolve "+p+": "+err.Error(), regerr.NotFound, p)
}

func (r *Registry) descend(caller *Thread, parent *link.Link, name string, provider, folder bool, childPath string, flags Flags) (*link.Link, error) {
	return proxy(r, caller, parent, func() (*link.Link, error) {
		if existing := parent.FindChild(name, provider); existing != nil {
			return existing, nil
		}
		if flags&CreateAllowed == 0 {
			return nil, ErrNotFound
		}
		child := link.New(parent, name, childPath, folder, provider)
		parent.AddChild(child)
		if !folder && provider {
			r.ensureTwin(caller, parent, name, childPath)
		}
		return child, nil
	})
}

// ensureTwin creates (if absent) the request-side sibling of a newly
// created provider-side leaf and links the two as twins, both carrying
// BiDir.
func (r *Registry) ensureTwin(caller *Thread, parent *link.Link, name, providerPath string) {
	requestPath, err := path.Twin(providerPath)
	if err != nil {
		return
	}
	req := parent.FindChild(name, false)
	if req == nil {
		req = link.New(parent, name, requestPath, false, false)
		parent.AddChild(req)
	}
	prov := parent.FindChild(name, true)
	if prov != nil && req.Twin() == nil {
		link.LinkTwins(req, prov)
	}
}

// SetBiDir explicitly twins the link at p (which may already exist
// without a provider mark) with its provider-side counterpart, creating
// the counterpart if needed, and returns both links.
func (r *Registry) SetBiDir(caller *Thread, p string) (request, provider *link.Link, err error) {
	np, err := path.Normalize(p)
	if err != nil {
		return nil, nil, err
	}
	reqPath, err := path.WithProvider(np, false)
	if err != nil {
		return nil, nil, err
	}
	provPath, err := path.WithProvider(np, true)
	if err != nil {
		return nil, nil, err
	}
	req, err := r.Resolve(caller, reqPath, CreateAllowed)
	if err != nil {
		return nil, nil, err
	}
	prov, err := r.Resolve(caller, provPath, CreateAllowed)
	if err != nil {
		return nil, nil, err
	}
	if req.Twin() == nil {
		link.LinkTwins(req, prov)
	}
	return req, prov, nil
}

// DestroyLink retires the link at p. global selects whether the
// retirement should be treated as a global or merely local tear-down;
// neither affects whether descendants cascade, which is always
// Tree-scoped.
func (r *Registry) DestroyLink(caller *Thread, p string, global bool) error {
	l, err := r.Resolve(caller, p, SilentError)
	if err != nil {
		return err
	}
	kind := event.RetireLeafLocal
	if global {
		kind = event.RetireLeafGlobal
	}
	_, err = proxy(r, caller, l, func() (struct{}, error) {
		l.Retire(kind)
		return struct{}{}, nil
	})
	return err
}

// Mount records that localPath is being served from peerPath on the far
// side of peer. The registry does not itself move events across the
// mount — the peer subscribes to the local link's hub directly, the
// same way any handle would — this only keeps the bookkeeping an "ls"
// or monitor listing needs.
func (r *Registry) Mount(localPath, peerPath string, peer PeerForwarder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mounts = append(r.mounts, MountRecord{LocalPath: localPath, PeerPath: peerPath, Peer: peer})
}

// Unmount removes every mount record owned by peer rooted at localPath.
func (r *Registry) Unmount(localPath string, peer PeerForwarder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.mounts[:0]
	for _, m := range r.mounts {
		if m.LocalPath == localPath && m.Peer == peer {
			continue
		}
		out = append(out, m)
	}
	r.mounts = out
}

// Mounts returns a snapshot of every mount record rooted at or below p.
func (r *Registry) Mounts(p string) []MountRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MountRecord, 0, len(r.mounts))
	for _, m := range r.mounts {
		if path.IsDescendantOf(p, m.LocalPath) {
			out = append(out, m)
		}
	}
	return out
}
