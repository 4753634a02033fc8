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
	"errors"
	"testing"

	"github.com/linkreg/linkreg/event"
	"github.com/linkreg/linkreg/link"
)

func TestResolveCreatesIntermediateFolders(t *testing.T) {
	r := New()
	l, err := r.Resolve(nil, "/a/b/c", CreateAllowed)
	if err != nil {
		t.Fatal(err)
	}
	if l.Path() != "/a/b/c" || l.IsFolder() {
		t.Fatalf("unexpected leaf link: path=%q folder=%v", l.Path(), l.IsFolder())
	}

	mid, err := r.Resolve(nil, "/a/b/", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !mid.IsFolder() {
		t.Fatal("/a/b/ should have been auto-created as a folder")
	}
}

func TestResolveWithoutCreateFails(t *testing.T) {
	r := New()
	_, err := r.Resolve(nil, "/missing", SilentError)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	r := New()
	a, err := r.Resolve(nil, "/x/y", CreateAllowed)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Resolve(nil, "/x/y", CreateAllowed)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("resolving the same path twice should return the same link")
	}
}

func TestResolveProviderAutoCreatesTwin(t *testing.T) {
	r := New()
	prov, err := r.Resolve(nil, "/svc!", CreateAllowed)
	if err != nil {
		t.Fatal(err)
	}
	req, err := r.Resolve(nil, "/svc", 0)
	if err != nil {
		t.Fatal(err)
	}
	if req.Twin() != prov || prov.Twin() != req {
		t.Fatal("resolving a provider path should auto-create and twin its request-side sibling")
	}
	if !req.Mode().Has(event.ModeBiDir) || !prov.Mode().Has(event.ModeBiDir) {
		t.Fatal("auto-twinned links should carry BiDir")
	}
}

func TestSetBiDirExplicit(t *testing.T) {
	r := New()
	req, prov, err := r.SetBiDir(nil, "/svc")
	if err != nil {
		t.Fatal(err)
	}
	if req.Twin() != prov {
		t.Fatal("SetBiDir should twin the two links")
	}
}

func TestDestroyLinkThenResolveWithCreateGetsFreshID(t *testing.T) {
	r := New()
	first, err := r.Resolve(nil, "/gone", CreateAllowed)
	if err != nil {
		t.Fatal(err)
	}
	firstID := first.ID()

	if err := r.DestroyLink(nil, "/gone", true); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve(nil, "/gone", SilentError); !errors.Is(err, ErrNotFound) {
		t.Fatal("destroyed link should no longer resolve without CreateAllowed")
	}

	second, err := r.Resolve(nil, "/gone", CreateAllowed)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID() == firstID {
		t.Fatal("re-creating a destroyed path should allocate a fresh link id")
	}
}

func TestBindThreadProxiesForeignCallers(t *testing.T) {
	r := New()
	owner := NewThread()
	defer owner.Stop()

	if err := r.BindThread(nil, "/worker/", owner); err != nil {
		t.Fatal(err)
	}

	foreign := NewThread()
	defer foreign.Stop()

	l, err := r.Resolve(foreign, "/worker/x", CreateAllowed)
	if err != nil {
		t.Fatal(err)
	}
	if l.Path() != "/worker/x" {
		t.Fatalf("unexpected path %q", l.Path())
	}

	same, err := r.Resolve(owner, "/worker/x", 0)
	if err != nil {
		t.Fatal(err)
	}
	if same != l {
		t.Fatal("owner-thread resolve should see the same link a proxied foreign call created")
	}
}

func TestMountBookkeeping(t *testing.T) {
	r := New()
	peer := fakePeer{"peer-a"}
	r.Mount("/mnt/remote", "/remote", peer)
	if got := r.Mounts("/mnt"); len(got) != 1 {
		t.Fatalf("expected 1 mount under /mnt, got %d", len(got))
	}
	r.Unmount("/mnt/remote", peer)
	if got := r.Mounts("/mnt"); len(got) != 0 {
		t.Fatalf("expected mount to be removed, got %d", len(got))
	}
}

func TestUnbindThreadReleasesOwnership(t *testing.T) {
	r := New()
	owner := NewThread()
	defer owner.Stop()

	if err := r.BindThread(nil, "/worker/", owner); err != nil {
		t.Fatal(err)
	}
	l, err := r.Resolve(nil, "/worker/", 0)
	if err != nil {
		t.Fatal(err)
	}

	q := event.NewQueue(1)
	l.Subscribe(q)

	if err := r.UnbindThread(nil, "/worker/"); err != nil {
		t.Fatal(err)
	}
	if ev, ok := q.Pull(); !ok || ev.Kind != event.LinkOwnershipReleased {
		t.Fatalf("expected LinkOwnershipReleased, got %+v, ok=%v", ev, ok)
	}
	if r.ownerOf(l) != r.mainThread {
		t.Fatal("unbound link should revert to MainThread ownership")
	}
}

func TestSubscribeSubtreeCoversExistingAndFutureLinks(t *testing.T) {
	r := New()
	existing, err := r.Resolve(nil, "/mnt/a", CreateAllowed)
	if err != nil {
		t.Fatal(err)
	}

	q := event.NewQueue(1)
	unsubscribe := r.SubscribeSubtree("/mnt", q)
	defer unsubscribe()

	existing.SetInt(1, link.WriteOpts{})
	if ev, ok := q.Pull(); !ok || ev.Kind != event.ValueChange || ev.Path != "/mnt/a" {
		t.Fatalf("expected ValueChange for pre-existing /mnt/a, got %+v, ok=%v", ev, ok)
	}

	fresh, err := r.Resolve(nil, "/mnt/b", CreateAllowed)
	if err != nil {
		t.Fatal(err)
	}
	created, ok := q.Pull()
	if !ok || created.Kind != event.ChildCreated || created.Path != "/mnt/b" {
		t.Fatalf("expected ChildCreated for /mnt/b, got %+v, ok=%v", created, ok)
	}
	r.ExtendSubtree(created, q)

	fresh.SetInt(2, link.WriteOpts{})
	if ev, ok := q.Pull(); !ok || ev.Kind != event.ValueChange || ev.Path != "/mnt/b" {
		t.Fatalf("expected ValueChange for /mnt/b after ExtendSubtree, got %+v, ok=%v", ev, ok)
	}
}

type fakePeer struct{ name string }

func (f fakePeer) Describe() string { return f.name }
