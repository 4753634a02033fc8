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

package handle

import (
	"sync"
	"testing"
	"time"

	"github.com/linkreg/linkreg/event"
	"github.com/linkreg/linkreg/link"
)

func newLeaf() *link.Link {
	root := link.NewRoot()
	l := link.New(root, "x", "/x", false, false)
	root.AddChild(l)
	return l
}

func TestBasicHandleReadsOwnWrite(t *testing.T) {
	l := newLeaf()
	h := OpenBasic(l)
	defer h.Close()

	if _, err := h.SetInt(5, false); err != nil {
		t.Fatal(err)
	}
	if v, ok := h.Int(); !ok || v != 5 {
		t.Fatalf("Int() = %d, %v", v, ok)
	}
}

func TestBasicHandlePollsOtherWriters(t *testing.T) {
	l := newLeaf()
	h := OpenBasic(l)
	defer h.Close()

	other := OpenBasic(l)
	defer other.Close()
	other.SetInt(9, false)

	ev, ok := h.Poll()
	if !ok || ev.Kind != event.ValueChange {
		t.Fatalf("expected a ValueChange event, got %+v, ok=%v", ev, ok)
	}
}

func TestCloseReleasesReference(t *testing.T) {
	l := newLeaf()
	before := l.RefCount()
	h := OpenBasic(l)
	if l.RefCount() != before+1 {
		t.Fatalf("open should bump refcount, got %d", l.RefCount())
	}
	h.Close()
	if l.RefCount() != before {
		t.Fatalf("close should release refcount, got %d", l.RefCount())
	}
	h.Close() // idempotent
}

func TestClosedHandleDiscardsOperations(t *testing.T) {
	l := newLeaf()
	h := OpenBasic(l)
	h.SetInt(5, false)
	h.Close()

	if v, ok := h.Int(); ok || v != 0 {
		t.Fatalf("Int() on closed handle = %d, %v, want 0, false", v, ok)
	}
	ok, err := h.SetInt(9, false)
	if ok || err != nil {
		t.Fatalf("SetInt() on closed handle = %v, %v, want false, nil", ok, err)
	}
	if v, _ := l.Cell().ToInt(); v != 5 {
		t.Fatalf("closed handle's SetInt should be discarded, link still has %d", v)
	}
}

func TestSignalPump(t *testing.T) {
	l := newLeaf()
	var got []int64
	var mu sync.Mutex
	h := OpenSignal(l, func(ev event.Event) {
		mu.Lock()
		defer mu.Unlock()
		if ev.Kind == event.ValueChange {
			n, _ := l.Cell().ToInt()
			got = append(got, n)
		}
	})
	defer h.Close()

	writer := OpenBasic(l)
	defer writer.Close()
	writer.SetInt(1, false)
	writer.SetInt(2, false)

	h.Pump()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[1] != 2 {
		t.Fatalf("unexpected callback sequence: %v", got)
	}
}

func TestAdaptiveDeliversAsynchronously(t *testing.T) {
	l := newLeaf()
	delivered := make(chan event.Event, 1)
	h := OpenAdaptive(l, func(ev event.Event) {
		delivered <- ev
	})
	defer h.Close()

	writer := OpenBasic(l)
	defer writer.Close()
	writer.SetText("hi", false)

	select {
	case ev := <-delivered:
		if ev.Kind != event.ValueChange {
			t.Fatalf("unexpected event kind %v", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for adaptive delivery")
	}
}
