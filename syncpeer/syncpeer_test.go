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

package syncpeer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/linkreg/linkreg/handle"
	"github.com/linkreg/linkreg/registry"
)

func TestEchoRing(t *testing.T) {
	r := NewEchoRing(4)
	if r.IsEcho(1) {
		t.Fatal("unseen id should not be an echo")
	}
	r.Remember(1)
	if !r.IsEcho(1) {
		t.Fatal("remembered id should be recognized as an echo")
	}
}

func TestPeersSyncAValueAcrossTheWire(t *testing.T) {
	regA := registry.New()
	regB := registry.New()

	connA, connB := net.Pipe()

	pA := New(regA, "/", "/", "", "to-b")
	pB := New(regB, "/", "/", "", "to-a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(chan error, 2)
	go func() { errs <- pA.serve(ctx, connA) }()
	go func() { errs <- pB.serve(ctx, connB) }()

	// Give both sides a moment to subscribe before writing.
	time.Sleep(20 * time.Millisecond)

	aRoot, err := regA.Resolve(nil, "/x", registry.CreateAllowed)
	if err != nil {
		t.Fatal(err)
	}
	h := handle.OpenBasic(aRoot)
	defer h.Close()
	h.SetText("hello", false)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		bLeaf, err := regB.Resolve(nil, "/x", registry.SilentError)
		if err == nil {
			if v, ok := bLeaf.Cell().ToText(); ok && v == "hello" {
				cancel()
				connA.Close()
				connB.Close()
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	connA.Close()
	connB.Close()
	t.Fatal("peer B never observed A's write")
}
