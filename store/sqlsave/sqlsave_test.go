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

package sqlsave

import (
	"context"
	"sync"
	"testing"

	"github.com/linkreg/linkreg/event"
)

type fakeStore struct {
	mu   sync.Mutex
	rows map[string][]byte
}

func (f *fakeStore) Put(ctx context.Context, path string, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows == nil {
		f.rows = make(map[string][]byte)
	}
	cp := append([]byte(nil), raw...)
	f.rows[path] = cp
	return nil
}

func TestRecipientPersistsValueChange(t *testing.T) {
	fs := &fakeStore{}
	r := NewRecipient(1, fs, "/x", nil)

	r.Enqueue(event.Event{Kind: event.ValueChange, Bytes: []byte("42")})
	r.Enqueue(event.Event{Kind: event.ModeChange}) // ignored

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if string(fs.rows["/x"]) != "42" {
		t.Fatalf("persisted value = %q, want 42", fs.rows["/x"])
	}
	if len(fs.rows) != 1 {
		t.Fatalf("ModeChange should not have been persisted, rows=%v", fs.rows)
	}
}

func TestRecipientAliveDefaultsTrue(t *testing.T) {
	r := NewRecipient(1, &fakeStore{}, "/x", nil)
	if !r.Alive() {
		t.Fatal("a recipient with no alive func should report alive")
	}
}
