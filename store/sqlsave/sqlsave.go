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

// Package sqlsave is a MySQL store for link values: a Store reads and
// writes link_value(path, bytes, updated_at) rows, and its Recipient
// writes each ValueChange it receives through to that table. The package
// subscribes no link by itself and does not seed a registry from the
// table.
package sqlsave

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/linkreg/linkreg/event"
	"github.com/linkreg/linkreg/regerr"
)

const schema = `
CREATE TABLE IF NOT EXISTS link_value (
	path       VARCHAR(1024) NOT NULL PRIMARY KEY,
	bytes      MEDIUMBLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
)`

// Store is a MySQL-backed persistence sink for Save-mode links.
type Store struct {
	db *sql.DB
}

// Open connects to MySQL at dsn and ensures the backing table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Put writes the link at path's current bytes, replacing any existing row.
func (s *Store) Put(ctx context.Context, path string, raw []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO link_value (path, bytes) VALUES (?, ?)
		 ON DUPLICATE KEY UPDATE bytes = VALUES(bytes)`,
		path, raw)
	return err
}

// Get returns the persisted bytes for path, if any.
func (s *Store) Get(ctx context.Context, path string) ([]byte, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT bytes FROM link_value WHERE path = ?`, path).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// All returns every persisted (path, bytes) pair, for seeding the
// registry at startup.
func (s *Store) All(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, bytes FROM link_value`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]byte)
	for rows.Next() {
		var p string
		var raw []byte
		if err := rows.Scan(&p, &raw); err != nil {
			return nil, err
		}
		out[p] = raw
	}
	return out, rows.Err()
}

// Putter is the narrow slice of Store that a Recipient needs, so tests
// can substitute a fake instead of a live MySQL connection.
type Putter interface {
	Put(ctx context.Context, path string, raw []byte) error
}

// Recipient adapts a Putter into an event.Recipient that persists every
// ValueChange it receives, for subscribing directly to a Save-mode
// link's hub (or, via a monitor, to many of them at once).
type Recipient struct {
	id    uint64
	store Putter
	path  string
	alive func() bool
}

// NewRecipient returns a Recipient that writes path's ValueChange
// events through to store. alive is consulted by Hub.Emit to decide
// when to sweep this recipient (typically "is the owning handle/link
// still open").
func NewRecipient(id uint64, store Putter, path string, alive func() bool) *Recipient {
	return &Recipient{id: id, store: store, path: path, alive: alive}
}

func (r *Recipient) RecipientID() uint64 { return r.id }
func (r *Recipient) Alive() bool         { return r.alive == nil || r.alive() }

// Enqueue persists the event synchronously. This deliberately violates
// the "never block in Enqueue" guidance other recipients follow: a
// Save-mode link is expected to write through immediately, and a slow
// database is a condition the operator should see as backpressure on
// that one link rather than silently drop writes: Save mode leaves
// ordering unspecified, but a handle's own event.Queue does not serve
// as a write-behind buffer here.
func (r *Recipient) Enqueue(ev event.Event) {
	if ev.Kind != event.ValueChange {
		return
	}
	ctx := context.Background()
	if err := r.store.Put(ctx, r.path, ev.Bytes); err != nil {
		regerr.Report(fmt.Sprintf("sqlsave: writing %s: %v", r.path, err), regerr.ConnectionError, r)
	}
}
