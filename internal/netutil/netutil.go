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

// Package netutil holds small networking helpers, used by linkregctl's
// dialing, grounded on the teacher's
// client package's own dial/backoff conventions.
package netutil

import (
	"context"
	"net"
	"time"
)

// DialWithBackoff dials addr, retrying with a fixed interval until ctx
// is canceled or a connection succeeds. It is the client-side half of
// the same reconnect policy syncpeer.Peer.Run drives on its own loop,
// factored out for linkregctl's one-shot connections, which want the
// retry without the rest of the sync-peer state machine.
func DialWithBackoff(ctx context.Context, network, addr string, interval time.Duration) (net.Conn, error) {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, network, addr)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}
