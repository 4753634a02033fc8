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

package main

import (
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linkreg/linkreg/event"
	"github.com/linkreg/linkreg/pkg/cmdmain"
)

type getCmd struct {
	addr    string
	timeout time.Duration
}

func (c *getCmd) Describe() string {
	return "Read one value off a linkregd monitor feed and exit."
}

func (c *getCmd) Usage() {
	cmdmain.Errorf("Usage: linkregctl get [opts] <path>\n")
}

func (c *getCmd) Examples() []string {
	return []string{"-addr 127.0.0.1:8090 -timeout 5s /room/kitchen/temp"}
}

// RunCommand waits on the monitor feed for the first ValueChange on the
// exact path named, since the wire protocol's own "get" command is
// acknowledged but not answered by the current daemon (see
// syncpeer.handleInbound): a one-shot filtered watch is the only read
// path a client actually has.
func (c *getCmd) RunCommand(args []string) error {
	if len(args) != 1 {
		return cmdmain.ErrUsage
	}
	path := args[0]

	u := url.URL{Scheme: "ws", Host: c.addr, Path: "/monitor"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("linkregctl: connecting to %s: %w", u.String(), err)
	}
	defer conn.Close()

	if c.timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(c.timeout))
	}

	for {
		var ev event.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return fmt.Errorf("linkregctl: timed out waiting for %s: %w", path, err)
		}
		if ev.Kind == event.ValueChange && ev.Path == path {
			fmt.Fprintf(cmdmain.Stdout, "%s\n", ev.Bytes)
			return nil
		}
	}
}
