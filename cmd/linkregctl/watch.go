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

	"github.com/gorilla/websocket"

	"github.com/linkreg/linkreg/event"
	"github.com/linkreg/linkreg/pkg/cmdmain"
)

type watchCmd struct {
	addr string
}

func (c *watchCmd) Describe() string {
	return "Stream every root-scoped event off a linkregd monitor feed."
}

func (c *watchCmd) Usage() {
	cmdmain.Errorf("Usage: linkregctl watch [opts] [pathPrefix]\n")
}

func (c *watchCmd) Examples() []string {
	return []string{"-addr 127.0.0.1:8090 /room/kitchen/"}
}

func (c *watchCmd) RunCommand(args []string) error {
	var prefix string
	if len(args) == 1 {
		prefix = args[0]
	} else if len(args) > 1 {
		return cmdmain.ErrUsage
	}

	u := url.URL{Scheme: "ws", Host: c.addr, Path: "/monitor"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("linkregctl: connecting to %s: %w", u.String(), err)
	}
	defer conn.Close()

	for {
		var ev event.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return fmt.Errorf("linkregctl: reading monitor feed: %w", err)
		}
		if prefix != "" && !hasPrefix(ev.Path, prefix) {
			continue
		}
		printEvent(ev)
	}
}

func hasPrefix(path, prefix string) bool {
	return len(path) >= len(prefix) && path[:len(prefix)] == prefix
}

func printEvent(ev event.Event) {
	switch ev.Kind {
	case event.ValueChange:
		fmt.Fprintf(cmdmain.Stdout, "%s %s = %s\n", ev.Kind, ev.Path, ev.Bytes)
	case event.ModeChange:
		fmt.Fprintf(cmdmain.Stdout, "%s %s mode=%v\n", ev.Kind, ev.Path, ev.Mode)
	case event.Retired:
		fmt.Fprintf(cmdmain.Stdout, "%s %s scope=%v\n", ev.Kind, ev.Path, ev.Retire)
	default:
		fmt.Fprintf(cmdmain.Stdout, "%s %s\n", ev.Kind, ev.Path)
	}
}
