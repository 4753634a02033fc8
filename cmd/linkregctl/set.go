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
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/linkreg/linkreg/internal/netutil"
	"github.com/linkreg/linkreg/pkg/cmdmain"
	"github.com/linkreg/linkreg/wire"
)

type setCmd struct {
	addr string
}

func (c *setCmd) Describe() string { return "Push a value onto a remote link over the wire protocol." }

func (c *setCmd) Usage() {
	cmdmain.Errorf("Usage: linkregctl set [opts] <path> <value>\n")
}

func (c *setCmd) Examples() []string {
	return []string{"-addr 127.0.0.1:2022 /room/kitchen/temp 21.5"}
}

func (c *setCmd) RunCommand(args []string) error {
	if len(args) != 2 {
		return cmdmain.ErrUsage
	}
	path, value := args[0], args[1]

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := netutil.DialWithBackoff(ctx, "tcp", c.addr, 200*time.Millisecond)
	if err != nil {
		return fmt.Errorf("linkregctl: dialing %s: %w", c.addr, err)
	}
	defer conn.Close()

	w := bufio.NewWriter(conn)
	m := wire.New().
		AddString("cmd", "set").
		AddString("path", path).
		Add("value", []byte(value)).
		AddString("sendid", "0")
	if err := wire.WriteMap(w, m); err != nil {
		return fmt.Errorf("linkregctl: writing %s: %w", path, err)
	}
	fmt.Fprintf(cmdmain.Stdout, "set %s = %s\n", path, value)
	return nil
}
