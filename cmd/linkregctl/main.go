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

// Command linkregctl is a small command-line client for a running
// linkregd: it can push a value onto a remote path over the sync-peer
// wire protocol, or watch/read values off the daemon's websocket
// monitor feed.
package main

import (
	"flag"
	"fmt"

	"github.com/linkreg/linkreg/pkg/cmdmain"
)

func init() {
	cmdmain.RegisterCommand("set", func(fs *flag.FlagSet) cmdmain.CommandRunner {
		c := &setCmd{}
		fs.StringVar(&c.addr, "addr", "127.0.0.1:2022", "linkregd sync-peer address")
		return c
	})
	cmdmain.RegisterCommand("get", func(fs *flag.FlagSet) cmdmain.CommandRunner {
		c := &getCmd{}
		fs.StringVar(&c.addr, "addr", "127.0.0.1:8090", "linkregd monitor address")
		fs.DurationVar(&c.timeout, "timeout", 0, "give up after this long (0 = no timeout)")
		return c
	})
	cmdmain.RegisterCommand("watch", func(fs *flag.FlagSet) cmdmain.CommandRunner {
		c := &watchCmd{}
		fs.StringVar(&c.addr, "addr", "127.0.0.1:8090", "linkregd monitor address")
		return c
	})
}

func main() {
	cmdmain.Main()
}

func usageError(format string, args ...interface{}) error {
	return cmdmain.UsageError(fmt.Sprintf(format, args...))
}
