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

// Command linkregd runs the registry daemon: it holds one process-wide
// link tree, accepts and dials sync-peer connections to keep mounted
// subtrees in step with other daemons, optionally connects to a MySQL
// store (it opens the store but writes or reads no link values through
// it), and optionally serves a read-only websocket monitor feed.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"sync/atomic"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/linkreg/linkreg/event"
	"github.com/linkreg/linkreg/regconfig"
	"github.com/linkreg/linkreg/regerr"
	"github.com/linkreg/linkreg/registry"
	"github.com/linkreg/linkreg/store/sqlsave"
	"github.com/linkreg/linkreg/syncpeer"
)

func main() {
	configPath := flag.String("config", "", "path to a linkregd JSON config file")
	flag.Parse()

	cfg := regconfig.DaemonConfig{Listen: ":2022"}
	if *configPath != "" {
		obj, err := regconfig.ReadFile(*configPath)
		if err != nil {
			log.Fatalf("linkregd: reading config: %v", err)
		}
		cfg, err = regconfig.Parse(obj)
		if err != nil {
			log.Printf("linkregd: config warnings: %v", err)
		}
	}

	installLogHook(cfg.LogSink)

	reg := registry.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MySQLDSN != "" {
		store, err := sqlsave.Open(ctx, cfg.MySQLDSN)
		if err != nil {
			log.Fatalf("linkregd: connecting to MySQL: %v", err)
		}
		defer store.Close()
		log.Printf("linkregd: connected to MySQL")
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		log.Fatalf("linkregd: listen %s: %v", cfg.Listen, err)
	}
	log.Printf("linkregd: listening on %s", ln.Addr())
	go acceptLoop(ctx, ln, reg)

	for _, pc := range cfg.Peers {
		p := syncpeer.New(reg, pc.LocalPath, pc.PeerPath, pc.RemoteAddr, pc.Name)
		if pc.PipeCoalesceRegex != "" {
			if re, err := regexp.Compile(pc.PipeCoalesceRegex); err != nil {
				log.Printf("linkregd: peer %s: bad pipeCoalesceRegex: %v", pc.Name, err)
			} else {
				p.SetPipeCoalesceRegex(re)
			}
		}
		go func(p *syncpeer.Peer, name string) {
			if err := p.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("linkregd: peer %s exited: %v", name, err)
			}
		}(p, pc.Name)
	}

	if cfg.MonitorListen != "" {
		go serveMonitor(ctx, cfg.MonitorListen, reg)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Printf("linkregd: shutting down")
	cancel()
	ln.Close()
}

func acceptLoop(ctx context.Context, ln net.Listener, reg *registry.Registry) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("linkregd: accept: %v", err)
			continue
		}
		p := syncpeer.New(reg, "/", "/", "", conn.RemoteAddr().String())
		go func() {
			if err := p.ServeConn(ctx, conn); err != nil {
				regerr.Report("linkregd: inbound peer "+p.Describe()+": "+err.Error(), regerr.ConnectionError, p)
			}
		}()
	}
}

func installLogHook(sink string) {
	switch sink {
	case "logrus":
		l := logrus.New()
		regerr.SetHook(func(text string, kind regerr.Kind, ref any) {
			l.WithField("kind", kind.String()).Warn(text)
		})
	default:
		regerr.SetHook(func(text string, kind regerr.Kind, ref any) {
			log.Printf("[%s] %s", kind, text)
		})
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// serveMonitor exposes a read-only feed of events from the whole tree
// over a websocket, one JSON-ish line per event, for an operator
// dashboard. It subscribes the entire tree up front via
// registry.SubscribeSubtree and extends that subscription live on every
// ChildCreated it sees, so a link created after the connection opens is
// covered too.
func serveMonitor(ctx context.Context, addr string, reg *registry.Registry) {
	var nextID uint64
	mux := http.NewServeMux()
	mux.HandleFunc("/monitor", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id := atomic.AddUint64(&nextID, 1)
		q := event.NewQueue(id)
		unsubscribe := reg.SubscribeSubtree("/", q)
		defer unsubscribe()
		reg.Root().Hub().Emit(event.Event{Kind: event.MonitorReload, LinkID: reg.Root().ID(), Path: "/"})

		for {
			ev, ok := q.Wait()
			if !ok {
				return
			}
			if ev.Kind == event.ChildCreated {
				reg.ExtendSubtree(ev, q)
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("linkregd: monitor server: %v", err)
	}
}
