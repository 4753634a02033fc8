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

// Package syncpeer implements the TCP sync-peer state machine:
// mount-point path rewriting between a local subtree and its
// counterpart on the far side, echo suppression so a peer never
// re-applies its own writes as if they were new, a Connected-state
// replay of every locally-mounted object, and reconnect-with-backoff.
package syncpeer

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/linkreg/linkreg/event"
	"github.com/linkreg/linkreg/link"
	"github.com/linkreg/linkreg/path"
	"github.com/linkreg/linkreg/pipe"
	"github.com/linkreg/linkreg/pkg/conv"
	"github.com/linkreg/linkreg/pkg/lru"
	"github.com/linkreg/linkreg/regerr"
	"github.com/linkreg/linkreg/registry"
	"github.com/linkreg/linkreg/wire"
)

// State is the sync peer's current connection state.
type State int

const (
	StateInit State = iota
	StateConnecting
	StateSyncing
	StateConnected
	StateError
	StateDisconnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateConnecting:
		return "Connecting"
	case StateSyncing:
		return "Syncing"
	case StateConnected:
		return "Connected"
	case StateError:
		return "Error"
	case StateDisconnected:
		return "Disconnected"
	case StateReconnecting:
		return "Reconnecting"
	default:
		return "Unknown"
	}
}

const (
	// DefaultPort is the registry's conventional sync-peer TCP port.
	DefaultPort = 2022

	// DefaultReconnectInterval is how long a peer waits before retrying
	// a failed dial.
	DefaultReconnectInterval = 2 * time.Second

	// EchoRingSize bounds the recent-send-id cache used for echo
	// suppression: the number of this peer's own writes it still
	// remembers well enough to recognize as an echo.
	EchoRingSize = 4096

	// SendQueueSoftLimit is the capacity of the peer's outbound mailbox;
	// past it the oldest queued event is dropped and a Warning is
	// reported, so an operator can notice a slow or wedged peer.
	SendQueueSoftLimit = 10000
)

// EchoRing remembers this peer's own recently-sent write ids, so that
// when the same write comes back over the wire (because the far side
// applied it and fanned it back out) this peer recognizes it as its own
// echo instead of a genuine remote change. It wraps the teacher's
// generic LRU cache with a fixed-size, presence-only view keyed by
// send id.
type EchoRing struct {
	cache *lru.Cache
}

// NewEchoRing returns an echo ring with the given capacity.
func NewEchoRing(size int) *EchoRing {
	return &EchoRing{cache: lru.New(size)}
}

// Remember records sendID as one of this peer's own recent writes.
func (r *EchoRing) Remember(sendID uint64) {
	r.cache.Add(fmt.Sprintf("%d", sendID), struct{}{})
}

// IsEcho reports whether sendID was recently recorded by Remember.
func (r *EchoRing) IsEcho(sendID uint64) bool {
	_, ok := r.cache.Get(fmt.Sprintf("%d", sendID))
	return ok
}

// modeFlagTokens pairs each additive mode/sync-mode flag with the wire
// token a "mode"/"sync" message uses for it, in both directions.
var modeFlagTokens = []struct {
	flag  event.Mode
	token string
}{
	{event.ModeFolder, "folder"},
	{event.ModeProvider, "provider"},
	{event.ModeBiDir, "bidir"},
	{event.ModePipe, "pipe"},
	{event.ModeSave, "save"},
	{event.ModeThreaded, "threaded"},
	{event.ModeMonitor, "monitor"},
	{event.ModeMaster, "master"},
	{event.ModeAutoDestroy, "autodestroy"},
}

func encodeModeFlags(m event.Mode) string {
	var toks []string
	for _, e := range modeFlagTokens {
		if m.Has(e.flag) {
			toks = append(toks, e.token)
		}
	}
	return strings.Join(toks, ",")
}

func parseModeFlags(s string) event.Mode {
	var m event.Mode
	for _, tok := range strings.Split(s, ",") {
		for _, e := range modeFlagTokens {
			if tok == e.token {
				m |= e.flag
			}
		}
	}
	return m
}

// Peer is one sync-peer connection: a mounted local subtree kept in
// step with its counterpart on the other end of a TCP connection.
type Peer struct {
	reg        *registry.Registry
	localBase  string
	peerBase   string
	remoteAddr string
	name       string

	mu    sync.Mutex
	state State
	conn  net.Conn
	bw    *bufio.Writer
	wmu   sync.Mutex // serializes writes to bw across readLoop (ls replies) and writeLoop
	queue *event.Queue

	echo          *EchoRing
	limiter       *rate.Limiter
	coalesceRegex *regexp.Regexp

	pipeMu     sync.Mutex
	pipeQueues map[string]*pipe.SendQueue
	pipeGaps   map[string]*pipe.GapDetector

	recipientID uint64
}

var nextPeerID uint64

// New returns a Peer that mounts localBase under peerBase on the far
// side of remoteAddr, reading and writing through reg.
func New(reg *registry.Registry, localBase, peerBase, remoteAddr, name string) *Peer {
	nextPeerID++
	return &Peer{
		reg:         reg,
		localBase:   localBase,
		peerBase:    peerBase,
		remoteAddr:  remoteAddr,
		name:        name,
		state:       StateInit,
		echo:        NewEchoRing(EchoRingSize),
		limiter:     rate.NewLimiter(rate.Every(DefaultReconnectInterval), 1),
		pipeQueues:  make(map[string]*pipe.SendQueue),
		pipeGaps:    make(map[string]*pipe.GapDetector),
		recipientID: nextPeerID,
	}
}

// SetPipeCoalesceRegex installs the regex used to coalesce a Pipe-mode
// link's outbound queue: a newly pushed message replaces the first
// already-queued message for the same path whose Bytes match re, instead
// of appending beside it. A nil regex (the default) disables coalescing entirely, matching
// the pipe engine's own "only permitted queue mutation" framing. Not
// safe to call concurrently with Run/ServeConn.
func (p *Peer) SetPipeCoalesceRegex(re *regexp.Regexp) { p.coalesceRegex = re }

// Describe implements registry.PeerForwarder.
func (p *Peer) Describe() string { return fmt.Sprintf("syncpeer(%s -> %s@%s)", p.localBase, p.peerBase, p.remoteAddr) }

func (p *Peer) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// State returns the peer's current connection state.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run drives the connect/sync/reconnect loop until ctx is canceled. It
// is the top-level goroutine a caller (cmd/linkregd) spawns per
// configured peer.
func (p *Peer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			p.setState(StateDisconnected)
			return ctx.Err()
		}
		if err := p.connectAndServe(ctx); err != nil {
			regerr.Report("syncpeer: "+p.name+": "+err.Error(), regerr.ConnectionError, p)
		}
		p.setState(StateReconnecting)
		if err := p.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
	}
}

func (p *Peer) connectAndServe(ctx context.Context) error {
	p.setState(StateConnecting)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.remoteAddr)
	if err != nil {
		p.setState(StateError)
		return err
	}
	defer conn.Close()
	return p.serve(ctx, conn)
}

// ServeConn takes over an already-accepted inbound connection and runs
// the sync protocol on it until it fails or ctx is canceled — the
// server-side counterpart to Run's outbound dial loop, used by
// cmd/linkregd's listener for peers that connect to us instead of the
// other way around.
func (p *Peer) ServeConn(ctx context.Context, conn net.Conn) error {
	return p.serve(ctx, conn)
}

// serve takes over an already-established connection (inbound or
// outbound), subscribes the mounted subtree, replays it to the peer,
// and runs the read/write loops until the connection fails or ctx is
// canceled.
func (p *Peer) serve(ctx context.Context, conn net.Conn) error {
	p.mu.Lock()
	p.conn = conn
	p.bw = bufio.NewWriter(conn)
	p.mu.Unlock()
	p.setState(StateSyncing)

	root, err := p.reg.Resolve(nil, p.localBase, registry.CreateAllowed)
	if err != nil {
		return err
	}
	q := event.NewQueueWithCapacity(p.recipientID, SendQueueSoftLimit)
	p.mu.Lock()
	p.queue = q
	p.mu.Unlock()
	unsubscribe := p.reg.SubscribeSubtree(p.localBase, q)
	defer unsubscribe()
	p.reg.Mount(p.localBase, p.peerBase, p)
	defer p.reg.Unmount(p.localBase, p)

	p.setState(StateConnected)
	if err := p.replay(root); err != nil {
		return err
	}
	root.Hub().Emit(event.Event{Kind: event.MonitorReload, LinkID: root.ID(), Path: root.Path()})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.readLoop(gctx, conn) })
	g.Go(func() error { return p.writeLoop(gctx, q) })
	err = g.Wait()
	p.setState(StateError)
	return err
}

// replay announces every link under root to the peer as a "sync"
// message carrying its current mode flags, folders included, before any
// ordinary read/write traffic begins — the Connected-state handshake
// the far side needs to create (or recognize) a matching local link
// for everything already mounted on this side.
func (p *Peer) replay(root *link.Link) error {
	var walk func(*link.Link) error
	walk = func(l *link.Link) error {
		if remotePath, ok := path.Rebase(l.Path(), p.localBase, p.peerBase); ok {
			m := wire.New().AddString("cmd", "sync").AddString("path", remotePath).AddString("flags", encodeModeFlags(l.Mode()))
			if err := p.writeWire(m); err != nil {
				return err
			}
		}
		for _, c := range l.Children() {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(root)
}

// writeWire serializes a single wire message onto the connection,
// shared by the replay step, "ls" replies from readLoop, and ordinary
// outbound traffic from writeLoop so none of them interleave partial
// frames on the same socket.
func (p *Peer) writeWire(m *wire.Map) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	p.mu.Lock()
	bw := p.bw
	p.mu.Unlock()
	return wire.WriteMap(bw, m)
}

func (p *Peer) outboundQueue() *event.Queue {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue
}

func (p *Peer) readLoop(ctx context.Context, conn net.Conn) error {
	r := bufio.NewReader(conn)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m, err := wire.ReadMap(r)
		if err != nil {
			return err
		}
		p.handleInbound(m)
	}
}

func (p *Peer) handleInbound(m *wire.Map) {
	cmd, _ := m.GetString("cmd")
	switch cmd {
	case "set":
		p.handleSet(m)
	case "mode":
		p.handleMode(m)
	case "sync":
		p.handleSync(m)
	case "ls":
		p.handleLs(m)
	case "destroy":
		p.handleDestroy(m)
	case "nop", "ver", "get", "monitor", "exit", "lsreply":
		// Acknowledged but not meaningfully actionable without a richer
		// session/auth layer; logged for operator visibility only.
		regerr.Report("syncpeer: "+p.name+": received "+cmd, regerr.Info, p)
	default:
		regerr.Report("syncpeer: "+p.name+": unknown command "+cmd, regerr.RecUnknown, p)
	}
}

func (p *Peer) handleSet(m *wire.Map) {
	remotePath, ok := m.GetString("path")
	if !ok {
		return
	}
	localPath, ok := path.Rebase(remotePath, p.peerBase, p.localBase)
	if !ok {
		return
	}
	l, err := p.reg.Resolve(nil, localPath, registry.CreateAllowed)
	if err != nil {
		return
	}
	val, _ := m.Get("value")
	sendIDRaw, _ := m.Get("sendid")
	var sendID uint64
	conv.ParseFields(sendIDRaw, &sendID)
	if sendID != 0 {
		p.echo.Remember(sendID)
	}
	if l.Mode().Has(event.ModePipe) {
		if seqRaw, ok := m.Get("seq"); ok {
			var seq uint64
			if conv.ParseFields(seqRaw, &seq) == nil {
				if p.gapDetectorFor(localPath).Check(seq) {
					regerr.Report("syncpeer: "+p.name+": out-of-sequence pipe write on "+localPath, regerr.OutOfSequence, p)
				}
			}
		}
	}
	l.SetBytes(val, link.WriteOpts{SuppressEqual: true, Origin: p})
}

// handleMode applies an additive mode change a peer asked for, parsing
// the actual flags carried in the message instead of assuming any
// fixed bit.
func (p *Peer) handleMode(m *wire.Map) {
	remotePath, ok := m.GetString("path")
	if !ok {
		return
	}
	localPath, ok := path.Rebase(remotePath, p.peerBase, p.localBase)
	if !ok {
		return
	}
	l, err := p.reg.Resolve(nil, localPath, registry.CreateAllowed)
	if err != nil {
		return
	}
	flagsStr, _ := m.GetString("flags")
	if add := parseModeFlags(flagsStr); add != 0 {
		l.SetMode(add)
	}
}

// handleSync registers the peer's interest in a path: the local link is
// created if absent, its mode gains whatever flags the peer announced,
// and it is added to this connection's live subscription so future
// writes on it are forwarded — exactly what both the initial replay and
// a later structural addition on the far side need on this side.
func (p *Peer) handleSync(m *wire.Map) {
	remotePath, ok := m.GetString("path")
	if !ok {
		return
	}
	localPath, ok := path.Rebase(remotePath, p.peerBase, p.localBase)
	if !ok {
		return
	}
	l, err := p.reg.Resolve(nil, localPath, registry.CreateAllowed)
	if err != nil {
		return
	}
	if flagsStr, ok := m.GetString("flags"); ok {
		if add := parseModeFlags(flagsStr); add != 0 {
			l.SetMode(add)
		}
	}
	if q := p.outboundQueue(); q != nil {
		l.Subscribe(q)
	}
}

// handleLs replies with the child list of the requested path, rebased
// back to the peer's own path namespace.
func (p *Peer) handleLs(m *wire.Map) {
	remotePath, ok := m.GetString("path")
	if !ok {
		return
	}
	localPath, ok := path.Rebase(remotePath, p.peerBase, p.localBase)
	if !ok {
		return
	}
	l, err := p.reg.Resolve(nil, localPath, registry.SilentError)
	if err != nil {
		return
	}
	reply := wire.New().AddString("cmd", "lsreply").AddString("path", remotePath)
	for _, c := range l.Children() {
		reply.AddString("child", c.Name())
	}
	if err := p.writeWire(reply); err != nil {
		regerr.Report("syncpeer: "+p.name+": ls reply: "+err.Error(), regerr.ConnectionError, p)
	}
}

func (p *Peer) handleDestroy(m *wire.Map) {
	remotePath, ok := m.GetString("path")
	if !ok {
		return
	}
	localPath, ok := path.Rebase(remotePath, p.peerBase, p.localBase)
	if !ok {
		return
	}
	p.reg.DestroyLink(nil, localPath, true)
}

func (p *Peer) gapDetectorFor(localPath string) *pipe.GapDetector {
	p.pipeMu.Lock()
	defer p.pipeMu.Unlock()
	g, ok := p.pipeGaps[localPath]
	if !ok {
		g = &pipe.GapDetector{}
		p.pipeGaps[localPath] = g
	}
	return g
}

func (p *Peer) sendQueueFor(remotePath string) *pipe.SendQueue {
	p.pipeMu.Lock()
	defer p.pipeMu.Unlock()
	q, ok := p.pipeQueues[remotePath]
	if !ok {
		q = pipe.NewSendQueue()
		p.pipeQueues[remotePath] = q
	}
	return q
}

func (p *Peer) shouldSuppressEcho(ev event.Event) bool {
	if ev.Origin == p {
		return true
	}
	return ev.SendID != 0 && p.echo.IsEcho(ev.SendID)
}

// writeSet sends a "set" message for remotePath, with an optional pipe
// sequence number.
func (p *Peer) writeSet(remotePath string, bytes []byte, sendID uint64, seq *uint64) error {
	m := wire.New().AddString("cmd", "set").AddString("path", remotePath).Add("value", bytes).AddString("sendid", fmt.Sprintf("%d", sendID))
	if seq != nil {
		m.AddString("seq", fmt.Sprintf("%d", *seq))
	}
	return p.writeWire(m)
}

// forwardChildCreated tells the peer about a structurally new link
// under the mount, as a "sync" announcement carrying its current mode
// flags — the same shape the initial replay uses, fired live as the
// tree grows instead of only once at connect time.
func (p *Peer) forwardChildCreated(ev event.Event) error {
	remotePath, ok := path.Rebase(ev.Path, p.localBase, p.peerBase)
	if !ok {
		return nil
	}
	l, err := p.reg.Resolve(nil, ev.Path, registry.SilentError)
	if err != nil {
		return nil
	}
	m := wire.New().AddString("cmd", "sync").AddString("path", remotePath).AddString("flags", encodeModeFlags(l.Mode()))
	return p.writeWire(m)
}

// writeLoop drains the mount's subscription queue and forwards its
// traffic to the peer. Pending events are drained in whole batches (one
// blocking Wait followed by a non-blocking drain of whatever else is
// already queued) so a Pipe-mode link's rapid writes land in the same
// cycle and actually get a chance to coalesce through its SendQueue,
// instead of being written one at a time as they arrive.
func (p *Peer) writeLoop(ctx context.Context, q *event.Queue) error {
	for {
		ev, ok := q.Wait()
		if !ok {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		batch := []event.Event{ev}
		for {
			more, ok := q.Pull()
			if !ok {
				break
			}
			batch = append(batch, more)
		}

		touched := map[string]bool{}
		for _, e := range batch {
			switch e.Kind {
			case event.ChildCreated:
				p.reg.ExtendSubtree(e, q)
				if err := p.forwardChildCreated(e); err != nil {
					return err
				}
			case event.ValueChange:
				if p.shouldSuppressEcho(e) {
					continue
				}
				remotePath, ok := path.Rebase(e.Path, p.localBase, p.peerBase)
				if !ok {
					continue
				}
				if e.HasSeqNum {
					seq := e.SeqNum
					p.sendQueueFor(remotePath).Push(pipe.Message{Bytes: e.Bytes, Seq: seq, HasSeq: true}, p.coalesceRegex)
					touched[remotePath] = true
					continue
				}
				if err := p.writeSet(remotePath, e.Bytes, e.SendID, nil); err != nil {
					return err
				}
			}
		}

		for remotePath := range touched {
			for _, msg := range p.sendQueueFor(remotePath).PopAll() {
				seq := msg.Seq
				if err := p.writeSet(remotePath, msg.Bytes, 0, &seq); err != nil {
					return err
				}
			}
		}
	}
}
