// Package peer implements the per-connection actor (spec §2 C9, §5): one
// Peer owns exactly one brontide.Conn and runs a read loop and a write
// loop, each a single goroutine, so that messages from the same remote
// node are processed strictly in the order they arrive (spec §5's
// ordering guarantee). A Peer does not own channel or gossip state
// itself — it holds only the transport and an outbound mailbox, and
// forwards every decoded message to a Dispatcher supplied by the node
// worker (component C10), which is the sole owner of every Channel and
// of the routing graph (spec §3's ownership rules).
//
// Adapted from the teacher's root peer.go: the outgoingQueueLen +
// queue.CircularBuffer mailbox, the split read/write goroutines, and the
// ping/pong liveness timer are the same shape as the teacher's
// queueHandler/readHandler pair, generalized from the teacher's pre-BOLT
// message set to this tree's lnwire catalogue and brontide transport.
package peer

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/go-errors/errors"

	"github.com/slacerda85/ihodl-sub007/brontide"
	"github.com/slacerda85/ihodl-sub007/clock"
	"github.com/slacerda85/ihodl-sub007/lnwire"
	"github.com/slacerda85/ihodl-sub007/queue"
	"github.com/slacerda85/ihodl-sub007/ticker"
)

// Timing constants from spec §5.
const (
	pingInterval     = 30 * time.Second
	pongTimeout      = 10 * time.Second
	maxPongMisses    = 3
	outgoingQueueLen = 500
)

// Dispatcher routes a message this peer has decrypted and decoded to its
// owner. Exactly one of HandleChannelMessage / HandleGossipMessage is
// called per message, chosen by the message's type code (spec §6): types
// 32-39, 128-136 are per-channel (C5); types 256-265 are gossip (C8).
// Unknown odd types are dropped by the peer before reaching the
// dispatcher; unknown even types are a protocol error and close the
// connection, both per spec §6.
type Dispatcher interface {
	HandleChannelMessage(remote *btcec.PublicKey, msg lnwire.Message) error
	HandleGossipMessage(remote *btcec.PublicKey, msg lnwire.Message) error

	// PeerConnected and PeerDisconnected let the worker track which
	// channels have a live transport to forward HTLCs over.
	PeerConnected(remote *btcec.PublicKey, send func(lnwire.Message) error)
	PeerDisconnected(remote *btcec.PublicKey)
}

func isChannelMessage(t lnwire.MessageType) bool {
	switch {
	case t >= lnwire.MsgOpenChannel && t <= lnwire.MsgClosingSigned:
		return true
	case t >= lnwire.MsgUpdateAddHTLC && t <= lnwire.MsgChannelReestablish:
		return true
	}
	return false
}

func isGossipMessage(t lnwire.MessageType) bool {
	return t >= lnwire.MsgChannelAnnouncement && t <= lnwire.MsgGossipTimestampFilter
}

// Peer is one live connection to a counterparty node.
type Peer struct {
	conn       *brontide.Conn
	remotePub  *btcec.PublicKey
	dispatcher Dispatcher

	outgoing chan lnwire.Message

	// sent remembers the last outgoingQueueLen messages actually written
	// to the wire, so a caller resolving a channel_reestablish (spec
	// §4.2.4) can inspect what was last sent without re-deriving it from
	// channel state.
	sent *queue.CircularBuffer

	// pingTicker and clk drive the liveness loop below; both are
	// swappable so tests can force ticks and advance timeouts without
	// sleeping real wall-clock seconds.
	pingTicker ticker.Ticker
	clk        clock.Clock

	quit chan struct{}
	wg   sync.WaitGroup

	pongCh     chan struct{}
	pongMissed int

	startOnce sync.Once
	stopOnce  sync.Once
}

// New wraps an already-handshaken brontide.Conn (produced by
// brontide.Dial or brontide.Accept) as a Peer that will dispatch
// messages to d until Stop is called or the connection fails.
func New(conn *brontide.Conn, d Dispatcher) (*Peer, error) {
	sent, err := queue.NewCircularBuffer(outgoingQueueLen)
	if err != nil {
		return nil, err
	}
	return &Peer{
		conn:       conn,
		remotePub:  conn.RemoteStatic(),
		dispatcher: d,
		outgoing:   make(chan lnwire.Message, outgoingQueueLen),
		sent:       sent,
		pingTicker: ticker.New(pingInterval),
		clk:        clock.NewDefaultClock(),
		quit:       make(chan struct{}),
		pongCh:     make(chan struct{}, 1),
	}, nil
}

// setPingTicker and setClock override the liveness timers; unexported,
// for use by tests in this package that need a Force ticker and a
// TestClock.
func (p *Peer) setPingTicker(t ticker.Ticker) { p.pingTicker = t }
func (p *Peer) setClock(c clock.Clock)        { p.clk = c }

// LastSent returns the most recently transmitted messages, oldest first,
// for diagnostics and channel_reestablish resolution.
func (p *Peer) LastSent() []lnwire.Message {
	items := p.sent.Items()
	out := make([]lnwire.Message, len(items))
	for i, it := range items {
		out[i] = it.(lnwire.Message)
	}
	return out
}

// RemotePub is the static public key this peer authenticated as during
// the Noise_XK handshake.
func (p *Peer) RemotePub() *btcec.PublicKey {
	return p.remotePub
}

// Start brings up the read loop, write loop, and ping timer, and hands
// the dispatcher a send function so it can queue outbound per-channel
// and gossip messages without reaching back into Peer's internals.
func (p *Peer) Start() {
	p.startOnce.Do(func() {
		p.dispatcher.PeerConnected(p.remotePub, p.QueueMessage)

		p.wg.Add(3)
		go p.readLoop()
		go p.writeLoop()
		go p.pingLoop()
	})
}

// Stop signals all three loops to exit and tears down the connection.
// Safe to call more than once, from any goroutine, including from
// within a loop's own shutdown path. Use Wait to block until every loop
// has actually returned.
func (p *Peer) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		p.conn.Close()
		p.dispatcher.PeerDisconnected(p.remotePub)
	})
}

// Wait blocks until the read, write, and ping loops have all returned.
// Must not be called from within one of those loops.
func (p *Peer) Wait() {
	p.wg.Wait()
}

// QueueMessage enqueues msg for delivery; it never blocks the caller on
// socket I/O directly, since the write loop alone touches the wire
// (spec §5's "writes that must back-pressure" suspension point).
func (p *Peer) QueueMessage(msg lnwire.Message) error {
	select {
	case p.outgoing <- msg:
		return nil
	case <-p.quit:
		return errors.New("peer: connection shutting down")
	}
}

func (p *Peer) readLoop() {
	defer p.wg.Done()
	defer p.Stop()

	for {
		select {
		case <-p.quit:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), pingInterval+pongTimeout)
		payload, err := p.conn.Recv(ctx)
		cancel()
		if err != nil {
			return
		}

		msg, err := lnwire.ReadMessage(payload)
		if err != nil {
			// Either a malformed frame or an unrecognised even
			// type, both fatal to the connection (spec §6, §7).
			return
		}
		if msg == nil {
			// Unrecognised odd type: silently ignored (spec §6).
			continue
		}

		if err := p.handle(msg); err != nil {
			return
		}
	}
}

func (p *Peer) handle(msg lnwire.Message) error {
	switch m := msg.(type) {
	case *lnwire.Ping:
		return p.QueueMessage(lnwire.NewPong(m.NumPongBytes))
	case *lnwire.Pong:
		select {
		case p.pongCh <- struct{}{}:
		default:
		}
		return nil
	case *lnwire.Init:
		return nil
	case *lnwire.Error:
		return fmt.Errorf("peer: received error from %x: %s", p.remotePub.SerializeCompressed(), bytes.TrimRight(m.Data, "\x00"))
	}

	t := msg.MsgType()
	switch {
	case isChannelMessage(t):
		return p.dispatcher.HandleChannelMessage(p.remotePub, msg)
	case isGossipMessage(t):
		return p.dispatcher.HandleGossipMessage(p.remotePub, msg)
	default:
		// Unrecognised odd application message; ignore per spec §6.
		return nil
	}
}

func (p *Peer) writeLoop() {
	defer p.wg.Done()
	defer p.Stop()

	for {
		var msg lnwire.Message
		select {
		case msg = <-p.outgoing:
		case <-p.quit:
			return
		}

		payload, err := lnwire.WriteMessage(msg)
		if err != nil {
			continue
		}
		if err := p.conn.Send(payload); err != nil {
			return
		}
		p.sent.Add(msg)
	}
}

func (p *Peer) pingLoop() {
	defer p.wg.Done()

	p.pingTicker.Resume()
	defer p.pingTicker.Stop()

	for {
		select {
		case <-p.quit:
			return
		case <-p.pingTicker.Chan():
			if err := p.QueueMessage(lnwire.NewPing(0)); err != nil {
				return
			}
			select {
			case <-p.pongCh:
				p.pongMissed = 0
			case <-p.clk.TickAfter(pongTimeout):
				p.pongMissed++
				if p.pongMissed >= maxPongMisses {
					p.Stop()
					return
				}
			case <-p.quit:
				return
			}
		}
	}
}
