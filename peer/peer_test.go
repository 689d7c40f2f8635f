package peer

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/slacerda85/ihodl-sub007/brontide"
	"github.com/slacerda85/ihodl-sub007/clock"
	"github.com/slacerda85/ihodl-sub007/lnwire"
	"github.com/slacerda85/ihodl-sub007/ticker"
)

// stubDispatcher counts the callbacks a real node worker would receive,
// without owning any channel or gossip state itself.
type stubDispatcher struct {
	mu        sync.Mutex
	connected int
	disconn   int
}

func (d *stubDispatcher) HandleChannelMessage(*btcec.PublicKey, lnwire.Message) error { return nil }
func (d *stubDispatcher) HandleGossipMessage(*btcec.PublicKey, lnwire.Message) error  { return nil }

func (d *stubDispatcher) PeerConnected(*btcec.PublicKey, func(lnwire.Message) error) {
	d.mu.Lock()
	d.connected++
	d.mu.Unlock()
}

func (d *stubDispatcher) PeerDisconnected(*btcec.PublicKey) {
	d.mu.Lock()
	d.disconn++
	d.mu.Unlock()
}

func (d *stubDispatcher) counts() (connected, disconn int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected, d.disconn
}

// dialedPair establishes a real Noise_XK handshake over a loopback TCP
// listener (spec §4.1) and wraps both ends as Peers.
func dialedPair(t *testing.T) (initiator, responder *Peer, initD, respD *stubDispatcher) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	initPriv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("init key: %v", err)
	}
	respPriv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("resp key: %v", err)
	}

	type acceptResult struct {
		conn *brontide.Conn
		err  error
	}
	acceptCh := make(chan acceptResult, 1)
	go func() {
		netConn, err := listener.Accept()
		if err != nil {
			acceptCh <- acceptResult{nil, err}
			return
		}
		conn, err := brontide.Accept(netConn, respPriv)
		acceptCh <- acceptResult{conn, err}
	}()

	initConn, err := brontide.Dial(context.Background(), initPriv, listener.Addr().String(), respPriv.PubKey())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	res := <-acceptCh
	if res.err != nil {
		t.Fatalf("accept: %v", res.err)
	}

	respD = &stubDispatcher{}
	initD = &stubDispatcher{}

	responder, err = New(res.conn, respD)
	if err != nil {
		t.Fatalf("responder New: %v", err)
	}
	initiator, err = New(initConn, initD)
	if err != nil {
		t.Fatalf("initiator New: %v", err)
	}
	return initiator, responder, initD, respD
}

// waitFor polls cond until it returns true or the deadline elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestPingPongKeepsConnectionAlive exercises spec §5's liveness loop: a
// forced ping tick is answered with a pong by the peer on the other end
// (handled automatically in handle()), so neither side disconnects.
func TestPingPongKeepsConnectionAlive(t *testing.T) {
	initiator, responder, initD, respD := dialedPair(t)
	defer initiator.Stop()
	defer responder.Stop()

	forceTicker := &ticker.Force{Force: make(chan time.Time)}
	initiator.setPingTicker(forceTicker)
	initiator.setClock(clock.NewTestClock(time.Unix(0, 0)))

	initiator.Start()
	responder.Start()

	waitFor(t, time.Second, func() bool {
		c, _ := initD.counts()
		rc, _ := respD.counts()
		return c == 1 && rc == 1
	})

	forceTicker.Force <- time.Now()

	// Give the round trip time to land, then confirm neither side
	// reported a disconnect.
	time.Sleep(100 * time.Millisecond)
	if _, d := initD.counts(); d != 0 {
		t.Fatalf("initiator unexpectedly disconnected")
	}
	if _, d := respD.counts(); d != 0 {
		t.Fatalf("responder unexpectedly disconnected")
	}
}

// TestPongTimeoutDisconnects exercises the other half of spec §5's
// liveness contract: maxPongMisses consecutive unanswered pings close
// the connection and notify the dispatcher.
func TestPongTimeoutDisconnects(t *testing.T) {
	initiator, _, initD, respD := dialedPair(t)
	defer initiator.Stop()

	// No responder loop runs, so every forced ping goes unanswered.
	forceTicker := &ticker.Force{Force: make(chan time.Time)}
	testClock := clock.NewTestClock(time.Unix(0, 0))
	initiator.setPingTicker(forceTicker)
	initiator.setClock(testClock)

	initiator.wg.Add(1)
	go initiator.pingLoop()

	now := time.Unix(0, 0)
	for i := 0; i < maxPongMisses; i++ {
		forceTicker.Force <- now
		now = now.Add(pongTimeout + time.Millisecond)
		testClock.SetTime(now)
	}

	initiator.Wait()

	if _, d := initD.counts(); d != 1 {
		t.Fatalf("expected initiator dispatcher to see exactly one disconnect, got %d", d)
	}
	_, _ = respD.counts()
}
