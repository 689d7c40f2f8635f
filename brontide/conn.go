package brontide

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
)

// HandshakeTimeout bounds the full three-act handshake, per spec §5.
const HandshakeTimeout = 10 * time.Second

// ErrClosed is returned by Recv once the underlying connection has been
// closed or hit EOF; per spec §4.1 this is distinct from a decryption
// failure.
var ErrClosed = errors.New("brontide: connection closed")

// Conn is an established, authenticated, encrypted transport session: one
// TCP socket plus the send and receive DirectionStates produced by the
// Noise_XK handshake (spec §3's TransportSession).
type Conn struct {
	netConn net.Conn

	sendState *DirectionState
	recvState *DirectionState

	remoteStatic *btcec.PublicKey

	// partial holds bytes read toward the in-progress frame so a
	// cancelled Recv can resume without losing or reprocessing data.
	partial partialFrame
}

type partialFrame struct {
	// stage is 0 (nothing read yet toward this frame), 1 (reading the
	// length ciphertext, possibly partly buffered), or 2 (length
	// decrypted, reading the body ciphertext).
	stage      int
	lengthBuf  [2 + aeadTagSize]byte
	lengthGot  int
	bodyLen    uint16
	bodyBuf    []byte
	bodyGot    int
}

// Dial opens a TCP connection to addr and runs the Noise_XK initiator
// handshake against remoteStatic, using localStatic as our own identity
// key. Fails with *HandshakeFailed on any handshake error.
func Dial(ctx context.Context, localStatic *btcec.PrivateKey,
	addr string, remoteStatic *btcec.PublicKey) (*Conn, error) {

	dialer := net.Dialer{}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	conn, err := newInitiatorConn(netConn, localStatic, remoteStatic)
	if err != nil {
		netConn.Close()
		return nil, err
	}
	return conn, nil
}

func newInitiatorConn(netConn net.Conn, localStatic *btcec.PrivateKey,
	remoteStatic *btcec.PublicKey) (*Conn, error) {

	netConn.SetDeadline(time.Now().Add(HandshakeTimeout))
	defer netConn.SetDeadline(time.Time{})

	ih, err := newInitiatorHandshake(localStatic, remoteStatic)
	if err != nil {
		return nil, &HandshakeFailed{Stage: StageAct1, Err: err}
	}

	actOne, _, err := ih.genActOne()
	if err != nil {
		return nil, &HandshakeFailed{Stage: StageAct1, Err: err}
	}
	if _, err := netConn.Write(actOne[:]); err != nil {
		return nil, &HandshakeFailed{Stage: StageAct1, Err: err}
	}

	var actTwo [actTwoSize]byte
	if err := readFull(netConn, actTwo[:]); err != nil {
		return nil, &HandshakeFailed{Stage: StageAct2, Err: err}
	}
	if err := ih.recvActTwo(actTwo); err != nil {
		return nil, &HandshakeFailed{Stage: StageAct2, Err: err}
	}

	actThree, sendState, recvState, err := ih.genActThree()
	if err != nil {
		return nil, &HandshakeFailed{Stage: StageAct3, Err: err}
	}
	if _, err := netConn.Write(actThree[:]); err != nil {
		return nil, &HandshakeFailed{Stage: StageAct3, Err: err}
	}

	return &Conn{
		netConn:      netConn,
		sendState:    sendState,
		recvState:    recvState,
		remoteStatic: remoteStatic,
	}, nil
}

// Accept runs the Noise_XK responder handshake over an already-accepted
// TCP connection, authenticating whichever static key the initiator
// presents in act three.
func Accept(netConn net.Conn, localStatic *btcec.PrivateKey) (*Conn, error) {
	netConn.SetDeadline(time.Now().Add(HandshakeTimeout))
	defer netConn.SetDeadline(time.Time{})

	rh := newResponderHandshake(localStatic)

	var actOne [actOneSize]byte
	if err := readFull(netConn, actOne[:]); err != nil {
		return nil, &HandshakeFailed{Stage: StageAct1, Err: err}
	}
	if err := rh.recvActOne(actOne); err != nil {
		return nil, &HandshakeFailed{Stage: StageAct1, Err: err}
	}

	actTwo, err := rh.genActTwo()
	if err != nil {
		return nil, &HandshakeFailed{Stage: StageAct2, Err: err}
	}
	if _, err := netConn.Write(actTwo[:]); err != nil {
		return nil, &HandshakeFailed{Stage: StageAct2, Err: err}
	}

	var actThree [actThreeSize]byte
	if err := readFull(netConn, actThree[:]); err != nil {
		return nil, &HandshakeFailed{Stage: StageAct3, Err: err}
	}
	remoteStatic, sendState, recvState, err := rh.recvActThree(actThree)
	if err != nil {
		return nil, &HandshakeFailed{Stage: StageAct3, Err: err}
	}

	return &Conn{
		netConn:      netConn,
		sendState:    sendState,
		recvState:    recvState,
		remoteStatic: remoteStatic,
	}, nil
}

func readFull(conn net.Conn, buf []byte) error {
	got := 0
	for got < len(buf) {
		n, err := conn.Read(buf[got:])
		got += n
		if err != nil {
			return err
		}
	}
	return nil
}

// RemoteStatic returns the peer's authenticated static public key.
func (c *Conn) RemoteStatic() *btcec.PublicKey {
	return c.remoteStatic
}

// Send encrypts and writes payload as a single frame. payload must be at
// most MaxPayloadSize bytes.
func (c *Conn) Send(payload []byte) error {
	return writeFrame(c.netConn, c.sendState, payload)
}

// Recv reads and decrypts the next complete frame. It is cancellable via
// ctx: on cancellation, bytes already read toward the in-progress frame
// are retained in c.partial and the next call to Recv resumes from there
// rather than re-reading from the socket.
func (c *Conn) Recv(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		c.netConn.SetReadDeadline(deadline)
	} else {
		c.netConn.SetReadDeadline(time.Time{})
	}
	defer c.netConn.SetReadDeadline(time.Time{})

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		switch c.partial.stage {
		case 0, 1:
			if c.partial.stage == 0 {
				c.partial.stage = 1
			}
			n, err := c.netConn.Read(c.partial.lengthBuf[c.partial.lengthGot:])
			c.partial.lengthGot += n
			if err != nil {
				if isTimeout(err) {
					continue
				}
				return nil, translateReadErr(err)
			}
			if c.partial.lengthGot < len(c.partial.lengthBuf) {
				continue
			}

			length, err := c.recvState.openLength(c.partial.lengthBuf[:])
			if err != nil {
				return nil, err
			}
			c.partial.bodyLen = length
			c.partial.bodyBuf = make([]byte, int(length)+aeadTagSize)
			c.partial.bodyGot = 0
			c.partial.stage = 2

		case 2:
			n, err := c.netConn.Read(c.partial.bodyBuf[c.partial.bodyGot:])
			c.partial.bodyGot += n
			if err != nil {
				if isTimeout(err) {
					continue
				}
				return nil, translateReadErr(err)
			}
			if c.partial.bodyGot < len(c.partial.bodyBuf) {
				continue
			}

			pt, err := c.recvState.openBody(c.partial.bodyBuf)
			c.partial = partialFrame{}
			if err != nil {
				return nil, err
			}
			return pt, nil
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func translateReadErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrClosed, err)
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.netConn.Close()
}
