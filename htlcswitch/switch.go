// Package htlcswitch forwards HTLCs between channels (spec §2 C6/C9
// boundary: the switch owns the routing-independent half of HTLC
// forwarding once the pathfinder has already chosen a route). It peels
// one Sphinx layer per forwarded add, tracks the incoming/outgoing
// circuit for every in-flight HTLC so the eventual fulfill or fail can
// be relayed back to the correct upstream channel, and enforces the
// forwarding policy (fees, CLTV delta) advertised in this node's
// channel_update.
//
// Adapted from the teacher's htlcswitch/switch.go (the circuit-map
// idiom: one inbound link hands a packet to the switch, which resolves
// the outbound link and forwards), generalized from the teacher's ad
// hoc pre-BOLT htlcPacket/link types to this tree's lnwire messages,
// lnwallet.Channel, and sphinx onion engine.
package htlcswitch

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/go-errors/errors"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
	"github.com/slacerda85/ihodl-sub007/lnwire"
	"github.com/slacerda85/ihodl-sub007/sphinx"
)

// Errors surfaced by the switch (spec §7's routing/resource taxonomy).
var (
	ErrChannelLinkNotFound = errors.New("htlcswitch: no link registered for that channel id")
	ErrCircuitNotFound     = errors.New("htlcswitch: no open circuit for that incoming htlc")
	ErrUnknownNextHop      = errors.New("htlcswitch: onion requests forwarding through an unregistered channel")
)

// ForwardingPolicy is the fee and CLTV-delta policy this node enforces
// on HTLCs it forwards, matching the values it advertises in its own
// channel_update (spec §4.7).
type ForwardingPolicy struct {
	MinHTLC       lnwire.MilliSatoshi
	BaseFee       lnwire.MilliSatoshi
	FeeRate       uint32 // parts per million
	TimeLockDelta uint32
}

// Fee computes the forwarding fee this policy charges for forwarding
// amt (spec §4.7's edge cost formula, applied to this node's own hop).
func (p ForwardingPolicy) Fee(amt lnwire.MilliSatoshi) lnwire.MilliSatoshi {
	return p.BaseFee + lnwire.MilliSatoshi(uint64(amt)*uint64(p.FeeRate)/1_000_000)
}

// ChannelLink is the switch's view of one active channel: enough to
// forward an HTLC onto it and to identify it by short_channel_id.
type ChannelLink interface {
	// ShortChanID is the link's short_channel_id, 0 before the funding
	// transaction has confirmed (spec §3).
	ShortChanID() lncrypto.ShortChannelID

	// NodeKey is the public key of the peer on the other end of the link.
	NodeKey() *btcec.PublicKey

	// SendAdd proposes a new outgoing HTLC on this link (spec §4.2.2
	// step 1) and returns the id assigned to it.
	SendAdd(amountMsat uint64, paymentHash lncrypto.Hash256, cltvExpiry uint32, onionBlob [lnwire.OnionPacketSize]byte) (uint64, error)

	// SendFulfill settles a previously received HTLC on this link.
	SendFulfill(htlcID uint64, preimage [32]byte) error

	// SendFail fails a previously received HTLC on this link, carrying
	// an already-built (and, for intermediate hops, already
	// re-obfuscated) onion failure reason.
	SendFail(htlcID uint64, reason []byte) error
}

// circuit correlates one forwarded HTLC: the channel and id it arrived
// on, the channel and id it was forwarded as, and the shared secret this
// hop derived when it peeled the onion (needed to wrap a failure for the
// return trip, spec §4.6).
type circuit struct {
	incomingChan lncrypto.ShortChannelID
	incomingID   uint64
	outgoingChan lncrypto.ShortChannelID
	outgoingID   uint64
	sharedSecret [32]byte
}

type circuitKey struct {
	chanID lncrypto.ShortChannelID
	htlcID uint64
}

// Switch is the node's HTLC forwarding table (component C6/C9 glue):
// one Switch is shared by every ChannelLink the node has open, and
// mutates its circuit map only from the single goroutine that owns it
// via ForwardAdd/ForwardSettle/ForwardFail (spec §5: "at most one
// handler runs at a time" per shared resource).
type Switch struct {
	mu sync.Mutex

	links map[lncrypto.ShortChannelID]ChannelLink

	// byIncoming and byOutgoing both index the same circuits, letting the
	// switch resolve a fulfill/fail arriving on either leg back to its
	// counterpart in O(1).
	byIncoming map[circuitKey]*circuit
	byOutgoing map[circuitKey]*circuit

	nodePriv *btcec.PrivateKey
	policy   ForwardingPolicy
}

// New constructs an empty Switch. nodePriv is this node's onion
// decryption key, used to peel the Sphinx layer addressed to it.
func New(nodePriv *btcec.PrivateKey, policy ForwardingPolicy) *Switch {
	return &Switch{
		links:      make(map[lncrypto.ShortChannelID]ChannelLink),
		byIncoming: make(map[circuitKey]*circuit),
		byOutgoing: make(map[circuitKey]*circuit),
		nodePriv:   nodePriv,
		policy:     policy,
	}
}

// AddLink registers a channel as available for forwarding.
func (s *Switch) AddLink(link ChannelLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[link.ShortChanID()] = link
}

// RemoveLink unregisters a channel, e.g. once it has closed.
func (s *Switch) RemoveLink(scid lncrypto.ShortChannelID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, scid)
}

// HandleAdd processes an update_add_htlc arriving on incomingChan: it
// peels one Sphinx layer, and either forwards the revealed payload onto
// the next hop (opening a circuit) or, if this node is the final hop,
// returns the payload for the caller (e.g. invoice settlement) to
// process directly.
//
// The payment hash is passed to Peel as the associated data bound into
// the onion HMAC at construction (spec §4.6).
func (s *Switch) HandleAdd(incomingChan lncrypto.ShortChannelID, htlc *lnwire.UpdateAddHTLC) (
	finalPayload []byte, isFinalHop bool, err error) {

	pkt, err := decodeOnionPacket(htlc.OnionBlob)
	if err != nil {
		return nil, false, err
	}

	payload, next, sharedSecret, isLast, err := pkt.Peel(s.nodePriv, htlc.PaymentHash[:])
	if err != nil {
		return nil, false, s.failLocally(incomingChan, htlc.ID, sharedSecret, err)
	}

	if isLast {
		return payload, true, nil
	}

	nextChanID, amtToForward, outgoingCLTV, err := parseForwardingInstruction(payload)
	if err != nil {
		return nil, false, s.failLocally(incomingChan, htlc.ID, sharedSecret, err)
	}

	if htlc.Amount < amtToForward+uint64(s.policy.Fee(lnwire.MilliSatoshi(amtToForward))) ||
		htlc.CLTVExpiry < outgoingCLTV+s.policy.TimeLockDelta {
		return nil, false, s.failLocally(incomingChan, htlc.ID, sharedSecret,
			fmt.Errorf("htlcswitch: htlc does not cover the forwarding fee or cltv delta"))
	}

	s.mu.Lock()
	link, ok := s.links[nextChanID]
	s.mu.Unlock()
	if !ok {
		return nil, false, s.failLocally(incomingChan, htlc.ID, sharedSecret, ErrUnknownNextHop)
	}

	var onionBlob [lnwire.OnionPacketSize]byte
	encodeOnionPacket(next, &onionBlob)

	outgoingID, err := link.SendAdd(amtToForward, lncrypto.Hash256(htlc.PaymentHash), outgoingCLTV, onionBlob)
	if err != nil {
		return nil, false, s.failLocally(incomingChan, htlc.ID, sharedSecret, err)
	}

	s.mu.Lock()
	c := &circuit{
		incomingChan: incomingChan,
		incomingID:   htlc.ID,
		outgoingChan: nextChanID,
		outgoingID:   outgoingID,
		sharedSecret: sharedSecret,
	}
	s.byIncoming[circuitKey{incomingChan, htlc.ID}] = c
	s.byOutgoing[circuitKey{nextChanID, outgoingID}] = c
	s.mu.Unlock()

	return nil, false, nil
}

// failLocally fails the incoming HTLC directly (no forwarding attempted,
// or forwarding itself failed before an outgoing circuit opened), using
// BuildFailure to seal the reason under this hop's shared secret so the
// sender can attribute it once the failure reaches them (spec §4.6).
func (s *Switch) failLocally(incomingChan lncrypto.ShortChannelID, htlcID uint64, sharedSecret [32]byte, cause error) error {
	s.mu.Lock()
	link, ok := s.links[incomingChan]
	s.mu.Unlock()
	if !ok {
		return ErrChannelLinkNotFound
	}
	reason := sphinx.BuildFailure(sharedSecret, []byte(cause.Error()))
	return link.SendFail(htlcID, reason)
}

// SettleFromOutgoing is called once the outgoing link this HTLC was
// forwarded onto reports a fulfill: it relays the preimage back to the
// incoming link and closes the circuit.
func (s *Switch) SettleFromOutgoing(outgoingChan lncrypto.ShortChannelID, outgoingID uint64, preimage [32]byte) error {
	s.mu.Lock()
	c, ok := s.byOutgoing[circuitKey{outgoingChan, outgoingID}]
	if !ok {
		s.mu.Unlock()
		return ErrCircuitNotFound
	}
	delete(s.byOutgoing, circuitKey{outgoingChan, outgoingID})
	delete(s.byIncoming, circuitKey{c.incomingChan, c.incomingID})
	link, linkOK := s.links[c.incomingChan]
	s.mu.Unlock()

	if !linkOK {
		return ErrChannelLinkNotFound
	}
	return link.SendFulfill(c.incomingID, preimage)
}

// FailFromOutgoing is called once the outgoing link reports a failure:
// it re-obfuscates the already-sealed failure reason with this hop's
// own shared secret (spec §4.6's "each hop XORs with its own um-derived
// stream on the return path") and relays it to the incoming link.
func (s *Switch) FailFromOutgoing(outgoingChan lncrypto.ShortChannelID, outgoingID uint64, reason []byte) error {
	s.mu.Lock()
	c, ok := s.byOutgoing[circuitKey{outgoingChan, outgoingID}]
	if !ok {
		s.mu.Unlock()
		return ErrCircuitNotFound
	}
	delete(s.byOutgoing, circuitKey{outgoingChan, outgoingID})
	delete(s.byIncoming, circuitKey{c.incomingChan, c.incomingID})
	link, linkOK := s.links[c.incomingChan]
	s.mu.Unlock()

	if !linkOK {
		return ErrChannelLinkNotFound
	}
	relayed := sphinx.RelayFailure(c.sharedSecret, reason)
	return link.SendFail(c.incomingID, relayed)
}

// PendingCircuits reports how many HTLCs are currently in flight through
// the switch, used by the caller to size rate limiting and circuit
// breakers (spec §5).
func (s *Switch) PendingCircuits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byIncoming)
}

func decodeOnionPacket(blob [lnwire.OnionPacketSize]byte) (*sphinx.Packet, error) {
	if blob[0] != 0 {
		return nil, fmt.Errorf("htlcswitch: unsupported onion version %d", blob[0])
	}
	pub, err := btcec.ParsePubKey(blob[1:34])
	if err != nil {
		return nil, err
	}
	var routingInfo [sphinx.PacketSize]byte
	copy(routingInfo[:], blob[34:34+sphinx.PacketSize])
	var hmac [sphinx.HMACSize]byte
	copy(hmac[:], blob[34+sphinx.PacketSize:])
	return &sphinx.Packet{Version: 0, EphemeralKey: pub, RoutingInfo: routingInfo, HMAC: hmac}, nil
}

func encodeOnionPacket(pkt *sphinx.Packet, out *[lnwire.OnionPacketSize]byte) {
	out[0] = pkt.Version
	copy(out[1:34], pkt.EphemeralKey.SerializeCompressed())
	copy(out[34:34+sphinx.PacketSize], pkt.RoutingInfo[:])
	copy(out[34+sphinx.PacketSize:], pkt.HMAC[:])
}
