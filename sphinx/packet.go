package sphinx

import (
	"bytes"
	"errors"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
	"github.com/slacerda85/ihodl-sub007/tlv"
)

// PacketSize is the fixed width of the onion routing-info buffer, per
// spec §4.6: every hop sees the same 1300-byte envelope regardless of the
// true path length, so no intermediate node can infer its position or the
// total hop count from packet size alone.
const PacketSize = 1300

// HMACSize is the width of the per-hop integrity tag chained through the
// buffer; the innermost (final) hop's embedded tag is all-zero, which
// Peel uses to recognize the end of the route.
const HMACSize = 32

// MaxHops bounds the number of hops a single onion can address; the
// testable property of spec §8 requires correct round-tripping for any
// k <= 20.
const MaxHops = 20

// ErrTooManyHops is returned when the caller supplies more than MaxHops
// hops, or hop payloads that cannot fit inside the fixed PacketSize
// envelope.
var ErrTooManyHops = errors.New("sphinx: hop payloads exceed packet capacity")

// ErrInvalidHMAC is returned by Peel when the embedded per-hop HMAC does
// not verify against the locally derived mu key; this always indicates
// onion tampering, a wrong node key, or a misrouted packet.
var ErrInvalidHMAC = errors.New("sphinx: hmac verification failed")

// Hop is one entry in the route a packet is built for: a public key the
// payload is encrypted to, and the opaque per-hop TLV payload meant for
// it.
type Hop struct {
	NodeID  *btcec.PublicKey
	Payload []byte
}

// Packet is the wire representation of one onion layer: a version byte
// (always 0 for the scheme this package implements), the ephemeral
// blinding point the recipient uses to recompute the shared secret, the
// fixed-size encrypted routing-info buffer, and the HMAC covering it.
type Packet struct {
	Version      byte
	EphemeralKey *btcec.PublicKey
	RoutingInfo  [PacketSize]byte
	HMAC         [HMACSize]byte
}

// hopFrame returns the bigsize-length-prefixed payload for hop h, without
// its trailing HMAC slot.
func hopFrame(payload []byte) []byte {
	var buf bytes.Buffer
	tlv.WriteBigSize(&buf, uint64(len(payload)))
	buf.Write(payload)
	return buf.Bytes()
}

// blindingStep advances the sender's running blinding scalar/point pair
// one hop, per spec §4.6: s_i = ECDH(x, n_i), b_i = SHA256(alpha_i || s_i),
// alpha_{i+1} = b_i * alpha_i, x <- b_i * x (mod n).
func blindingStep(x *btcec.PrivateKey, alpha *btcec.PublicKey, nodeID *btcec.PublicKey) (
	sharedSecret [32]byte, nextAlpha *btcec.PublicKey, nextX *btcec.PrivateKey) {

	s := lncrypto.ECDH(x, nodeID)
	b := lncrypto.Sha256(alpha.SerializeCompressed(), s[:])

	nextAlpha = lncrypto.ScalarMultPubKey(alpha, b)

	var xBytes [32]byte
	copy(xBytes[:], x.Serialize())
	newXBytes := lncrypto.MulPrivScalars(b, xBytes)
	nextX = btcec.PrivKeyFromBytes(newXBytes[:])

	return s, nextAlpha, nextX
}

// generateFiller pre-computes the trailing pseudo-random bytes that,
// after k-1 real peeling steps each extend the buffer by one hop's
// keystream, exactly reproduce the padding each intermediate hop would
// otherwise see truncated off during construction (spec §4.6's
// right-to-left shift). Built forward in hop order (hop 1 first), which
// is what makes the later backward construction loop self-consistent.
func generateFiller(frameLens []int, rhos [][32]byte) []byte {
	filler := make([]byte, 0, PacketSize)
	for i, frameLen := range frameLens {
		filler = append(filler, make([]byte, frameLen)...)

		stream, _ := generateStream(rhos[i], PacketSize+len(filler))
		tail := stream[PacketSize:]
		xorBytes(filler, tail)
	}
	return filler
}

// NewPacket constructs a layered onion addressed to the ordered hops,
// using sessionKey as the sender's one-time blinding scalar and
// assocData as additional authenticated data mixed into every per-hop
// HMAC (conventionally the payment hash, binding the onion to one
// payment attempt).
func NewPacket(sessionKey *btcec.PrivateKey, hops []Hop, assocData []byte) (*Packet, error) {
	numHops := len(hops)
	if numHops == 0 || numHops > MaxHops {
		return nil, ErrTooManyHops
	}

	frames := make([][]byte, numHops)
	frameLens := make([]int, numHops)
	total := 0
	for i, h := range hops {
		frames[i] = hopFrame(h.Payload)
		frameLens[i] = len(frames[i]) + HMACSize
		total += frameLens[i]
	}
	if total > PacketSize {
		return nil, ErrTooManyHops
	}

	alphas := make([]*btcec.PublicKey, numHops+1)
	secrets := make([][32]byte, numHops)

	alphas[0] = sessionKey.PubKey()
	x := sessionKey
	for i := 0; i < numHops; i++ {
		s, nextAlpha, nextX := blindingStep(x, alphas[i], hops[i].NodeID)
		secrets[i] = s
		alphas[i+1] = nextAlpha
		x = nextX
	}

	rhos := make([][32]byte, numHops)
	mus := make([][32]byte, numHops)
	for i := 0; i < numHops; i++ {
		rhos[i] = deriveKey(secrets[i], rhoKey)
		mus[i] = deriveKey(secrets[i], muKey)
	}

	filler := generateFiller(frameLens[:numHops-1], rhos[:numHops-1])

	var buf [PacketSize]byte
	basePad, _ := generateStream(deriveKey(secrets[numHops-1], padKey), PacketSize)
	copy(buf[:], basePad)
	copy(buf[PacketSize-len(filler):], filler)

	var hmacNext [HMACSize]byte // the innermost (final) hop carries an all-zero tag
	for i := numHops - 1; i >= 0; i-- {
		frameLen := frameLens[i]

		var shifted [PacketSize]byte
		copy(shifted[:], frames[i])
		copy(shifted[len(frames[i]):frameLen], hmacNext[:])
		copy(shifted[frameLen:], buf[:PacketSize-frameLen])

		stream, err := generateStream(rhos[i], PacketSize)
		if err != nil {
			return nil, err
		}
		xorBytes(shifted[:], stream)
		buf = shifted

		hmacNext = lncrypto.HMACSha256(mus[i][:], buf[:], assocData)
	}

	return &Packet{
		Version:      0,
		EphemeralKey: alphas[0],
		RoutingInfo:  buf,
		HMAC:         hmacNext,
	}, nil
}

// Peel strips one onion layer using nodePriv, the private key of the hop
// processing this packet. It returns the hop's own payload, the packet
// to forward to the next hop, the shared secret derived for this layer
// (needed to build a failure onion if forwarding fails), and whether
// this hop is the final one (an all-zero embedded HMAC).
func (p *Packet) Peel(nodePriv *btcec.PrivateKey, assocData []byte) (
	payload []byte, next *Packet, sharedSecret [32]byte, isLast bool, err error) {

	s := lncrypto.ECDH(nodePriv, p.EphemeralKey)
	rho := deriveKey(s, rhoKey)
	mu := deriveKey(s, muKey)

	expected := lncrypto.HMACSha256(mu[:], p.RoutingInfo[:], assocData)
	if !lncrypto.ConstantTimeCompare(expected[:], p.HMAC[:]) {
		return nil, nil, s, false, ErrInvalidHMAC
	}

	extended := make([]byte, PacketSize*2)
	copy(extended, p.RoutingInfo[:])
	stream, err := generateStream(rho, PacketSize*2)
	if err != nil {
		return nil, nil, s, false, err
	}
	xorBytes(extended, stream)

	r := bytes.NewReader(extended)
	length, err := tlv.ReadBigSize(r)
	if err != nil {
		return nil, nil, s, false, err
	}
	payload = make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, nil, s, false, err
	}
	var nextHMAC [HMACSize]byte
	if _, err := io.ReadFull(r, nextHMAC[:]); err != nil {
		return nil, nil, s, false, err
	}

	consumed := len(extended) - r.Len()
	var outgoing [PacketSize]byte
	copy(outgoing[:], extended[consumed:consumed+PacketSize])

	b := lncrypto.Sha256(p.EphemeralKey.SerializeCompressed(), s[:])
	nextAlpha := lncrypto.ScalarMultPubKey(p.EphemeralKey, b)

	isLast = nextHMAC == [HMACSize]byte{}

	next = &Packet{
		Version:      0,
		EphemeralKey: nextAlpha,
		RoutingInfo:  outgoing,
		HMAC:         nextHMAC,
	}
	return payload, next, s, isLast, nil
}
