package sphinx

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func randKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv
}

// TestRoundTripVaryingHopCounts builds a packet for every hop count from
// 1 to MaxHops and verifies each hop peels exactly its own payload in
// order, per spec §8's Sphinx round-trip property.
func TestRoundTripVaryingHopCounts(t *testing.T) {
	assocData := []byte("payment hash stand-in")

	for numHops := 1; numHops <= MaxHops; numHops++ {
		sessionKey := randKey(t)

		hopPrivs := make([]*btcec.PrivateKey, numHops)
		hops := make([]Hop, numHops)
		wantPayloads := make([][]byte, numHops)

		for i := 0; i < numHops; i++ {
			hopPrivs[i] = randKey(t)

			payload := make([]byte, 10+i*3)
			_, err := rand.Read(payload)
			require.NoError(t, err)

			hops[i] = Hop{NodeID: hopPrivs[i].PubKey(), Payload: payload}
			wantPayloads[i] = payload
		}

		pkt, err := NewPacket(sessionKey, hops, assocData)
		require.NoError(t, err)

		current := pkt
		for i := 0; i < numHops; i++ {
			payload, next, _, isLast, err := current.Peel(hopPrivs[i], assocData)
			require.NoError(t, err, "hop %d of %d", i, numHops)
			require.Equal(t, wantPayloads[i], payload, "hop %d of %d", i, numHops)
			require.Equal(t, i == numHops-1, isLast)
			current = next
		}
	}
}

// TestPeelRejectsWrongKey checks that a node attempting to peel with the
// wrong private key fails HMAC verification rather than silently
// producing garbage.
func TestPeelRejectsWrongKey(t *testing.T) {
	sessionKey := randKey(t)
	realHop := randKey(t)
	wrongHop := randKey(t)

	pkt, err := NewPacket(sessionKey, []Hop{
		{NodeID: realHop.PubKey(), Payload: []byte("hello")},
	}, []byte("ad"))
	require.NoError(t, err)

	_, _, _, _, err = pkt.Peel(wrongHop, []byte("ad"))
	require.ErrorIs(t, err, ErrInvalidHMAC)
}

// TestPeelRejectsWrongAssocData mirrors the handshake-level expectation
// that associated data binds the onion to one payment; a mismatched ad
// must fail the same way as a bit-flipped packet.
func TestPeelRejectsWrongAssocData(t *testing.T) {
	sessionKey := randKey(t)
	hop := randKey(t)

	pkt, err := NewPacket(sessionKey, []Hop{
		{NodeID: hop.PubKey(), Payload: []byte("hello")},
	}, []byte("correct"))
	require.NoError(t, err)

	_, _, _, _, err = pkt.Peel(hop, []byte("wrong"))
	require.ErrorIs(t, err, ErrInvalidHMAC)
}

// TestFailureRoundTrip builds a 3-hop onion, has the last hop emit a
// failure, relays it back through the intermediate hop, and confirms
// the sender locates the originating hop.
func TestFailureRoundTrip(t *testing.T) {
	assocData := []byte("ad")
	sessionKey := randKey(t)

	hopPrivs := make([]*btcec.PrivateKey, 3)
	hops := make([]Hop, 3)
	for i := range hopPrivs {
		hopPrivs[i] = randKey(t)
		hops[i] = Hop{NodeID: hopPrivs[i].PubKey(), Payload: []byte{byte(i)}}
	}

	pkt, err := NewPacket(sessionKey, hops, assocData)
	require.NoError(t, err)

	secrets := make([][32]byte, 3)
	current := pkt
	for i := 0; i < 3; i++ {
		_, next, secret, _, err := current.Peel(hopPrivs[i], assocData)
		require.NoError(t, err)
		secrets[i] = secret
		current = next
	}

	failureMsg := []byte("temporary_channel_failure")
	blob := BuildFailure(secrets[2], failureMsg)
	blob = RelayFailure(secrets[1], blob)
	blob = RelayFailure(secrets[0], blob)

	got, hopIdx, err := DecryptFailure(secrets, blob)
	require.NoError(t, err)
	require.Equal(t, failureMsg, got)
	require.Equal(t, 2, hopIdx)
}

func TestNewPacketRejectsTooManyHops(t *testing.T) {
	sessionKey := randKey(t)
	hops := make([]Hop, MaxHops+1)
	for i := range hops {
		hops[i] = Hop{NodeID: randKey(t).PubKey(), Payload: []byte("x")}
	}
	_, err := NewPacket(sessionKey, hops, nil)
	require.ErrorIs(t, err, ErrTooManyHops)
}

func TestGenerateFillerIsDeterministic(t *testing.T) {
	rho := [32]byte{1, 2, 3}
	a := generateFiller([]int{40, 40}, [][32]byte{rho, rho})
	b := generateFiller([]int{40, 40}, [][32]byte{rho, rho})
	require.True(t, bytes.Equal(a, b))
}
