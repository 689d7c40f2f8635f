package htlcswitch

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
	"github.com/slacerda85/ihodl-sub007/lnwire"
	"github.com/slacerda85/ihodl-sub007/sphinx"
)

// fakeLink is a minimal ChannelLink recording whatever the switch sends
// to it, standing in for a real lnwallet.Channel-backed link in tests.
type fakeLink struct {
	scid lncrypto.ShortChannelID
	priv *btcec.PrivateKey

	sentAdds      []lnwire.MilliSatoshi
	sentFulfills  [][32]byte
	sentFailures  [][]byte
	nextHTLCID    uint64
}

func newFakeLink(t *testing.T, scid lncrypto.ShortChannelID) *fakeLink {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return &fakeLink{scid: scid, priv: priv}
}

func (f *fakeLink) ShortChanID() lncrypto.ShortChannelID { return f.scid }
func (f *fakeLink) NodeKey() *btcec.PublicKey             { return f.priv.PubKey() }

func (f *fakeLink) SendAdd(amountMsat uint64, paymentHash lncrypto.Hash256, cltvExpiry uint32, onionBlob [lnwire.OnionPacketSize]byte) (uint64, error) {
	f.sentAdds = append(f.sentAdds, lnwire.MilliSatoshi(amountMsat))
	id := f.nextHTLCID
	f.nextHTLCID++
	return id, nil
}

func (f *fakeLink) SendFulfill(htlcID uint64, preimage [32]byte) error {
	f.sentFulfills = append(f.sentFulfills, preimage)
	return nil
}

func (f *fakeLink) SendFail(htlcID uint64, reason []byte) error {
	f.sentFailures = append(f.sentFailures, reason)
	return nil
}

func buildOnion(t *testing.T, hopPrivs []*btcec.PrivateKey, payloads [][]byte, assocData []byte) [lnwire.OnionPacketSize]byte {
	t.Helper()

	sessionKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	hops := make([]sphinx.Hop, len(hopPrivs))
	for i, priv := range hopPrivs {
		hops[i] = sphinx.Hop{NodeID: priv.PubKey(), Payload: payloads[i]}
	}

	pkt, err := sphinx.NewPacket(sessionKey, hops, assocData)
	require.NoError(t, err)

	var blob [lnwire.OnionPacketSize]byte
	encodeOnionPacket(pkt, &blob)
	return blob
}

func TestHandleAddForwardsToNextHop(t *testing.T) {
	hopPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	finalPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	incomingScid := lncrypto.ShortChannelID{BlockHeight: 100, TxIndex: 1, TxPosition: 0}
	outgoingScid := lncrypto.ShortChannelID{BlockHeight: 100, TxIndex: 2, TxPosition: 0}

	paymentHash := [32]byte{1, 2, 3}

	hopPayload := BuildHopPayload(outgoingScid, 90_000, 500)
	finalPayload := BuildFinalHopPayload(89_000, 400, 89_000, [32]byte{9})

	onion := buildOnion(t,
		[]*btcec.PrivateKey{hopPriv, finalPriv},
		[][]byte{hopPayload, finalPayload},
		paymentHash[:],
	)

	sw := New(hopPriv, ForwardingPolicy{BaseFee: 1000, FeeRate: 1, TimeLockDelta: 40})

	outLink := newFakeLink(t, outgoingScid)
	sw.AddLink(outLink)

	htlc := &lnwire.UpdateAddHTLC{
		ID:          7,
		Amount:      100_000,
		PaymentHash: paymentHash,
		CLTVExpiry:  540,
		OnionBlob:   onion,
	}

	payload, isFinal, err := sw.HandleAdd(incomingScid, htlc)
	require.NoError(t, err)
	require.False(t, isFinal)
	require.Nil(t, payload)

	require.Len(t, outLink.sentAdds, 1)
	require.Equal(t, lnwire.MilliSatoshi(90_000), outLink.sentAdds[0])
	require.Equal(t, 1, sw.PendingCircuits())
}

func TestHandleAddUnknownNextHopFailsLocally(t *testing.T) {
	hopPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	finalPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	incomingScid := lncrypto.ShortChannelID{BlockHeight: 1, TxIndex: 1, TxPosition: 0}
	unreachableScid := lncrypto.ShortChannelID{BlockHeight: 9, TxIndex: 9, TxPosition: 9}

	paymentHash := [32]byte{4, 5, 6}

	hopPayload := BuildHopPayload(unreachableScid, 1000, 10)
	finalPayload := BuildFinalHopPayload(900, 5, 900, [32]byte{1})

	onion := buildOnion(t,
		[]*btcec.PrivateKey{hopPriv, finalPriv},
		[][]byte{hopPayload, finalPayload},
		paymentHash[:],
	)

	sw := New(hopPriv, ForwardingPolicy{})

	incomingLink := newFakeLink(t, incomingScid)
	sw.AddLink(incomingLink)

	htlc := &lnwire.UpdateAddHTLC{
		ID:          3,
		Amount:      2000,
		PaymentHash: paymentHash,
		CLTVExpiry:  100,
		OnionBlob:   onion,
	}

	_, _, err = sw.HandleAdd(incomingScid, htlc)
	require.Error(t, err)
	require.Len(t, incomingLink.sentFailures, 1)
	require.Equal(t, 0, sw.PendingCircuits())
}

func TestSettleAndFailRoundTripCircuit(t *testing.T) {
	hopPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	finalPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	incomingScid := lncrypto.ShortChannelID{BlockHeight: 1, TxIndex: 1, TxPosition: 0}
	outgoingScid := lncrypto.ShortChannelID{BlockHeight: 1, TxIndex: 2, TxPosition: 0}

	paymentHash := [32]byte{7, 7, 7}
	hopPayload := BuildHopPayload(outgoingScid, 5000, 50)
	finalPayload := BuildFinalHopPayload(4900, 10, 4900, [32]byte{2})

	onion := buildOnion(t,
		[]*btcec.PrivateKey{hopPriv, finalPriv},
		[][]byte{hopPayload, finalPayload},
		paymentHash[:],
	)

	sw := New(hopPriv, ForwardingPolicy{})

	incomingLink := newFakeLink(t, incomingScid)
	outgoingLink := newFakeLink(t, outgoingScid)
	sw.AddLink(incomingLink)
	sw.AddLink(outgoingLink)

	htlc := &lnwire.UpdateAddHTLC{
		ID:          1,
		Amount:      6000,
		PaymentHash: paymentHash,
		CLTVExpiry:  60,
		OnionBlob:   onion,
	}

	_, _, err = sw.HandleAdd(incomingScid, htlc)
	require.NoError(t, err)

	preimage := [32]byte{42}
	require.NoError(t, sw.SettleFromOutgoing(outgoingScid, 0, preimage))
	require.Len(t, incomingLink.sentFulfills, 1)
	require.Equal(t, preimage, incomingLink.sentFulfills[0])
	require.Equal(t, 0, sw.PendingCircuits())

	require.ErrorIs(t, sw.SettleFromOutgoing(outgoingScid, 0, preimage), ErrCircuitNotFound)
}

func TestFeeComputation(t *testing.T) {
	p := ForwardingPolicy{BaseFee: 1000, FeeRate: 10_000, TimeLockDelta: 40}
	require.Equal(t, lnwire.MilliSatoshi(2000), p.Fee(100_000))
}
