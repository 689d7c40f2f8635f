package lnwire

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func randPubKey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func randChannelID(t *testing.T) ChannelID {
	t.Helper()
	var id ChannelID
	_, err := rand.Read(id[:])
	require.NoError(t, err)
	return id
}

// roundTrip writes msg via WriteMessage and parses it back via
// ReadMessage, asserting the result matches byte-for-byte.
func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()

	raw, err := WriteMessage(msg)
	require.NoError(t, err)

	parsed, err := ReadMessage(raw)
	require.NoError(t, err)
	require.NotNil(t, parsed)
	require.Equal(t, msg.MsgType(), parsed.MsgType())

	rawAgain, err := WriteMessage(parsed)
	require.NoError(t, err)
	require.True(t, bytes.Equal(raw, rawAgain))

	return parsed
}

func TestInitRoundTrip(t *testing.T) {
	features := NewRawFeatureVector(0, 5, 12)
	msg := NewInitMessage(NewRawFeatureVector(), features)

	parsed := roundTrip(t, msg).(*Init)
	require.True(t, parsed.Features.IsSet(5))
	require.False(t, parsed.Features.IsSet(6))
}

func TestPingPongRoundTrip(t *testing.T) {
	ping := NewPing(16)
	ping.PaddingBytes = make([]byte, 16)

	parsedPing := roundTrip(t, ping).(*Ping)
	require.EqualValues(t, 16, parsedPing.NumPongBytes)
	require.Len(t, parsedPing.PaddingBytes, 16)

	pong := NewPong(8)
	parsedPong := roundTrip(t, pong).(*Pong)
	require.Len(t, parsedPong.PongBytes, 8)
}

func TestErrorRoundTrip(t *testing.T) {
	chanID := randChannelID(t)
	msg := NewError(chanID, "breach detected")

	parsed := roundTrip(t, msg).(*Error)
	require.Equal(t, chanID, parsed.ChanID)
	require.Equal(t, "breach detected", parsed.Error())
}

func TestChannelReadyRoundTrip(t *testing.T) {
	chanID := randChannelID(t)
	point := randPubKey(t)
	msg := NewChannelReady(chanID, point)

	parsed := roundTrip(t, msg).(*ChannelReady)
	require.Equal(t, chanID, parsed.ChanID)
	require.True(t, point.IsEqual(parsed.NextPerCommitmentPoint))
}

func TestUpdateAddHTLCRoundTrip(t *testing.T) {
	msg := &UpdateAddHTLC{
		ChanID:     randChannelID(t),
		ID:         42,
		Amount:     100000,
		CLTVExpiry: 500000,
	}
	_, err := rand.Read(msg.PaymentHash[:])
	require.NoError(t, err)
	_, err = rand.Read(msg.OnionBlob[:])
	require.NoError(t, err)

	parsed := roundTrip(t, msg).(*UpdateAddHTLC)
	require.Equal(t, msg.PaymentHash, parsed.PaymentHash)
	require.Equal(t, msg.OnionBlob, parsed.OnionBlob)
	require.EqualValues(t, 42, parsed.ID)
}

func TestCommitSigRoundTrip(t *testing.T) {
	msg := &CommitSig{
		ChanID:   randChannelID(t),
		HTLCSigs: make([]Sig, 3),
	}
	for i := range msg.HTLCSigs {
		_, err := rand.Read(msg.HTLCSigs[i][:])
		require.NoError(t, err)
	}

	parsed := roundTrip(t, msg).(*CommitSig)
	require.Len(t, parsed.HTLCSigs, 3)
	require.Equal(t, msg.HTLCSigs, parsed.HTLCSigs)
}

func TestChannelAnnouncementDigestExcludesSignatures(t *testing.T) {
	msg := &ChannelAnnouncement{
		Features:    NewRawFeatureVector(),
		NodeID1:     randPubKey(t),
		NodeID2:     randPubKey(t),
		BitcoinKey1: randPubKey(t),
		BitcoinKey2: randPubKey(t),
	}
	digestBefore, err := msg.DigestTBS()
	require.NoError(t, err)

	_, err = rand.Read(msg.NodeSig1[:])
	require.NoError(t, err)

	digestAfter, err := msg.DigestTBS()
	require.NoError(t, err)
	require.Equal(t, digestBefore, digestAfter)
}

func TestReadMessageIgnoresUnknownOddType(t *testing.T) {
	raw := []byte{0x01, 0xff, 0xde, 0xad}
	msg, err := ReadMessage(raw)
	require.NoError(t, err)
	require.Nil(t, msg)
}

func TestReadMessageRejectsUnknownEvenType(t *testing.T) {
	raw := []byte{0x01, 0xfe, 0xde, 0xad}
	_, err := ReadMessage(raw)
	require.Error(t, err)
}
