package lnwire

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ChannelReady signals that the sender has seen the funding transaction
// reach its required confirmation depth and is ready for normal operation
// (spec §4.2.1); it also hands over the second per-commitment point.
type ChannelReady struct {
	ChanID                  ChannelID
	NextPerCommitmentPoint *btcec.PublicKey
}

var _ Message = (*ChannelReady)(nil)

func NewChannelReady(chanID ChannelID, point *btcec.PublicKey) *ChannelReady {
	return &ChannelReady{ChanID: chanID, NextPerCommitmentPoint: point}
}

func (c *ChannelReady) Decode(r io.Reader) error {
	return readElements(r, &c.ChanID, &c.NextPerCommitmentPoint)
}

func (c *ChannelReady) Encode(w io.Writer) error {
	return writeElements(w, c.ChanID, c.NextPerCommitmentPoint)
}

func (c *ChannelReady) MsgType() MessageType { return MsgChannelReady }

func (c *ChannelReady) MaxPayloadLength() uint32 { return MaxMessagePayload }
