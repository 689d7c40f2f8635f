package lnwire

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ChannelReestablish resynchronizes channel state after a reconnection
// (spec §4.2.4): each side reports its next expected commitment and
// revocation numbers, and proves it holds the secret for the last
// revoked state.
type ChannelReestablish struct {
	ChanID ChannelID

	NextLocalCommitmentNumber  uint64
	NextRemoteRevocationNumber uint64

	YourLastPerCommitmentSecret [32]byte
	MyCurrentPerCommitmentPoint *btcec.PublicKey
}

var _ Message = (*ChannelReestablish)(nil)

func (c *ChannelReestablish) Decode(r io.Reader) error {
	return readElements(r,
		&c.ChanID,
		&c.NextLocalCommitmentNumber,
		&c.NextRemoteRevocationNumber,
		&c.YourLastPerCommitmentSecret,
		&c.MyCurrentPerCommitmentPoint,
	)
}

func (c *ChannelReestablish) Encode(w io.Writer) error {
	return writeElements(w,
		c.ChanID,
		c.NextLocalCommitmentNumber,
		c.NextRemoteRevocationNumber,
		c.YourLastPerCommitmentSecret,
		c.MyCurrentPerCommitmentPoint,
	)
}

func (c *ChannelReestablish) MsgType() MessageType { return MsgChannelReestablish }

func (c *ChannelReestablish) MaxPayloadLength() uint32 { return MaxMessagePayload }
