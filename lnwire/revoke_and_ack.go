package lnwire

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// RevokeAndAck surrenders the revocation secret for the commitment the
// sender just superseded, and hands over the next per-commitment point
// (spec §4.2.2, §4.3).
type RevokeAndAck struct {
	ChanID                  ChannelID
	Revocation              [32]byte
	NextPerCommitmentPoint *btcec.PublicKey
}

var _ Message = (*RevokeAndAck)(nil)

func (r *RevokeAndAck) Decode(rd io.Reader) error {
	return readElements(rd, &r.ChanID, &r.Revocation, &r.NextPerCommitmentPoint)
}

func (r *RevokeAndAck) Encode(w io.Writer) error {
	return writeElements(w, r.ChanID, r.Revocation, r.NextPerCommitmentPoint)
}

func (r *RevokeAndAck) MsgType() MessageType { return MsgRevokeAndAck }

func (r *RevokeAndAck) MaxPayloadLength() uint32 { return MaxMessagePayload }
