package lnwire

import "io"

// ClosingSigned negotiates the closing transaction fee during cooperative
// close (spec §4.2.3): each side proposes a fee and signature until both
// agree.
type ClosingSigned struct {
	ChanID      ChannelID
	FeeSatoshis uint64
	Signature   Sig
}

var _ Message = (*ClosingSigned)(nil)

func (c *ClosingSigned) Decode(r io.Reader) error {
	return readElements(r, &c.ChanID, &c.FeeSatoshis, &c.Signature)
}

func (c *ClosingSigned) Encode(w io.Writer) error {
	return writeElements(w, c.ChanID, c.FeeSatoshis, c.Signature)
}

func (c *ClosingSigned) MsgType() MessageType { return MsgClosingSigned }

func (c *ClosingSigned) MaxPayloadLength() uint32 { return MaxMessagePayload }
