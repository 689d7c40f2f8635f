package lnwire

import "io"

// UpdateFulfillHTLC releases the preimage settling an HTLC (spec §4.2.2).
type UpdateFulfillHTLC struct {
	ChanID          ChannelID
	ID              uint64
	PaymentPreimage [32]byte
}

var _ Message = (*UpdateFulfillHTLC)(nil)

func (u *UpdateFulfillHTLC) Decode(r io.Reader) error {
	return readElements(r, &u.ChanID, &u.ID, &u.PaymentPreimage)
}

func (u *UpdateFulfillHTLC) Encode(w io.Writer) error {
	return writeElements(w, u.ChanID, u.ID, u.PaymentPreimage)
}

func (u *UpdateFulfillHTLC) MsgType() MessageType { return MsgUpdateFulfillHTLC }

func (u *UpdateFulfillHTLC) MaxPayloadLength() uint32 { return MaxMessagePayload }
