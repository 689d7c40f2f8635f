package lnwire

import "io"

// UpdateFee adjusts the commitment fee rate; only the funder may send it
// (spec §4.2.2).
type UpdateFee struct {
	ChanID   ChannelID
	FeePerKW uint32
}

var _ Message = (*UpdateFee)(nil)

func (u *UpdateFee) Decode(r io.Reader) error {
	return readElements(r, &u.ChanID, &u.FeePerKW)
}

func (u *UpdateFee) Encode(w io.Writer) error {
	return writeElements(w, u.ChanID, u.FeePerKW)
}

func (u *UpdateFee) MsgType() MessageType { return MsgUpdateFee }

func (u *UpdateFee) MaxPayloadLength() uint32 { return MaxMessagePayload }
