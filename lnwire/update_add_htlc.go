package lnwire

import "io"

// OnionPacketSize is the fixed size of a Sphinx onion packet (spec §4.6):
// 1 version byte + 33-byte ephemeral key + 1300-byte routing payload +
// 32-byte HMAC.
const OnionPacketSize = 1 + 33 + 1300 + 32

// UpdateAddHTLC proposes adding a new HTLC to the channel (spec §4.2.2).
type UpdateAddHTLC struct {
	ChanID      ChannelID
	ID          uint64
	Amount      uint64
	PaymentHash [32]byte
	CLTVExpiry  uint32
	OnionBlob   [OnionPacketSize]byte
}

var _ Message = (*UpdateAddHTLC)(nil)

func (u *UpdateAddHTLC) Decode(r io.Reader) error {
	if err := readElements(r,
		&u.ChanID,
		&u.ID,
		&u.Amount,
		&u.PaymentHash,
		&u.CLTVExpiry,
	); err != nil {
		return err
	}
	_, err := io.ReadFull(r, u.OnionBlob[:])
	return err
}

func (u *UpdateAddHTLC) Encode(w io.Writer) error {
	if err := writeElements(w,
		u.ChanID,
		u.ID,
		u.Amount,
		u.PaymentHash,
		u.CLTVExpiry,
	); err != nil {
		return err
	}
	_, err := w.Write(u.OnionBlob[:])
	return err
}

func (u *UpdateAddHTLC) MsgType() MessageType { return MsgUpdateAddHTLC }

func (u *UpdateAddHTLC) MaxPayloadLength() uint32 { return MaxMessagePayload }
