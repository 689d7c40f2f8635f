package lnwire

import "io"

// UpdateFailHTLC fails an HTLC, carrying the onion-wrapped failure reason
// produced by the Sphinx error path (spec §4.6).
type UpdateFailHTLC struct {
	ChanID ChannelID
	ID     uint64
	Reason []byte
}

var _ Message = (*UpdateFailHTLC)(nil)

func (u *UpdateFailHTLC) Decode(r io.Reader) error {
	if err := readElements(r, &u.ChanID, &u.ID); err != nil {
		return err
	}
	reason, err := readVarBytes(r, MaxMessagePayload)
	if err != nil {
		return err
	}
	u.Reason = reason
	return nil
}

func (u *UpdateFailHTLC) Encode(w io.Writer) error {
	if err := writeElements(w, u.ChanID, u.ID); err != nil {
		return err
	}
	return writeVarBytes(w, u.Reason)
}

func (u *UpdateFailHTLC) MsgType() MessageType { return MsgUpdateFailHTLC }

func (u *UpdateFailHTLC) MaxPayloadLength() uint32 { return MaxMessagePayload }
