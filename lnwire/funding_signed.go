package lnwire

import "io"

// FundingSigned delivers the fundee's signature on the funder's initial
// commitment transaction, the last step before both sides broadcast and
// await confirmations (spec §4.2.1).
type FundingSigned struct {
	ChanID    ChannelID
	CommitSig Sig
}

var _ Message = (*FundingSigned)(nil)

func (f *FundingSigned) Decode(r io.Reader) error {
	return readElements(r, &f.ChanID, &f.CommitSig)
}

func (f *FundingSigned) Encode(w io.Writer) error {
	return writeElements(w, f.ChanID, f.CommitSig)
}

func (f *FundingSigned) MsgType() MessageType { return MsgFundingSigned }

func (f *FundingSigned) MaxPayloadLength() uint32 { return MaxMessagePayload }
