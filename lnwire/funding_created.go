package lnwire

import "io"

// FundingCreated delivers the funding outpoint and the funder's signature
// on the fundee's initial commitment transaction (spec §4.2.1).
type FundingCreated struct {
	PendingChannelID  [32]byte
	FundingTxid       [32]byte
	FundingOutputIndex uint16
	CommitSig         Sig
}

var _ Message = (*FundingCreated)(nil)

func (f *FundingCreated) Decode(r io.Reader) error {
	return readElements(r,
		&f.PendingChannelID,
		&f.FundingTxid,
		&f.FundingOutputIndex,
		&f.CommitSig,
	)
}

func (f *FundingCreated) Encode(w io.Writer) error {
	return writeElements(w,
		f.PendingChannelID,
		f.FundingTxid,
		f.FundingOutputIndex,
		f.CommitSig,
	)
}

func (f *FundingCreated) MsgType() MessageType { return MsgFundingCreated }

func (f *FundingCreated) MaxPayloadLength() uint32 { return MaxMessagePayload }
