package lnwire

import "io"

// ReplyChannelRange answers a QueryChannelRange, possibly across several
// messages when Complete is 0, each covering a sub-range of the request
// (spec §4.7).
type ReplyChannelRange struct {
	ChainHash        [32]byte
	FirstBlockHeight uint32
	NumBlocks        uint32
	Complete         uint8
	EncodedShortIDs  []byte
}

var _ Message = (*ReplyChannelRange)(nil)

func (r *ReplyChannelRange) Decode(rd io.Reader) error {
	if err := readElements(rd,
		&r.ChainHash,
		&r.FirstBlockHeight,
		&r.NumBlocks,
		&r.Complete,
	); err != nil {
		return err
	}
	data, err := readVarBytes(rd, MaxMessagePayload)
	if err != nil {
		return err
	}
	r.EncodedShortIDs = data
	return nil
}

func (r *ReplyChannelRange) Encode(w io.Writer) error {
	if err := writeElements(w,
		r.ChainHash,
		r.FirstBlockHeight,
		r.NumBlocks,
		r.Complete,
	); err != nil {
		return err
	}
	return writeVarBytes(w, r.EncodedShortIDs)
}

func (r *ReplyChannelRange) MsgType() MessageType { return MsgReplyChannelRange }

func (r *ReplyChannelRange) MaxPayloadLength() uint32 { return MaxMessagePayload }
