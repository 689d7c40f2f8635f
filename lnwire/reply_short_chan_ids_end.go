package lnwire

import "io"

// ReplyShortChanIDsEnd marks the end of the batch of messages sent in
// response to a QueryShortChanIDs (spec §4.7).
type ReplyShortChanIDsEnd struct {
	ChainHash [32]byte
	Complete  uint8
}

var _ Message = (*ReplyShortChanIDsEnd)(nil)

func (r *ReplyShortChanIDsEnd) Decode(rd io.Reader) error {
	return readElements(rd, &r.ChainHash, &r.Complete)
}

func (r *ReplyShortChanIDsEnd) Encode(w io.Writer) error {
	return writeElements(w, r.ChainHash, r.Complete)
}

func (r *ReplyShortChanIDsEnd) MsgType() MessageType { return MsgReplyShortChanIDsEnd }

func (r *ReplyShortChanIDsEnd) MaxPayloadLength() uint32 { return MaxMessagePayload }
