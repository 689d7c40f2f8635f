package lnwire

import "io"

// QueryShortChanIDs asks the peer for the channel_announcement,
// channel_update, and node_announcement messages for a specific set of
// short channel ids (spec §4.7). EncodedShortIDs carries the BOLT #7
// encoding byte followed by either a raw or zlib-compressed array of
// 8-byte ids; this module treats it opaquely and leaves (de)compression
// to the discovery package.
type QueryShortChanIDs struct {
	ChainHash       [32]byte
	EncodedShortIDs []byte
}

var _ Message = (*QueryShortChanIDs)(nil)

func (q *QueryShortChanIDs) Decode(r io.Reader) error {
	if err := readElement(r, &q.ChainHash); err != nil {
		return err
	}
	data, err := readVarBytes(r, MaxMessagePayload)
	if err != nil {
		return err
	}
	q.EncodedShortIDs = data
	return nil
}

func (q *QueryShortChanIDs) Encode(w io.Writer) error {
	if err := writeElement(w, q.ChainHash); err != nil {
		return err
	}
	return writeVarBytes(w, q.EncodedShortIDs)
}

func (q *QueryShortChanIDs) MsgType() MessageType { return MsgQueryShortChanIDs }

func (q *QueryShortChanIDs) MaxPayloadLength() uint32 { return MaxMessagePayload }
