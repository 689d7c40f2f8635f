package lnwire

import "io"

// QueryChannelRange asks the peer for every short_channel_id opened in
// the given block range (spec §4.7), the bootstrap path a node uses to
// backfill its gossip store after being offline.
type QueryChannelRange struct {
	ChainHash        [32]byte
	FirstBlockHeight uint32
	NumBlocks        uint32
}

var _ Message = (*QueryChannelRange)(nil)

func (q *QueryChannelRange) Decode(r io.Reader) error {
	return readElements(r, &q.ChainHash, &q.FirstBlockHeight, &q.NumBlocks)
}

func (q *QueryChannelRange) Encode(w io.Writer) error {
	return writeElements(w, q.ChainHash, q.FirstBlockHeight, q.NumBlocks)
}

func (q *QueryChannelRange) MsgType() MessageType { return MsgQueryChannelRange }

func (q *QueryChannelRange) MaxPayloadLength() uint32 { return MaxMessagePayload }
