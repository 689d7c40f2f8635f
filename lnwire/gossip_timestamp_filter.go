package lnwire

import "io"

// GossipTimestampFilter restricts which gossip messages a peer forwards
// to only those whose timestamp falls within [FirstTimestamp,
// FirstTimestamp+TimestampRange) (spec §4.7), letting a light client
// avoid a full graph resync.
type GossipTimestampFilter struct {
	ChainHash      [32]byte
	FirstTimestamp uint32
	TimestampRange uint32
}

var _ Message = (*GossipTimestampFilter)(nil)

func (g *GossipTimestampFilter) Decode(r io.Reader) error {
	return readElements(r, &g.ChainHash, &g.FirstTimestamp, &g.TimestampRange)
}

func (g *GossipTimestampFilter) Encode(w io.Writer) error {
	return writeElements(w, g.ChainHash, g.FirstTimestamp, g.TimestampRange)
}

func (g *GossipTimestampFilter) MsgType() MessageType { return MsgGossipTimestampFilter }

func (g *GossipTimestampFilter) MaxPayloadLength() uint32 { return MaxMessagePayload }
