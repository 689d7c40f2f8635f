package discovery

import (
	"encoding/binary"
	"errors"

	"github.com/slacerda85/ihodl-sub007/channeldb"
	"github.com/slacerda85/ihodl-sub007/lnwire"
)

var (
	errUnsupportedEncoding = errors.New("discovery: only raw short_channel_id encoding (type 0) is supported")
	errTruncatedIDList     = errors.New("discovery: short_channel_id list is not a multiple of 8 bytes")
)

// EncodeShortChanIDs packs ids as BOLT #7's "encoding type 0" (raw,
// uncompressed) list: a one-byte encoding tag followed by 8 bytes per
// id. Compressed (zlib) encoding is not produced, since nothing in this
// module needs the smaller wire size to interoperate.
func EncodeShortChanIDs(ids []uint64) []byte {
	out := make([]byte, 1+8*len(ids))
	out[0] = 0
	for i, id := range ids {
		binary.BigEndian.PutUint64(out[1+8*i:], id)
	}
	return out
}

// DecodeShortChanIDs unpacks the encoding EncodeShortChanIDs produces.
func DecodeShortChanIDs(data []byte) ([]uint64, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] != 0 {
		return nil, errUnsupportedEncoding
	}
	body := data[1:]
	if len(body)%8 != 0 {
		return nil, errTruncatedIDList
	}
	ids := make([]uint64, len(body)/8)
	for i := range ids {
		ids[i] = binary.BigEndian.Uint64(body[8*i:])
	}
	return ids, nil
}

// ChannelRangeResult is one reply_channel_range answer, covering
// [FirstBlockHeight, FirstBlockHeight+NumBlocks).
type ChannelRangeResult struct {
	FirstBlockHeight uint32
	NumBlocks        uint32
	ShortChannelIDs  []uint64
}

// AnswerChannelRange builds the reply to a query_channel_range, listing
// every short_channel_id this gossiper has on file whose embedded block
// height falls in the requested range (spec §4.7's backfill bootstrap).
func (g *Gossiper) AnswerChannelRange(q *lnwire.QueryChannelRange) (*ChannelRangeResult, error) {
	lo := q.FirstBlockHeight
	hi := q.FirstBlockHeight + q.NumBlocks

	var ids []uint64
	err := g.graph.ForEachChannel(func(info *channeldb.ChannelInfo) error {
		if info.BlockHeight >= lo && info.BlockHeight < hi {
			ids = append(ids, info.ShortChannelID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &ChannelRangeResult{
		FirstBlockHeight: q.FirstBlockHeight,
		NumBlocks:        q.NumBlocks,
		ShortChannelIDs:  ids,
	}, nil
}

// ShortChanIDsResult is the batch of gossip messages answering a
// query_short_channel_ids, in no particular order; the caller frames
// each as its own wire message followed by a ReplyShortChanIDsEnd.
type ShortChanIDsResult struct {
	ChannelAnnouncements []*channeldb.ChannelInfo
	Policies             []*channeldb.Policy
	Nodes                []*channeldb.NodeInfo
}

// AnswerShortChanIDs gathers the announcement, policy, and node records
// for every requested short_channel_id (spec §4.7).
func (g *Gossiper) AnswerShortChanIDs(q *lnwire.QueryShortChanIDs) (*ShortChanIDsResult, error) {
	ids, err := DecodeShortChanIDs(q.EncodedShortIDs)
	if err != nil {
		return nil, err
	}

	res := &ShortChanIDsResult{}
	seenNodes := make(map[string]bool)
	for _, scid := range ids {
		info, err := g.graph.FetchChannel(scid)
		if err != nil {
			continue
		}
		res.ChannelAnnouncements = append(res.ChannelAnnouncements, info)

		dir0, dir1, err := g.graph.FetchPolicies(scid)
		if err != nil {
			return nil, err
		}
		if dir0 != nil {
			res.Policies = append(res.Policies, dir0)
		}
		if dir1 != nil {
			res.Policies = append(res.Policies, dir1)
		}

		for _, nodeID := range [][]byte{info.Node1ID, info.Node2ID} {
			key := string(nodeID)
			if seenNodes[key] {
				continue
			}
			seenNodes[key] = true
			if n, err := g.graph.FetchNode(nodeID); err == nil {
				res.Nodes = append(res.Nodes, n)
			}
		}
	}
	return res, nil
}

// TimestampFilter restricts which gossip messages are forwarded to a
// peer to those whose timestamp falls in [First, First+Range)
// (spec §4.7's gossip_timestamp_filter).
type TimestampFilter struct {
	First uint32
	Range uint32
}

// NewTimestampFilter builds a TimestampFilter from the wire message.
func NewTimestampFilter(f *lnwire.GossipTimestampFilter) TimestampFilter {
	return TimestampFilter{First: f.FirstTimestamp, Range: f.TimestampRange}
}

// Allows reports whether a message timestamped ts should be forwarded
// under this filter.
func (f TimestampFilter) Allows(ts uint32) bool {
	return ts >= f.First && ts < f.First+f.Range
}
