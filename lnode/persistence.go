package lnode

import (
	"github.com/slacerda85/ihodl-sub007/channeldb"
	"github.com/slacerda85/ihodl-sub007/lncrypto"
	"github.com/slacerda85/ihodl-sub007/lnwallet"
)

// Persistence wraps the node's two storage engines (spec §4.8): the
// bbolt-backed channeldb.DB for channels/seeds/preimages/invoices/peers,
// and the SQLite-backed channeldb.ChannelGraph for the gossip schema
// (spec §6). The worker calls SnapshotChannel after ReceiveCommitSig and
// before the resulting revoke_and_ack is handed to the write loop (spec
// §5's ordering guarantee: "persistence of a new commitment precedes
// transmission of revoke_and_ack"), again after ReceiveRevokeAndAck, and
// at the funding_signed, channel_ready and closing_signed transitions.
type Persistence struct {
	DB    *channeldb.DB
	Graph *channeldb.ChannelGraph
}

// Open opens both backing stores at the paths named in cfg.
func Open(cfg Config) (*Persistence, error) {
	db, err := channeldb.Open(cfg.ChannelDBPath)
	if err != nil {
		return nil, err
	}
	graph, err := channeldb.OpenChannelGraph(cfg.GraphDBPath)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Persistence{DB: db, Graph: graph}, nil
}

// Close releases both backing stores.
func (p *Persistence) Close() error {
	graphErr := p.Graph.Close()
	dbErr := p.DB.Close()
	if graphErr != nil {
		return graphErr
	}
	return dbErr
}

// SnapshotChannel persists the durable half of a Channel's state: the
// spec §4.8 ChannelRecord fields and, if it exists yet, the revocation
// store (the seed is written once, at channel creation, by
// SnapshotSeed). It makes a single attempt and returns any error; the
// worker passes that error up without retrying, and the Channel's
// in-memory state has already moved to the new round when it is called.
func (p *Persistence) SnapshotChannel(ch *lnwallet.Channel) error {
	snap := ch.Snapshot()
	rec := &channeldb.ChannelRecord{
		ChannelID:       snap.ChannelID,
		State:           snap.State,
		FundingTxid:     snap.FundingOutpoint.Hash,
		FundingOutIndex: uint16(snap.FundingOutpoint.Index),
		CapacitySat:     snap.CapacitySat,
		LocalMsat:       snap.LocalMsat,
		RemoteMsat:      snap.RemoteMsat,
		WeAreFunder:     snap.WeAreFunder,
		LocalConfig:     snap.LocalConfig,
		RemoteConfig:    snap.RemoteConfig,
	}
	if snap.ShortChannelID != nil {
		rec.ShortChannelID = snap.ShortChannelID.ToUint64()
	}

	if err := p.DB.PutChannel(rec); err != nil {
		return err
	}
	if snap.RevocationStore != nil {
		if err := p.DB.PutRevocationStore(rec.ChannelID, snap.RevocationStore); err != nil {
			return err
		}
	}
	return nil
}

// SnapshotSeed persists a channel's per-commitment secret seed, written
// once at channel creation time (spec §4.8).
func (p *Persistence) SnapshotSeed(id lncrypto.ChannelID, seed [32]byte) error {
	return p.DB.PutChannelSeed(id, seed)
}

// ResumeChannels reloads every persisted channel, reconstructing enough
// of a lnwallet.Channel to participate in channel_reestablish (spec
// §4.8's crash-recovery rule): a channel whose last persisted state was
// mid-round (signed-but-not-revoked) resolves via the §4.2.4 table once
// its peer reconnects, rather than being treated as fresh.
func (p *Persistence) ResumeChannels() ([]*lnwallet.Channel, error) {
	var channels []*lnwallet.Channel
	err := p.DB.ForEachChannel(func(rec *channeldb.ChannelRecord) error {
		seed, err := p.DB.FetchChannelSeed(rec.ChannelID)
		if err != nil {
			return err
		}
		store, err := p.DB.FetchRevocationStore(rec.ChannelID)
		if err != nil {
			return err
		}

		ch := lnwallet.NewChannel(rec.WeAreFunder, rec.CapacitySat, rec.LocalConfig, rec.RemoteConfig, 0, seed)
		ch.ChannelID = rec.ChannelID
		if rec.ShortChannelID != 0 {
			scid := lncrypto.NewShortChannelIDFromUint64(rec.ShortChannelID)
			ch.ShortChannelID = &scid
		}
		ch.FundingOutpoint.Hash = rec.FundingTxid
		ch.FundingOutpoint.Index = uint32(rec.FundingOutIndex)
		ch.LocalMsat = rec.LocalMsat
		ch.RemoteMsat = rec.RemoteMsat
		ch.State = rec.State
		ch.RevocationStore = store

		channels = append(channels, ch)
		return nil
	})
	return channels, err
}
