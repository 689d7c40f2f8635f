// graph.go is the SQLite-backed gossip graph façade (spec §4.8/§6,
// component C8's persistence layer): four tables — channel_info, policy,
// node_info, node_address — exactly as spec §6 names their columns.
// Adapted from the teacher's channeldb/graph.go ChannelGraph CRUD shape
// (AddChannelEdge/UpdateEdgePolicy/AddLightningNode/ForEachChannel), but
// backed by modernc.org/sqlite instead of bbolt, since the teacher's own
// go.mod already carries modernc.org/sqlite for exactly this component
// and spec §6 calls for a SQL schema with named, indexed columns rather
// than an opaque KV blob.
package channeldb

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ChannelGraph is the persisted, queryable public channel graph the
// router reads from and the gossip processor writes to (spec §4.7/§4.8).
type ChannelGraph struct {
	db *sql.DB
}

// OpenChannelGraph opens (creating and migrating if necessary) the
// SQLite gossip database at path.
func OpenChannelGraph(path string) (*ChannelGraph, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("channeldb: open graph db: %w", err)
	}
	g := &ChannelGraph{db: db}
	if err := g.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return g, nil
}

func (g *ChannelGraph) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS channel_info (
			short_channel_id INTEGER PRIMARY KEY,
			funding_txid BLOB NOT NULL,
			funding_vout INTEGER NOT NULL,
			capacity_sat INTEGER NOT NULL,
			node1_id BLOB NOT NULL,
			node2_id BLOB NOT NULL,
			announcement_blob BLOB,
			received_at INTEGER NOT NULL,
			block_height INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS channel_info_node1 ON channel_info(node1_id)`,
		`CREATE INDEX IF NOT EXISTS channel_info_node2 ON channel_info(node2_id)`,
		`CREATE INDEX IF NOT EXISTS channel_info_capacity ON channel_info(capacity_sat)`,
		`CREATE TABLE IF NOT EXISTS policy (
			short_channel_id INTEGER NOT NULL,
			direction INTEGER NOT NULL,
			fee_base_msat INTEGER NOT NULL,
			fee_proportional_millionths INTEGER NOT NULL,
			htlc_minimum_msat INTEGER NOT NULL,
			htlc_maximum_msat INTEGER,
			cltv_expiry_delta INTEGER NOT NULL,
			channel_flags INTEGER NOT NULL,
			message_flags INTEGER NOT NULL,
			timestamp INTEGER NOT NULL,
			channel_update_blob BLOB,
			PRIMARY KEY (short_channel_id, direction)
		)`,
		`CREATE TABLE IF NOT EXISTS node_info (
			node_id BLOB PRIMARY KEY,
			alias TEXT,
			color TEXT,
			features BLOB,
			timestamp INTEGER NOT NULL,
			announcement_blob BLOB
		)`,
		`CREATE TABLE IF NOT EXISTS node_address (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			node_id BLOB NOT NULL,
			address_type INTEGER NOT NULL,
			host TEXT NOT NULL,
			port INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS node_address_node ON node_address(node_id)`,
	}
	for _, stmt := range stmts {
		if _, err := g.db.Exec(stmt); err != nil {
			return fmt.Errorf("channeldb: migrate graph: %w", err)
		}
	}
	return nil
}

// Close releases the underlying SQLite connection.
func (g *ChannelGraph) Close() error { return g.db.Close() }

// ChannelInfo is a row of the channel_info table.
type ChannelInfo struct {
	ShortChannelID    uint64
	FundingTxid       [32]byte
	FundingVout       uint16
	CapacitySat       uint64
	Node1ID           []byte
	Node2ID           []byte
	AnnouncementBlob  []byte
	ReceivedAt        int64
	BlockHeight       uint32
}

// AddChannel inserts or replaces a channel_announcement's row (spec
// §4.7: a channel_update is rejected unless this row already exists).
func (g *ChannelGraph) AddChannel(info *ChannelInfo) error {
	_, err := g.db.Exec(
		`INSERT INTO channel_info
			(short_channel_id, funding_txid, funding_vout, capacity_sat,
			 node1_id, node2_id, announcement_blob, received_at, block_height)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(short_channel_id) DO UPDATE SET
			announcement_blob = excluded.announcement_blob`,
		info.ShortChannelID, info.FundingTxid[:], info.FundingVout, info.CapacitySat,
		info.Node1ID, info.Node2ID, info.AnnouncementBlob, info.ReceivedAt, info.BlockHeight,
	)
	return err
}

// HasChannel reports whether scid already has an announcement on file,
// the precondition spec §4.7 places on accepting a channel_update.
func (g *ChannelGraph) HasChannel(scid uint64) (bool, error) {
	var n int
	err := g.db.QueryRow(`SELECT COUNT(1) FROM channel_info WHERE short_channel_id = ?`, scid).Scan(&n)
	return n > 0, err
}

// FetchChannel loads the channel_info row for scid.
func (g *ChannelGraph) FetchChannel(scid uint64) (*ChannelInfo, error) {
	row := g.db.QueryRow(
		`SELECT short_channel_id, funding_txid, funding_vout, capacity_sat,
			node1_id, node2_id, announcement_blob, received_at, block_height
		 FROM channel_info WHERE short_channel_id = ?`, scid)
	info := &ChannelInfo{}
	var txid []byte
	if err := row.Scan(&info.ShortChannelID, &txid, &info.FundingVout, &info.CapacitySat,
		&info.Node1ID, &info.Node2ID, &info.AnnouncementBlob, &info.ReceivedAt, &info.BlockHeight); err != nil {
		return nil, err
	}
	copy(info.FundingTxid[:], txid)
	return info, nil
}

// DeleteChannel removes scid and its policies, used by PruneStale for
// channels whose entries have gone stale (spec §3 "stale entries ...
// pruned").
func (g *ChannelGraph) DeleteChannel(scid uint64) error {
	tx, err := g.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM policy WHERE short_channel_id = ?`, scid); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`DELETE FROM channel_info WHERE short_channel_id = ?`, scid); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ForEachChannel invokes cb for every channel_info row.
func (g *ChannelGraph) ForEachChannel(cb func(*ChannelInfo) error) error {
	rows, err := g.db.Query(
		`SELECT short_channel_id, funding_txid, funding_vout, capacity_sat,
			node1_id, node2_id, announcement_blob, received_at, block_height
		 FROM channel_info`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		info := &ChannelInfo{}
		var txid []byte
		if err := rows.Scan(&info.ShortChannelID, &txid, &info.FundingVout, &info.CapacitySat,
			&info.Node1ID, &info.Node2ID, &info.AnnouncementBlob, &info.ReceivedAt, &info.BlockHeight); err != nil {
			return err
		}
		copy(info.FundingTxid[:], txid)
		if err := cb(info); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Policy is a row of the policy table: one direction's channel_update.
type Policy struct {
	ShortChannelID            uint64
	Direction                 uint8
	FeeBaseMSat               uint32
	FeeProportionalMillionths uint32
	HTLCMinimumMSat           uint64
	HTLCMaximumMSat           uint64
	CLTVExpiryDelta           uint16
	ChannelFlags              uint8
	MessageFlags              uint8
	Timestamp                 uint32
	ChannelUpdateBlob         []byte
}

// UpsertPolicy applies a channel_update if its Timestamp is newer than
// any stored policy for the same (short_channel_id, direction) pair
// (spec §4.7/§8's gossip-monotonicity property); it reports whether the
// update was applied.
func (g *ChannelGraph) UpsertPolicy(p *Policy) (bool, error) {
	var existing int64
	err := g.db.QueryRow(
		`SELECT timestamp FROM policy WHERE short_channel_id = ? AND direction = ?`,
		p.ShortChannelID, p.Direction).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	if err == nil && int64(p.Timestamp) <= existing {
		return false, nil
	}
	_, err = g.db.Exec(
		`INSERT INTO policy
			(short_channel_id, direction, fee_base_msat, fee_proportional_millionths,
			 htlc_minimum_msat, htlc_maximum_msat, cltv_expiry_delta, channel_flags,
			 message_flags, timestamp, channel_update_blob)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(short_channel_id, direction) DO UPDATE SET
			fee_base_msat = excluded.fee_base_msat,
			fee_proportional_millionths = excluded.fee_proportional_millionths,
			htlc_minimum_msat = excluded.htlc_minimum_msat,
			htlc_maximum_msat = excluded.htlc_maximum_msat,
			cltv_expiry_delta = excluded.cltv_expiry_delta,
			channel_flags = excluded.channel_flags,
			message_flags = excluded.message_flags,
			timestamp = excluded.timestamp,
			channel_update_blob = excluded.channel_update_blob`,
		p.ShortChannelID, p.Direction, p.FeeBaseMSat, p.FeeProportionalMillionths,
		p.HTLCMinimumMSat, p.HTLCMaximumMSat, p.CLTVExpiryDelta, p.ChannelFlags,
		p.MessageFlags, p.Timestamp, p.ChannelUpdateBlob,
	)
	return err == nil, err
}

// FetchPolicies returns both directions' policies for scid, if present.
func (g *ChannelGraph) FetchPolicies(scid uint64) (dir0, dir1 *Policy, err error) {
	rows, err := g.db.Query(
		`SELECT direction, fee_base_msat, fee_proportional_millionths, htlc_minimum_msat,
			htlc_maximum_msat, cltv_expiry_delta, channel_flags, message_flags, timestamp,
			channel_update_blob
		 FROM policy WHERE short_channel_id = ?`, scid)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p := &Policy{ShortChannelID: scid}
		if err := rows.Scan(&p.Direction, &p.FeeBaseMSat, &p.FeeProportionalMillionths,
			&p.HTLCMinimumMSat, &p.HTLCMaximumMSat, &p.CLTVExpiryDelta, &p.ChannelFlags,
			&p.MessageFlags, &p.Timestamp, &p.ChannelUpdateBlob); err != nil {
			return nil, nil, err
		}
		if p.Direction == 0 {
			dir0 = p
		} else {
			dir1 = p
		}
	}
	return dir0, dir1, rows.Err()
}

// NodeInfo is a row of the node_info table.
type NodeInfo struct {
	NodeID           []byte
	Alias            string
	Color            string
	Features         []byte
	Timestamp        uint32
	AnnouncementBlob []byte
}

// UpsertNode applies a node_announcement if newer than any stored
// record for the same node (spec §4.7).
func (g *ChannelGraph) UpsertNode(n *NodeInfo) (bool, error) {
	var existing int64
	err := g.db.QueryRow(`SELECT timestamp FROM node_info WHERE node_id = ?`, n.NodeID).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	if err == nil && int64(n.Timestamp) <= existing {
		return false, nil
	}
	_, err = g.db.Exec(
		`INSERT INTO node_info (node_id, alias, color, features, timestamp, announcement_blob)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(node_id) DO UPDATE SET
			alias = excluded.alias, color = excluded.color, features = excluded.features,
			timestamp = excluded.timestamp, announcement_blob = excluded.announcement_blob`,
		n.NodeID, n.Alias, n.Color, n.Features, n.Timestamp, n.AnnouncementBlob,
	)
	return err == nil, err
}

// FetchNode loads the node_info row for nodeID.
func (g *ChannelGraph) FetchNode(nodeID []byte) (*NodeInfo, error) {
	row := g.db.QueryRow(
		`SELECT node_id, alias, color, features, timestamp, announcement_blob
		 FROM node_info WHERE node_id = ?`, nodeID)
	n := &NodeInfo{}
	if err := row.Scan(&n.NodeID, &n.Alias, &n.Color, &n.Features, &n.Timestamp, &n.AnnouncementBlob); err != nil {
		return nil, err
	}
	return n, nil
}

// NodeAddress is a row of the node_address table; AddressType follows
// spec §6's enumeration (1:v4, 2:v6, 3:torv2, 4:torv3, 5:dns).
type NodeAddress struct {
	NodeID      []byte
	AddressType uint8
	Host        string
	Port        uint16
}

// ReplaceNodeAddresses atomically swaps nodeID's address set, since a
// fresh node_announcement fully replaces the previous reachable set
// rather than appending to it.
func (g *ChannelGraph) ReplaceNodeAddresses(nodeID []byte, addrs []NodeAddress) error {
	tx, err := g.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM node_address WHERE node_id = ?`, nodeID); err != nil {
		tx.Rollback()
		return err
	}
	for _, a := range addrs {
		if _, err := tx.Exec(
			`INSERT INTO node_address (node_id, address_type, host, port) VALUES (?, ?, ?, ?)`,
			nodeID, a.AddressType, a.Host, a.Port,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// FetchNodeAddresses returns the reachable addresses stored for nodeID.
func (g *ChannelGraph) FetchNodeAddresses(nodeID []byte) ([]NodeAddress, error) {
	rows, err := g.db.Query(
		`SELECT node_id, address_type, host, port FROM node_address WHERE node_id = ?`, nodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NodeAddress
	for rows.Next() {
		var a NodeAddress
		if err := rows.Scan(&a.NodeID, &a.AddressType, &a.Host, &a.Port); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PruneStale deletes every channel whose policy has not been updated in
// staleAfter, and any channel with no policy at all older than
// staleAfter since receipt (spec §3's "stale entries ... pruned",
// 14 days per spec §4.7).
func (g *ChannelGraph) PruneStale(now time.Time, staleAfter time.Duration) (int, error) {
	cutoff := now.Add(-staleAfter).Unix()
	rows, err := g.db.Query(
		`SELECT ci.short_channel_id FROM channel_info ci
		 LEFT JOIN (
			SELECT short_channel_id, MAX(timestamp) AS max_ts FROM policy GROUP BY short_channel_id
		 ) p ON ci.short_channel_id = p.short_channel_id
		 WHERE COALESCE(p.max_ts, ci.received_at) < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	var stale []uint64
	for rows.Next() {
		var scid uint64
		if err := rows.Scan(&scid); err != nil {
			rows.Close()
			return 0, err
		}
		stale = append(stale, scid)
	}
	rows.Close()
	for _, scid := range stale {
		if err := g.DeleteChannel(scid); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}
