package channeldb

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"go.etcd.io/bbolt"
)

// PeerRecord is the durable form of a known peer (spec §4.8's "Peers by
// node_id" map): its last known address and when it was last reached.
type PeerRecord struct {
	NodeID        *btcec.PublicKey
	Address       string // host:port
	LastConnected int64  // unix seconds, 0 if never connected
}

func (r *PeerRecord) encode() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, byteOrder, r.LastConnected)
	writeLenPrefixed(&buf, []byte(r.Address))
	return buf.Bytes()
}

func decodePeerRecord(pubKeyBytes, data []byte) (*PeerRecord, error) {
	pk, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(data)
	rec := &PeerRecord{NodeID: pk}
	if err := binary.Read(r, byteOrder, &rec.LastConnected); err != nil {
		return nil, err
	}
	addr, err := readLenPrefixed(r)
	if err != nil {
		return nil, err
	}
	rec.Address = string(addr)
	return rec, nil
}

// PutPeer persists rec, keyed by its compressed node pubkey.
func (d *DB) PutPeer(rec *PeerRecord) error {
	key := rec.NodeID.SerializeCompressed()
	return d.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(peerBucket).Put(key, rec.encode())
	})
}

// FetchPeer loads the record stored for nodeID.
func (d *DB) FetchPeer(nodeID *btcec.PublicKey) (*PeerRecord, error) {
	key := nodeID.SerializeCompressed()
	var rec *PeerRecord
	err := d.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(peerBucket).Get(key)
		if raw == nil {
			return fmt.Errorf("channeldb: no peer record for %x", key)
		}
		r, err := decodePeerRecord(key, raw)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	return rec, err
}

// ForEachPeer invokes cb for every persisted peer record.
func (d *DB) ForEachPeer(cb func(*PeerRecord) error) error {
	return d.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(peerBucket).ForEach(func(k, v []byte) error {
			rec, err := decodePeerRecord(k, v)
			if err != nil {
				return err
			}
			return cb(rec)
		})
	})
}
