// Package channeldb is the persistence façade described in spec §4.8
// (component C10): a bbolt-backed durable map for the node's own state
// (channels, per-commitment seeds, preimages, invoices, peers) plus a
// SQLite-backed gossip graph (see graph.go). Adapted from the teacher's
// channeldb/db.go bucket-per-entity shape and migration scaffold, ported
// from the teacher's pre-fork boltdb/bolt + roasbeef/btcd imports onto
// the modern go.etcd.io/bbolt + btcsuite/btcd stack already used
// elsewhere in this tree.
package channeldb

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

const dbFilePermission = 0600

// byteOrder is the integer encoding used throughout this package's
// records, matching the big-endian convention the rest of this tree
// uses for wire and storage integers.
var byteOrder = binary.BigEndian

var (
	channelBucket   = []byte("open-channels")
	seedBucket      = []byte("channel-seeds")
	preimageBucket  = []byte("preimages")
	invoiceBucket   = []byte("invoices")
	peerBucket      = []byte("peers")
	topLevelBuckets = [][]byte{channelBucket, seedBucket, preimageBucket, invoiceBucket, peerBucket}
)

// DB is the primary durable store for node state, backed by a single
// bbolt file (spec §4.8's nine logical maps, five of which live here;
// the gossip graph's four tables live in the separate SQLite-backed
// ChannelGraph).
type DB struct {
	*bbolt.DB
	dbPath string
}

// Open opens (creating if necessary) the channel database file at path,
// ensuring every top-level bucket this package writes to exists.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	bdb, err := bbolt.Open(path, dbFilePermission, nil)
	if err != nil {
		return nil, fmt.Errorf("channeldb: open %s: %w", path, err)
	}

	db := &DB{DB: bdb, dbPath: path}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range topLevelBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		bdb.Close()
		return nil, err
	}

	return db, nil
}

// Wipe deletes every top-level bucket this package owns, atomically.
func (d *DB) Wipe() error {
	return d.Update(func(tx *bbolt.Tx) error {
		for _, name := range topLevelBuckets {
			if err := tx.DeleteBucket(name); err != nil && err != bbolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}
