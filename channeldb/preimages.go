package channeldb

import (
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
)

// PutPreimage stores the payment preimage for hash along with the time
// it was learned (spec §4.8's "Preimages by payment_hash" map), letting
// an HTLC be settled without re-deriving the preimage from its source.
func (d *DB) PutPreimage(hash lncrypto.Hash256, preimage [32]byte, createdAt int64) error {
	var buf [40]byte
	copy(buf[:32], preimage[:])
	binary.BigEndian.PutUint64(buf[32:], uint64(createdAt))
	return d.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(preimageBucket).Put(hash[:], buf[:])
	})
}

// FetchPreimage returns the preimage stored for hash, if any.
func (d *DB) FetchPreimage(hash lncrypto.Hash256) ([32]byte, int64, error) {
	var preimage [32]byte
	var createdAt int64
	err := d.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(preimageBucket).Get(hash[:])
		if raw == nil {
			return fmt.Errorf("channeldb: no preimage for hash %s", hash)
		}
		copy(preimage[:], raw[:32])
		createdAt = int64(binary.BigEndian.Uint64(raw[32:40]))
		return nil
	})
	return preimage, createdAt, err
}

// HasPreimage reports whether a preimage for hash is already known.
func (d *DB) HasPreimage(hash lncrypto.Hash256) bool {
	found := false
	_ = d.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(preimageBucket).Get(hash[:]) != nil
		return nil
	})
	return found
}
