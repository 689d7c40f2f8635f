package channeldb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"go.etcd.io/bbolt"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
	"github.com/slacerda85/ihodl-sub007/lnwallet"
	"github.com/slacerda85/ihodl-sub007/shachain"
)

// ChannelRecord is the durable snapshot of a Channel written after every
// revocation round (spec §4.8): peer identity, state tag, balances, the
// funding outpoint, both configs, and a reference to the per-commitment
// seed (stored separately in seedBucket, keyed by the same ChannelID).
type ChannelRecord struct {
	ChannelID       lncrypto.ChannelID
	PeerNodeID      *btcec.PublicKey
	State           lnwallet.ChannelState
	ShortChannelID  uint64 // 0 until funding locks
	FundingTxid     [32]byte
	FundingOutIndex uint16
	CapacitySat     uint64
	LocalMsat       uint64
	RemoteMsat      uint64
	WeAreFunder     bool

	LocalConfig  lnwallet.ChannelConfig
	RemoteConfig lnwallet.ChannelConfig
}

func putChannelConfig(buf *bytes.Buffer, cfg *lnwallet.ChannelConfig) error {
	if err := binary.Write(buf, byteOrder, cfg.DustLimitSat); err != nil {
		return err
	}
	if err := binary.Write(buf, byteOrder, cfg.MaxAcceptedHTLCs); err != nil {
		return err
	}
	if err := binary.Write(buf, byteOrder, cfg.HTLCMinimumMSat); err != nil {
		return err
	}
	if err := binary.Write(buf, byteOrder, cfg.MaxHTLCValueInFlight); err != nil {
		return err
	}
	if err := binary.Write(buf, byteOrder, cfg.ToSelfDelay); err != nil {
		return err
	}
	if err := binary.Write(buf, byteOrder, cfg.ChannelReserveSat); err != nil {
		return err
	}
	points := []*btcec.PublicKey{
		cfg.Basepoints.Funding, cfg.Basepoints.Revocation, cfg.Basepoints.Payment,
		cfg.Basepoints.DelayedPayment, cfg.Basepoints.HTLC,
	}
	for _, p := range points {
		var raw [33]byte
		if p != nil {
			copy(raw[:], p.SerializeCompressed())
		}
		if _, err := buf.Write(raw[:]); err != nil {
			return err
		}
	}
	return nil
}

func readChannelConfig(r io.Reader) (lnwallet.ChannelConfig, error) {
	var cfg lnwallet.ChannelConfig
	fields := []interface{}{
		&cfg.DustLimitSat, &cfg.MaxAcceptedHTLCs, &cfg.HTLCMinimumMSat,
		&cfg.MaxHTLCValueInFlight, &cfg.ToSelfDelay, &cfg.ChannelReserveSat,
	}
	for _, f := range fields {
		if err := binary.Read(r, byteOrder, f); err != nil {
			return cfg, err
		}
	}
	dests := []**btcec.PublicKey{
		&cfg.Basepoints.Funding, &cfg.Basepoints.Revocation, &cfg.Basepoints.Payment,
		&cfg.Basepoints.DelayedPayment, &cfg.Basepoints.HTLC,
	}
	for _, dest := range dests {
		var raw [33]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return cfg, err
		}
		if raw != ([33]byte{}) {
			pk, err := btcec.ParsePubKey(raw[:])
			if err != nil {
				return cfg, err
			}
			*dest = pk
		}
	}
	return cfg, nil
}

// Encode serializes r in the format PutChannel/FetchChannel round-trip.
func (r *ChannelRecord) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.Write(r.ChannelID[:]); err != nil {
		return nil, err
	}
	var peer [33]byte
	if r.PeerNodeID != nil {
		copy(peer[:], r.PeerNodeID.SerializeCompressed())
	}
	if _, err := buf.Write(peer[:]); err != nil {
		return nil, err
	}
	for _, v := range []interface{}{
		uint8(r.State), r.ShortChannelID, r.FundingOutIndex, r.CapacitySat,
		r.LocalMsat, r.RemoteMsat, r.WeAreFunder,
	} {
		if err := binary.Write(&buf, byteOrder, v); err != nil {
			return nil, err
		}
	}
	if _, err := buf.Write(r.FundingTxid[:]); err != nil {
		return nil, err
	}
	if err := putChannelConfig(&buf, &r.LocalConfig); err != nil {
		return nil, err
	}
	if err := putChannelConfig(&buf, &r.RemoteConfig); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeChannelRecord parses the byte form Encode produces.
func DecodeChannelRecord(data []byte) (*ChannelRecord, error) {
	r := bytes.NewReader(data)
	rec := &ChannelRecord{}
	if _, err := io.ReadFull(r, rec.ChannelID[:]); err != nil {
		return nil, err
	}
	var peer [33]byte
	if _, err := io.ReadFull(r, peer[:]); err != nil {
		return nil, err
	}
	if peer != ([33]byte{}) {
		pk, err := btcec.ParsePubKey(peer[:])
		if err != nil {
			return nil, err
		}
		rec.PeerNodeID = pk
	}
	var state uint8
	if err := binary.Read(r, byteOrder, &state); err != nil {
		return nil, err
	}
	rec.State = lnwallet.ChannelState(state)
	for _, dest := range []interface{}{
		&rec.ShortChannelID, &rec.FundingOutIndex, &rec.CapacitySat,
		&rec.LocalMsat, &rec.RemoteMsat, &rec.WeAreFunder,
	} {
		if err := binary.Read(r, byteOrder, dest); err != nil {
			return nil, err
		}
	}
	if _, err := io.ReadFull(r, rec.FundingTxid[:]); err != nil {
		return nil, err
	}
	local, err := readChannelConfig(r)
	if err != nil {
		return nil, err
	}
	rec.LocalConfig = local
	remote, err := readChannelConfig(r)
	if err != nil {
		return nil, err
	}
	rec.RemoteConfig = remote
	return rec, nil
}

// PutChannel persists rec, keyed by its ChannelID.
func (d *DB) PutChannel(rec *ChannelRecord) error {
	raw, err := rec.Encode()
	if err != nil {
		return err
	}
	return d.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(channelBucket).Put(rec.ChannelID[:], raw)
	})
}

// FetchChannel loads the record stored for id, if any.
func (d *DB) FetchChannel(id lncrypto.ChannelID) (*ChannelRecord, error) {
	var rec *ChannelRecord
	err := d.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(channelBucket).Get(id[:])
		if raw == nil {
			return fmt.Errorf("channeldb: channel %s not found", id)
		}
		r, err := DecodeChannelRecord(raw)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	return rec, err
}

// DeleteChannel removes a channel's record once its on-chain resolution
// is irrevocable (spec §3 lifecycle).
func (d *DB) DeleteChannel(id lncrypto.ChannelID) error {
	return d.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(channelBucket).Delete(id[:])
	})
}

// ForEachChannel invokes cb for every persisted channel record, used on
// startup to resume channels per spec §4.8's crash-recovery rule.
func (d *DB) ForEachChannel(cb func(*ChannelRecord) error) error {
	return d.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(channelBucket).ForEach(func(k, v []byte) error {
			rec, err := DecodeChannelRecord(v)
			if err != nil {
				return err
			}
			return cb(rec)
		})
	})
}

// PutChannelSeed persists the 32-byte per-commitment seed for channel id.
func (d *DB) PutChannelSeed(id lncrypto.ChannelID, seed [32]byte) error {
	return d.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(seedBucket).Put(id[:], seed[:])
	})
}

// FetchChannelSeed loads the per-commitment seed for channel id.
func (d *DB) FetchChannelSeed(id lncrypto.ChannelID) ([32]byte, error) {
	var seed [32]byte
	err := d.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(seedBucket).Get(id[:])
		if raw == nil {
			return fmt.Errorf("channeldb: no seed for channel %s", id)
		}
		copy(seed[:], raw)
		return nil
	})
	return seed, err
}

// DecodeRevocationStore reconstructs the counterparty's revocation store
// from its encoded form; PutRevocationStore keeps those bytes in the seed
// bucket under the channel id with a "-revstore" suffix.
func DecodeRevocationStore(data []byte) (*shachain.Store, error) {
	if len(data) == 0 {
		return shachain.NewStore(), nil
	}
	return shachain.Decode(bytes.NewReader(data))
}

// EncodeRevocationStore serializes s for embedding in a channel snapshot.
func EncodeRevocationStore(s *shachain.Store) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// channelRevocationKey namespaces the revocation-store blob for id
// inside seedBucket, alongside the plain 32-byte seed entry.
func channelRevocationKey(id lncrypto.ChannelID) []byte {
	return append(append([]byte{}, id[:]...), []byte("-revstore")...)
}

// PutRevocationStore persists the counterparty revocation store for id.
func (d *DB) PutRevocationStore(id lncrypto.ChannelID, s *shachain.Store) error {
	raw, err := EncodeRevocationStore(s)
	if err != nil {
		return err
	}
	return d.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(seedBucket).Put(channelRevocationKey(id), raw)
	})
}

// FetchRevocationStore loads the counterparty revocation store for id.
func (d *DB) FetchRevocationStore(id lncrypto.ChannelID) (*shachain.Store, error) {
	var s *shachain.Store
	err := d.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(seedBucket).Get(channelRevocationKey(id))
		store, err := DecodeRevocationStore(raw)
		if err != nil {
			return err
		}
		s = store
		return nil
	})
	return s, err
}
