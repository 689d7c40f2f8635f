package lncrypto

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Hash256 is a 32-byte double/single SHA-256 digest, used for payment
// hashes, preimage hashes, and commitment-related hashing throughout the
// protocol.
type Hash256 [32]byte

// String returns the hex encoding of h.
func (h Hash256) String() string {
	return fmt.Sprintf("%x", h[:])
}

// ChannelID uniquely identifies a channel: the funding transaction's txid
// XORed with the big-endian funding output index.
type ChannelID [32]byte

// NewChannelID derives a ChannelID from a funding outpoint.
func NewChannelID(fundingTxid chainhash.Hash, outputIndex uint16) ChannelID {
	var id ChannelID
	copy(id[:], fundingTxid[:])
	id[30] ^= byte(outputIndex >> 8)
	id[31] ^= byte(outputIndex)
	return id
}

func (c ChannelID) String() string {
	return fmt.Sprintf("%x", c[:])
}

// ShortChannelID is the compact on-chain locator of an announced channel:
// 24 bits of block height, 24 bits of transaction index within the block,
// and 16 bits of output index, packed big-endian into 8 bytes.
type ShortChannelID struct {
	BlockHeight uint32 // only the low 24 bits are significant
	TxIndex     uint32 // only the low 24 bits are significant
	TxPosition  uint16
}

// ToUint64 packs the SCID into its canonical 64-bit wire representation.
func (s ShortChannelID) ToUint64() uint64 {
	return (uint64(s.BlockHeight&0xffffff) << 40) |
		(uint64(s.TxIndex&0xffffff) << 16) |
		uint64(s.TxPosition)
}

// NewShortChannelIDFromUint64 unpacks the canonical 64-bit representation.
func NewShortChannelIDFromUint64(v uint64) ShortChannelID {
	return ShortChannelID{
		BlockHeight: uint32(v >> 40),
		TxIndex:     uint32(v>>16) & 0xffffff,
		TxPosition:  uint16(v),
	}
}

func (s ShortChannelID) String() string {
	return fmt.Sprintf("%dx%dx%d", s.BlockHeight, s.TxIndex, s.TxPosition)
}

// Bytes returns the big-endian 8-byte wire encoding.
func (s ShortChannelID) Bytes() [8]byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], s.ToUint64())
	return b
}

// Sign produces a deterministic (RFC6979) ECDSA signature over digest using
// privKey.
func Sign(privKey *btcec.PrivateKey, digest [32]byte) *ecdsa.Signature {
	return ecdsa.Sign(privKey, digest[:])
}

// Verify reports whether sig is a valid signature over digest by pubKey.
func Verify(pubKey *btcec.PublicKey, digest [32]byte, sig *ecdsa.Signature) bool {
	return sig.Verify(digest[:], pubKey)
}
