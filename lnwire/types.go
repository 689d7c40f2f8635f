package lnwire

import (
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
)

// ChannelID uniquely identifies a channel on the wire (spec §3).
type ChannelID [32]byte

func (c ChannelID) String() string { return fmt.Sprintf("%x", c[:]) }

// ShortChannelID is re-exported from lncrypto so message fields can use it
// directly without every caller importing both packages.
type ShortChannelID = lncrypto.ShortChannelID

// NewShortChannelIDFromUint64 re-exports the lncrypto constructor.
func NewShortChannelIDFromUint64(v uint64) ShortChannelID {
	return lncrypto.NewShortChannelIDFromUint64(v)
}

// Sig is the fixed 64-byte (r||s) wire encoding of an ECDSA signature used
// by every signed Lightning message (spec §3: "A Signature is 64 bytes").
type Sig [64]byte

type derSignature struct {
	R, S *big.Int
}

// NewSigFromSignature converts a btcec/v2 ecdsa.Signature (which only
// exposes a DER Serialize) into the fixed 64-byte wire form, by round
// tripping through its DER encoding to recover R and S. Mirrors the
// teacher's lnwire.NewSigFromSignature call (see funding_locked.go's
// sibling message tests), adapted from the old fixed-field
// *btcec.Signature{R,S} representation to the modern opaque type.
func NewSigFromSignature(sig *ecdsa.Signature) (Sig, error) {
	var out Sig

	der := sig.Serialize()
	var parsed derSignature
	if _, err := asn1.Unmarshal(der, &parsed); err != nil {
		return out, fmt.Errorf("lnwire: malformed DER signature: %w", err)
	}

	rBytes := parsed.R.Bytes()
	sBytes := parsed.S.Bytes()
	if len(rBytes) > 32 || len(sBytes) > 32 {
		return out, fmt.Errorf("lnwire: signature component overflows 32 bytes")
	}

	copy(out[32-len(rBytes):32], rBytes)
	copy(out[64-len(sBytes):64], sBytes)
	return out, nil
}

// ToSignature parses the fixed 64-byte form back into a verifiable
// ecdsa.Signature by re-deriving its r/s scalars.
func (s Sig) ToSignature() (*ecdsa.Signature, error) {
	var rBytes, sBytes [32]byte
	copy(rBytes[:], s[:32])
	copy(sBytes[:], s[32:])

	var r, s2 btcec.ModNScalar
	if overflow := r.SetBytes(&rBytes); overflow != 0 {
		return nil, fmt.Errorf("lnwire: signature R overflows curve order")
	}
	if overflow := s2.SetBytes(&sBytes); overflow != 0 {
		return nil, fmt.Errorf("lnwire: signature S overflows curve order")
	}

	return ecdsa.NewSignature(&r, &s2), nil
}
