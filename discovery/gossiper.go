// Package discovery implements the gossip processor (spec §4.7,
// component C8): signature validation and application of
// channel_announcement / node_announcement / channel_update against the
// persisted graph, plus the query_channel_range / query_short_channel_ids
// range-sync request/response pair and a gossip_timestamp_filter-scoped
// live broadcast path.
//
// Adapted from the teacher's discovery/validation.go signature-checking
// shape (validateChannelAnn/validateNodeAnn/validateChannelUpdateAnn),
// generalized from its pre-fork roasbeef/btcd + lnd/lnwire imports onto
// this tree's own lnwire message set and lncrypto.Verify, and extended
// with the persistence and range-query pieces the teacher file didn't
// cover (spec §4.7's second half).
package discovery

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/slacerda85/ihodl-sub007/channeldb"
	"github.com/slacerda85/ihodl-sub007/lncrypto"
	"github.com/slacerda85/ihodl-sub007/lnwire"
)

// Errors a caller can branch on.
var (
	ErrInvalidSignature     = errors.New("discovery: invalid signature")
	ErrChannelUnknown       = errors.New("discovery: channel_update for unannounced channel")
	ErrStaleChannelUpdate   = errors.New("discovery: channel_update not newer than stored policy")
	ErrStaleNodeAnnouncement = errors.New("discovery: node_announcement not newer than stored record")
)

// Gossiper validates inbound gossip messages and applies them to a
// persisted ChannelGraph (spec §4.7/§4.8). It holds no peer-transport
// state of its own; callers feed it decoded messages from any source.
type Gossiper struct {
	graph     *channeldb.ChannelGraph
	chainHash [32]byte
}

// New constructs a Gossiper writing through to graph, scoped to chainHash
// (spec §6's network-selection chain_hash).
func New(graph *channeldb.ChannelGraph, chainHash [32]byte) *Gossiper {
	return &Gossiper{graph: graph, chainHash: chainHash}
}

func digestHash(data []byte) [32]byte {
	return chainhash.DoubleHashH(data)
}

// ValidateChannelAnnouncement checks all four signatures of a
// (spec §4.7: two node signatures attesting ownership, two bitcoin
// signatures attesting control of the funding keys).
func ValidateChannelAnnouncement(a *lnwire.ChannelAnnouncement) error {
	data, err := a.DigestTBS()
	if err != nil {
		return err
	}
	hash := digestHash(data)

	checks := []struct {
		sig lnwire.Sig
		key *btcec.PublicKey
	}{
		{a.NodeSig1, a.NodeID1},
		{a.NodeSig2, a.NodeID2},
		{a.BitcoinSig1, a.BitcoinKey1},
		{a.BitcoinSig2, a.BitcoinKey2},
	}
	for _, c := range checks {
		sig, err := c.sig.ToSignature()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		if !lncrypto.Verify(c.key, hash, sig) {
			return ErrInvalidSignature
		}
	}
	return nil
}

// ValidateNodeAnnouncement checks the single signature over n.
func ValidateNodeAnnouncement(n *lnwire.NodeAnnouncement) error {
	data, err := n.DigestTBS()
	if err != nil {
		return err
	}
	sig, err := n.Signature.ToSignature()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !lncrypto.Verify(n.NodeID, digestHash(data), sig) {
		return ErrInvalidSignature
	}
	return nil
}

// ValidateChannelUpdate checks u's signature against signerKey, the
// public key of the endpoint that owns this update's direction.
func ValidateChannelUpdate(u *lnwire.ChannelUpdate, signerKey *btcec.PublicKey) error {
	data, err := u.DigestTBS()
	if err != nil {
		return err
	}
	sig, err := u.Signature.ToSignature()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !lncrypto.Verify(signerKey, digestHash(data), sig) {
		return ErrInvalidSignature
	}
	return nil
}

// ProcessChannelAnnouncement validates a and, if it passes, records it
// in the graph keyed by its short_channel_id.
func (g *Gossiper) ProcessChannelAnnouncement(a *lnwire.ChannelAnnouncement, fundingVout uint16,
	capacitySat uint64, fundingTxid [32]byte, blockHeight uint32, receivedAt int64) error {

	if a.ChainHash != g.chainHash {
		return fmt.Errorf("discovery: chain hash mismatch")
	}
	if err := ValidateChannelAnnouncement(a); err != nil {
		return err
	}

	buf := &bytes.Buffer{}
	if err := a.Encode(buf); err != nil {
		return err
	}
	raw := buf.Bytes()

	return g.graph.AddChannel(&channeldb.ChannelInfo{
		ShortChannelID:   a.ShortChannelID.ToUint64(),
		FundingTxid:      fundingTxid,
		FundingVout:      fundingVout,
		CapacitySat:      capacitySat,
		Node1ID:          a.NodeID1.SerializeCompressed(),
		Node2ID:          a.NodeID2.SerializeCompressed(),
		AnnouncementBlob: raw,
		ReceivedAt:       receivedAt,
		BlockHeight:      blockHeight,
	})
}

// ProcessNodeAnnouncement validates n and, if newer than any stored
// record, updates the node_info and node_address tables.
func (g *Gossiper) ProcessNodeAnnouncement(n *lnwire.NodeAnnouncement) (bool, error) {
	if err := ValidateNodeAnnouncement(n); err != nil {
		return false, err
	}

	var featBuf []byte
	if n.Features != nil {
		buf := &bytes.Buffer{}
		if err := n.Features.Encode(buf); err != nil {
			return false, err
		}
		featBuf = buf.Bytes()
	}
	annBuf := &bytes.Buffer{}
	if err := n.Encode(annBuf); err != nil {
		return false, err
	}

	nodeID := n.NodeID.SerializeCompressed()
	applied, err := g.graph.UpsertNode(&channeldb.NodeInfo{
		NodeID:           nodeID,
		Alias:            aliasString(n.Alias),
		Color:            colorString(n.RGBColor),
		Features:         featBuf,
		Timestamp:        n.Timestamp,
		AnnouncementBlob: annBuf.Bytes(),
	})
	if err != nil || !applied {
		return applied, err
	}

	addrs := parseAddresses(nodeID, n.Addresses)
	if err := g.graph.ReplaceNodeAddresses(nodeID, addrs); err != nil {
		return false, err
	}
	return true, nil
}

// ProcessChannelUpdate validates u against signerKey and, if the channel
// is known and u is newer than the stored policy, applies it
// (spec §4.7's "requires channel_announcement before channel_update" and
// §8's monotonicity property).
func (g *Gossiper) ProcessChannelUpdate(u *lnwire.ChannelUpdate, signerKey *btcec.PublicKey) (bool, error) {
	if u.ChainHash != g.chainHash {
		return false, fmt.Errorf("discovery: chain hash mismatch")
	}
	scid := u.ShortChannelID.ToUint64()
	known, err := g.graph.HasChannel(scid)
	if err != nil {
		return false, err
	}
	if !known {
		return false, ErrChannelUnknown
	}
	if err := ValidateChannelUpdate(u, signerKey); err != nil {
		return false, err
	}

	blobBuf := &bytes.Buffer{}
	if err := u.Encode(blobBuf); err != nil {
		return false, err
	}

	return g.graph.UpsertPolicy(&channeldb.Policy{
		ShortChannelID:            scid,
		Direction:                 uint8(u.Direction()),
		FeeBaseMSat:               u.FeeBaseMSat,
		FeeProportionalMillionths: u.FeeProportionalMillionths,
		HTLCMinimumMSat:           u.HTLCMinimumMSat,
		HTLCMaximumMSat:           u.HTLCMaximumMSat,
		CLTVExpiryDelta:           u.CLTVExpiryDelta,
		ChannelFlags:              u.ChannelFlags,
		MessageFlags:              u.MessageFlags,
		Timestamp:                 u.Timestamp,
		ChannelUpdateBlob:         blobBuf.Bytes(),
	})
}

func aliasString(a [32]byte) string {
	n := 0
	for n < len(a) && a[n] != 0 {
		n++
	}
	return string(a[:n])
}

func colorString(rgb [3]byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 6)
	for i, b := range rgb {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0xf]
	}
	return string(out)
}

// parseAddresses splits n.Addresses (the raw type-prefixed BOLT #7
// address list) into individual node_address rows.
func parseAddresses(nodeID []byte, raw []byte) []channeldb.NodeAddress {
	var out []channeldb.NodeAddress
	i := 0
	for i < len(raw) {
		addrType := raw[i]
		i++
		var host string
		var port uint16
		var size int
		switch addrType {
		case 1: // ipv4
			size = 6
		case 2: // ipv6
			size = 18
		case 3: // torv2
			size = 12
		case 4: // torv3
			size = 37
		case 5: // dns
			if i >= len(raw) {
				return out
			}
			dnsLen := int(raw[i])
			i++
			size = dnsLen + 2
		default:
			return out
		}
		if i+size > len(raw) {
			return out
		}
		body := raw[i : i+size]
		host, port = decodeAddressBody(addrType, body)
		out = append(out, channeldb.NodeAddress{
			NodeID: nodeID, AddressType: addrType, Host: host, Port: port,
		})
		i += size
	}
	return out
}

func decodeAddressBody(addrType uint8, body []byte) (string, uint16) {
	switch addrType {
	case 1:
		port := uint16(body[4])<<8 | uint16(body[5])
		return fmt.Sprintf("%d.%d.%d.%d", body[0], body[1], body[2], body[3]), port
	case 2:
		port := uint16(body[16])<<8 | uint16(body[17])
		return fmt.Sprintf("%x", body[:16]), port
	case 5:
		port := uint16(body[len(body)-2])<<8 | uint16(body[len(body)-1])
		return string(body[:len(body)-2]), port
	default:
		port := uint16(body[len(body)-2])<<8 | uint16(body[len(body)-1])
		return fmt.Sprintf("%x", body[:len(body)-2]), port
	}
}
