package lnwire

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// NodeAnnouncement publishes a node's identity, color, alias, and
// reachable addresses to the gossip graph (spec §4.7). Addresses are kept
// as their raw serialized form (type-prefixed ipv4/ipv6/torv2/torv3/dns
// entries per BOLT #7) rather than parsed into a Go slice, since nothing
// in this module needs to dial them directly.
type NodeAnnouncement struct {
	Signature Sig
	Features  *RawFeatureVector
	Timestamp uint32
	NodeID    *btcec.PublicKey
	RGBColor  [3]byte
	Alias     [32]byte
	Addresses []byte

	ExtraData []byte
}

var _ Message = (*NodeAnnouncement)(nil)

func (n *NodeAnnouncement) Decode(r io.Reader) error {
	if err := readElement(r, &n.Signature); err != nil {
		return err
	}
	n.Features = &RawFeatureVector{}
	if err := n.Features.Decode(r); err != nil {
		return err
	}
	if err := readElements(r, &n.Timestamp, &n.NodeID); err != nil {
		return err
	}
	var rgb [3]byte
	if _, err := io.ReadFull(r, rgb[:]); err != nil {
		return err
	}
	n.RGBColor = rgb
	if err := readElement(r, &n.Alias); err != nil {
		return err
	}
	addrs, err := readVarBytes(r, MaxMessagePayload)
	if err != nil {
		return err
	}
	n.Addresses = addrs

	rest, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	n.ExtraData = rest
	return nil
}

func (n *NodeAnnouncement) Encode(w io.Writer) error {
	if err := writeElement(w, n.Signature); err != nil {
		return err
	}
	features := n.Features
	if features == nil {
		features = NewRawFeatureVector()
	}
	if err := features.Encode(w); err != nil {
		return err
	}
	if err := writeElements(w, n.Timestamp, n.NodeID); err != nil {
		return err
	}
	if _, err := w.Write(n.RGBColor[:]); err != nil {
		return err
	}
	if err := writeElement(w, n.Alias); err != nil {
		return err
	}
	if err := writeVarBytes(w, n.Addresses); err != nil {
		return err
	}
	_, err := w.Write(n.ExtraData)
	return err
}

func (n *NodeAnnouncement) MsgType() MessageType { return MsgNodeAnnouncement }

func (n *NodeAnnouncement) MaxPayloadLength() uint32 { return MaxMessagePayload }

// DigestTBS returns the concatenation of fields covered by Signature
// (everything after it), the message a node must sign to publish its
// identity (spec §4.7).
func (n *NodeAnnouncement) DigestTBS() ([]byte, error) {
	var buf []byte
	w := &sliceWriter{buf: &buf}

	features := n.Features
	if features == nil {
		features = NewRawFeatureVector()
	}
	if err := features.Encode(w); err != nil {
		return nil, err
	}
	if err := writeElements(w, n.Timestamp, n.NodeID); err != nil {
		return nil, err
	}
	if _, err := w.Write(n.RGBColor[:]); err != nil {
		return nil, err
	}
	if err := writeElement(w, n.Alias); err != nil {
		return nil, err
	}
	if err := writeVarBytes(w, n.Addresses); err != nil {
		return nil, err
	}
	return buf, nil
}
