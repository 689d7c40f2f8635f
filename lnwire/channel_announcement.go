package lnwire

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ChannelAnnouncement binds a short_channel_id to its two endpoint node
// keys and two funding-output keys, authenticated by all four signatures
// (spec §4.7): a channel only enters the routing graph once every
// signature checks out.
type ChannelAnnouncement struct {
	NodeSig1    Sig
	NodeSig2    Sig
	BitcoinSig1 Sig
	BitcoinSig2 Sig

	Features *RawFeatureVector

	ChainHash      [32]byte
	ShortChannelID ShortChannelID

	NodeID1     *btcec.PublicKey
	NodeID2     *btcec.PublicKey
	BitcoinKey1 *btcec.PublicKey
	BitcoinKey2 *btcec.PublicKey

	ExtraData []byte
}

var _ Message = (*ChannelAnnouncement)(nil)

// DigestTBS returns the concatenation of fields covered by the four
// signatures (everything after the signature block), the message that
// each node and bitcoin key must sign over.
func (c *ChannelAnnouncement) DigestTBS() ([]byte, error) {
	var buf []byte
	w := &sliceWriter{buf: &buf}

	features := c.Features
	if features == nil {
		features = NewRawFeatureVector()
	}
	if err := features.Encode(w); err != nil {
		return nil, err
	}
	if err := writeElements(w,
		c.ChainHash,
		c.ShortChannelID,
		c.NodeID1,
		c.NodeID2,
		c.BitcoinKey1,
		c.BitcoinKey2,
	); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *ChannelAnnouncement) Decode(r io.Reader) error {
	if err := readElements(r,
		&c.NodeSig1,
		&c.NodeSig2,
		&c.BitcoinSig1,
		&c.BitcoinSig2,
	); err != nil {
		return err
	}

	c.Features = &RawFeatureVector{}
	if err := c.Features.Decode(r); err != nil {
		return err
	}

	if err := readElements(r,
		&c.ChainHash,
		&c.ShortChannelID,
		&c.NodeID1,
		&c.NodeID2,
		&c.BitcoinKey1,
		&c.BitcoinKey2,
	); err != nil {
		return err
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.ExtraData = rest
	return nil
}

func (c *ChannelAnnouncement) Encode(w io.Writer) error {
	if err := writeElements(w,
		c.NodeSig1,
		c.NodeSig2,
		c.BitcoinSig1,
		c.BitcoinSig2,
	); err != nil {
		return err
	}

	features := c.Features
	if features == nil {
		features = NewRawFeatureVector()
	}
	if err := features.Encode(w); err != nil {
		return err
	}

	if err := writeElements(w,
		c.ChainHash,
		c.ShortChannelID,
		c.NodeID1,
		c.NodeID2,
		c.BitcoinKey1,
		c.BitcoinKey2,
	); err != nil {
		return err
	}

	_, err := w.Write(c.ExtraData)
	return err
}

func (c *ChannelAnnouncement) MsgType() MessageType { return MsgChannelAnnouncement }

func (c *ChannelAnnouncement) MaxPayloadLength() uint32 { return MaxMessagePayload }

// sliceWriter is a minimal io.Writer over an append-only byte slice, used
// to build the pre-signature digest without pulling in bytes.Buffer just
// for that.
type sliceWriter struct {
	buf *[]byte
}

func (s *sliceWriter) Write(p []byte) (int, error) {
	*s.buf = append(*s.buf, p...)
	return len(p), nil
}
