package lnwire

import "io"

// ChannelUpdate advertises one direction's routing policy for a channel
// (spec §4.7): fee parameters, CLTV delta, and the HTLC value bounds a
// forwarder will accept. Monotonicity of Timestamp within a
// (short_channel_id, direction) pair is enforced by the gossip store, not
// by this type.
type ChannelUpdate struct {
	Signature      Sig
	ChainHash      [32]byte
	ShortChannelID ShortChannelID
	Timestamp      uint32

	MessageFlags uint8
	ChannelFlags uint8

	CLTVExpiryDelta uint16
	HTLCMinimumMSat uint64
	FeeBaseMSat     uint32
	FeeProportionalMillionths uint32
	HTLCMaximumMSat uint64

	ExtraData []byte
}

var _ Message = (*ChannelUpdate)(nil)

// Direction reports which endpoint of the channel this update describes:
// bit 0 of ChannelFlags is 0 for node_1, 1 for node_2.
func (c *ChannelUpdate) Direction() int {
	return int(c.ChannelFlags & 0x1)
}

// Disabled reports the channel-disabled bit (bit 1 of ChannelFlags).
func (c *ChannelUpdate) Disabled() bool {
	return c.ChannelFlags&0x2 != 0
}

func (c *ChannelUpdate) Decode(r io.Reader) error {
	if err := readElements(r,
		&c.Signature,
		&c.ChainHash,
		&c.ShortChannelID,
		&c.Timestamp,
		&c.MessageFlags,
		&c.ChannelFlags,
		&c.CLTVExpiryDelta,
		&c.HTLCMinimumMSat,
		&c.FeeBaseMSat,
		&c.FeeProportionalMillionths,
	); err != nil {
		return err
	}

	// htlc_maximum_msat is only present when MessageFlags bit 0 is set
	// (the option_channel_htlc_max feature, universal in modern gossip).
	if c.MessageFlags&0x1 != 0 {
		if err := readElement(r, &c.HTLCMaximumMSat); err != nil {
			return err
		}
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.ExtraData = rest
	return nil
}

func (c *ChannelUpdate) Encode(w io.Writer) error {
	if err := writeElements(w,
		c.Signature,
		c.ChainHash,
		c.ShortChannelID,
		c.Timestamp,
		c.MessageFlags,
		c.ChannelFlags,
		c.CLTVExpiryDelta,
		c.HTLCMinimumMSat,
		c.FeeBaseMSat,
		c.FeeProportionalMillionths,
	); err != nil {
		return err
	}

	if c.MessageFlags&0x1 != 0 {
		if err := writeElement(w, c.HTLCMaximumMSat); err != nil {
			return err
		}
	}

	_, err := w.Write(c.ExtraData)
	return err
}

func (c *ChannelUpdate) MsgType() MessageType { return MsgChannelUpdate }

func (c *ChannelUpdate) MaxPayloadLength() uint32 { return MaxMessagePayload }

// DigestTBS returns the concatenation of fields covered by Signature
// (everything after it), the message a node must sign to publish its
// routing policy for one channel direction (spec §4.7).
func (c *ChannelUpdate) DigestTBS() ([]byte, error) {
	var buf []byte
	w := &sliceWriter{buf: &buf}

	if err := writeElements(w,
		c.ChainHash,
		c.ShortChannelID,
		c.Timestamp,
		c.MessageFlags,
		c.ChannelFlags,
		c.CLTVExpiryDelta,
		c.HTLCMinimumMSat,
		c.FeeBaseMSat,
		c.FeeProportionalMillionths,
	); err != nil {
		return nil, err
	}
	if c.MessageFlags&0x1 != 0 {
		if err := writeElement(w, c.HTLCMaximumMSat); err != nil {
			return nil, err
		}
	}
	return buf, nil
}
