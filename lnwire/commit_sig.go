package lnwire

import (
	"fmt"
	"io"
)

// CommitSig delivers a new commitment signature plus one HTLC signature
// per in-flight HTLC on the commitment being signed (spec §4.2.2).
type CommitSig struct {
	ChanID    ChannelID
	CommitSig Sig
	HTLCSigs  []Sig
}

var _ Message = (*CommitSig)(nil)

func (c *CommitSig) Decode(r io.Reader) error {
	if err := readElements(r, &c.ChanID, &c.CommitSig); err != nil {
		return err
	}

	var numSigs uint16
	if err := readElement(r, &numSigs); err != nil {
		return err
	}

	c.HTLCSigs = make([]Sig, numSigs)
	for i := range c.HTLCSigs {
		if err := readElement(r, &c.HTLCSigs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (c *CommitSig) Encode(w io.Writer) error {
	if err := writeElements(w, c.ChanID, c.CommitSig); err != nil {
		return err
	}

	if len(c.HTLCSigs) > 65535 {
		return fmt.Errorf("lnwire: too many htlc signatures: %d", len(c.HTLCSigs))
	}
	if err := writeElement(w, uint16(len(c.HTLCSigs))); err != nil {
		return err
	}
	for _, sig := range c.HTLCSigs {
		if err := writeElement(w, sig); err != nil {
			return err
		}
	}
	return nil
}

func (c *CommitSig) MsgType() MessageType { return MsgCommitSig }

func (c *CommitSig) MaxPayloadLength() uint32 { return MaxMessagePayload }
