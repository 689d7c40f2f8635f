package lnwire

import "io"

// Shutdown initiates the cooperative close flow (spec §4.2.3), carrying
// the script the sender wants its settlement output paid to.
type Shutdown struct {
	ChanID      ChannelID
	ScriptPubKey []byte
}

var _ Message = (*Shutdown)(nil)

func NewShutdown(chanID ChannelID, script []byte) *Shutdown {
	return &Shutdown{ChanID: chanID, ScriptPubKey: script}
}

func (s *Shutdown) Decode(r io.Reader) error {
	if err := readElement(r, &s.ChanID); err != nil {
		return err
	}
	script, err := readVarBytes(r, MaxMessagePayload)
	if err != nil {
		return err
	}
	s.ScriptPubKey = script
	return nil
}

func (s *Shutdown) Encode(w io.Writer) error {
	if err := writeElement(w, s.ChanID); err != nil {
		return err
	}
	return writeVarBytes(w, s.ScriptPubKey)
}

func (s *Shutdown) MsgType() MessageType { return MsgShutdown }

func (s *Shutdown) MaxPayloadLength() uint32 { return MaxMessagePayload }
