package lnwire

import "io"

// Ping requests the peer send back a Pong, per the liveness check in spec
// §5 (30s cadence, 10s reply timeout, 3 consecutive misses disconnects).
type Ping struct {
	NumPongBytes uint16
	PaddingBytes []byte
}

var _ Message = (*Ping)(nil)

func NewPing(numPongBytes uint16) *Ping {
	return &Ping{NumPongBytes: numPongBytes}
}

func (p *Ping) Decode(r io.Reader) error {
	if err := readElement(r, &p.NumPongBytes); err != nil {
		return err
	}
	padding, err := readVarBytes(r, MaxMessagePayload)
	if err != nil {
		return err
	}
	p.PaddingBytes = padding
	return nil
}

func (p *Ping) Encode(w io.Writer) error {
	if err := writeElement(w, p.NumPongBytes); err != nil {
		return err
	}
	return writeVarBytes(w, p.PaddingBytes)
}

func (p *Ping) MsgType() MessageType { return MsgPing }

func (p *Ping) MaxPayloadLength() uint32 { return MaxMessagePayload }
