package lnwire

import "io"

// Pong answers a Ping with NumPongBytes of padding.
type Pong struct {
	PongBytes []byte
}

var _ Message = (*Pong)(nil)

func NewPong(numBytes uint16) *Pong {
	return &Pong{PongBytes: make([]byte, numBytes)}
}

func (p *Pong) Decode(r io.Reader) error {
	data, err := readVarBytes(r, MaxMessagePayload)
	if err != nil {
		return err
	}
	p.PongBytes = data
	return nil
}

func (p *Pong) Encode(w io.Writer) error {
	return writeVarBytes(w, p.PongBytes)
}

func (p *Pong) MsgType() MessageType { return MsgPong }

func (p *Pong) MaxPayloadLength() uint32 { return MaxMessagePayload }
