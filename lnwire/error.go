package lnwire

import "io"

// Error carries a protocol failure for a specific channel, or for the
// connection as a whole when ChanID is all-zero (spec §4.2.5).
type Error struct {
	ChanID ChannelID
	Data   []byte
}

var _ Message = (*Error)(nil)

func NewError(chanID ChannelID, msg string) *Error {
	return &Error{ChanID: chanID, Data: []byte(msg)}
}

// Error implements the standard error interface so an *Error can be
// returned and wrapped like any other Go error.
func (e *Error) Error() string {
	return string(e.Data)
}

func (e *Error) Decode(r io.Reader) error {
	if err := readElement(r, &e.ChanID); err != nil {
		return err
	}
	data, err := readVarBytes(r, MaxMessagePayload)
	if err != nil {
		return err
	}
	e.Data = data
	return nil
}

func (e *Error) Encode(w io.Writer) error {
	if err := writeElement(w, e.ChanID); err != nil {
		return err
	}
	return writeVarBytes(w, e.Data)
}

func (e *Error) MsgType() MessageType { return MsgError }

func (e *Error) MaxPayloadLength() uint32 { return MaxMessagePayload }
