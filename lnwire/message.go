// Package lnwire implements the BOLT #1/#2/#4/#7 peer wire messages (spec
// §6): each message is `u16 type || body`, carried inside the encrypted
// frames produced by package brontide. The envelope, dispatch-by-type, and
// readElements/writeElements idiom are adapted from the teacher's
// lnwire/message.go and lnwire/funding_locked.go; the message catalogue
// itself is rewritten against the BOLT type codes the spec names (the
// teacher's snapshot predates BOLT numbering and used ad-hoc codes in the
// 32-40/128-134/256-259 range for a different, pre-standard protocol
// revision).
package lnwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxMessagePayload is the maximum bytes a message's body may occupy,
// independent of any smaller limit a particular message type imposes.
const MaxMessagePayload = 65535

// MessageType is the big-endian uint16 that leads every message.
type MessageType uint16

// The message type codes named in spec §6.
const (
	MsgInit                     MessageType = 16
	MsgError                    MessageType = 17
	MsgPing                     MessageType = 18
	MsgPong                     MessageType = 19
	MsgOpenChannel              MessageType = 32
	MsgAcceptChannel            MessageType = 33
	MsgFundingCreated           MessageType = 34
	MsgFundingSigned            MessageType = 35
	MsgChannelReady             MessageType = 36
	MsgShutdown                 MessageType = 38
	MsgClosingSigned            MessageType = 39
	MsgUpdateAddHTLC            MessageType = 128
	MsgUpdateFulfillHTLC        MessageType = 130
	MsgUpdateFailHTLC           MessageType = 131
	MsgCommitSig                MessageType = 132
	MsgRevokeAndAck             MessageType = 133
	MsgUpdateFee                MessageType = 134
	MsgChannelReestablish       MessageType = 136
	MsgChannelAnnouncement      MessageType = 256
	MsgNodeAnnouncement         MessageType = 257
	MsgChannelUpdate            MessageType = 258
	MsgQueryShortChanIDs        MessageType = 261
	MsgReplyShortChanIDsEnd     MessageType = 262
	MsgQueryChannelRange        MessageType = 263
	MsgReplyChannelRange        MessageType = 264
	MsgGossipTimestampFilter    MessageType = 265
)

// IsOdd reports whether a message type is in the "it's OK to be odd" class:
// per spec §6, an unrecognised odd type is ignored, an unrecognised even
// type must terminate the connection.
func (t MessageType) IsOdd() bool {
	return t%2 == 1
}

// Message is implemented by every wire message.
type Message interface {
	Decode(r io.Reader) error
	Encode(w io.Writer) error
	MsgType() MessageType
	MaxPayloadLength() uint32
}

// UnknownMessage is returned by ReadMessage for an unrecognised even type;
// callers are expected to treat it as a connection-terminating protocol
// error per spec §6, while an unrecognised odd type is silently dropped by
// the caller before even reaching this error (see ReadMessage).
type UnknownMessage struct {
	Type MessageType
}

func (u *UnknownMessage) Error() string {
	return fmt.Sprintf("lnwire: unknown message type %d", u.Type)
}

func makeEmptyMessage(msgType MessageType) (Message, error) {
	switch msgType {
	case MsgInit:
		return &Init{}, nil
	case MsgError:
		return &Error{}, nil
	case MsgPing:
		return &Ping{}, nil
	case MsgPong:
		return &Pong{}, nil
	case MsgOpenChannel:
		return &OpenChannel{}, nil
	case MsgAcceptChannel:
		return &AcceptChannel{}, nil
	case MsgFundingCreated:
		return &FundingCreated{}, nil
	case MsgFundingSigned:
		return &FundingSigned{}, nil
	case MsgChannelReady:
		return &ChannelReady{}, nil
	case MsgShutdown:
		return &Shutdown{}, nil
	case MsgClosingSigned:
		return &ClosingSigned{}, nil
	case MsgUpdateAddHTLC:
		return &UpdateAddHTLC{}, nil
	case MsgUpdateFulfillHTLC:
		return &UpdateFulfillHTLC{}, nil
	case MsgUpdateFailHTLC:
		return &UpdateFailHTLC{}, nil
	case MsgCommitSig:
		return &CommitSig{}, nil
	case MsgRevokeAndAck:
		return &RevokeAndAck{}, nil
	case MsgUpdateFee:
		return &UpdateFee{}, nil
	case MsgChannelReestablish:
		return &ChannelReestablish{}, nil
	case MsgChannelAnnouncement:
		return &ChannelAnnouncement{}, nil
	case MsgNodeAnnouncement:
		return &NodeAnnouncement{}, nil
	case MsgChannelUpdate:
		return &ChannelUpdate{}, nil
	case MsgQueryShortChanIDs:
		return &QueryShortChanIDs{}, nil
	case MsgReplyShortChanIDsEnd:
		return &ReplyShortChanIDsEnd{}, nil
	case MsgQueryChannelRange:
		return &QueryChannelRange{}, nil
	case MsgReplyChannelRange:
		return &ReplyChannelRange{}, nil
	case MsgGossipTimestampFilter:
		return &GossipTimestampFilter{}, nil
	default:
		return nil, &UnknownMessage{Type: msgType}
	}
}

// WriteMessage serializes msg (with its 2-byte type prefix) into a single
// buffer ready to be handed to a brontide.Conn.Send call.
func WriteMessage(msg Message) ([]byte, error) {
	var body bytes.Buffer
	if err := msg.Encode(&body); err != nil {
		return nil, err
	}

	if body.Len() > MaxMessagePayload {
		return nil, fmt.Errorf("lnwire: encoded message is %d bytes, "+
			"max %d", body.Len(), MaxMessagePayload)
	}
	if maxLen := msg.MaxPayloadLength(); uint32(body.Len()) > maxLen {
		return nil, fmt.Errorf("lnwire: message type %d encoded to %d "+
			"bytes, exceeds its own max of %d", msg.MsgType(),
			body.Len(), maxLen)
	}

	out := make([]byte, 2+body.Len())
	binary.BigEndian.PutUint16(out[:2], uint16(msg.MsgType()))
	copy(out[2:], body.Bytes())
	return out, nil
}

// ReadMessage parses one frame's worth of plaintext (as already decrypted
// and delivered whole by brontide.Conn.Recv) into a concrete Message. An
// unrecognised odd type yields (nil, nil): per spec §6 it must be silently
// ignored, not surfaced as an error.
func ReadMessage(payload []byte) (Message, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("lnwire: message shorter than type prefix")
	}
	msgType := MessageType(binary.BigEndian.Uint16(payload[:2]))

	msg, err := makeEmptyMessage(msgType)
	if err != nil {
		if msgType.IsOdd() {
			return nil, nil
		}
		return nil, err
	}

	if err := msg.Decode(bytes.NewReader(payload[2:])); err != nil {
		return nil, fmt.Errorf("lnwire: decoding type %d: %w", msgType, err)
	}
	return msg, nil
}
