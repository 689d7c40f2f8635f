package lnwire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
)

// writeElement serializes a single field according to its concrete type.
// Every message's Encode method is a sequence of writeElement calls
// (normally reached through the writeElements variadic wrapper below),
// mirroring the teacher's funding_locked.go idiom.
func writeElement(w io.Writer, element interface{}) error {
	switch e := element.(type) {
	case uint8:
		return binary.Write(w, binary.BigEndian, e)
	case uint16:
		return binary.Write(w, binary.BigEndian, e)
	case uint32:
		return binary.Write(w, binary.BigEndian, e)
	case uint64:
		return binary.Write(w, binary.BigEndian, e)
	case int64:
		return binary.Write(w, binary.BigEndian, e)
	case bool:
		var b uint8
		if e {
			b = 1
		}
		return binary.Write(w, binary.BigEndian, b)
	case []byte:
		_, err := w.Write(e)
		return err
	case [32]byte:
		_, err := w.Write(e[:])
		return err
	case [33]byte:
		_, err := w.Write(e[:])
		return err
	case [64]byte:
		_, err := w.Write(e[:])
		return err
	case ChannelID:
		_, err := w.Write(e[:])
		return err
	case ShortChannelID:
		b := e.Bytes()
		_, err := w.Write(b[:])
		return err
	case Sig:
		_, err := w.Write(e[:])
		return err
	case *btcec.PublicKey:
		if e == nil {
			return fmt.Errorf("lnwire: cannot encode nil public key")
		}
		_, err := w.Write(e.SerializeCompressed())
		return err
	case lncrypto.Hash256:
		_, err := w.Write(e[:])
		return err
	default:
		return fmt.Errorf("lnwire: unknown type %T for writeElement", e)
	}
}

// writeElements writes every element in order, stopping at the first
// error.
func writeElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		if err := writeElement(w, element); err != nil {
			return err
		}
	}
	return nil
}

// readElement deserializes a single field into the pointer element points
// to.
func readElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *uint8:
		return binary.Read(r, binary.BigEndian, e)
	case *uint16:
		return binary.Read(r, binary.BigEndian, e)
	case *uint32:
		return binary.Read(r, binary.BigEndian, e)
	case *uint64:
		return binary.Read(r, binary.BigEndian, e)
	case *int64:
		return binary.Read(r, binary.BigEndian, e)
	case *bool:
		var b uint8
		if err := binary.Read(r, binary.BigEndian, &b); err != nil {
			return err
		}
		*e = b != 0
		return nil
	case *[32]byte:
		_, err := io.ReadFull(r, e[:])
		return err
	case *[33]byte:
		_, err := io.ReadFull(r, e[:])
		return err
	case *[64]byte:
		_, err := io.ReadFull(r, e[:])
		return err
	case *ChannelID:
		_, err := io.ReadFull(r, e[:])
		return err
	case *ShortChannelID:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = NewShortChannelIDFromUint64(binary.BigEndian.Uint64(b[:]))
		return nil
	case *Sig:
		_, err := io.ReadFull(r, e[:])
		return err
	case **btcec.PublicKey:
		var raw [33]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return err
		}
		pub, err := btcec.ParsePubKey(raw[:])
		if err != nil {
			return fmt.Errorf("lnwire: invalid public key: %w", err)
		}
		*e = pub
		return nil
	case *lncrypto.Hash256:
		_, err := io.ReadFull(r, e[:])
		return err
	default:
		return fmt.Errorf("lnwire: unknown type %T for readElement", e)
	}
}

// readElements reads every element in order, stopping at the first error.
func readElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		if err := readElement(r, element); err != nil {
			return err
		}
	}
	return nil
}

// readVarBytes reads a length-prefixed (2-byte big-endian length) byte
// slice, used for variable-length fields such as TLV-extension blobs and
// the error message's Data field.
func readVarBytes(r io.Reader, maxLen uint16) ([]byte, error) {
	var length uint16
	if err := readElement(r, &length); err != nil {
		return nil, err
	}
	if length > maxLen {
		return nil, fmt.Errorf("lnwire: field length %d exceeds max %d",
			length, maxLen)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// writeVarBytes writes a 2-byte big-endian length prefix followed by data.
func writeVarBytes(w io.Writer, data []byte) error {
	if len(data) > 65535 {
		return fmt.Errorf("lnwire: field of %d bytes exceeds uint16 length prefix", len(data))
	}
	if err := writeElement(w, uint16(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// NewChannelID re-exports lncrypto's derivation so lnwire callers don't
// need to import lncrypto just to build a ChannelID.
func NewChannelID(fundingTxid [32]byte, outputIndex uint16) ChannelID {
	var id ChannelID
	copy(id[:], fundingTxid[:])
	id[30] ^= byte(outputIndex >> 8)
	id[31] ^= byte(outputIndex)
	return id
}
