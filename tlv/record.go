package tlv

import (
	"bytes"
	"fmt"
	"io"
	"sort"
)

// Record is a single TLV record: a BigSize type, a BigSize length, and a
// value blob. Records are opaque here; callers (onion per-hop payloads,
// gossip message extensions) interpret the Value by Type.
type Record struct {
	Type  uint64
	Value []byte
}

// Stream is an ordered set of Records, written and read in strictly
// ascending Type order as required by BOLT #1.
type Stream struct {
	Records []Record
}

// Encode serializes every record in s in ascending type order.
func (s *Stream) Encode(w io.Writer) error {
	sorted := append([]Record(nil), s.Records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Type < sorted[j].Type })

	for _, rec := range sorted {
		if err := WriteBigSize(w, rec.Type); err != nil {
			return err
		}
		if err := WriteBigSize(w, uint64(len(rec.Value))); err != nil {
			return err
		}
		if _, err := w.Write(rec.Value); err != nil {
			return err
		}
	}
	return nil
}

// DecodeStream reads records until r is exhausted, rejecting a type that is
// not strictly greater than the previous one.
func DecodeStream(r io.Reader) (*Stream, error) {
	s := &Stream{}

	var lastType uint64
	first := true
	for {
		typ, err := ReadBigSize(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !first && typ <= lastType {
			return nil, fmt.Errorf("tlv: records out of order: %d after %d",
				typ, lastType)
		}
		first = false
		lastType = typ

		length, err := ReadBigSize(r)
		if err != nil {
			return nil, err
		}

		value := make([]byte, length)
		if _, err := io.ReadFull(r, value); err != nil {
			return nil, fmt.Errorf("tlv: short record body: %w", err)
		}

		s.Records = append(s.Records, Record{Type: typ, Value: value})
	}

	return s, nil
}

// Get returns the value of the first record with the given type.
func (s *Stream) Get(typ uint64) ([]byte, bool) {
	for _, rec := range s.Records {
		if rec.Type == typ {
			return rec.Value, true
		}
	}
	return nil, false
}

// Set replaces (or appends) the record with the given type.
func (s *Stream) Set(typ uint64, value []byte) {
	for i, rec := range s.Records {
		if rec.Type == typ {
			s.Records[i].Value = value
			return
		}
	}
	s.Records = append(s.Records, Record{Type: typ, Value: value})
}

// Bytes returns the encoded form of s.
func (s *Stream) Bytes() []byte {
	var buf bytes.Buffer
	// Encode on a fresh Stream never errors against a bytes.Buffer.
	_ = s.Encode(&buf)
	return buf.Bytes()
}
