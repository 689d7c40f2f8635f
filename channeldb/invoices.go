package channeldb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"go.etcd.io/bbolt"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
)

// InvoiceRecord is the durable form of a locally created invoice (spec
// §4.8's "Invoices by payment_hash" map): the raw BOLT #11 string plus
// the fields a caller needs without re-decoding it.
type InvoiceRecord struct {
	PaymentHash lncrypto.Hash256
	Bolt11      string
	AmountMsat  uint64
	Description string
	ExpirySecs  uint32
	CreatedAt   int64
}

func (r *InvoiceRecord) encode() []byte {
	var buf bytes.Buffer
	buf.Write(r.PaymentHash[:])
	binary.Write(&buf, byteOrder, r.AmountMsat)
	binary.Write(&buf, byteOrder, r.ExpirySecs)
	binary.Write(&buf, byteOrder, r.CreatedAt)
	writeLenPrefixed(&buf, []byte(r.Bolt11))
	writeLenPrefixed(&buf, []byte(r.Description))
	return buf.Bytes()
}

func decodeInvoiceRecord(data []byte) (*InvoiceRecord, error) {
	r := bytes.NewReader(data)
	rec := &InvoiceRecord{}
	if _, err := io.ReadFull(r, rec.PaymentHash[:]); err != nil {
		return nil, err
	}
	for _, dest := range []interface{}{&rec.AmountMsat, &rec.ExpirySecs, &rec.CreatedAt} {
		if err := binary.Read(r, byteOrder, dest); err != nil {
			return nil, err
		}
	}
	bolt11, err := readLenPrefixed(r)
	if err != nil {
		return nil, err
	}
	rec.Bolt11 = string(bolt11)
	desc, err := readLenPrefixed(r)
	if err != nil {
		return nil, err
	}
	rec.Description = string(desc)
	return rec, nil
}

func writeLenPrefixed(buf *bytes.Buffer, data []byte) {
	binary.Write(buf, byteOrder, uint32(len(data)))
	buf.Write(data)
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, byteOrder, &n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PutInvoice persists rec keyed by its payment hash.
func (d *DB) PutInvoice(rec *InvoiceRecord) error {
	return d.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(invoiceBucket).Put(rec.PaymentHash[:], rec.encode())
	})
}

// FetchInvoice loads the invoice stored for hash.
func (d *DB) FetchInvoice(hash lncrypto.Hash256) (*InvoiceRecord, error) {
	var rec *InvoiceRecord
	err := d.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(invoiceBucket).Get(hash[:])
		if raw == nil {
			return fmt.Errorf("channeldb: no invoice for hash %s", hash)
		}
		r, err := decodeInvoiceRecord(raw)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	return rec, err
}
