package channeldb

import (
	"path/filepath"
	"testing"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "channel.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestPutFetchInvoice exercises spec §4.8's "Invoices by payment_hash"
// map round trip.
func TestPutFetchInvoice(t *testing.T) {
	db := openTestDB(t)

	var hash lncrypto.Hash256
	hash[0] = 0xaa

	rec := &InvoiceRecord{
		PaymentHash: hash,
		Bolt11:      "lntb2500n1p0test",
		AmountMsat:  250_000,
		Description: "coffee",
		ExpirySecs:  3600,
		CreatedAt:   1_700_000_000,
	}
	if err := db.PutInvoice(rec); err != nil {
		t.Fatalf("PutInvoice: %v", err)
	}

	got, err := db.FetchInvoice(hash)
	if err != nil {
		t.Fatalf("FetchInvoice: %v", err)
	}
	if got.Bolt11 != rec.Bolt11 || got.AmountMsat != rec.AmountMsat ||
		got.Description != rec.Description || got.ExpirySecs != rec.ExpirySecs ||
		got.CreatedAt != rec.CreatedAt || got.PaymentHash != rec.PaymentHash {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, rec)
	}
}

// TestFetchInvoiceMissing confirms an unknown hash errors rather than
// returning a zero-value record silently.
func TestFetchInvoiceMissing(t *testing.T) {
	db := openTestDB(t)
	var hash lncrypto.Hash256
	hash[0] = 0xbb

	if _, err := db.FetchInvoice(hash); err == nil {
		t.Fatalf("expected an error for a missing invoice")
	}
}

// TestPutFetchPreimage exercises the paired "Preimages by payment_hash"
// map (spec §4.8), including the HasPreimage fast-path settlement check.
func TestPutFetchPreimage(t *testing.T) {
	db := openTestDB(t)

	var hash lncrypto.Hash256
	hash[0] = 0xcc
	var preimage [32]byte
	preimage[31] = 0x42

	if db.HasPreimage(hash) {
		t.Fatalf("HasPreimage should be false before PutPreimage")
	}

	if err := db.PutPreimage(hash, preimage, 1_700_000_001); err != nil {
		t.Fatalf("PutPreimage: %v", err)
	}
	if !db.HasPreimage(hash) {
		t.Fatalf("HasPreimage should be true after PutPreimage")
	}

	got, createdAt, err := db.FetchPreimage(hash)
	if err != nil {
		t.Fatalf("FetchPreimage: %v", err)
	}
	if got != preimage || createdAt != 1_700_000_001 {
		t.Fatalf("preimage round trip mismatch: got %x/%d", got, createdAt)
	}
}
