package zpay32

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/slacerda85/ihodl-sub007/lnwire"
)

// TestEncodeDecodeRoundTrip exercises spec §4.8's invoice codec boundary
// end to end: an invoice built with NewInvoice, signed, and encoded must
// decode back to the same payment hash, amount, destination, and
// description.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	var paymentHash [32]byte
	copy(paymentHash[:], sha256.New().Sum([]byte("preimage-for-test")))

	amt := lnwire.MilliSatoshi(250_000)
	inv, err := NewInvoice(&chaincfg.TestNet3Params, paymentHash, time.Unix(1_600_000_000, 0),
		Amount(amt),
		Description("coffee"),
		Destination(priv.PubKey()),
		Expiry(2*time.Hour),
	)
	if err != nil {
		t.Fatalf("NewInvoice: %v", err)
	}

	bolt11, err := inv.Encode(MessageSigner{
		SignCompact: func(hash []byte) ([]byte, error) {
			return ecdsa.SignCompact(priv, hash, true), nil
		},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(bolt11)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.PaymentHash == nil || *decoded.PaymentHash != paymentHash {
		t.Fatalf("payment hash mismatch: got %x", decoded.PaymentHash)
	}
	if decoded.MilliSat == nil || *decoded.MilliSat != amt {
		t.Fatalf("amount mismatch: got %v, want %v", decoded.MilliSat, amt)
	}
	if decoded.Description == nil || *decoded.Description != "coffee" {
		t.Fatalf("description mismatch: got %v", decoded.Description)
	}
	if decoded.Destination == nil || !decoded.Destination.IsEqual(priv.PubKey()) {
		t.Fatalf("destination mismatch")
	}
}

// TestMinFinalCLTVExpiryDefault checks spec §4.5's documented default: an
// invoice that never calls CLTVExpiry implies DefaultFinalCLTVDelta.
func TestMinFinalCLTVExpiryDefault(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var paymentHash [32]byte

	inv, err := NewInvoice(&chaincfg.TestNet3Params, paymentHash, time.Now(),
		Description("x"), Destination(priv.PubKey()))
	if err != nil {
		t.Fatalf("NewInvoice: %v", err)
	}

	if got := inv.MinFinalCLTVExpiry(); got != DefaultFinalCLTVDelta {
		t.Fatalf("MinFinalCLTVExpiry = %d, want %d", got, DefaultFinalCLTVDelta)
	}
}

// TestDecodeRejectsGarbage ensures a non-bech32 string is rejected rather
// than silently accepted.
func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode("not-an-invoice"); err == nil {
		t.Fatalf("expected an error decoding garbage input")
	}
}
