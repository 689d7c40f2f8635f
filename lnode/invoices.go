package lnode

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/slacerda85/ihodl-sub007/channeldb"
	"github.com/slacerda85/ihodl-sub007/lncrypto"
	"github.com/slacerda85/ihodl-sub007/lnwire"
	"github.com/slacerda85/ihodl-sub007/zpay32"
)

// chainParams maps this tree's NetworkProfile (spec §6's configuration
// table) onto the btcd chaincfg.Params the BOLT11 codec addresses by
// Bech32HRPSegwit prefix.
func (w *NodeWorker) chainParams() *chaincfg.Params {
	switch w.cfg.Network.Name {
	case "mainnet":
		return &chaincfg.MainNetParams
	case "testnet":
		return &chaincfg.TestNet3Params
	default:
		return &chaincfg.RegressionNetParams
	}
}

// CreateInvoice generates a fresh random preimage, persists both the
// preimage and the encoded BOLT11 string (spec §4.8's Preimages/Invoices
// maps), and returns the invoice string a caller hands to the payer out
// of band. Mirrors the teacher's invoice-creation flow of minting a
// random preimage then deferring to zpay32 for the wire-format string
// (spec §6's invoice codec boundary).
func (w *NodeWorker) CreateInvoice(amountMsat uint64, description string, expiry time.Duration) (string, error) {
	var preimage [32]byte
	if _, err := rand.Read(preimage[:]); err != nil {
		return "", fmt.Errorf("lnode: generate preimage: %w", err)
	}
	hash := lncrypto.Hash256(sha256.Sum256(preimage[:]))

	inv, err := zpay32.NewInvoice(w.chainParams(), [32]byte(hash), time.Now(),
		zpay32.Description(description),
		zpay32.Expiry(expiry),
		zpay32.Destination(w.nodePriv.PubKey()),
	)
	if err != nil {
		return "", fmt.Errorf("lnode: build invoice: %w", err)
	}
	if amountMsat != 0 {
		msat := lnwire.MilliSatoshi(amountMsat)
		inv.MilliSat = &msat
	}

	bolt11, err := inv.Encode(zpay32.MessageSigner{
		SignCompact: func(msg []byte) ([]byte, error) {
			return ecdsa.SignCompact(w.nodePriv, msg, true), nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("lnode: encode invoice: %w", err)
	}

	now := time.Now().Unix()
	if err := w.persist.DB.PutPreimage(hash, preimage, now); err != nil {
		return "", fmt.Errorf("lnode: persist preimage: %w", err)
	}
	rec := &channeldb.InvoiceRecord{
		PaymentHash: hash,
		Bolt11:      bolt11,
		AmountMsat:  amountMsat,
		Description: description,
		ExpirySecs:  uint32(expiry.Seconds()),
		CreatedAt:   now,
	}
	if err := w.persist.DB.PutInvoice(rec); err != nil {
		return "", fmt.Errorf("lnode: persist invoice: %w", err)
	}
	return bolt11, nil
}

// DecodeInvoice parses a peer-supplied BOLT11 string into the decoded
// fields the payment path needs (spec §6's invoice codec boundary): the
// amount, payment hash, destination, and CLTV expiry delta. It performs
// no persistence; the caller is the one about to originate a payment.
func DecodeInvoice(bolt11 string) (*zpay32.Invoice, error) {
	return zpay32.Decode(bolt11)
}

// PayInvoice decodes bolt11 and originates a payment to its destination
// for its encoded amount via SendPayment (spec §2's outbound-payment
// data flow: C10 -> C7 -> C6 -> C5 -> C2).
func (w *NodeWorker) PayInvoice(bolt11 string) error {
	inv, err := DecodeInvoice(bolt11)
	if err != nil {
		return fmt.Errorf("lnode: decode invoice: %w", err)
	}
	if inv.PaymentHash == nil {
		return fmt.Errorf("lnode: invoice has no payment hash")
	}
	if inv.Destination == nil {
		return fmt.Errorf("lnode: invoice has no destination pubkey")
	}
	var amountMsat uint64
	if inv.MilliSat != nil {
		amountMsat = uint64(*inv.MilliSat)
	}

	var destKey [33]byte
	copy(destKey[:], inv.Destination.SerializeCompressed())

	// currentHeight is 0: the chain backend (spec §1 Non-goal) is not
	// wired here, so pathfinding's CLTV-budget check runs relative to
	// height 0. A deployment with a real chain backend passes its tip.
	return w.SendPayment(destKey, amountMsat, lncrypto.Hash256(*inv.PaymentHash),
		uint16(inv.MinFinalCLTVExpiry()), 0)
}
