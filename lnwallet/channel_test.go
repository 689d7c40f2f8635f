package lnwallet

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
	"github.com/slacerda85/ihodl-sub007/lnwire"
)

// testParty builds one side's ChannelConfig with fresh basepoints, the
// private halves only the local side keeps.
func testParty(t *testing.T, dustLimit, reserve uint64, toSelfDelay uint16) (ChannelConfig, *BasepointSecrets) {
	t.Helper()
	priv := func() *btcec.PrivateKey {
		k, err := btcec.NewPrivateKey()
		if err != nil {
			t.Fatalf("NewPrivateKey: %v", err)
		}
		return k
	}
	secrets := &BasepointSecrets{
		Funding:        priv(),
		Revocation:     priv(),
		Payment:        priv(),
		DelayedPayment: priv(),
		HTLC:           priv(),
	}
	cfg := ChannelConfig{
		DustLimitSat:         dustLimit,
		MaxAcceptedHTLCs:     30,
		HTLCMinimumMSat:      1000,
		MaxHTLCValueInFlight: 1_000_000_000,
		ToSelfDelay:          toSelfDelay,
		ChannelReserveSat:    reserve,
		Basepoints: Basepoints{
			Funding:        secrets.Funding.PubKey(),
			Revocation:     secrets.Revocation.PubKey(),
			Payment:        secrets.Payment.PubKey(),
			DelayedPayment: secrets.DelayedPayment.PubKey(),
			HTLC:           secrets.HTLC.PubKey(),
		},
	}
	return cfg, secrets
}

// openTestChannelPair builds two Channel objects (funder/fundee) and
// drives them through open_channel/accept_channel/funding_created/
// funding_signed exactly as lnode's handlers would, so each Channel
// ends up AwaitingLock with both sides' balances populated (spec
// §4.2.1 scenario 1's funding phase), without needing lnode's peer
// transport.
func openTestChannelPair(t *testing.T, capacitySat, pushAmountMsat uint64) (funder, fundee *Channel) {
	t.Helper()

	funderLocal, funderSecrets := testParty(t, 546, capacitySat/100, 144)
	funderLocal.PrivateBasepoints = funderSecrets
	fundeeLocal, fundeeSecrets := testParty(t, 546, capacitySat/100, 144)
	fundeeLocal.PrivateBasepoints = fundeeSecrets

	var funderSeed, fundeeSeed [32]byte
	funderSeed[0], fundeeSeed[0] = 1, 2

	funder = NewChannel(true, capacitySat, funderLocal, ChannelConfig{}, pushAmountMsat, funderSeed)
	fundee = NewChannel(false, capacitySat, fundeeLocal, ChannelConfig{}, 0, fundeeSeed)

	open := buildOpenChannel(funder, capacitySat, pushAmountMsat)
	fundee.ApplyOpenChannel(open)

	accept := buildAcceptChannel(fundee)
	funder.ApplyAcceptChannel(accept)

	fundingTxid := chainhash.Hash{0xaa}
	outpoint := wire.OutPoint{Hash: fundingTxid, Index: 0}
	funder.FundingOutpoint = outpoint
	fundee.FundingOutpoint = outpoint
	funder.State = FundingCreated

	fundeeCommitTx, fundeeWitnessScript, err := fundee.InitialCommitTx(true)
	if err != nil {
		t.Fatalf("fundee InitialCommitTx: %v", err)
	}
	fundingSig := signInitialCommit(t, funder, fundeeCommitTx, fundeeWitnessScript)

	if err := fundee.VerifyFundingCreated(fundeeCommitTx, fundeeWitnessScript, fundingSig); err != nil {
		t.Fatalf("fundee VerifyFundingCreated: %v", err)
	}

	chanID := lncrypto.NewChannelID(fundingTxid, uint16(outpoint.Index))
	funder.ChannelID = chanID
	fundee.ChannelID = chanID

	funderCommitTx, funderWitnessScript, err := funder.InitialCommitTx(true)
	if err != nil {
		t.Fatalf("funder InitialCommitTx: %v", err)
	}
	fundingSignedSig := signInitialCommit(t, fundee, funderCommitTx, funderWitnessScript)
	if err := funder.VerifyFundingCreated(funderCommitTx, funderWitnessScript, fundingSignedSig); err != nil {
		t.Fatalf("funder verify funding_signed equivalent: %v", err)
	}
	funder.State = AwaitingLock

	return funder, fundee
}

// signInitialCommit signs owner's view of someone else's commit-0
// transaction with owner's funding basepoint secret, the same sighash
// VerifyFundingCreated checks against.
func signInitialCommit(t *testing.T, owner *Channel, commitTx *wire.MsgTx, witnessScript []byte) lnwire.Sig {
	t.Helper()
	sigHash, err := HTLCSigHash(commitTx, witnessScript, btcutil.Amount(owner.CapacitySat))
	if err != nil {
		t.Fatalf("HTLCSigHash: %v", err)
	}
	var digest [32]byte
	copy(digest[:], sigHash)
	ecSig := lncrypto.Sign(owner.LocalConfig.PrivateBasepoints.Funding, digest)
	sig, err := lnwire.NewSigFromSignature(ecSig)
	if err != nil {
		t.Fatalf("NewSigFromSignature: %v", err)
	}
	return sig
}

func buildOpenChannel(funder *Channel, capacitySat, pushAmountMsat uint64) *lnwire.OpenChannel {
	return &lnwire.OpenChannel{
		FundingAmount:            capacitySat,
		PushAmount:               pushAmountMsat,
		DustLimit:                funder.LocalConfig.DustLimitSat,
		MaxHTLCValueInFlight:     funder.LocalConfig.MaxHTLCValueInFlight,
		ChannelReserve:           funder.LocalConfig.ChannelReserveSat,
		HTLCMinimumMSat:          funder.LocalConfig.HTLCMinimumMSat,
		CSVDelay:                 funder.LocalConfig.ToSelfDelay,
		MaxAcceptedHTLCs:         funder.LocalConfig.MaxAcceptedHTLCs,
		FundingKey:               funder.LocalConfig.Basepoints.Funding,
		RevocationBasepoint:      funder.LocalConfig.Basepoints.Revocation,
		PaymentBasepoint:         funder.LocalConfig.Basepoints.Payment,
		DelayedPaymentBasepoint:  funder.LocalConfig.Basepoints.DelayedPayment,
		HTLCBasepoint:            funder.LocalConfig.Basepoints.HTLC,
		FirstPerCommitmentPoint:  funder.myPerCommitmentPoint(0),
	}
}

func buildAcceptChannel(fundee *Channel) *lnwire.AcceptChannel {
	return &lnwire.AcceptChannel{
		DustLimit:                fundee.LocalConfig.DustLimitSat,
		MaxHTLCValueInFlight:     fundee.LocalConfig.MaxHTLCValueInFlight,
		ChannelReserve:           fundee.LocalConfig.ChannelReserveSat,
		HTLCMinimumMSat:          fundee.LocalConfig.HTLCMinimumMSat,
		CSVDelay:                 fundee.LocalConfig.ToSelfDelay,
		MaxAcceptedHTLCs:         fundee.LocalConfig.MaxAcceptedHTLCs,
		FundingKey:               fundee.LocalConfig.Basepoints.Funding,
		RevocationBasepoint:      fundee.LocalConfig.Basepoints.Revocation,
		PaymentBasepoint:         fundee.LocalConfig.Basepoints.Payment,
		DelayedPaymentBasepoint:  fundee.LocalConfig.Basepoints.DelayedPayment,
		HTLCBasepoint:            fundee.LocalConfig.Basepoints.HTLC,
		FirstPerCommitmentPoint:  fundee.myPerCommitmentPoint(0),
	}
}

// TestFullLifecycleBalances exercises scenario 1's funding phase: after
// a 1,000,000 sat channel opens with no push amount, the funder
// reads 1,000,000,000/0 msat and the fundee reads the mirror image,
// and both sides' CheckBalanceInvariant holds throughout.
func TestFullLifecycleBalances(t *testing.T) {
	const capacitySat = 1_000_000
	funder, fundee := openTestChannelPair(t, capacitySat, 0)

	if funder.LocalMsat != capacitySat*1000 || funder.RemoteMsat != 0 {
		t.Fatalf("funder balances = %d/%d, want %d/0", funder.LocalMsat, funder.RemoteMsat, capacitySat*1000)
	}
	if fundee.LocalMsat != 0 || fundee.RemoteMsat != capacitySat*1000 {
		t.Fatalf("fundee balances = %d/%d, want 0/%d", fundee.LocalMsat, fundee.RemoteMsat, capacitySat*1000)
	}
	if err := funder.CheckBalanceInvariant(); err != nil {
		t.Fatalf("funder invariant: %v", err)
	}
	if err := fundee.CheckBalanceInvariant(); err != nil {
		t.Fatalf("fundee invariant: %v", err)
	}
}

// TestPushAmountBalances confirms a non-zero push_msat is reflected
// identically on both sides once accept_channel completes, since
// accept_channel itself carries no balance fields (spec §4.2.1).
func TestPushAmountBalances(t *testing.T) {
	const capacitySat = 2_000_000
	const pushMsat = 250_000_000
	funder, fundee := openTestChannelPair(t, capacitySat, pushMsat)

	wantFunderLocal := capacitySat*1000 - pushMsat
	if funder.LocalMsat != wantFunderLocal || funder.RemoteMsat != pushMsat {
		t.Fatalf("funder balances = %d/%d, want %d/%d",
			funder.LocalMsat, funder.RemoteMsat, wantFunderLocal, pushMsat)
	}
	if fundee.LocalMsat != pushMsat || fundee.RemoteMsat != wantFunderLocal {
		t.Fatalf("fundee balances = %d/%d, want %d/%d",
			fundee.LocalMsat, fundee.RemoteMsat, pushMsat, wantFunderLocal)
	}
}

// TestVerifyFundingCreatedRejectsWrongCommitment confirms the signature
// check is actually bound to the commitment it claims to cover: signing
// over one channel's commit-0 transaction must not verify against a
// different channel's.
func TestVerifyFundingCreatedRejectsWrongCommitment(t *testing.T) {
	const capacitySat = 1_000_000
	funder, fundee := openTestChannelPair(t, capacitySat, 0)

	otherFunder, otherFundee := openTestChannelPair(t, capacitySat, 0)
	_ = otherFunder

	commitTx, witnessScript, err := fundee.InitialCommitTx(true)
	if err != nil {
		t.Fatalf("InitialCommitTx: %v", err)
	}
	// Sign with a key unrelated to this channel's funder.
	wrongSig := signInitialCommit(t, otherFundee, commitTx, witnessScript)
	if err := fundee.VerifyFundingCreated(commitTx, witnessScript, wrongSig); err == nil {
		t.Fatalf("expected verification to fail for a signature from an unrelated key")
	}
}

// TestCheckBalanceInvariantCatchesCorruption exercises §8's
// balance-conservation invariant directly: once a channel's tracked
// balances no longer sum to its capacity, CheckBalanceInvariant must
// report it rather than silently accept the drift.
func TestCheckBalanceInvariantCatchesCorruption(t *testing.T) {
	local, localSecrets := testParty(t, 546, 10_000, 144)
	local.PrivateBasepoints = localSecrets
	remote, _ := testParty(t, 546, 10_000, 144)

	ch := NewChannel(true, 1_000_000, local, remote, 0, [32]byte{7})
	ch.LocalMsat = 1_000_000 * 1000
	ch.RemoteMsat = 0
	if err := ch.CheckBalanceInvariant(); err != nil {
		t.Fatalf("expected balanced channel to pass: %v", err)
	}

	ch.RemoteMsat = 1 // now over capacity by 1 msat
	if err := ch.CheckBalanceInvariant(); err == nil {
		t.Fatalf("expected invariant violation to be reported")
	}
}

// TestHTLCRoundTripPreservesInvariant drives one add/commit/revoke round
// in each direction and checks the balance invariant holds at every
// step, the same property scenario 1's later HTLC traffic depends on.
func TestHTLCRoundTripPreservesInvariant(t *testing.T) {
	const capacitySat = 1_000_000
	funder, fundee := openTestChannelPair(t, capacitySat, 0)
	funder.State = Normal
	fundee.State = Normal
	funder.RemoteNextPerCommitmentPoint = fundee.myPerCommitmentPoint(0)
	fundee.RemoteNextPerCommitmentPoint = funder.myPerCommitmentPoint(0)

	var paymentHash lncrypto.Hash256
	paymentHash[0] = 0x42
	var onion [lnwire.OnionPacketSize]byte

	htlcID, err := funder.AddHTLC(50_000_000, paymentHash, 600, 500, 100, onion)
	if err != nil {
		t.Fatalf("AddHTLC: %v", err)
	}

	addMsg := &lnwire.UpdateAddHTLC{
		ID:         htlcID,
		Amount:     50_000_000,
		PaymentHash: [32]byte(paymentHash),
		CLTVExpiry: 600,
		OnionBlob:  onion,
	}
	if err := fundee.ReceiveAddHTLC(addMsg, 500, 100); err != nil {
		t.Fatalf("ReceiveAddHTLC: %v", err)
	}

	// First leg: funder signs fundee's next commitment (carrying the new
	// HTLC) and fundee revokes its previous one (spec §4.2.2 step 1-3).
	sig, err := funder.SignCommitment()
	if err != nil {
		t.Fatalf("SignCommitment: %v", err)
	}
	ack, err := fundee.ReceiveCommitSig(sig)
	if err != nil {
		t.Fatalf("ReceiveCommitSig: %v", err)
	}
	if err := fundee.CheckBalanceInvariant(); err != nil {
		t.Fatalf("fundee invariant after commit: %v", err)
	}
	if err := funder.ReceiveRevokeAndAck(ack); err != nil {
		t.Fatalf("ReceiveRevokeAndAck: %v", err)
	}

	// Second leg: fundee signs funder's next commitment, which is what
	// actually applies the pending update to the funder's own balances
	// and HTLC set (spec §4.2.2's two-sided commitment round).
	sig2, err := fundee.SignCommitment()
	if err != nil {
		t.Fatalf("fundee SignCommitment: %v", err)
	}
	ack2, err := funder.ReceiveCommitSig(sig2)
	if err != nil {
		t.Fatalf("funder ReceiveCommitSig: %v", err)
	}
	if err := funder.CheckBalanceInvariant(); err != nil {
		t.Fatalf("funder invariant after commit: %v", err)
	}
	if err := fundee.ReceiveRevokeAndAck(ack2); err != nil {
		t.Fatalf("fundee ReceiveRevokeAndAck: %v", err)
	}

	if got := funder.LocalMsat; got != capacitySat*1000-50_000_000 {
		t.Fatalf("funder local balance after add = %d, want %d", got, capacitySat*1000-50_000_000)
	}
	if _, ok := funder.Offered[htlcID]; !ok {
		t.Fatalf("funder never committed its own offered HTLC")
	}
	if _, ok := fundee.Received[htlcID]; !ok {
		t.Fatalf("fundee never committed the received HTLC")
	}
}
