package contractcourt

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/slacerda85/ihodl-sub007/chainntfs"
	"github.com/slacerda85/ihodl-sub007/lncrypto"
	"github.com/slacerda85/ihodl-sub007/lnwallet"
	"github.com/slacerda85/ihodl-sub007/lnwire"
	"github.com/slacerda85/ihodl-sub007/shachain"
)

// testParty builds one side's ChannelConfig with fresh basepoints, the
// private halves only the local side keeps. Mirrors lnwallet's own
// internal test helper of the same name, rebuilt here against the
// exported API since this package can't reach lnwallet's unexported
// helpers.
func testParty(t *testing.T, dustLimit, reserve uint64, toSelfDelay uint16) (lnwallet.ChannelConfig, *lnwallet.BasepointSecrets) {
	t.Helper()
	priv := func() *btcec.PrivateKey {
		k, err := btcec.NewPrivateKey()
		if err != nil {
			t.Fatalf("NewPrivateKey: %v", err)
		}
		return k
	}
	secrets := &lnwallet.BasepointSecrets{
		Funding:        priv(),
		Revocation:     priv(),
		Payment:        priv(),
		DelayedPayment: priv(),
		HTLC:           priv(),
	}
	cfg := lnwallet.ChannelConfig{
		DustLimitSat:         dustLimit,
		MaxAcceptedHTLCs:     30,
		HTLCMinimumMSat:      1000,
		MaxHTLCValueInFlight: 1_000_000_000,
		ToSelfDelay:          toSelfDelay,
		ChannelReserveSat:    reserve,
		Basepoints: lnwallet.Basepoints{
			Funding:        secrets.Funding.PubKey(),
			Revocation:     secrets.Revocation.PubKey(),
			Payment:        secrets.Payment.PubKey(),
			DelayedPayment: secrets.DelayedPayment.PubKey(),
			HTLC:           secrets.HTLC.PubKey(),
		},
	}
	return cfg, secrets
}

func signInitialCommit(t *testing.T, ownerPriv *btcec.PrivateKey, capacitySat uint64, commitTx *wire.MsgTx, witnessScript []byte) lnwire.Sig {
	t.Helper()
	sigHash, err := lnwallet.HTLCSigHash(commitTx, witnessScript, btcutil.Amount(capacitySat))
	if err != nil {
		t.Fatalf("HTLCSigHash: %v", err)
	}
	var digest [32]byte
	copy(digest[:], sigHash)
	ecSig := lncrypto.Sign(ownerPriv, digest)
	sig, err := lnwire.NewSigFromSignature(ecSig)
	if err != nil {
		t.Fatalf("NewSigFromSignature: %v", err)
	}
	return sig
}

// openBreachTestPair drives two Channel objects through establishment
// (open_channel/accept_channel/funding_created/funding_signed) the same
// way lnode's handlers and lnwallet's own establishment tests do, then
// advances one no-op commitment round so commit number 0 gets revoked on
// both sides — exactly the state a channel is in right before a breach
// becomes detectable (spec §4.5, §8 scenario 2).
func openBreachTestPair(t *testing.T, capacitySat, pushAmountMsat uint64) (funder, fundee *lnwallet.Channel, funderSecrets, fundeeSecrets *lnwallet.BasepointSecrets) {
	t.Helper()

	funderLocal, funderSecrets := testParty(t, 546, capacitySat/100, 144)
	funderLocal.PrivateBasepoints = funderSecrets
	fundeeLocal, fundeeSecrets := testParty(t, 546, capacitySat/100, 144)
	fundeeLocal.PrivateBasepoints = fundeeSecrets

	var funderSeed, fundeeSeed [32]byte
	funderSeed[0], fundeeSeed[0] = 1, 2

	funder = lnwallet.NewChannel(true, capacitySat, funderLocal, lnwallet.ChannelConfig{}, pushAmountMsat, funderSeed)
	fundee = lnwallet.NewChannel(false, capacitySat, fundeeLocal, lnwallet.ChannelConfig{}, 0, fundeeSeed)

	funderPoint0 := lnwallet.PerCommitmentPoint(shachain.GenerateFromSeed(funderSeed, shachain.MaxIndex))
	fundeePoint0 := lnwallet.PerCommitmentPoint(shachain.GenerateFromSeed(fundeeSeed, shachain.MaxIndex))

	open := &lnwire.OpenChannel{
		FundingAmount:           capacitySat,
		PushAmount:              pushAmountMsat,
		DustLimit:               funder.LocalConfig.DustLimitSat,
		MaxHTLCValueInFlight:    funder.LocalConfig.MaxHTLCValueInFlight,
		ChannelReserve:          funder.LocalConfig.ChannelReserveSat,
		HTLCMinimumMSat:         funder.LocalConfig.HTLCMinimumMSat,
		CSVDelay:                funder.LocalConfig.ToSelfDelay,
		MaxAcceptedHTLCs:        funder.LocalConfig.MaxAcceptedHTLCs,
		FundingKey:              funder.LocalConfig.Basepoints.Funding,
		RevocationBasepoint:     funder.LocalConfig.Basepoints.Revocation,
		PaymentBasepoint:        funder.LocalConfig.Basepoints.Payment,
		DelayedPaymentBasepoint: funder.LocalConfig.Basepoints.DelayedPayment,
		HTLCBasepoint:           funder.LocalConfig.Basepoints.HTLC,
		FirstPerCommitmentPoint: funderPoint0,
	}
	fundee.ApplyOpenChannel(open)

	accept := &lnwire.AcceptChannel{
		DustLimit:               fundee.LocalConfig.DustLimitSat,
		MaxHTLCValueInFlight:    fundee.LocalConfig.MaxHTLCValueInFlight,
		ChannelReserve:          fundee.LocalConfig.ChannelReserveSat,
		HTLCMinimumMSat:         fundee.LocalConfig.HTLCMinimumMSat,
		CSVDelay:                fundee.LocalConfig.ToSelfDelay,
		MaxAcceptedHTLCs:        fundee.LocalConfig.MaxAcceptedHTLCs,
		FundingKey:              fundee.LocalConfig.Basepoints.Funding,
		RevocationBasepoint:     fundee.LocalConfig.Basepoints.Revocation,
		PaymentBasepoint:        fundee.LocalConfig.Basepoints.Payment,
		DelayedPaymentBasepoint: fundee.LocalConfig.Basepoints.DelayedPayment,
		HTLCBasepoint:           fundee.LocalConfig.Basepoints.HTLC,
		FirstPerCommitmentPoint: fundeePoint0,
	}
	funder.ApplyAcceptChannel(accept)

	fundingTxid := chainhash.Hash{0xbb}
	outpoint := wire.OutPoint{Hash: fundingTxid, Index: 0}
	funder.FundingOutpoint = outpoint
	fundee.FundingOutpoint = outpoint

	fundeeCommitTx, fundeeWitnessScript, err := fundee.InitialCommitTx(true)
	if err != nil {
		t.Fatalf("fundee InitialCommitTx: %v", err)
	}
	fundingSig := signInitialCommit(t, funderSecrets.Funding, capacitySat, fundeeCommitTx, fundeeWitnessScript)
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
	fundingSignedSig := signInitialCommit(t, fundeeSecrets.Funding, capacitySat, funderCommitTx, funderWitnessScript)
	if err := funder.VerifyFundingCreated(funderCommitTx, funderWitnessScript, fundingSignedSig); err != nil {
		t.Fatalf("funder verify funding_signed equivalent: %v", err)
	}

	funder.RemoteNextPerCommitmentPoint = fundeePoint0
	fundee.RemoteNextPerCommitmentPoint = funderPoint0

	// A no-op commitment round: no HTLCs change hands, but it still
	// advances both sides' commit numbers by one and reveals fundee's
	// commit-0 secret to the funder, which is what makes commit 0
	// breachable.
	sig, err := funder.SignCommitment()
	if err != nil {
		t.Fatalf("funder SignCommitment: %v", err)
	}
	ack, err := fundee.ReceiveCommitSig(sig)
	if err != nil {
		t.Fatalf("fundee ReceiveCommitSig: %v", err)
	}
	if err := funder.ReceiveRevokeAndAck(ack); err != nil {
		t.Fatalf("funder ReceiveRevokeAndAck: %v", err)
	}

	sig2, err := fundee.SignCommitment()
	if err != nil {
		t.Fatalf("fundee SignCommitment: %v", err)
	}
	ack2, err := funder.ReceiveCommitSig(sig2)
	if err != nil {
		t.Fatalf("funder ReceiveCommitSig: %v", err)
	}
	if err := fundee.ReceiveRevokeAndAck(ack2); err != nil {
		t.Fatalf("fundee ReceiveRevokeAndAck: %v", err)
	}

	return funder, fundee, funderSecrets, fundeeSecrets
}

// fakeNotifier hands back a caller-supplied spend channel for every
// RegisterSpendNtfn call; only spend notifications matter to the
// watcher, so the other methods are unused stubs.
type fakeNotifier struct {
	spend chan *chainntfs.SpendDetail
}

func (f *fakeNotifier) RegisterConfirmationsNtfn(txid *chainhash.Hash, numConfs uint32) (*chainntfs.ConfirmationEvent, error) {
	return &chainntfs.ConfirmationEvent{Confirmed: make(chan int32, 1), NegativeConf: make(chan int32, 1)}, nil
}

func (f *fakeNotifier) RegisterSpendNtfn(outpoint *wire.OutPoint) (*chainntfs.SpendEvent, error) {
	return &chainntfs.SpendEvent{Spend: f.spend}, nil
}

func (f *fakeNotifier) RegisterBlockEpochNtfn(targetHeight int32) (*chainntfs.BlockEpochEvent, error) {
	return &chainntfs.BlockEpochEvent{Epochs: make(chan *chainntfs.BlockEpoch, 1)}, nil
}

func (f *fakeNotifier) Start() error { return nil }
func (f *fakeNotifier) Stop() error  { return nil }

// fakeBroadcaster records every transaction handed to Broadcast.
type fakeBroadcaster struct {
	txs chan *wire.MsgTx
}

func (f *fakeBroadcaster) Broadcast(tx *wire.MsgTx) (chainhash.Hash, error) {
	f.txs <- tx
	return tx.TxHash(), nil
}

type fakeSweepSource struct{ script []byte }

func (f *fakeSweepSource) NextSweepPkScript() ([]byte, error) { return f.script, nil }

// TestHandleSpendDetectsBreachAndSweeps exercises scenario 2: the
// counterparty broadcasts its revoked commit-0 transaction, and the
// watcher must recognize it as a breach, build the penalty transaction,
// and broadcast it.
func TestHandleSpendDetectsBreachAndSweeps(t *testing.T) {
	const capacitySat = 1_000_000
	const pushMsat = 300_000_000 // fundee's own balance, well above dust
	funder, fundee, _, _ := openBreachTestPair(t, capacitySat, pushMsat)

	// Rebuild fundee's revoked commit-0 transaction: InitialCommitTx
	// always builds against commit number 0 and fundee's balances are
	// unchanged since the no-op round, so this reconstructs the exact
	// transaction fundee originally signed and later revoked.
	breachTx, _, err := fundee.InitialCommitTx(true)
	if err != nil {
		t.Fatalf("rebuild fundee commit-0: %v", err)
	}

	w := NewWatcher(&fakeNotifier{}, &fakeBroadcaster{txs: make(chan *wire.MsgTx, 1)},
		&fakeSweepSource{script: []byte{0x00, 0x14}}, 1000)
	wc := WatchedChannel{
		Channel:      funder,
		LocalConfig:  &funder.LocalConfig,
		RemoteConfig: &funder.RemoteConfig,
	}

	if err := w.handleSpend(wc, breachTx); err != nil {
		t.Fatalf("handleSpend: %v", err)
	}
	if !w.IsResolved(funder.ChannelID) {
		t.Fatalf("expected breach to resolve after a successful broadcast")
	}
}

// TestHandleSpendIgnoresLatestCommitment confirms the watcher does not
// mistake the channel's own current (not yet revoked) commitment for a
// breach: a close broadcasting the latest state is expected, not
// punishable (spec §4.5's "not yet revoked" carve-out).
func TestHandleSpendIgnoresLatestCommitment(t *testing.T) {
	const capacitySat = 1_000_000
	const pushMsat = 300_000_000
	funder, fundee, _, _ := openBreachTestPair(t, capacitySat, pushMsat)

	if funder.RemoteCommitNumber != 1 {
		t.Fatalf("expected RemoteCommitNumber == 1 after one round, got %d", funder.RemoteCommitNumber)
	}

	// Build fundee's *current* local commitment (commit number 1, the
	// one that has not been revoked) directly via CreateCommitTx, the
	// same construction ReceiveCommitSig/SignCommitment use internally.
	point1 := lnwallet.PerCommitmentPoint(shachainSecretAt(fundee, 1))
	keyRing := lnwallet.DeriveCommitmentKeyRing(point1, &fundee.LocalConfig, &fundee.RemoteConfig)
	fundingTxIn := wire.NewTxIn(&fundee.FundingOutpoint, nil, nil)
	commitTx, err := lnwallet.CreateCommitTx(fundingTxIn, &fundee.LocalConfig, &fundee.RemoteConfig,
		keyRing, 1, false, btcutil.Amount(fundee.LocalMsat/1000), btcutil.Amount(fundee.RemoteMsat/1000), nil)
	if err != nil {
		t.Fatalf("CreateCommitTx: %v", err)
	}

	w := NewWatcher(&fakeNotifier{}, &fakeBroadcaster{}, &fakeSweepSource{script: []byte{0x00, 0x14}}, 1000)
	wc := WatchedChannel{
		Channel:      funder,
		LocalConfig:  &funder.LocalConfig,
		RemoteConfig: &funder.RemoteConfig,
	}

	if err := w.handleSpend(wc, commitTx.Tx); err != nil {
		t.Fatalf("handleSpend on latest commitment should be a no-op, got: %v", err)
	}
	if w.IsResolved(funder.ChannelID) {
		t.Fatalf("latest commitment must never be treated as resolved breach")
	}
}

// shachainSecretAt regenerates the per-commitment secret a Channel would
// hand out for commitNumber, from the outside, using only the exported
// shachain API — the same derivation Channel's own unexported
// myPerCommitmentSecret performs.
func shachainSecretAt(ch *lnwallet.Channel, commitNumber uint64) [32]byte {
	return shachain.GenerateFromSeed(ch.PerCommitmentSecretSeed, shachain.MaxIndex-commitNumber)
}

// TestWatchChannelGoroutineWiring exercises the async path: WatchChannel
// registers a spend notification and reacts to it on its own goroutine,
// rather than requiring a synchronous handleSpend call from the owner.
func TestWatchChannelGoroutineWiring(t *testing.T) {
	const capacitySat = 1_000_000
	const pushMsat = 300_000_000
	funder, fundee, _, _ := openBreachTestPair(t, capacitySat, pushMsat)

	breachTx, _, err := fundee.InitialCommitTx(true)
	if err != nil {
		t.Fatalf("rebuild fundee commit-0: %v", err)
	}

	notifier := &fakeNotifier{spend: make(chan *chainntfs.SpendDetail, 1)}
	broadcaster := &fakeBroadcaster{txs: make(chan *wire.MsgTx, 1)}
	w := NewWatcher(notifier, broadcaster, &fakeSweepSource{script: []byte{0x00, 0x14}}, 1000)
	defer w.Stop()

	wc := WatchedChannel{
		Channel:      funder,
		LocalConfig:  &funder.LocalConfig,
		RemoteConfig: &funder.RemoteConfig,
	}
	if err := w.WatchChannel(wc); err != nil {
		t.Fatalf("WatchChannel: %v", err)
	}

	notifier.spend <- &chainntfs.SpendDetail{
		SpentOutPoint: &funder.FundingOutpoint,
		SpendingTx:    breachTx,
	}

	select {
	case <-broadcaster.txs:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for penalty tx broadcast")
	}
	if !w.IsResolved(funder.ChannelID) {
		t.Fatalf("expected breach to resolve after WatchChannel's async reaction")
	}
}
