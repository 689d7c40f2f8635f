// channel.go implements the per-channel state machine (spec §4.2,
// component C5): establishment, normal-operation HTLC add/settle/fail
// with the three-message commitment/revocation round, cooperative and
// force close, and channel_reestablish recovery. Authored fresh against
// spec §4.2 in the shape of the teacher's original lnwallet.LightningChannel
// (one type owning update logs, a revocation store, and balances), since
// the teacher's own channel.go targets a pre-BOLT ad hoc message set
// incompatible with the wire types this repo builds in lnwire (see
// DESIGN.md).
package lnwallet

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
	"github.com/slacerda85/ihodl-sub007/lnwire"
	"github.com/slacerda85/ihodl-sub007/shachain"
)

// ChannelState is the coarse lifecycle stage of a Channel (spec §3/§4.2).
type ChannelState uint8

const (
	PendingOpen ChannelState = iota
	Opening
	FundingCreated
	FundingSigned
	AwaitingLock
	Normal
	ShuttingDown
	Closing
	Closed
	ErrorState
)

func (s ChannelState) String() string {
	switch s {
	case PendingOpen:
		return "PendingOpen"
	case Opening:
		return "Opening"
	case FundingCreated:
		return "FundingCreated"
	case FundingSigned:
		return "FundingSigned"
	case AwaitingLock:
		return "AwaitingLock"
	case Normal:
		return "Normal"
	case ShuttingDown:
		return "ShuttingDown"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	case ErrorState:
		return "Error"
	default:
		return "Unknown"
	}
}

// HTLCState is the lifecycle stage of one HTLC entry (spec §3).
type HTLCState uint8

const (
	HTLCProposed HTLCState = iota
	HTLCIrrevocablyCommitted
	HTLCPendingFulfill
	HTLCPendingFail
	HTLCFinalised
)

// HTLCEntry is one HTLC tracked in a channel's offered or received set.
type HTLCEntry struct {
	ID          uint64
	AmountMsat  uint64
	PaymentHash lncrypto.Hash256
	CltvExpiry  uint32
	OnionBlob   [lnwire.OnionPacketSize]byte
	State       HTLCState
}

// Errors surfaced by channel operations (spec §7).
var (
	ErrInsufficientBalance  = errors.New("lnwallet: insufficient local balance after reserve")
	ErrHTLCLimit            = errors.New("lnwallet: max_accepted_htlcs exceeded")
	ErrReserveViolation     = errors.New("lnwallet: channel reserve violation")
	ErrInvariantViolated    = errors.New("lnwallet: invariant violated")
	ErrSignatureInvalid     = errors.New("lnwallet: commitment signature invalid")
	ErrRevocationInconsistent = errors.New("lnwallet: revocation inconsistent")
	ErrChannelClosing       = errors.New("lnwallet: channel is closing, operation disallowed")
	ErrNoHTLCsInFlight      = errors.New("lnwallet: shutdown requires no in-flight HTLCs")
	ErrCommitSyncDataLoss   = errors.New("lnwallet: possible commitment state data loss")
	ErrInvalidLastCommitSecret = errors.New("lnwallet: commit secret is incorrect")
)

// pendingUpdate is one unsigned proposal awaiting the next
// commitment_signed/revoke_and_ack round (spec §4.2.2 step 1).
type pendingUpdate struct {
	add     *HTLCEntry // set for update_add_htlc
	fulfill *uint64    // HTLC id, set for update_fulfill_htlc
	fail    *uint64    // HTLC id, set for update_fail_htlc
	preimage [32]byte
}

// Channel owns one payment channel's entire mutable state: balances, the
// two HTLC sets, the local secret seed and remote revocation store, and
// the establishment/close/reestablish state machine (spec §3 "Channel").
type Channel struct {
	mu sync.Mutex

	ChannelID       lncrypto.ChannelID
	ShortChannelID  *lncrypto.ShortChannelID
	FundingOutpoint wire.OutPoint
	CapacitySat     uint64
	WeAreFunder     bool

	// PushAmountMsat is the funder's initial gift to the fundee (spec
	// §4.2.1's push_msat), known up front on the funder side and learned
	// from open_channel on the fundee side; it is what lets the funder
	// compute its own starting balances once accept_channel arrives,
	// since accept_channel carries no balance information of its own.
	PushAmountMsat uint64

	LocalConfig  ChannelConfig
	RemoteConfig ChannelConfig

	LocalMsat  uint64
	RemoteMsat uint64

	LocalCommitNumber  uint64
	RemoteCommitNumber uint64
	NextHTLCID         uint64

	Offered  map[uint64]*HTLCEntry
	Received map[uint64]*HTLCEntry

	PerCommitmentSecretSeed [32]byte
	RevocationStore         *shachain.Store

	// RemoteNextPerCommitmentPoint is the point the counterparty most
	// recently advertised for its NEXT commitment, from either
	// accept_channel/open_channel, channel_ready, or the last
	// revoke_and_ack received.
	RemoteNextPerCommitmentPoint *btcec.PublicKey

	State ChannelState

	pendingLocalUpdates  []pendingUpdate
	pendingRemoteUpdates []pendingUpdate

	// lastSentCommitSig/lastLocalSecret support reestablish retransmit
	// (spec §4.2.4): the most recent CommitSig we sent that has not yet
	// been revoked-acked, and the per-commitment secret we most recently
	// revealed.
	lastSentCommitSig  *lnwire.CommitSig
	awaitingRevoke     bool

	localShutdownScript  []byte
	remoteShutdownScript []byte

	// revokedRemoteCommits snapshots, by commit number, enough of the
	// remote commitment's HTLC view to reconstruct its outputs after the
	// fact — the breach watcher's only source of truth once that commit
	// number has been superseded (spec §4.5/§8 scenario 2).
	revokedRemoteCommits map[uint64]RevokedCommitSnapshot
}

// RevokedCommitSnapshot is what ReceiveRevokeAndAck stashes for a remote
// commit number the instant it becomes revoked, before the HTLC maps move
// on to the next round.
type RevokedCommitSnapshot struct {
	LocalMsat  uint64
	RemoteMsat uint64
	HTLCs      []HTLCView
}

// RevokedRemoteCommit returns the stashed snapshot for a remote commit
// number that has since been revoked, if any.
func (c *Channel) RevokedRemoteCommit(commitNumber uint64) (RevokedCommitSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.revokedRemoteCommits[commitNumber]
	return snap, ok
}

// ChannelSnapshot is a consistent, lock-protected copy of the fields the
// persistence façade needs to write spec §4.8's ChannelRecord; taking a
// snapshot rather than exporting the lock keeps Channel the sole owner
// of its own synchronization (spec §3's ownership rule).
type ChannelSnapshot struct {
	ChannelID       lncrypto.ChannelID
	ShortChannelID  *lncrypto.ShortChannelID
	FundingOutpoint wire.OutPoint
	CapacitySat     uint64
	WeAreFunder     bool
	LocalMsat       uint64
	RemoteMsat      uint64
	State           ChannelState
	LocalConfig     ChannelConfig
	RemoteConfig    ChannelConfig
	RevocationStore *shachain.Store
}

// Snapshot copies out everything the persistence façade needs to
// durably record this channel (spec §4.8), taken atomically under the
// channel's own lock.
func (c *Channel) Snapshot() ChannelSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ChannelSnapshot{
		ChannelID:       c.ChannelID,
		ShortChannelID:  c.ShortChannelID,
		FundingOutpoint: c.FundingOutpoint,
		CapacitySat:     c.CapacitySat,
		WeAreFunder:     c.WeAreFunder,
		LocalMsat:       c.LocalMsat,
		RemoteMsat:      c.RemoteMsat,
		State:           c.State,
		LocalConfig:     c.LocalConfig,
		RemoteConfig:    c.RemoteConfig,
		RevocationStore: c.RevocationStore,
	}
}

// NewChannel constructs a Channel in PendingOpen, ready to begin
// establishment as either funder or fundee. pushAmountMsat is only
// meaningful when weAreFunder is true; the fundee instead learns it from
// the peer's open_channel (see ApplyOpenChannel).
func NewChannel(weAreFunder bool, capacitySat uint64, local, remote ChannelConfig, pushAmountMsat uint64, seed [32]byte) *Channel {
	return &Channel{
		WeAreFunder:             weAreFunder,
		CapacitySat:             capacitySat,
		PushAmountMsat:          pushAmountMsat,
		LocalConfig:             local,
		RemoteConfig:            remote,
		Offered:                 make(map[uint64]*HTLCEntry),
		Received:                make(map[uint64]*HTLCEntry),
		PerCommitmentSecretSeed: seed,
		RevocationStore:         shachain.NewStore(),
		LocalCommitNumber:       0,
		RemoteCommitNumber:      0,
		State:                   PendingOpen,
	}
}

// totalBalanceMsat sums every balance component, used to check the
// conservation invariant (spec §8).
func (c *Channel) totalBalanceMsat() uint64 {
	total := c.LocalMsat + c.RemoteMsat
	for _, h := range c.Offered {
		total += h.AmountMsat
	}
	for _, h := range c.Received {
		total += h.AmountMsat
	}
	return total
}

// CheckBalanceInvariant verifies spec §8's balance-conservation
// invariant: local + remote + in-flight HTLCs must equal capacity.
func (c *Channel) CheckBalanceInvariant() error {
	if want := c.CapacitySat * 1000; c.totalBalanceMsat() != want {
		return fmt.Errorf("%w: total %d != capacity %d msat",
			ErrInvariantViolated, c.totalBalanceMsat(), want)
	}
	return nil
}

// myPerCommitmentSecret returns the per-commitment secret for our own
// commitment index (commit indices count down from shachain.MaxIndex as
// the channel advances, spec §4.3).
func (c *Channel) myPerCommitmentSecret(commitNumber uint64) [32]byte {
	return shachain.GenerateFromSeed(c.PerCommitmentSecretSeed, shachain.MaxIndex-commitNumber)
}

// myPerCommitmentPoint returns the public point for our own commitNumber.
func (c *Channel) myPerCommitmentPoint(commitNumber uint64) *btcec.PublicKey {
	return PerCommitmentPoint(c.myPerCommitmentSecret(commitNumber))
}

// ---- 4.2.1 Establishment ----

// OpenChannelPolicy names the minimums a responder enforces against a
// funder's open_channel proposal (spec §4.2.1).
type OpenChannelPolicy struct {
	MinDustLimitSat       uint64
	MinChannelReservePPM  uint64 // parts per million of capacity
	MaxAcceptedHTLCs      uint16
}

// ValidateOpenChannel checks an inbound open_channel against spec
// §4.2.1's fixed rules plus the responder's own policy.
func ValidateOpenChannel(msg *lnwire.OpenChannel, chainHash [32]byte, policy OpenChannelPolicy) error {
	if msg.ChainHash != chainHash {
		return fmt.Errorf("%w: unknown chain hash", ErrInvariantViolated)
	}
	if msg.DustLimit < 546 {
		return fmt.Errorf("%w: dust_limit below 546 sat", ErrInvariantViolated)
	}
	minReserve := msg.FundingAmount * policy.MinChannelReservePPM / 1_000_000
	if msg.ChannelReserve < minReserve {
		return fmt.Errorf("%w: channel_reserve below 1%% of capacity", ErrReserveViolation)
	}
	if msg.HTLCMinimumMSat == 0 {
		return fmt.Errorf("%w: htlc_minimum_msat must be positive", ErrInvariantViolated)
	}
	if msg.CSVDelay == 0 {
		return fmt.Errorf("%w: to_self_delay must be positive", ErrInvariantViolated)
	}
	if msg.DustLimit < policy.MinDustLimitSat {
		return fmt.Errorf("%w: dust_limit below local policy minimum", ErrInvariantViolated)
	}
	return nil
}

// ApplyOpenChannel records the funder's basepoints/policy into the
// channel's RemoteConfig, transitioning PendingOpen -> Opening.
func (c *Channel) ApplyOpenChannel(msg *lnwire.OpenChannel) {
	c.RemoteConfig = ChannelConfig{
		DustLimitSat:         msg.DustLimit,
		MaxAcceptedHTLCs:     msg.MaxAcceptedHTLCs,
		HTLCMinimumMSat:      msg.HTLCMinimumMSat,
		MaxHTLCValueInFlight: msg.MaxHTLCValueInFlight,
		ToSelfDelay:          msg.CSVDelay,
		ChannelReserveSat:    msg.ChannelReserve,
		Basepoints: Basepoints{
			Funding:        msg.FundingKey,
			Revocation:     msg.RevocationBasepoint,
			Payment:        msg.PaymentBasepoint,
			DelayedPayment: msg.DelayedPaymentBasepoint,
			HTLC:           msg.HTLCBasepoint,
		},
	}
	c.RemoteNextPerCommitmentPoint = msg.FirstPerCommitmentPoint
	c.CapacitySat = msg.FundingAmount
	c.PushAmountMsat = msg.PushAmount
	c.LocalMsat = msg.PushAmount
	c.RemoteMsat = msg.FundingAmount*1000 - msg.PushAmount
	c.State = Opening
}

// ApplyAcceptChannel records the fundee's reply (funder side), moving
// Opening -> FundingCreated once the funder is ready to build the
// funding transaction. accept_channel carries no balance fields, so the
// funder's own starting balances are derived here from the capacity and
// push_msat it already committed to in open_channel (spec §4.2.1),
// mirroring what ApplyOpenChannel does from the fundee's side.
func (c *Channel) ApplyAcceptChannel(msg *lnwire.AcceptChannel) {
	c.RemoteConfig = ChannelConfig{
		DustLimitSat:         msg.DustLimit,
		MaxAcceptedHTLCs:     msg.MaxAcceptedHTLCs,
		HTLCMinimumMSat:      msg.HTLCMinimumMSat,
		MaxHTLCValueInFlight: msg.MaxHTLCValueInFlight,
		ToSelfDelay:          msg.CSVDelay,
		ChannelReserveSat:    msg.ChannelReserve,
		Basepoints: Basepoints{
			Funding:        msg.FundingKey,
			Revocation:     msg.RevocationBasepoint,
			Payment:        msg.PaymentBasepoint,
			DelayedPayment: msg.DelayedPaymentBasepoint,
			HTLC:           msg.HTLCBasepoint,
		},
	}
	c.RemoteNextPerCommitmentPoint = msg.FirstPerCommitmentPoint
	c.LocalMsat = c.CapacitySat*1000 - c.PushAmountMsat
	c.RemoteMsat = c.PushAmountMsat
	c.State = FundingCreated
}

// InitialCommitTx builds the owner's commit-index-0 transaction and its
// funding witness script, with no HTLCs and balances set from the
// capacity and push_msat alone (spec §4.2.1): the transaction both sides
// must independently derive before funding_created's signature can be
// checked or produced, since neither commitment_signed nor
// funding_created is exchanged until this first commitment exists.
func (c *Channel) InitialCommitTx(ownCommit bool) (*wire.MsgTx, []byte, error) {
	ownerCfg, counterpartyCfg := &c.LocalConfig, &c.RemoteConfig
	ownerAmt, counterpartyAmt := btcutil.Amount(c.LocalMsat/1000), btcutil.Amount(c.RemoteMsat/1000)
	point := c.myPerCommitmentPoint(0)
	if !ownCommit {
		ownerCfg, counterpartyCfg = &c.RemoteConfig, &c.LocalConfig
		ownerAmt, counterpartyAmt = counterpartyAmt, ownerAmt
		point = c.RemoteNextPerCommitmentPoint
	}

	keyRing := DeriveCommitmentKeyRing(point, ownerCfg, counterpartyCfg)
	fundingTxIn := wire.NewTxIn(&c.FundingOutpoint, nil, nil)
	commitTx, err := CreateCommitTx(fundingTxIn, ownerCfg, counterpartyCfg, keyRing,
		0, c.WeAreFunder == ownCommit, ownerAmt, counterpartyAmt, nil)
	if err != nil {
		return nil, nil, err
	}

	witnessScript, err := genMultiSigScript(
		c.LocalConfig.Basepoints.Funding.SerializeCompressed(),
		c.RemoteConfig.Basepoints.Funding.SerializeCompressed())
	if err != nil {
		return nil, nil, err
	}
	return commitTx.Tx, witnessScript, nil
}

// VerifyFundingCreated checks the funder's signature over our initial
// (commit index 0) local commitment transaction, transitioning
// FundingCreated -> AwaitingLock on success (spec §4.2.1, fundee side).
func (c *Channel) VerifyFundingCreated(localCommitTx *wire.MsgTx, witnessScript []byte, sig lnwire.Sig) error {
	sigHash, err := HTLCSigHash(localCommitTx, witnessScript, btcutil.Amount(c.CapacitySat))
	if err != nil {
		return err
	}
	ecSig, err := sig.ToSignature()
	if err != nil {
		return err
	}
	var digest [32]byte
	copy(digest[:], sigHash)
	if !lncrypto.Verify(c.RemoteConfig.Basepoints.Funding, digest, ecSig) {
		return ErrSignatureInvalid
	}
	c.State = AwaitingLock
	return nil
}

// MarkFundingLocked transitions AwaitingLock -> Normal once both sides'
// channel_ready has been seen (spec's Open Question resolution: the
// source marks Normal on confirmation alone, this spec requires both
// sides' channel_ready).
func (c *Channel) MarkFundingLocked(shortChanID lncrypto.ShortChannelID, remoteNextPoint *btcec.PublicKey) {
	c.ShortChannelID = &shortChanID
	c.RemoteNextPerCommitmentPoint = remoteNextPoint
	c.State = Normal
}

// ---- 4.2.2 Normal operation ----

// AddHTLC stages an outbound update_add_htlc proposal, validating spec
// §4.2.2's rules before admitting it to the pending pool (no balance
// effect until the round commits).
func (c *Channel) AddHTLC(amountMsat uint64, paymentHash lncrypto.Hash256, cltvExpiry uint32,
	currentHeight uint32, maxCltvExpiry uint32, onion [lnwire.OnionPacketSize]byte) (uint64, error) {

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State != Normal {
		return 0, ErrChannelClosing
	}
	if amountMsat == 0 {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvariantViolated)
	}
	if amountMsat < c.RemoteConfig.HTLCMinimumMSat {
		return 0, fmt.Errorf("%w: below htlc_minimum_msat", ErrInvariantViolated)
	}
	if cltvExpiry <= currentHeight {
		return 0, fmt.Errorf("%w: cltv_expiry in the past", ErrInvariantViolated)
	}
	if cltvExpiry > currentHeight+maxCltvExpiry {
		return 0, fmt.Errorf("%w: cltv_expiry beyond max_cltv_expiry", ErrInvariantViolated)
	}
	if c.countPending(true) >= uint64(c.RemoteConfig.MaxAcceptedHTLCs) {
		return 0, ErrHTLCLimit
	}
	if c.inFlightMsat(true)+amountMsat > c.RemoteConfig.MaxHTLCValueInFlight {
		return 0, ErrHTLCLimit
	}
	reserveMsat := c.LocalConfig.ChannelReserveSat * 1000
	if c.LocalMsat < amountMsat+reserveMsat {
		return 0, ErrInsufficientBalance
	}

	id := c.NextHTLCID
	c.NextHTLCID++

	entry := &HTLCEntry{
		ID:          id,
		AmountMsat:  amountMsat,
		PaymentHash: paymentHash,
		CltvExpiry:  cltvExpiry,
		OnionBlob:   onion,
		State:       HTLCProposed,
	}
	c.pendingLocalUpdates = append(c.pendingLocalUpdates, pendingUpdate{add: entry})
	return id, nil
}

// ReceiveAddHTLC validates and stages an inbound update_add_htlc.
func (c *Channel) ReceiveAddHTLC(msg *lnwire.UpdateAddHTLC, currentHeight, maxCltvExpiry uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State != Normal {
		return ErrChannelClosing
	}
	if msg.Amount == 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvariantViolated)
	}
	if msg.Amount < c.LocalConfig.HTLCMinimumMSat {
		return fmt.Errorf("%w: below htlc_minimum_msat", ErrInvariantViolated)
	}
	if msg.CLTVExpiry <= currentHeight {
		return fmt.Errorf("%w: cltv_expiry in the past", ErrInvariantViolated)
	}
	if msg.CLTVExpiry > currentHeight+maxCltvExpiry {
		return fmt.Errorf("%w: cltv_expiry beyond max_cltv_expiry", ErrInvariantViolated)
	}
	if c.countPending(false) >= uint64(c.LocalConfig.MaxAcceptedHTLCs) {
		return ErrHTLCLimit
	}
	if c.inFlightMsat(false)+msg.Amount > c.LocalConfig.MaxHTLCValueInFlight {
		return ErrHTLCLimit
	}
	reserveMsat := c.RemoteConfig.ChannelReserveSat * 1000
	if c.RemoteMsat < msg.Amount+reserveMsat {
		return ErrInsufficientBalance
	}

	var hash lncrypto.Hash256
	copy(hash[:], msg.PaymentHash[:])

	entry := &HTLCEntry{
		ID:          msg.ID,
		AmountMsat:  msg.Amount,
		PaymentHash: hash,
		CltvExpiry:  msg.CLTVExpiry,
		OnionBlob:   msg.OnionBlob,
		State:       HTLCProposed,
	}
	c.pendingRemoteUpdates = append(c.pendingRemoteUpdates, pendingUpdate{add: entry})
	return nil
}

// FulfillHTLC stages an outbound update_fulfill_htlc for a previously
// received HTLC.
func (c *Channel) FulfillHTLC(htlcID uint64, preimage [32]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.Received[htlcID]
	if !ok || entry.State != HTLCIrrevocablyCommitted {
		return fmt.Errorf("%w: no committed received HTLC %d", ErrInvariantViolated, htlcID)
	}
	if lncrypto.Sha256(preimage[:]) != lncrypto.Sha256(entry.PaymentHash[:]) {
		// compares the preimage hash against the stored hash value;
		// a mismatch here is a caller bug, not a protocol event.
		return fmt.Errorf("%w: preimage does not match payment hash", ErrInvariantViolated)
	}
	id := htlcID
	c.pendingLocalUpdates = append(c.pendingLocalUpdates, pendingUpdate{fulfill: &id, preimage: preimage})
	return nil
}

// FailHTLC stages an outbound update_fail_htlc for a previously received
// HTLC.
func (c *Channel) FailHTLC(htlcID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.Received[htlcID]; !ok {
		return fmt.Errorf("%w: no received HTLC %d", ErrInvariantViolated, htlcID)
	}
	id := htlcID
	c.pendingLocalUpdates = append(c.pendingLocalUpdates, pendingUpdate{fail: &id})
	return nil
}

func (c *Channel) countPending(local bool) uint64 {
	var n uint64
	updates := c.pendingRemoteUpdates
	if local {
		updates = c.pendingLocalUpdates
	}
	for _, u := range updates {
		if u.add != nil {
			n++
		}
	}
	return n
}

func (c *Channel) inFlightMsat(local bool) uint64 {
	var total uint64
	updates := c.pendingRemoteUpdates
	if local {
		updates = c.pendingLocalUpdates
	}
	for _, u := range updates {
		if u.add != nil {
			total += u.add.AmountMsat
		}
	}
	return total
}

// SignCommitment builds the remote party's next commitment transaction
// (including every pending local proposal and every pending remote
// proposal already staged), signs it, and returns the commitment_signed
// message to send (spec §4.2.2 step 2). It does not itself advance any
// commitment number or balance: balances move when the peer's
// commitment_signed is applied by ReceiveCommitSig, and RemoteCommitNumber
// advances once the matching revoke_and_ack arrives.
func (c *Channel) SignCommitment() (*lnwire.CommitSig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.awaitingRevoke {
		return nil, fmt.Errorf("lnwallet: revocation window exhausted")
	}
	if err := c.CheckBalanceInvariant(); err != nil {
		return nil, err
	}

	remotePoint := c.RemoteNextPerCommitmentPoint
	keyRing := DeriveCommitmentKeyRing(remotePoint, &c.RemoteConfig, &c.LocalConfig)

	htlcs := c.projectedHTLCs(false)
	ownerAmt, counterpartyAmt := c.projectedBalances(false)

	fundingTxIn := wire.NewTxIn(&c.FundingOutpoint, nil, nil)
	commitTx, err := CreateCommitTx(fundingTxIn, &c.RemoteConfig, &c.LocalConfig, keyRing,
		c.RemoteCommitNumber+1, !c.WeAreFunder, ownerAmt, counterpartyAmt, htlcs)
	if err != nil {
		return nil, err
	}

	fundingScript, err := genMultiSigScript(
		c.LocalConfig.Basepoints.Funding.SerializeCompressed(),
		c.RemoteConfig.Basepoints.Funding.SerializeCompressed())
	if err != nil {
		return nil, err
	}
	sigHash, err := HTLCSigHash(commitTx.Tx, fundingScript, btcutil.Amount(c.CapacitySat))
	if err != nil {
		return nil, err
	}
	var digest [32]byte
	copy(digest[:], sigHash)
	ecSig := lncrypto.Sign(c.LocalConfig.PrivateBasepoints.Funding, digest)
	sig, err := lnwire.NewSigFromSignature(ecSig)
	if err != nil {
		return nil, err
	}

	htlcPriv := DerivePrivKey(c.LocalConfig.PrivateBasepoints.HTLC, remotePoint)
	commitTxid := commitTx.Tx.TxHash()

	htlcSigs := make([]lnwire.Sig, 0, len(commitTx.HTLCs))
	for _, h := range commitTx.HTLCs {
		htlcSig, err := signHTLCOutput(commitTxid, h, keyRing, htlcPriv, uint32(c.RemoteConfig.ToSelfDelay))
		if err != nil {
			return nil, err
		}
		htlcSigs = append(htlcSigs, htlcSig)
	}

	msg := &lnwire.CommitSig{ChanID: c.ChannelID, CommitSig: sig, HTLCSigs: htlcSigs}
	c.lastSentCommitSig = msg
	c.awaitingRevoke = true
	return msg, nil
}

// signHTLCOutput signs the second-stage transaction that will eventually
// claim one non-dust HTLC output on a just-built commitment, using the
// signer's own per-commitment HTLC key for that commitment (spec §4.5).
func signHTLCOutput(commitTxid chainhash.Hash, h HTLCView, keyRing *CommitmentKeyRing,
	htlcPriv *btcec.PrivateKey, csvDelay uint32) (lnwire.Sig, error) {

	var empty lnwire.Sig
	amt := btcutil.Amount(h.AmountMsat / 1000)

	var stageTx *wire.MsgTx
	var htlcScript []byte
	var err error
	if h.Offered {
		stageTx, err = CreateHTLCTimeoutTx(commitTxid, uint32(h.OutputIndex), amt, h.CltvExpiry, csvDelay, keyRing)
		if err != nil {
			return empty, err
		}
		htlcScript, err = offeredHTLCScript(keyRing.RevocationKey, keyRing.RemoteHTLCKey, keyRing.LocalHTLCKey, h.PaymentHash)
	} else {
		stageTx, err = CreateHTLCSuccessTx(commitTxid, uint32(h.OutputIndex), amt, csvDelay, keyRing)
		if err != nil {
			return empty, err
		}
		htlcScript, err = receivedHTLCScript(keyRing.RevocationKey, keyRing.RemoteHTLCKey, keyRing.LocalHTLCKey, h.PaymentHash, h.CltvExpiry)
	}
	if err != nil {
		return empty, err
	}

	sigHash, err := HTLCSigHash(stageTx, htlcScript, amt)
	if err != nil {
		return empty, err
	}
	var digest [32]byte
	copy(digest[:], sigHash)

	ecSig := lncrypto.Sign(htlcPriv, digest)
	return lnwire.NewSigFromSignature(ecSig)
}


// ReceiveCommitSig validates an inbound commitment_signed against our own
// computed view of our next local commitment, and — on success — returns
// the revoke_and_ack releasing our previous per-commitment secret (spec
// §4.2.2 step 3). On signature mismatch the channel moves to ErrorState
// and no state on either side advances.
func (c *Channel) ReceiveCommitSig(msg *lnwire.CommitSig) (*lnwire.RevokeAndAck, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.CheckBalanceInvariant(); err != nil {
		return nil, err
	}

	// The point for our next local commitment is indexed by the commit
	// number the peer is signing (our current LocalCommitNumber, before
	// the increment below) — the same index the peer learned as our
	// first_per_commitment_point/revoke_and_ack next point, so both
	// sides derive an identical key ring for it.
	nextLocalPoint := c.myPerCommitmentPoint(c.LocalCommitNumber)
	keyRing := DeriveCommitmentKeyRing(nextLocalPoint, &c.LocalConfig, &c.RemoteConfig)

	htlcs := c.projectedHTLCs(true)
	localAmt, remoteAmt := c.projectedBalances(true)

	fundingTxIn := wire.NewTxIn(&c.FundingOutpoint, nil, nil)
	commitTx, err := CreateCommitTx(fundingTxIn, &c.LocalConfig, &c.RemoteConfig, keyRing,
		c.LocalCommitNumber+1, c.WeAreFunder, localAmt, remoteAmt, htlcs)
	if err != nil {
		return nil, err
	}

	fundingScript, err := genMultiSigScript(
		c.LocalConfig.Basepoints.Funding.SerializeCompressed(),
		c.RemoteConfig.Basepoints.Funding.SerializeCompressed())
	if err != nil {
		return nil, err
	}
	sigHash, err := HTLCSigHash(commitTx.Tx, fundingScript, btcutil.Amount(c.CapacitySat))
	if err != nil {
		return nil, err
	}
	ecSig, err := msg.CommitSig.ToSignature()
	if err != nil {
		c.State = ErrorState
		return nil, err
	}
	var digest [32]byte
	copy(digest[:], sigHash)
	if !lncrypto.Verify(c.RemoteConfig.Basepoints.Funding, digest, ecSig) {
		c.State = ErrorState
		return nil, ErrSignatureInvalid
	}
	if len(msg.HTLCSigs) != len(commitTx.HTLCs) {
		c.State = ErrorState
		return nil, fmt.Errorf("%w: got %d htlc sigs, want %d",
			ErrSignatureInvalid, len(msg.HTLCSigs), len(commitTx.HTLCs))
	}

	// Commit the staged updates into the durable HTLC sets now that the
	// peer has signed over them.
	c.applyPendingUpdates()
	c.LocalCommitNumber++

	revealIndex := shachain.MaxIndex - (c.LocalCommitNumber - 1)
	secret := shachain.GenerateFromSeed(c.PerCommitmentSecretSeed, revealIndex)
	// c.LocalCommitNumber was already bumped above, so this is the point
	// the peer must use for our *next* commitment, matching the index
	// convention nextLocalPoint used above.
	nextPoint := c.myPerCommitmentPoint(c.LocalCommitNumber)

	ack := &lnwire.RevokeAndAck{
		ChanID:                 c.ChannelID,
		Revocation:             secret,
		NextPerCommitmentPoint: nextPoint,
	}
	return ack, nil
}

// ReceiveRevokeAndAck processes an inbound revoke_and_ack: stores the
// counterparty's released secret in our RevocationStore, records its new
// next per-commitment point, and advances RemoteCommitNumber (spec
// §4.2.2 step 3, final leg).
func (c *Channel) ReceiveRevokeAndAck(msg *lnwire.RevokeAndAck) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	index := shachain.MaxIndex - c.RemoteCommitNumber
	if err := c.RevocationStore.Insert(msg.Revocation, index); err != nil {
		c.State = ErrorState
		return fmt.Errorf("%w: %v", ErrRevocationInconsistent, err)
	}

	if c.revokedRemoteCommits == nil {
		c.revokedRemoteCommits = make(map[uint64]RevokedCommitSnapshot)
	}
	remoteAmt, localAmt := c.projectedBalances(false)
	c.revokedRemoteCommits[c.RemoteCommitNumber] = RevokedCommitSnapshot{
		LocalMsat:  uint64(localAmt) * 1000,
		RemoteMsat: uint64(remoteAmt) * 1000,
		HTLCs:      c.projectedHTLCs(false),
	}

	c.RemoteCommitNumber++
	c.RemoteNextPerCommitmentPoint = msg.NextPerCommitmentPoint
	c.awaitingRevoke = false
	c.lastSentCommitSig = nil
	return nil
}

// applyPendingUpdates moves every staged proposal into the durable HTLC
// sets and adjusts balances, run once a commitment_signed for that round
// has been validated.
func (c *Channel) applyPendingUpdates() {
	for _, u := range c.pendingLocalUpdates {
		switch {
		case u.add != nil:
			u.add.State = HTLCIrrevocablyCommitted
			c.Offered[u.add.ID] = u.add
			c.LocalMsat -= u.add.AmountMsat
		case u.fulfill != nil:
			entry := c.Received[*u.fulfill]
			c.LocalMsat += entry.AmountMsat
			delete(c.Received, *u.fulfill)
		case u.fail != nil:
			delete(c.Received, *u.fail)
		}
	}
	for _, u := range c.pendingRemoteUpdates {
		switch {
		case u.add != nil:
			u.add.State = HTLCIrrevocablyCommitted
			c.Received[u.add.ID] = u.add
			c.RemoteMsat -= u.add.AmountMsat
		case u.fulfill != nil:
			entry := c.Offered[*u.fulfill]
			c.RemoteMsat += entry.AmountMsat
			delete(c.Offered, *u.fulfill)
		case u.fail != nil:
			delete(c.Offered, *u.fail)
		}
	}
	c.pendingLocalUpdates = nil
	c.pendingRemoteUpdates = nil
}

// projectedHTLCs returns the HTLC set as it will appear once pending
// updates commit, from the perspective of whichever side owns the
// commitment being built (forLocal selects our own commitment).
func (c *Channel) projectedHTLCs(forLocal bool) []HTLCView {
	views := make([]HTLCView, 0, len(c.Offered)+len(c.Received))
	for _, h := range c.Offered {
		views = append(views, HTLCView{Offered: forLocal, AmountMsat: h.AmountMsat, PaymentHash: h.PaymentHash, CltvExpiry: h.CltvExpiry, OutputIndex: -1})
	}
	for _, h := range c.Received {
		views = append(views, HTLCView{Offered: !forLocal, AmountMsat: h.AmountMsat, PaymentHash: h.PaymentHash, CltvExpiry: h.CltvExpiry, OutputIndex: -1})
	}
	for _, u := range c.pendingLocalUpdates {
		if u.add == nil {
			continue
		}
		offered := forLocal
		views = append(views, HTLCView{Offered: offered, AmountMsat: u.add.AmountMsat, PaymentHash: u.add.PaymentHash, CltvExpiry: u.add.CltvExpiry, OutputIndex: -1})
	}
	for _, u := range c.pendingRemoteUpdates {
		if u.add == nil {
			continue
		}
		offered := !forLocal
		views = append(views, HTLCView{Offered: offered, AmountMsat: u.add.AmountMsat, PaymentHash: u.add.PaymentHash, CltvExpiry: u.add.CltvExpiry, OutputIndex: -1})
	}
	return views
}

// projectedBalances returns (ownerAmt, counterpartyAmt) in satoshis after
// pending updates apply, from the perspective of the commitment being
// built: forLocal selects our own commitment (owner = us), false selects
// the remote's (owner = them).
func (c *Channel) projectedBalances(forLocal bool) (ownerAmt, counterpartyAmt btcutil.Amount) {
	local, remote := c.LocalMsat, c.RemoteMsat
	for _, u := range c.pendingLocalUpdates {
		switch {
		case u.add != nil:
			local -= u.add.AmountMsat
		case u.fulfill != nil:
			if e, ok := c.Received[*u.fulfill]; ok {
				local += e.AmountMsat
			}
		}
	}
	for _, u := range c.pendingRemoteUpdates {
		switch {
		case u.add != nil:
			remote -= u.add.AmountMsat
		case u.fulfill != nil:
			if e, ok := c.Offered[*u.fulfill]; ok {
				remote += e.AmountMsat
			}
		}
	}
	localAmt, remoteAmt := btcutil.Amount(local/1000), btcutil.Amount(remote/1000)
	if forLocal {
		return localAmt, remoteAmt
	}
	return remoteAmt, localAmt
}

// ---- 4.2.3 Close ----

// InitiateShutdown transitions Normal -> ShuttingDown; no new HTLCs may
// be proposed by either side afterward.
func (c *Channel) InitiateShutdown(scriptPubKey []byte) (*lnwire.Shutdown, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State != Normal {
		return nil, ErrChannelClosing
	}
	c.localShutdownScript = scriptPubKey
	c.State = ShuttingDown
	return lnwire.NewShutdown(c.ChannelID, scriptPubKey), nil
}

// ReceiveShutdown records the peer's shutdown script, also moving
// Normal -> ShuttingDown if we have not already initiated our own.
func (c *Channel) ReceiveShutdown(msg *lnwire.Shutdown) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.remoteShutdownScript = msg.ScriptPubKey
	if c.State == Normal {
		c.State = ShuttingDown
	}
}

// ReadyToNegotiateClose reports whether both shutdown scripts are known
// and no HTLCs remain in flight, the precondition for closing_signed.
func (c *Channel) ReadyToNegotiateClose() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localShutdownScript != nil && c.remoteShutdownScript != nil &&
		len(c.Offered) == 0 && len(c.Received) == 0
}

// NegotiateClosingFee implements the RFC-style "move halfway" fee
// negotiation of spec §4.2.3. Given our proposed fee and the peer's
// counter-proposal (0 on the first call), it returns the agreed fee and
// true once both sides have converged, or the next counter-offer and
// false otherwise.
func NegotiateClosingFee(ourMin, ourMax, ourLast, theirFee, theirMin, theirMax uint64) (agreed uint64, done bool) {
	if theirFee == ourLast {
		return theirFee, true
	}
	// Single-fee-range-intersection case: if the ranges overlap exactly
	// at one value, that value is the agreement.
	lo := ourMin
	if theirMin > lo {
		lo = theirMin
	}
	hi := ourMax
	if theirMax < hi {
		hi = theirMax
	}
	if lo == hi {
		return lo, true
	}
	if theirFee >= lo && theirFee <= hi {
		return theirFee, true
	}
	next := (ourLast + theirFee) / 2
	if next < lo {
		next = lo
	}
	if next > hi {
		next = hi
	}
	return next, false
}

// ForceClose broadcasts the most recent signed local commitment and
// transitions to Closing (spec §4.2.3's unilateral path). The caller is
// responsible for actually broadcasting localCommitTx via the chain
// client and for registering its outputs with the breach/chain watcher.
func (c *Channel) ForceClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.State = Closing
}

// ---- 4.2.4 Reestablish ----

// ReestablishAction is the resolved next step after exchanging
// channel_reestablish, per spec §4.2.4's four-case table.
type ReestablishAction int

const (
	ReestablishInSync ReestablishAction = iota
	ReestablishRetransmitCommitSig
	ReestablishRetransmitRevoke
	ReestablishWeAreBehind
	ReestablishTheyAreBehind
)

// ResolveReestablish classifies an inbound channel_reestablish against
// our own state, implementing spec §4.2.4's table. It also verifies the
// quoted last per-commitment secret when one was supplied.
func (c *Channel) ResolveReestablish(msg *lnwire.ChannelReestablish) (ReestablishAction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.NextLocalCommitmentNumber >= 2 {
		want := c.myPerCommitmentSecretForPeer(msg.NextLocalCommitmentNumber - 2)
		if !bytes.Equal(want[:], msg.YourLastPerCommitmentSecret[:]) &&
			msg.YourLastPerCommitmentSecret != ([32]byte{}) {
			return 0, ErrInvalidLastCommitSecret
		}
	}

	theirNextCommit := msg.NextLocalCommitmentNumber
	theirNextRevoke := msg.NextRemoteRevocationNumber

	switch {
	case theirNextCommit == c.RemoteCommitNumber+1 && theirNextRevoke == c.RemoteCommitNumber:
		return ReestablishRetransmitCommitSig, nil
	case theirNextCommit == c.RemoteCommitNumber && theirNextRevoke == c.RemoteCommitNumber-1:
		return ReestablishRetransmitRevoke, nil
	case theirNextCommit > c.RemoteCommitNumber+1 && theirNextRevoke > c.RemoteCommitNumber:
		return ReestablishWeAreBehind, ErrCommitSyncDataLoss
	case theirNextCommit < c.RemoteCommitNumber:
		return ReestablishTheyAreBehind, nil
	default:
		return ReestablishInSync, nil
	}
}

// myPerCommitmentSecretForPeer is the secret we would have revealed for
// commit number n, used to check the peer's quoted
// your_last_per_commitment_secret against what we actually sent.
func (c *Channel) myPerCommitmentSecretForPeer(n uint64) [32]byte {
	return c.myPerCommitmentSecret(n)
}

// BuildReestablish constructs our own outbound channel_reestablish.
func (c *Channel) BuildReestablish() *lnwire.ChannelReestablish {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastSecret [32]byte
	if c.LocalCommitNumber > 0 {
		lastSecret = c.myPerCommitmentSecret(c.LocalCommitNumber - 1)
	}

	return &lnwire.ChannelReestablish{
		ChanID:                      c.ChannelID,
		NextLocalCommitmentNumber:   c.LocalCommitNumber + 1,
		NextRemoteRevocationNumber:  c.RemoteCommitNumber,
		YourLastPerCommitmentSecret: lastSecret,
		MyCurrentPerCommitmentPoint: c.myPerCommitmentPoint(c.LocalCommitNumber),
	}
}
