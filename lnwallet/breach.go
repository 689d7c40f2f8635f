// breach.go reconstructs a penalty ("justice") transaction once the
// breach watcher (contractcourt, component C11) has identified that the
// counterparty broadcast a revoked commitment transaction (spec §4.5).
// Adapted from the teacher's breacharbiter.go, which built an equivalent
// BreachRetribution/penalty-tx pair against its own pre-BOLT commitment
// layout; rewritten here against this package's CommitmentKeyRing and
// the BOLT-3 output scripts in script_utils.go.
package lnwallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
)

// BreachedOutput is one output of a revoked commitment this node can
// sweep with the revocation key: to_local, or an offered/received HTLC
// output.
type BreachedOutput struct {
	OutPoint      wire.OutPoint
	Amount        btcutil.Amount
	WitnessScript []byte
}

// BreachRetribution holds everything needed to build and sign a penalty
// transaction sweeping every sweepable output of one revoked commitment.
type BreachRetribution struct {
	ChannelID      lncrypto.ChannelID
	BreachTxid     chainhash.Hash
	CommitNumber   uint64
	RevocationPriv *btcec.PrivateKey
	Outputs        []BreachedOutput
}

// NewBreachRetribution reconstructs the revocation key and every
// sweepable output of the remote commitment identified by breachTx,
// given the per-commitment secret the counterparty has since revealed
// (spec §4.3's revocationkey formula) and the HTLC/balance snapshot
// stashed for that commit number (spec §4.5).
//
// localCfg and remoteCfg are this channel's own configs; the breached
// commitment was owned by the remote party, so the key ring is derived
// with remoteCfg as owner and localCfg as counterparty — mirroring
// DeriveCommitmentKeyRing's usual owner/counterparty roles.
func NewBreachRetribution(breachTx *wire.MsgTx, chanID lncrypto.ChannelID, commitNumber uint64,
	revokedSecret [32]byte, localCfg, remoteCfg *ChannelConfig, snap RevokedCommitSnapshot) (*BreachRetribution, error) {

	if localCfg.PrivateBasepoints == nil {
		return nil, fmt.Errorf("lnwallet: breach retribution requires local private basepoints")
	}

	perCommitmentPoint := PerCommitmentPoint(revokedSecret)
	keyRing := DeriveCommitmentKeyRing(perCommitmentPoint, remoteCfg, localCfg)
	revocationPriv := DeriveRevocationPrivKey(localCfg.PrivateBasepoints.Revocation, revokedSecret)

	breachTxid := breachTx.TxHash()
	ret := &BreachRetribution{
		ChannelID:      chanID,
		BreachTxid:     breachTxid,
		CommitNumber:   commitNumber,
		RevocationPriv: revocationPriv,
	}

	// snap.LocalMsat/RemoteMsat follow Channel's own convention (LocalMsat
	// is always the watching party's own balance), so the breached party's
	// to_local amount is snap.RemoteMsat, not snap.LocalMsat.
	remoteLocalAmt := btcutil.Amount(snap.RemoteMsat / 1000)
	if remoteLocalAmt >= remoteCfg.DustLimit() {
		script, err := commitScriptToSelf(uint32(remoteCfg.ToSelfDelay), keyRing.ToLocalKey, keyRing.RevocationKey)
		if err != nil {
			return nil, err
		}
		if idx, amt := findBreachedOutput(breachTx, script, remoteLocalAmt); idx >= 0 {
			ret.Outputs = append(ret.Outputs, BreachedOutput{
				OutPoint:      wire.OutPoint{Hash: breachTxid, Index: uint32(idx)},
				Amount:        amt,
				WitnessScript: script,
			})
		}
	}

	for _, h := range snap.HTLCs {
		amt := btcutil.Amount(h.AmountMsat / 1000)
		if amt < remoteCfg.DustLimit() {
			continue
		}

		var script []byte
		var err error
		if h.Offered {
			script, err = offeredHTLCScript(keyRing.RevocationKey, keyRing.RemoteHTLCKey, keyRing.LocalHTLCKey, h.PaymentHash)
		} else {
			script, err = receivedHTLCScript(keyRing.RevocationKey, keyRing.RemoteHTLCKey, keyRing.LocalHTLCKey, h.PaymentHash, h.CltvExpiry)
		}
		if err != nil {
			return nil, err
		}

		if idx, actualAmt := findBreachedOutput(breachTx, script, amt); idx >= 0 {
			ret.Outputs = append(ret.Outputs, BreachedOutput{
				OutPoint:      wire.OutPoint{Hash: breachTxid, Index: uint32(idx)},
				Amount:        actualAmt,
				WitnessScript: script,
			})
		}
	}

	if len(ret.Outputs) == 0 {
		return nil, fmt.Errorf("lnwallet: no sweepable outputs found on breach tx %v", breachTxid)
	}
	return ret, nil
}

// findBreachedOutput locates the output on breachTx paying wantAmt to the
// P2WSH hash of witnessScript.
func findBreachedOutput(breachTx *wire.MsgTx, witnessScript []byte, wantAmt btcutil.Amount) (int, btcutil.Amount) {
	pkScript, err := witnessScriptHash(witnessScript)
	if err != nil {
		return -1, 0
	}
	for i, out := range breachTx.TxOut {
		if out.Value == int64(wantAmt) && bytesEqual(out.PkScript, pkScript) {
			return i, btcutil.Amount(out.Value)
		}
	}
	return -1, 0
}

// BuildPenaltyTx constructs and signs a single transaction sweeping every
// output named by ret to sweepPkScript, paying feeSat in fees (spec
// §4.5). All inputs share one TxSigHashes cache since they all belong to
// the same penalty transaction (spec §5: the watcher must produce one
// atomic spend covering to_local plus every HTLC output).
func BuildPenaltyTx(ret *BreachRetribution, sweepPkScript []byte, feeSat btcutil.Amount) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(2)

	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(ret.Outputs))
	var total btcutil.Amount
	for _, o := range ret.Outputs {
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: o.OutPoint, Sequence: wire.MaxTxInSequenceNum})
		pkScript, err := witnessScriptHash(o.WitnessScript)
		if err != nil {
			return nil, err
		}
		prevOuts[o.OutPoint] = wire.NewTxOut(int64(o.Amount), pkScript)
		total += o.Amount
	}
	if total <= feeSat {
		return nil, fmt.Errorf("lnwallet: breach penalty fee %d >= swept amount %d", feeSat, total)
	}
	tx.AddTxOut(wire.NewTxOut(int64(total-feeSat), sweepPkScript))

	hashCache := txscript.NewTxSigHashes(tx, txscript.NewMultiPrevOutFetcher(prevOuts))
	for i, o := range ret.Outputs {
		witness, err := commitSpendRevoke(o.WitnessScript, o.Amount, ret.RevocationPriv, tx, i, hashCache)
		if err != nil {
			return nil, err
		}
		tx.TxIn[i].Witness = witness
	}
	return tx, nil
}
