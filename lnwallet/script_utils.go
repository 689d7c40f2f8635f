// Package lnwallet builds and signs the Bitcoin transactions a channel
// needs — the funding output, commitment transactions, and the HTLC
// second-stage outputs — and derives the per-commitment keys that
// protect them (spec §4.2, §4.3). Adapted from the teacher's
// lnwallet/script_utils.go, rewritten against the modern
// github.com/btcsuite/btcd/txscript and btcec/v2 APIs (the teacher's own
// copy targets a pre-fork roasbeef/btcd with a different btcec surface)
// and against lncrypto for all key-tweaking arithmetic.
package lnwallet

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// witnessScriptHash returns the P2WSH output script paying to the
// SHA-256 of redeemScript.
func witnessScriptHash(redeemScript []byte) ([]byte, error) {
	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_0)
	scriptHash := sha256.Sum256(redeemScript)
	bldr.AddData(scriptHash[:])
	return bldr.Script()
}

// genMultiSigScript generates the 2-of-2 funding redeem script for the
// two given compressed pubkeys, sorted lexicographically so both sides
// derive the identical script independently.
func genMultiSigScript(aPub, bPub []byte) ([]byte, error) {
	if len(aPub) != 33 || len(bPub) != 33 {
		return nil, fmt.Errorf("lnwallet: compressed pubkeys only")
	}
	if bytes.Compare(aPub, bPub) == -1 {
		aPub, bPub = bPub, aPub
	}

	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_2)
	bldr.AddData(aPub)
	bldr.AddData(bPub)
	bldr.AddOp(txscript.OP_2)
	bldr.AddOp(txscript.OP_CHECKMULTISIG)
	return bldr.Script()
}

// genFundingPkScript builds the funding transaction's single P2WSH output
// and returns both the redeem script and the TxOut paying amt satoshis to
// it.
func genFundingPkScript(aPub, bPub []byte, amt int64) ([]byte, *wire.TxOut, error) {
	if amt <= 0 {
		return nil, nil, fmt.Errorf("lnwallet: funding amount must be positive")
	}

	redeemScript, err := genMultiSigScript(aPub, bPub)
	if err != nil {
		return nil, nil, err
	}
	pkScript, err := witnessScriptHash(redeemScript)
	if err != nil {
		return nil, nil, err
	}
	return redeemScript, wire.NewTxOut(amt, pkScript), nil
}

// commitScriptToSelf builds the to_local commitment output script (spec
// §4.2): spendable immediately by revokeKey (a breach sweep), or by
// selfKey after a csvTimeout relative delay (a normal settlement).
func commitScriptToSelf(csvTimeout uint32, selfKey, revokeKey *btcec.PublicKey) ([]byte, error) {
	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_IF)
	builder.AddData(revokeKey.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(int64(csvTimeout))
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(selfKey.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

// commitScriptUnencumbered builds the to_remote commitment output script:
// a plain P2WKH-equivalent spend, immediately spendable by key with no
// contest period, matching the option_static_remotekey behavior the spec
// assumes throughout (§4.2).
func commitScriptUnencumbered(key *btcec.PublicKey) ([]byte, error) {
	pkHash := btcutil.Hash160(key.SerializeCompressed())
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	builder.AddData(pkHash)
	return builder.Script()
}

// offeredHTLCScript builds the script securing an HTLC output on the
// offering party's commitment (spec §4.2): spendable with a signature for
// revokeKey (the counterparty, once this commitment is revoked), by the
// receiver with the payment preimage plus a remoteKey signature, or by a
// 2-of-2 of remoteKey and localKey, the branch the HTLC-timeout
// transaction spends through. The script itself carries no CLTV check.
func offeredHTLCScript(revokeKey, remoteKey, localKey *btcec.PublicKey,
	paymentHash [32]byte) ([]byte, error) {

	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(btcutil.Hash160(revokeKey.SerializeCompressed()))
	builder.AddOp(txscript.OP_EQUAL)
	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ELSE)

	builder.AddData(remoteKey.SerializeCompressed())
	builder.AddOp(txscript.OP_SWAP)
	builder.AddOp(txscript.OP_SIZE)
	builder.AddInt64(32)
	builder.AddOp(txscript.OP_EQUAL)
	builder.AddOp(txscript.OP_NOTIF)

	builder.AddOp(txscript.OP_DROP)
	builder.AddInt64(2)
	builder.AddOp(txscript.OP_SWAP)
	builder.AddData(localKey.SerializeCompressed())
	builder.AddInt64(2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	builder.AddOp(txscript.OP_ELSE)

	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(btcutil.Ripemd160H(paymentHash[:]))
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ENDIF)
	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

// receivedHTLCScript builds the script securing an HTLC output on the
// receiving party's commitment: spendable by the receiver with the
// preimage, by the offerer's revocation key, or by the offerer after
// cltvExpiry once the HTLC has timed out.
func receivedHTLCScript(revokeKey, remoteKey, localKey *btcec.PublicKey,
	paymentHash [32]byte, cltvExpiry uint32) ([]byte, error) {

	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(btcutil.Hash160(revokeKey.SerializeCompressed()))
	builder.AddOp(txscript.OP_EQUAL)
	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ELSE)

	builder.AddData(remoteKey.SerializeCompressed())
	builder.AddOp(txscript.OP_SWAP)
	builder.AddOp(txscript.OP_SIZE)
	builder.AddInt64(32)
	builder.AddOp(txscript.OP_EQUAL)
	builder.AddOp(txscript.OP_IF)

	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(btcutil.Ripemd160H(paymentHash[:]))
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddInt64(2)
	builder.AddOp(txscript.OP_SWAP)
	builder.AddData(localKey.SerializeCompressed())
	builder.AddInt64(2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	builder.AddOp(txscript.OP_ELSE)

	builder.AddOp(txscript.OP_DROP)
	builder.AddInt64(int64(cltvExpiry))
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ENDIF)
	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

// commitSpendTimeout constructs a valid witness for sweeping our own
// to_local output once its CSV delay has passed.
func commitSpendTimeout(commitScript []byte, outputAmt btcutil.Amount,
	csvTimeout uint32, selfKey *btcec.PrivateKey, sweepTx *wire.MsgTx) (wire.TxWitness, error) {

	sweepTx.TxIn[0].Sequence = lockTimeToSequence(csvTimeout)
	sweepTx.Version = 2

	hashCache := txscript.NewTxSigHashes(sweepTx, txscript.NewCannedPrevOutputFetcher(
		commitScript, int64(outputAmt)))
	sweepSig, err := txscript.RawTxInWitnessSignature(
		sweepTx, hashCache, 0, int64(outputAmt), commitScript,
		txscript.SigHashAll, selfKey)
	if err != nil {
		return nil, err
	}

	return wire.TxWitness{sweepSig, nil, commitScript}, nil
}

// commitSpendRevoke constructs a valid witness allowing a node to sweep
// one output (identified by inputIndex) of a counter-party's revoked
// commitment transaction, using a sighash cache shared across every
// input of the penalty transaction (spec §4.5's breach-watcher penalty
// path; a penalty tx spends to_local plus every HTLC output in one
// transaction, so the cache must see every prevout up front).
func commitSpendRevoke(commitScript []byte, outputAmt btcutil.Amount,
	revocationPriv *btcec.PrivateKey, sweepTx *wire.MsgTx, inputIndex int,
	hashCache *txscript.TxSigHashes) (wire.TxWitness, error) {

	sweepSig, err := txscript.RawTxInWitnessSignature(
		sweepTx, hashCache, inputIndex, int64(outputAmt), commitScript,
		txscript.SigHashAll, revocationPriv)
	if err != nil {
		return nil, err
	}

	return wire.TxWitness{sweepSig, []byte{1}, commitScript}, nil
}

// lockTimeToSequence converts a relative block delay into the nSequence
// value OP_CHECKSEQUENCEVERIFY expects.
func lockTimeToSequence(relativeBlocks uint32) uint32 {
	return relativeBlocks & 0x0000ffff
}
