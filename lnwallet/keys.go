package lnwallet

import (
	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
)

// Basepoints collects the five static per-channel basepoints a party
// reveals during establishment (spec §3 "ChannelConfig"), from which
// every per-commitment key is re-derived for each new commitment.
type Basepoints struct {
	Funding         *btcec.PublicKey
	Revocation      *btcec.PublicKey
	Payment         *btcec.PublicKey
	DelayedPayment  *btcec.PublicKey
	HTLC            *btcec.PublicKey
}

// ChannelConfig mirrors one side's channel parameters (spec §3): the
// policy limits it advertised plus its basepoints. The local copy also
// carries the private basepoint secrets; the remote mirror never does.
type ChannelConfig struct {
	DustLimitSat          uint64
	MaxAcceptedHTLCs      uint16
	HTLCMinimumMSat       uint64
	MaxHTLCValueInFlight  uint64
	ToSelfDelay           uint16
	ChannelReserveSat     uint64

	Basepoints Basepoints

	// PrivateBasepoints is non-nil only for the local configuration; it
	// holds the secrets backing Basepoints so the channel can sign with
	// its own tweaked per-commitment keys.
	PrivateBasepoints *BasepointSecrets
}

// BasepointSecrets holds the private keys underlying a local
// ChannelConfig's Basepoints.
type BasepointSecrets struct {
	Funding        *btcec.PrivateKey
	Revocation     *btcec.PrivateKey
	Payment        *btcec.PrivateKey
	DelayedPayment *btcec.PrivateKey
	HTLC           *btcec.PrivateKey
}

// tweakFromPoint computes SHA256(perCommitmentPoint || basepoint), the
// tweak spec §4.3 mixes into every per-commitment key derivation.
func tweakFromPoint(perCommitmentPoint, basepoint *btcec.PublicKey) [32]byte {
	return lncrypto.Sha256(
		perCommitmentPoint.SerializeCompressed(),
		basepoint.SerializeCompressed(),
	)
}

// DerivePubKey computes `basepoint + SHA256(P||basepoint)*G` (spec §4.3),
// used for the payment, delayed-payment, and HTLC keys of one commitment.
func DerivePubKey(basepoint, perCommitmentPoint *btcec.PublicKey) *btcec.PublicKey {
	tweak := tweakFromPoint(perCommitmentPoint, basepoint)
	return lncrypto.TweakPubKey(basepoint, tweak)
}

// DerivePrivKey computes the private counterpart of DerivePubKey, used by
// the party that owns the basepoint secret to sign with its per-commitment
// key.
func DerivePrivKey(baseSecret *btcec.PrivateKey, perCommitmentPoint *btcec.PublicKey) *btcec.PrivateKey {
	tweak := tweakFromPoint(perCommitmentPoint, baseSecret.PubKey())
	return lncrypto.TweakPrivKey(baseSecret, tweak)
}

// DeriveRevocationPubKey computes
// `revocationkey = rev_basepoint*SHA256(rev_basepoint||P) + P*SHA256(P||rev_basepoint)`
// (spec §4.3): a key spendable by either party, revealed only once the
// commitment it secures has been revoked.
func DeriveRevocationPubKey(revocationBasepoint, perCommitmentPoint *btcec.PublicKey) *btcec.PublicKey {
	revokeTweak := lncrypto.Sha256(
		revocationBasepoint.SerializeCompressed(),
		perCommitmentPoint.SerializeCompressed(),
	)
	commitTweak := lncrypto.Sha256(
		perCommitmentPoint.SerializeCompressed(),
		revocationBasepoint.SerializeCompressed(),
	)

	term1 := lncrypto.ScalarMultPubKey(revocationBasepoint, revokeTweak)
	term2 := lncrypto.ScalarMultPubKey(perCommitmentPoint, commitTweak)
	return lncrypto.AddPubKeys(term1, term2)
}

// DeriveRevocationPrivKey computes the private key counterpart of
// DeriveRevocationPubKey, usable once both the revocation basepoint secret
// and the per-commitment secret that was revealed are known — precisely
// the information a breach watcher assembles to sweep a counterparty's
// revoked commitment (spec §4.5).
func DeriveRevocationPrivKey(revocationBaseSecret *btcec.PrivateKey, perCommitmentSecret [32]byte) *btcec.PrivateKey {
	perCommitmentPriv := btcec.PrivKeyFromBytes(perCommitmentSecret[:])
	perCommitmentPub := perCommitmentPriv.PubKey()

	revocationBasepoint := revocationBaseSecret.PubKey()

	revokeTweak := lncrypto.Sha256(
		revocationBasepoint.SerializeCompressed(),
		perCommitmentPub.SerializeCompressed(),
	)
	commitTweak := lncrypto.Sha256(
		perCommitmentPub.SerializeCompressed(),
		revocationBasepoint.SerializeCompressed(),
	)

	var revBytes, perBytes [32]byte
	copy(revBytes[:], revocationBaseSecret.Serialize())
	copy(perBytes[:], perCommitmentPriv.Serialize())

	term1 := lncrypto.MulPrivScalars(revBytes, revokeTweak)
	term2 := lncrypto.MulPrivScalars(perBytes, commitTweak)
	sum := lncrypto.AddPrivScalars(term1, term2)

	return btcec.PrivKeyFromBytes(sum[:])
}

// PerCommitmentPoint returns the public per-commitment point for secret,
// i.e. priv_to_pub(per_commitment_secret_i) (spec §4.3).
func PerCommitmentPoint(secret [32]byte) *btcec.PublicKey {
	priv := btcec.PrivKeyFromBytes(secret[:])
	return priv.PubKey()
}
