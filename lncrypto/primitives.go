// Package lncrypto collects the cryptographic primitives shared by the
// transport handshake, the onion packet engine, and the commitment key
// derivation schemes: SHA-256/HMAC-SHA-256/HKDF, ChaCha20-Poly1305 AEAD, and
// secp256k1 point arithmetic. Nothing here retains mutable state; callers
// own their own key material.
package lncrypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrTagMismatch is returned by Decrypt when the AEAD authentication tag
// does not verify. Per the transport spec this failure is always fatal to
// the session it occurred on.
var ErrTagMismatch = errors.New("lncrypto: AEAD authentication failed")

// Sha256 returns the SHA-256 digest of the concatenation of data.
func Sha256(data ...[]byte) [32]byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HMACSha256 computes HMAC-SHA-256 over data using key.
func HMACSha256(key []byte, data ...[]byte) [32]byte {
	mac := hmac.New(sha256.New, key)
	for _, d := range data {
		mac.Write(d)
	}
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// SingleHKDF derives a single 32-byte output from HKDF-SHA256 with the given
// salt and info, matching the two-output HKDF expansion used throughout the
// Noise handshake (where two 32-byte keys are pulled from one Extract call).
func SingleHKDF(salt, secret, info []byte) [32]byte {
	reader := hkdf.New(sha256.New, secret, salt, info)
	var out [32]byte
	if _, err := io.ReadFull(reader, out[:]); err != nil {
		// hkdf.New with sha256 and a 32-byte output never fails to
		// fill a single block; a failure here indicates a corrupted
		// reader implementation.
		panic(err)
	}
	return out
}

// HKDF2 implements the two-output HKDF-Expand used by the Noise_XK
// handshake (BOLT #8 §"HKDF"): given a chaining key and input key material,
// it returns (ck', k') where both are 32 bytes.
func HKDF2(chainingKey, ikm []byte) (ck, k [32]byte) {
	reader := hkdf.New(sha256.New, ikm, chainingKey[:], nil)
	io.ReadFull(reader, ck[:])
	io.ReadFull(reader, k[:])
	return ck, k
}

// Encrypt seals plaintext with ChaCha20-Poly1305 under key/nonce, appending
// the 16-byte authentication tag, with ad as associated data.
func Encrypt(key [32]byte, nonce [12]byte, plaintext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce[:], plaintext, ad), nil
}

// Decrypt opens ciphertext (which includes the trailing tag) with
// ChaCha20-Poly1305 under key/nonce and associated data ad. Returns
// ErrTagMismatch on authentication failure.
func Decrypt(key [32]byte, nonce [12]byte, ciphertext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce[:], ciphertext, ad)
	if err != nil {
		return nil, ErrTagMismatch
	}
	return pt, nil
}

// NonceFromCounter packs a 64-bit little-endian counter into the low 8 bytes
// of the 12-byte ChaCha20-Poly1305 nonce, with the first 4 bytes zero, per
// BOLT #8's framing convention.
func NonceFromCounter(counter uint64) [12]byte {
	var nonce [12]byte
	nonce[4] = byte(counter)
	nonce[5] = byte(counter >> 8)
	nonce[6] = byte(counter >> 16)
	nonce[7] = byte(counter >> 24)
	nonce[8] = byte(counter >> 32)
	nonce[9] = byte(counter >> 40)
	nonce[10] = byte(counter >> 48)
	nonce[11] = byte(counter >> 56)
	return nonce
}

// ConstantTimeCompare reports whether a and b are equal using a
// constant-time comparison. Used whenever a peer-supplied secret is checked
// against a locally derived one (revocation secrets, per-commitment
// secrets) so that timing does not leak which byte first differed.
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ECDH performs elliptic-curve Diffie-Hellman between privKey and pubKey,
// returning SHA-256(compressed shared point) as is conventional for
// secp256k1 ECDH in the Lightning protocol.
func ECDH(privKey *btcec.PrivateKey, pubKey *btcec.PublicKey) [32]byte {
	var point btcec.JacobianPoint
	pubKey.AsJacobian(&point)

	var result btcec.JacobianPoint
	btcec.ScalarMultNonConst(&privKey.Key, &point, &result)
	result.ToAffine()

	sharedPub := btcec.NewPublicKey(&result.X, &result.Y)
	return Sha256(sharedPub.SerializeCompressed())
}

// TweakPubKey adds tweak*G to basePoint, returning basePoint + tweak*G. This
// is the building block for the per-commitment local/delayed/htlc key
// derivation of spec §4.3: `localkey = basepoint + SHA256(P||basepoint)*G`.
func TweakPubKey(basePoint *btcec.PublicKey, tweak [32]byte) *btcec.PublicKey {
	var tweakPoint btcec.JacobianPoint
	var tweakScalar btcec.ModNScalar
	tweakScalar.SetBytes(&tweak)
	btcec.ScalarBaseMultNonConst(&tweakScalar, &tweakPoint)

	var basePointJ btcec.JacobianPoint
	basePoint.AsJacobian(&basePointJ)

	var result btcec.JacobianPoint
	btcec.AddNonConst(&basePointJ, &tweakPoint, &result)
	result.ToAffine()

	return btcec.NewPublicKey(&result.X, &result.Y)
}

// TweakPrivKey adds tweak to baseSecret modulo the curve order, the private
// counterpart of TweakPubKey.
func TweakPrivKey(baseSecret *btcec.PrivateKey, tweak [32]byte) *btcec.PrivateKey {
	var tweakScalar btcec.ModNScalar
	tweakScalar.SetBytes(&tweak)

	var resultScalar btcec.ModNScalar
	resultScalar.Add2(&baseSecret.Key, &tweakScalar)

	return btcec.PrivKeyFromScalar(&resultScalar)
}

// AddPubKeys returns a+b as curve points, used by the revocation key
// derivation of spec §4.3, which sums two tweaked points.
func AddPubKeys(a, b *btcec.PublicKey) *btcec.PublicKey {
	var aJ, bJ, sum btcec.JacobianPoint
	a.AsJacobian(&aJ)
	b.AsJacobian(&bJ)
	btcec.AddNonConst(&aJ, &bJ, &sum)
	sum.ToAffine()
	return btcec.NewPublicKey(&sum.X, &sum.Y)
}

// ScalarMultPubKey returns scalar*point.
func ScalarMultPubKey(point *btcec.PublicKey, scalar [32]byte) *btcec.PublicKey {
	var pointJ, result btcec.JacobianPoint
	point.AsJacobian(&pointJ)

	var s btcec.ModNScalar
	s.SetBytes(&scalar)
	btcec.ScalarMultNonConst(&s, &pointJ, &result)
	result.ToAffine()

	return btcec.NewPublicKey(&result.X, &result.Y)
}

// AddPrivScalars returns a+b mod n as a 32-byte scalar, used to combine a base
// secret and two revocation tweaks symmetrically with AddPubKeys.
func AddPrivScalars(a, b [32]byte) [32]byte {
	var as, bs, sum btcec.ModNScalar
	as.SetBytes(&a)
	bs.SetBytes(&b)
	sum.Add2(&as, &bs)
	return sum.Bytes()
}

// MulPrivScalars returns a*b mod n.
func MulPrivScalars(a, b [32]byte) [32]byte {
	var as, bs, prod btcec.ModNScalar
	as.SetBytes(&a)
	bs.SetBytes(&b)
	prod.Mul2(&as, &bs)
	return prod.Bytes()
}
