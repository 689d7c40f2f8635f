// Package brontide implements the Noise_XK_secp256k1_ChaChaPoly_SHA256
// transport handshake and the framed, encrypted, key-rotating message
// stream carried over it (spec §4.1). The teacher repo predates brontide
// (its peer.go dials plain TCP and hands the socket straight to
// lightning-onion-era message framing); other_examples/brontide.go.go only
// shows the call site (`brontide.Conn`, `ConnectPeer`) of a later lnd that
// already has this package, not its handshake math. The cipher-state
// machine below is authored directly from spec §4.1 using lncrypto's
// primitives, in the teacher's error-sentinel-and-struct-method idiom.
package brontide

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
)

// protocolName is mixed into the initial handshake hash, per BOLT #8.
const protocolName = "Noise_XK_secp256k1_ChaChaPoly_SHA256"

// rotationInterval is the number of messages encrypted (or decrypted) on a
// single direction before its key and nonce counter are rotated.
const rotationInterval = 1000

// HandshakeStage identifies which act of the three-act handshake failed,
// carried by HandshakeFailed.
type HandshakeStage int

const (
	StageAct1 HandshakeStage = iota + 1
	StageAct2
	StageAct3
)

// HandshakeFailed is returned when any act of the Noise_XK handshake fails
// authentication, a curve point fails to parse, or a read is short.
type HandshakeFailed struct {
	Stage HandshakeStage
	Err   error
}

func (e *HandshakeFailed) Error() string {
	return fmt.Sprintf("brontide: handshake failed at act %d: %v", e.Stage, e.Err)
}

func (e *HandshakeFailed) Unwrap() error { return e.Err }

// handshakeState tracks the symmetric-state (ck, h) shared by both acts of
// a Noise_XK session, exactly as specified by BOLT #8.
type handshakeState struct {
	h  [32]byte // running handshake hash
	ck [32]byte // chaining key
}

// newHandshakeState initializes h = SHA256(protocolName), then mixes the
// responder's known static public key into h, per spec §4.1.
func newHandshakeState(responderStatic *btcec.PublicKey) *handshakeState {
	hs := &handshakeState{}
	hs.h = lncrypto.Sha256([]byte(protocolName))
	hs.ck = hs.h
	hs.mixHash(responderStatic.SerializeCompressed())
	return hs
}

func (hs *handshakeState) mixHash(data []byte) {
	hs.h = lncrypto.Sha256(hs.h[:], data)
}

// mixKey performs the HKDF chaining-key ratchet and returns the new
// temporary encryption key.
func (hs *handshakeState) mixKey(ikm []byte) [32]byte {
	ck, k := lncrypto.HKDF2(hs.ck[:], ikm)
	hs.ck = ck
	return k
}

// encryptAndHash seals plaintext under the given temp key and the current
// handshake hash as associated data, then mixes the ciphertext into h.
func (hs *handshakeState) encryptAndHash(key [32]byte, plaintext []byte) ([]byte, error) {
	var nonce [12]byte // zero nonce; each handshake message uses a fresh key
	ct, err := lncrypto.Encrypt(key, nonce, plaintext, hs.h[:])
	if err != nil {
		return nil, err
	}
	hs.mixHash(ct)
	return ct, nil
}

func (hs *handshakeState) decryptAndHash(key [32]byte, ciphertext []byte) ([]byte, error) {
	var nonce [12]byte
	pt, err := lncrypto.Decrypt(key, nonce, ciphertext, hs.h[:])
	if err != nil {
		return nil, err
	}
	hs.mixHash(ciphertext)
	return pt, nil
}
