package brontide

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
)

// actOneSize is 1 (version) + 33 (ephemeral pubkey) + 16 (AEAD tag).
const actOneSize = 1 + 33 + 16

// actTwoSize mirrors act one.
const actTwoSize = 1 + 33 + 16

// actThreeSize is 1 (version) + 33+16 (encrypted static key) + 16 (tag on
// an empty payload).
const actThreeSize = 1 + 33 + 16 + 16

// initiatorHandshake runs the three acts of Noise_XK from the initiator's
// side: we know the responder's static public key in advance (hence
// "_XK": our own static key is transmitted, theirs is Known).
type initiatorHandshake struct {
	*handshakeState

	localStatic     *btcec.PrivateKey
	localEphem      *btcec.PrivateKey
	remoteStatic    *btcec.PublicKey
	act2RemoteEphem *btcec.PublicKey
}

// newInitiatorHandshake prepares the state for the initiator side of the
// handshake. A fresh ephemeral key is drawn from crypto/rand.
func newInitiatorHandshake(localStatic *btcec.PrivateKey,
	remoteStatic *btcec.PublicKey) (*initiatorHandshake, error) {

	ephem, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}

	return &initiatorHandshake{
		handshakeState: newHandshakeState(remoteStatic),
		localStatic:    localStatic,
		localEphem:     ephem,
		remoteStatic:   remoteStatic,
	}, nil
}

// genActOne produces the Act 1 message: 0x00 || e_pub || 16-byte tag.
func (ih *initiatorHandshake) genActOne() ([actOneSize]byte, [32]byte, error) {
	var act [actOneSize]byte

	ephemPub := ih.localEphem.PubKey().SerializeCompressed()
	ih.mixHash(ephemPub)

	sharedSecret := lncrypto.ECDH(ih.localEphem, ih.remoteStatic)
	tempKey := ih.mixKey(sharedSecret[:])

	tag, err := ih.encryptAndHash(tempKey, nil)
	if err != nil {
		return act, tempKey, err
	}

	act[0] = 0x00
	copy(act[1:34], ephemPub)
	copy(act[34:], tag)

	return act, tempKey, nil
}

// recvActTwo processes the responder's Act 2 reply and derives the
// temporary key (k2) act three will encrypt the static key under.
func (ih *initiatorHandshake) recvActTwo(act [actTwoSize]byte) error {
	if act[0] != 0x00 {
		return fmt.Errorf("unrecognised handshake version %d", act[0])
	}

	remoteEphem, err := btcec.ParsePubKey(act[1:34])
	if err != nil {
		return fmt.Errorf("invalid ephemeral point: %w", err)
	}

	ih.mixHash(remoteEphem.SerializeCompressed())

	sharedSecret := lncrypto.ECDH(ih.localEphem, remoteEphem)
	tempKey := ih.mixKey(sharedSecret[:])

	if _, err := ih.decryptAndHash(tempKey, act[34:]); err != nil {
		return fmt.Errorf("tag mismatch: %w", err)
	}

	ih.act2RemoteEphem = remoteEphem
	return nil
}

// genActThree produces act three: our static key encrypted under k2,
// followed by an empty payload encrypted under the finally-derived k3, and
// finalises the send/receive keys for the data phase.
func (ih *initiatorHandshake) genActThree() ([actThreeSize]byte, *DirectionState, *DirectionState, error) {
	var act [actThreeSize]byte

	sharedSecret := lncrypto.ECDH(ih.localStatic, ih.act2RemoteEphem)
	k2 := ih.mixKey(sharedSecret[:])

	staticPub := ih.localStatic.PubKey().SerializeCompressed()
	ct, err := ih.encryptAndHash(k2, staticPub)
	if err != nil {
		return act, nil, nil, err
	}

	ecdhStatic := lncrypto.ECDH(ih.localStatic, ih.remoteStatic)
	k3 := ih.mixKey(ecdhStatic[:])

	tag, err := ih.encryptAndHash(k3, nil)
	if err != nil {
		return act, nil, nil, err
	}

	act[0] = 0x00
	copy(act[1:], ct)
	copy(act[1+len(ct):], tag)

	sk, rk := lncrypto.HKDF2(ih.ck[:], nil)
	sendState := newDirectionState(sk, ih.ck)
	recvState := newDirectionState(rk, ih.ck)

	return act, sendState, recvState, nil
}
