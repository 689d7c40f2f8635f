package brontide

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
)

// responderHandshake runs the three acts of Noise_XK from the responder's
// side, mirroring initiatorHandshake.
type responderHandshake struct {
	*handshakeState

	localStatic      *btcec.PrivateKey
	localEphem       *btcec.PrivateKey
	remoteEphem      *btcec.PublicKey
	remoteStatic     *btcec.PublicKey
	act1TempKey      [32]byte
	act2TempKey      [32]byte
}

// newResponderHandshake prepares responder state; h is initialized with
// our own static key, since from the responder's perspective "our" static
// key is the one publicly known in advance.
func newResponderHandshake(localStatic *btcec.PrivateKey) *responderHandshake {
	return &responderHandshake{
		handshakeState: newHandshakeState(localStatic.PubKey()),
		localStatic:    localStatic,
	}
}

// recvActOne processes the initiator's first message.
func (rh *responderHandshake) recvActOne(act [actOneSize]byte) error {
	if act[0] != 0x00 {
		return fmt.Errorf("unrecognised handshake version %d", act[0])
	}

	remoteEphem, err := btcec.ParsePubKey(act[1:34])
	if err != nil {
		return fmt.Errorf("invalid ephemeral point: %w", err)
	}
	rh.remoteEphem = remoteEphem
	rh.mixHash(remoteEphem.SerializeCompressed())

	sharedSecret := lncrypto.ECDH(rh.localStatic, remoteEphem)
	tempKey := rh.mixKey(sharedSecret[:])
	rh.act1TempKey = tempKey

	if _, err := rh.decryptAndHash(tempKey, act[34:]); err != nil {
		return fmt.Errorf("tag mismatch: %w", err)
	}

	return nil
}

// genActTwo produces our ephemeral reply.
func (rh *responderHandshake) genActTwo() ([actTwoSize]byte, error) {
	var act [actTwoSize]byte

	ephem, err := btcec.NewPrivateKey()
	if err != nil {
		return act, err
	}
	rh.localEphem = ephem

	ephemPub := ephem.PubKey().SerializeCompressed()
	rh.mixHash(ephemPub)

	sharedSecret := lncrypto.ECDH(ephem, rh.remoteEphem)
	tempKey := rh.mixKey(sharedSecret[:])
	rh.act2TempKey = tempKey

	tag, err := rh.encryptAndHash(tempKey, nil)
	if err != nil {
		return act, err
	}

	act[0] = 0x00
	copy(act[1:34], ephemPub)
	copy(act[34:], tag)

	return act, nil
}

// recvActThree decrypts the initiator's static key and the closing tag,
// authenticates the sender, and finalises the data-phase cipher states.
// Note the responder's send/receive keys are swapped relative to the
// initiator's: what the initiator calls "send" the responder receives on.
func (rh *responderHandshake) recvActThree(act [actThreeSize]byte) (*btcec.PublicKey, *DirectionState, *DirectionState, error) {
	if act[0] != 0x00 {
		return nil, nil, nil, fmt.Errorf("unrecognised handshake version %d", act[0])
	}

	encryptedStatic := act[1 : 1+33+16]
	closingTag := act[1+33+16:]

	staticPubBytes, err := rh.decryptAndHash(rh.act2TempKey, encryptedStatic)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tag mismatch decrypting static key: %w", err)
	}

	remoteStatic, err := btcec.ParsePubKey(staticPubBytes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid static point: %w", err)
	}
	rh.remoteStatic = remoteStatic

	ecdhStatic := lncrypto.ECDH(rh.localStatic, remoteStatic)
	k3 := rh.mixKey(ecdhStatic[:])

	if _, err := rh.decryptAndHash(k3, closingTag); err != nil {
		return nil, nil, nil, fmt.Errorf("tag mismatch on closing act: %w", err)
	}

	rk, sk := lncrypto.HKDF2(rh.ck[:], nil)
	sendState := newDirectionState(sk, rh.ck)
	recvState := newDirectionState(rk, rh.ck)

	return remoteStatic, sendState, recvState, nil
}
