package sphinx

import (
	"encoding/binary"
	"errors"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
)

// ErrNoErrorSource is returned by DecryptFailure when none of the
// supplied shared secrets peel the failure onion into a message whose
// HMAC verifies, meaning the failure cannot be attributed to any hop on
// the known path (a corrupted or foreign failure message).
var ErrNoErrorSource = errors.New("sphinx: failure message does not match any hop on this route")

// um-derived stream chaining: the node detecting a forwarding failure
// packs {hmac, length, message} with an "um" key HMAC, obfuscates it with
// its own um-derived keystream, and hands it back upstream; every
// subsequent hop on the return path re-obfuscates with its own um key
// without being able to read the contents (spec §4.6).

// BuildFailure is called by the hop that detects a forwarding error. It
// seals failureMsg under the HMAC/obfuscation scheme keyed to
// sharedSecret (the secret this hop derived when it peeled the onion)
// and returns the opaque blob to send back to the previous hop.
func BuildFailure(sharedSecret [32]byte, failureMsg []byte) []byte {
	um := deriveKey(sharedSecret, umKey)

	packed := packFailure(um, failureMsg)
	return obfuscate(sharedSecret, packed)
}

// RelayFailure is called by every hop on the return path other than the
// one that originated the failure: it re-obfuscates the opaque blob with
// its own um-derived stream, peeling one layer of the return onion per
// hop just as the forward path peeled the routing onion.
func RelayFailure(sharedSecret [32]byte, blob []byte) []byte {
	return obfuscate(sharedSecret, blob)
}

// obfuscate XORs blob with the um-derived keystream for sharedSecret,
// extending or truncating the stream to match blob's length. Applying it
// twice with the same secret is its own inverse.
func obfuscate(sharedSecret [32]byte, blob []byte) []byte {
	um := deriveKey(sharedSecret, umKey)
	stream, _ := generateStream(um, len(blob))
	out := append([]byte(nil), blob...)
	xorBytes(out, stream)
	return out
}

// packFailure builds {hmac(um, length||msg) || length || msg}, matching
// the order DecryptFailure expects to unpack after removing every
// obfuscation layer.
func packFailure(um [32]byte, msg []byte) []byte {
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(msg)))

	body := append(append([]byte{}, length[:]...), msg...)
	mac := lncrypto.HMACSha256(um[:], body)

	return append(mac[:], body...)
}

// unpackFailure is the inverse of packFailure: it verifies the leading
// HMAC against um and returns the enclosed message.
func unpackFailure(um [32]byte, blob []byte) ([]byte, bool) {
	if len(blob) < 32+2 {
		return nil, false
	}
	mac := blob[:32]
	body := blob[32:]

	expected := lncrypto.HMACSha256(um[:], body)
	if !lncrypto.ConstantTimeCompare(expected[:], mac) {
		return nil, false
	}

	length := binary.BigEndian.Uint16(body[:2])
	if int(length) > len(body)-2 {
		return nil, false
	}
	return body[2 : 2+length], true
}

// DecryptFailure is run by the sender of the original onion. It holds
// the per-hop shared secrets derived during NewPacket, in hop order, and
// tries unwrapping one obfuscation layer per hop (outermost/first hop
// first, matching the order the blob traveled back through) until the
// embedded HMAC verifies, returning the plaintext failure message and
// the index (0-based, sender's hop numbering) of the hop that produced
// it.
func DecryptFailure(sharedSecrets [][32]byte, blob []byte) (msg []byte, hopIndex int, err error) {
	current := blob
	for i, secret := range sharedSecrets {
		current = obfuscate(secret, current)
		um := deriveKey(secret, umKey)
		if plain, ok := unpackFailure(um, current); ok {
			return plain, i, nil
		}
	}
	return nil, -1, ErrNoErrorSource
}
