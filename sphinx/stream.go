// Package sphinx builds and peels the fixed-size layered onion packet used
// to route an HTLC across a path without any intermediate hop learning the
// full route (spec §4.6). The teacher's own lightning-onion dependency was
// retrieved as a go.mod-only reference with no source, so the packet
// construction and peeling logic here is authored fresh against spec §4.6
// and the BOLT-4-shaped call sites visible in the pack's htlcswitch-family
// files, following the teacher's per-file helper-function idiom.
//
// REDESIGN FLAG (spec §9): the source generates its per-hop keystream with
// HKDF, which is not interoperable with the wire protocol's ChaCha20
// stream generator. This package uses ChaCha20, not HKDF, for every stream
// the spec marks as "XOR the buffer with the rho_i stream".
package sphinx

import (
	"golang.org/x/crypto/chacha20"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
)

// generateStream fills out with the ChaCha20 keystream produced by the
// 32-byte key derived for purpose (e.g. "rho", "mu", "um", "pad") from the
// per-hop shared secret. A zero nonce is used throughout, matching BOLT
// #4's stream generator: the per-hop key is already unique per use.
func generateStream(key [32]byte, length int) ([]byte, error) {
	var nonce [12]byte
	cipher, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	cipher.XORKeyStream(out, out)
	return out, nil
}

// xorBytes XORs src into dst in place; len(dst) must be <= len(src).
func xorBytes(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

// deriveKey produces the 32-byte sub-key used for a named purpose ("rho",
// "mu", "um", "pad") from a per-hop shared secret, via single-output HKDF
// as specified (spec §4.6 "rho_i = HKDF(s_i, \"rho\")").
func deriveKey(sharedSecret [32]byte, purpose string) [32]byte {
	return lncrypto.SingleHKDF([]byte(purpose), sharedSecret[:], nil)
}

var (
	rhoKey = "rho"
	muKey  = "mu"
	umKey  = "um"
	padKey = "pad"
)
