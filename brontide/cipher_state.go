package brontide

import "github.com/slacerda85/ihodl-sub007/lncrypto"

// DirectionState is one direction (send-only, or receive-only) of the
// post-handshake framed stream. Per spec §4.1 the 2-byte length prefix and
// the message body are each sealed under their own nonce, incremented
// independently of one another, but both nonces are drawn from the same
// key and chaining key, and both are rotated together: every 1000 frames
// on this direction, `ck', k' = HKDF(ck, k)`, and both nonce counters
// reset to zero. The chaining key itself is carried forward across
// rotations (and is never reset).
type DirectionState struct {
	key         [32]byte
	chainingKey [32]byte

	lengthNonce uint64
	bodyNonce   uint64
	frameCount  uint64
}

func newDirectionState(key, chainingKey [32]byte) *DirectionState {
	return &DirectionState{key: key, chainingKey: chainingKey}
}

// maybeRotate rotates the key (and resets both nonce counters) once this
// direction has processed rotationInterval frames.
func (d *DirectionState) maybeRotate() {
	if d.frameCount < rotationInterval {
		return
	}
	ck, k := lncrypto.HKDF2(d.chainingKey[:], d.key[:])
	d.chainingKey = ck
	d.key = k
	d.lengthNonce = 0
	d.bodyNonce = 0
	d.frameCount = 0
}

// sealLength encrypts the 2-byte big-endian payload length.
func (d *DirectionState) sealLength(length uint16) ([]byte, error) {
	d.maybeRotate()
	var lenBuf [2]byte
	lenBuf[0] = byte(length >> 8)
	lenBuf[1] = byte(length)

	nonce := lncrypto.NonceFromCounter(d.lengthNonce)
	ct, err := lncrypto.Encrypt(d.key, nonce, lenBuf[:], nil)
	if err != nil {
		return nil, err
	}
	d.lengthNonce++
	return ct, nil
}

// openLength decrypts and returns a 2-byte encrypted length field.
func (d *DirectionState) openLength(ciphertext []byte) (uint16, error) {
	d.maybeRotate()
	nonce := lncrypto.NonceFromCounter(d.lengthNonce)
	pt, err := lncrypto.Decrypt(d.key, nonce, ciphertext, nil)
	if err != nil {
		return 0, err
	}
	d.lengthNonce++
	return uint16(pt[0])<<8 | uint16(pt[1]), nil
}

// sealBody encrypts the message payload and advances the frame count
// (bumping it past the body is what actually counts toward rotation: one
// full frame = one length encryption + one body encryption).
func (d *DirectionState) sealBody(payload []byte) ([]byte, error) {
	nonce := lncrypto.NonceFromCounter(d.bodyNonce)
	ct, err := lncrypto.Encrypt(d.key, nonce, payload, nil)
	if err != nil {
		return nil, err
	}
	d.bodyNonce++
	d.frameCount++
	return ct, nil
}

// openBody decrypts the message payload.
func (d *DirectionState) openBody(ciphertext []byte) ([]byte, error) {
	nonce := lncrypto.NonceFromCounter(d.bodyNonce)
	pt, err := lncrypto.Decrypt(d.key, nonce, ciphertext, nil)
	if err != nil {
		return nil, err
	}
	d.bodyNonce++
	d.frameCount++
	return pt, nil
}
