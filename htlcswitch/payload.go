package htlcswitch

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
	"github.com/slacerda85/ihodl-sub007/tlv"
)

// TLV types for a per-hop onion payload (spec §4.6, BOLT-4's legacy
// basic onion payload fields).
const (
	tlvAmtToForward       = 2
	tlvOutgoingCLTV       = 4
	tlvShortChannelID     = 6
	tlvPaymentData        = 8 // mpp: total_msat + payment_secret
)

// BuildHopPayload encodes the forwarding instruction one intermediate hop
// needs: the channel to forward onto, and the amount/expiry to apply
// after this hop's own fee and CLTV delta are subtracted.
func BuildHopPayload(nextChan lncrypto.ShortChannelID, amtToForward uint64, outgoingCLTV uint32) []byte {
	s := &tlv.Stream{}

	var amtBuf [8]byte
	binary.BigEndian.PutUint64(amtBuf[:], amtToForward)
	s.Set(tlvAmtToForward, amtBuf[:])

	var cltvBuf [4]byte
	binary.BigEndian.PutUint32(cltvBuf[:], outgoingCLTV)
	s.Set(tlvOutgoingCLTV, cltvBuf[:])

	scidBytes := nextChan.Bytes()
	s.Set(tlvShortChannelID, scidBytes[:])

	return s.Bytes()
}

// BuildFinalHopPayload encodes the payload terminating an onion at the
// payment's destination, carrying the MPP total and payment secret used
// to correlate parts of a multi-part payment (spec §4.8).
func BuildFinalHopPayload(amtToForward uint64, outgoingCLTV uint32, totalMsat uint64, paymentSecret [32]byte) []byte {
	s := &tlv.Stream{}

	var amtBuf [8]byte
	binary.BigEndian.PutUint64(amtBuf[:], amtToForward)
	s.Set(tlvAmtToForward, amtBuf[:])

	var cltvBuf [4]byte
	binary.BigEndian.PutUint32(cltvBuf[:], outgoingCLTV)
	s.Set(tlvOutgoingCLTV, cltvBuf[:])

	var payData [40]byte
	binary.BigEndian.PutUint64(payData[:8], totalMsat)
	copy(payData[8:], paymentSecret[:])
	s.Set(tlvPaymentData, payData[:])

	return s.Bytes()
}

// parseForwardingInstruction decodes an intermediate hop's payload,
// returning the channel to forward the HTLC onto and the amount/expiry
// to apply to the outgoing HTLC.
func parseForwardingInstruction(payload []byte) (lncrypto.ShortChannelID, uint64, uint32, error) {
	s, err := tlv.DecodeStream(bytes.NewReader(payload))
	if err != nil {
		return lncrypto.ShortChannelID{}, 0, 0, fmt.Errorf("htlcswitch: decode hop payload: %w", err)
	}

	amtRaw, ok := s.Get(tlvAmtToForward)
	if !ok || len(amtRaw) != 8 {
		return lncrypto.ShortChannelID{}, 0, 0, fmt.Errorf("htlcswitch: missing amt_to_forward")
	}
	cltvRaw, ok := s.Get(tlvOutgoingCLTV)
	if !ok || len(cltvRaw) != 4 {
		return lncrypto.ShortChannelID{}, 0, 0, fmt.Errorf("htlcswitch: missing outgoing_cltv_value")
	}
	scidRaw, ok := s.Get(tlvShortChannelID)
	if !ok || len(scidRaw) != 8 {
		return lncrypto.ShortChannelID{}, 0, 0, fmt.Errorf("htlcswitch: missing short_channel_id")
	}

	amt := binary.BigEndian.Uint64(amtRaw)
	cltv := binary.BigEndian.Uint32(cltvRaw)
	scid := lncrypto.NewShortChannelIDFromUint64(binary.BigEndian.Uint64(scidRaw))

	return scid, amt, cltv, nil
}

// ParseFinalHopPayload decodes the payload at the final hop of an onion,
// returning the amount/expiry the sender committed to and the MPP
// total/secret used to correlate multi-part payments.
func ParseFinalHopPayload(payload []byte) (amtToForward uint64, outgoingCLTV uint32, totalMsat uint64, paymentSecret [32]byte, err error) {
	s, decErr := tlv.DecodeStream(bytes.NewReader(payload))
	if decErr != nil {
		err = fmt.Errorf("htlcswitch: decode final hop payload: %w", decErr)
		return
	}

	amtRaw, ok := s.Get(tlvAmtToForward)
	if !ok || len(amtRaw) != 8 {
		err = fmt.Errorf("htlcswitch: missing amt_to_forward")
		return
	}
	cltvRaw, ok := s.Get(tlvOutgoingCLTV)
	if !ok || len(cltvRaw) != 4 {
		err = fmt.Errorf("htlcswitch: missing outgoing_cltv_value")
		return
	}
	amtToForward = binary.BigEndian.Uint64(amtRaw)
	outgoingCLTV = binary.BigEndian.Uint32(cltvRaw)

	if payData, ok := s.Get(tlvPaymentData); ok && len(payData) == 40 {
		totalMsat = binary.BigEndian.Uint64(payData[:8])
		copy(paymentSecret[:], payData[8:])
	}
	return
}
