package routing

import "github.com/btcsuite/btcd/btcec/v2"

// TrampolineFeeLevel is one rung of the fee retry ladder a sender climbs
// when a trampoline hop reports the offered fee was insufficient (spec
// §4.7).
type TrampolineFeeLevel struct {
	BaseMSat uint32
	PPM      uint32
}

// TrampolineFeeLadder is spec §4.7's fixed four-level ladder.
var TrampolineFeeLadder = []TrampolineFeeLevel{
	{BaseMSat: 0, PPM: 0},
	{BaseMSat: 1000, PPM: 100},
	{BaseMSat: 3000, PPM: 500},
	{BaseMSat: 5000, PPM: 1000},
}

// Fee computes the fee this level would charge for forwarding
// amountMsat.
func (l TrampolineFeeLevel) Fee(amountMsat uint64) uint64 {
	return uint64(l.BaseMSat) + (amountMsat*uint64(l.PPM))/1_000_000
}

// TrampolineRequest describes a payment attempted via a single
// trampoline hop when the sender holds no full route to the
// destination (spec §4.7).
type TrampolineRequest struct {
	TrampolineNode  *btcec.PublicKey
	Destination     *btcec.PublicKey
	AmountMsat      uint64
	FinalCLTVExpiry uint32
	FeeLevel        int // index into TrampolineFeeLadder
}

// ErrFeeLadderExhausted is returned when every rung of the ladder has
// been tried and the trampoline still reports insufficient fee.
var ErrFeeLadderExhausted = errNoMoreLevels{}

type errNoMoreLevels struct{}

func (errNoMoreLevels) Error() string { return "routing: trampoline fee ladder exhausted" }

// AmountWithFee returns the amount the sender must forward to the
// trampoline node at the current fee level: the destination amount plus
// that level's fee.
func (r *TrampolineRequest) AmountWithFee() uint64 {
	level := TrampolineFeeLadder[r.FeeLevel]
	return r.AmountMsat + level.Fee(r.AmountMsat)
}

// PromoteFeeLevel advances to the next rung of the ladder after a
// fee_insufficient failure (spec §4.7's "retries promote one level").
// It reports false once the ladder is exhausted.
func (r *TrampolineRequest) PromoteFeeLevel() bool {
	if r.FeeLevel >= len(TrampolineFeeLadder)-1 {
		return false
	}
	r.FeeLevel++
	return true
}

// TrampolinePayload is the inner TLV payload addressed to the
// trampoline node, wrapped inside a secondary onion that is itself
// wrapped inside the normal outer onion (spec §4.7).
type TrampolinePayload struct {
	OutgoingNodeID  *btcec.PublicKey
	AmtToForward    uint64
	OutgoingCLTV    uint32
}
