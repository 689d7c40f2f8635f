package routing

import (
	"errors"
	"time"
)

// MaxParts bounds how many pieces a single payment may be split into
// (spec §4.7).
const MaxParts = 16

// MPPTimeout is how long the sender waits for every part of a
// multi-part payment to resolve before giving up on the whole payment
// (spec §4.7/§5).
const MPPTimeout = 60 * time.Second

// ErrTooManyParts is returned when splitting would require more than
// MaxParts pieces to fit within each edge's estimated liquidity.
var ErrTooManyParts = errors.New("routing: payment requires more than MaxParts paths")

// Part is one leg of a multi-part payment: an independently routed
// Route carrying PartialAmountMsat of the total, sharing PaymentHash
// and PaymentSecret with every other part (spec §4.7).
type Part struct {
	Route            *Route
	PartialAmountMsat uint64
}

// LiquidityEstimator reports the largest amount this node believes can
// currently be pushed out toward destination along a single path,
// driving the MPP split decision.
type LiquidityEstimator func(destination [33]byte) uint64

// SplitPayment attempts a single-path route first; if the destination's
// estimated single-path liquidity can't carry the full amount, it splits
// the amount into up to MaxParts equal-ish pieces and finds a path for
// each, all sharing the same destination (spec §4.7's MPP path).
func SplitPayment(p FindPathParams, estimate LiquidityEstimator) ([]Part, error) {
	if estimate == nil || estimate(p.Destination) >= p.AmountMsat {
		route, err := FindPath(p)
		if err != nil {
			return nil, err
		}
		return []Part{{Route: route, PartialAmountMsat: p.AmountMsat}}, nil
	}

	limit := estimate(p.Destination)
	if limit == 0 {
		return nil, ErrNoRoute
	}

	numParts := (p.AmountMsat + limit - 1) / limit
	if numParts > MaxParts {
		return nil, ErrTooManyParts
	}

	base := p.AmountMsat / numParts
	remainder := p.AmountMsat % numParts

	parts := make([]Part, 0, numParts)
	for i := uint64(0); i < numParts; i++ {
		amt := base
		if i == numParts-1 {
			amt += remainder
		}
		partParams := p
		partParams.AmountMsat = amt
		route, err := FindPath(partParams)
		if err != nil {
			return nil, err
		}
		parts = append(parts, Part{Route: route, PartialAmountMsat: amt})
	}
	return parts, nil
}

// ReassemblyTracker accumulates received partial amounts for one
// payment_hash/payment_secret pair until they sum to the advertised
// total, per spec §4.7's recipient-side MPP acceptance rule.
type ReassemblyTracker struct {
	TotalMsat uint64
	received  uint64
	deadline  time.Time
}

// NewReassemblyTracker starts tracking a payment expecting totalMsat,
// timing out after MPPTimeout from now.
func NewReassemblyTracker(totalMsat uint64, now time.Time) *ReassemblyTracker {
	return &ReassemblyTracker{TotalMsat: totalMsat, deadline: now.Add(MPPTimeout)}
}

// AddPart records one arrived partial amount; it returns true once the
// sum equals TotalMsat (time to release the preimage).
func (t *ReassemblyTracker) AddPart(partialMsat uint64) bool {
	t.received += partialMsat
	return t.received == t.TotalMsat
}

// Expired reports whether now is past the reassembly deadline without
// having collected the full amount.
func (t *ReassemblyTracker) Expired(now time.Time) bool {
	return t.received < t.TotalMsat && now.After(t.deadline)
}
