package lnwire

import "github.com/btcsuite/btcd/btcutil"

// MilliSatoshi denotes a monetary amount in millisatoshis, the unit BOLT
// invoices, HTLC amounts, and routing fees are all expressed in. Wire
// messages themselves carry amounts as plain uint64 (see elements.go); this
// type exists for call sites such as zpay32 and htlcswitch that need amount
// arithmetic (ToSatoshis, fee math) without losing the millisatoshi unit in
// the type signature.
type MilliSatoshi uint64

// MSatPerSatoshi is the number of millisatoshis in one satoshi.
const MSatPerSatoshi = 1000

// ToSatoshis rounds down to the nearest whole satoshi.
func (m MilliSatoshi) ToSatoshis() btcutil.Amount {
	return btcutil.Amount(m / MSatPerSatoshi)
}

// NewMSatFromSatoshis converts a whole-satoshi amount to millisatoshis.
func NewMSatFromSatoshis(sat btcutil.Amount) MilliSatoshi {
	return MilliSatoshi(sat * MSatPerSatoshi)
}
