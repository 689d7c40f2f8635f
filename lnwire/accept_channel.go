package lnwire

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// AcceptChannel is the fundee's reply to OpenChannel (spec §4.2.1),
// echoing the pending channel id and presenting its own basepoints.
type AcceptChannel struct {
	PendingChannelID [32]byte

	DustLimit            uint64
	MaxHTLCValueInFlight uint64
	ChannelReserve       uint64
	HTLCMinimumMSat      uint64
	MinimumDepth         uint32
	CSVDelay             uint16
	MaxAcceptedHTLCs     uint16

	FundingKey              *btcec.PublicKey
	RevocationBasepoint     *btcec.PublicKey
	PaymentBasepoint        *btcec.PublicKey
	DelayedPaymentBasepoint *btcec.PublicKey
	HTLCBasepoint           *btcec.PublicKey
	FirstPerCommitmentPoint *btcec.PublicKey
}

var _ Message = (*AcceptChannel)(nil)

func (a *AcceptChannel) Decode(r io.Reader) error {
	return readElements(r,
		&a.PendingChannelID,
		&a.DustLimit,
		&a.MaxHTLCValueInFlight,
		&a.ChannelReserve,
		&a.HTLCMinimumMSat,
		&a.MinimumDepth,
		&a.CSVDelay,
		&a.MaxAcceptedHTLCs,
		&a.FundingKey,
		&a.RevocationBasepoint,
		&a.PaymentBasepoint,
		&a.DelayedPaymentBasepoint,
		&a.HTLCBasepoint,
		&a.FirstPerCommitmentPoint,
	)
}

func (a *AcceptChannel) Encode(w io.Writer) error {
	return writeElements(w,
		a.PendingChannelID,
		a.DustLimit,
		a.MaxHTLCValueInFlight,
		a.ChannelReserve,
		a.HTLCMinimumMSat,
		a.MinimumDepth,
		a.CSVDelay,
		a.MaxAcceptedHTLCs,
		a.FundingKey,
		a.RevocationBasepoint,
		a.PaymentBasepoint,
		a.DelayedPaymentBasepoint,
		a.HTLCBasepoint,
		a.FirstPerCommitmentPoint,
	)
}

func (a *AcceptChannel) MsgType() MessageType { return MsgAcceptChannel }

func (a *AcceptChannel) MaxPayloadLength() uint32 { return MaxMessagePayload }
