package lnwire

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// OpenChannel begins channel establishment (spec §4.2.1): the funder
// proposes the channel parameters and presents its five basepoints plus
// the first per-commitment point.
type OpenChannel struct {
	ChainHash        [32]byte
	PendingChannelID [32]byte

	FundingAmount uint64
	PushAmount    uint64

	DustLimit            uint64
	MaxHTLCValueInFlight uint64
	ChannelReserve       uint64
	HTLCMinimumMSat      uint64
	FeePerKW             uint32
	CSVDelay             uint16
	MaxAcceptedHTLCs     uint16

	FundingKey               *btcec.PublicKey
	RevocationBasepoint      *btcec.PublicKey
	PaymentBasepoint         *btcec.PublicKey
	DelayedPaymentBasepoint  *btcec.PublicKey
	HTLCBasepoint            *btcec.PublicKey
	FirstPerCommitmentPoint  *btcec.PublicKey

	ChannelFlags uint8
}

var _ Message = (*OpenChannel)(nil)

func (o *OpenChannel) Decode(r io.Reader) error {
	return readElements(r,
		&o.ChainHash,
		&o.PendingChannelID,
		&o.FundingAmount,
		&o.PushAmount,
		&o.DustLimit,
		&o.MaxHTLCValueInFlight,
		&o.ChannelReserve,
		&o.HTLCMinimumMSat,
		&o.FeePerKW,
		&o.CSVDelay,
		&o.MaxAcceptedHTLCs,
		&o.FundingKey,
		&o.RevocationBasepoint,
		&o.PaymentBasepoint,
		&o.DelayedPaymentBasepoint,
		&o.HTLCBasepoint,
		&o.FirstPerCommitmentPoint,
		&o.ChannelFlags,
	)
}

func (o *OpenChannel) Encode(w io.Writer) error {
	return writeElements(w,
		o.ChainHash,
		o.PendingChannelID,
		o.FundingAmount,
		o.PushAmount,
		o.DustLimit,
		o.MaxHTLCValueInFlight,
		o.ChannelReserve,
		o.HTLCMinimumMSat,
		o.FeePerKW,
		o.CSVDelay,
		o.MaxAcceptedHTLCs,
		o.FundingKey,
		o.RevocationBasepoint,
		o.PaymentBasepoint,
		o.DelayedPaymentBasepoint,
		o.HTLCBasepoint,
		o.FirstPerCommitmentPoint,
		o.ChannelFlags,
	)
}

func (o *OpenChannel) MsgType() MessageType { return MsgOpenChannel }

func (o *OpenChannel) MaxPayloadLength() uint32 { return MaxMessagePayload }
