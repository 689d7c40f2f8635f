package lnwire

import "io"

// Init is the first message exchanged once a brontide.Conn is established
// (spec §5): each side advertises its supported feature bits before any
// channel or gossip traffic is allowed to flow.
type Init struct {
	// GlobalFeatures is kept for backwards compatibility with nodes that
	// still split features across two fields; modern nodes set bits only
	// in Features.
	GlobalFeatures *RawFeatureVector

	Features *RawFeatureVector

	ExtraData []byte
}

var _ Message = (*Init)(nil)

// NewInitMessage builds an Init advertising the given feature bits.
func NewInitMessage(global, local *RawFeatureVector) *Init {
	return &Init{
		GlobalFeatures: global,
		Features:       local,
	}
}

func (i *Init) Decode(r io.Reader) error {
	i.GlobalFeatures = &RawFeatureVector{}
	if err := i.GlobalFeatures.Decode(r); err != nil {
		return err
	}
	i.Features = &RawFeatureVector{}
	if err := i.Features.Decode(r); err != nil {
		return err
	}
	rest, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	i.ExtraData = rest
	return nil
}

func (i *Init) Encode(w io.Writer) error {
	global := i.GlobalFeatures
	if global == nil {
		global = NewRawFeatureVector()
	}
	local := i.Features
	if local == nil {
		local = NewRawFeatureVector()
	}
	if err := global.Encode(w); err != nil {
		return err
	}
	if err := local.Encode(w); err != nil {
		return err
	}
	_, err := w.Write(i.ExtraData)
	return err
}

func (i *Init) MsgType() MessageType { return MsgInit }

func (i *Init) MaxPayloadLength() uint32 { return MaxMessagePayload }
