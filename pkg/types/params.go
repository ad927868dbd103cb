package types

import (
	"fmt"
	"time"
)

// Params addresses a frame and carries its delivery options
type Params struct {
	Source       NodeID
	Destination  NodeID
	SrcEndpoint  uint8
	DstEndpoint  uint8
	TxOptions    TxOptions
	RxStatus     RxStatus
	Scheme       Scheme
	DiscardAfter time.Duration // 0 means the frame never expires in the queue

	// Multicast destinations, used only with TxOptionMulticast
	NodeList []NodeID
}

// SamePair returns true if both params address the same endpoints in the same direction
func (p Params) SamePair(o Params) bool {
	return p.Source == o.Source && p.Destination == o.Destination &&
		p.SrcEndpoint == o.SrcEndpoint && p.DstEndpoint == o.DstEndpoint
}

// Reply swaps addressing of received params for an answer. Low power
// reception is mirrored in the tx options. The scheme is left as SchemeNone
// for the caller to select.
func (p Params) Reply() Params {
	opts := TxOptionAck | TxOptionExplore | TxOptionAutoRoute
	if p.RxStatus.Has(RxStatusLowPower) {
		opts |= TxOptionLowPower
	}
	return Params{
		Source:      p.Destination,
		Destination: p.Source,
		SrcEndpoint: p.DstEndpoint,
		DstEndpoint: p.SrcEndpoint,
		TxOptions:   opts,
		Scheme:      SchemeNone,
	}
}

// IsMulticast returns true if the params request a multicast transmission
func (p Params) IsMulticast() bool {
	return p.TxOptions.Has(TxOptionMulticast)
}

// String returns a short representation used in log lines
func (p Params) String() string {
	return fmt.Sprintf("%d.%d->%d.%d scheme=%s", p.Source, p.SrcEndpoint, p.Destination, p.DstEndpoint, p.Scheme)
}
