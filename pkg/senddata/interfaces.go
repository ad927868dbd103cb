package senddata

import (
	"avaneesh/zgw-go/pkg/types"
)

// Transmitter is the radio module's send API. A send returns false if the
// request was not accepted, in which case cb is never called; otherwise
// cb is called exactly once with the radio result.
type Transmitter interface {
	// SendData transmits from the local node
	SendData(dst types.NodeID, data []byte, opts types.TxOptions, cb types.SendCallback) bool

	// SendDataBridge transmits on behalf of a virtual node
	SendDataBridge(src, dst types.NodeID, data []byte, opts types.TxOptions, cb types.SendCallback) bool

	// Abort stops routing attempts of the transmission in progress. The
	// pending callback still arrives.
	Abort()
}

// Canceler is implemented by a Transmitter that can forget the
// transmission it is waiting on, so a callback arriving after the layer
// gave up is dropped
type Canceler interface {
	CancelPending()
}

// Capabilities is the node cache view the layer needs
type Capabilities interface {
	LocalNodeID() types.NodeID
	SchemeMask(node types.NodeID) types.SchemeMask
	SupportsCommandClass(node types.NodeID, class uint8) bool
}

// S0Sender is the Security 0 transport
type S0Sender interface {
	Send(p types.Params, data []byte, cb types.SendCallback) error
	AbortAll()
}

// SecureSender is an externally provided encapsulation path, the S2
// transport or transport service fragmentation
type SecureSender interface {
	SendData(p types.Params, data []byte, cb types.SendCallback) bool
	Abort()
}

// SpanResetter is implemented by an S2 sender able to resynchronize the
// replay state kept for a peer
type SpanResetter interface {
	ResetSPAN(node types.NodeID)
}
