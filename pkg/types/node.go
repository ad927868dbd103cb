package types

// NodeID is a mesh node identifier. Classic nodes use 1..232, long-range
// nodes LongRangeMinNodeID..LongRangeMaxNodeID.
type NodeID uint16

const (
	ClassicMaxNodeID   NodeID = 232
	LongRangeMinNodeID NodeID = 256
	LongRangeMaxNodeID NodeID = 4000
)

// IsLongRange returns true if the node is in the long-range id space
func (n NodeID) IsLongRange() bool {
	return n >= LongRangeMinNodeID && n <= LongRangeMaxNodeID
}

// IsValid returns true for any classic or long-range node id
func (n NodeID) IsValid() bool {
	return (n >= 1 && n <= ClassicMaxNodeID) || n.IsLongRange()
}

// TxOptions are the transmit option bits handed to the radio
type TxOptions uint8

const (
	TxOptionAck       TxOptions = 0x01
	TxOptionLowPower  TxOptions = 0x02
	TxOptionAutoRoute TxOptions = 0x04
	TxOptionNoRoute   TxOptions = 0x10
	TxOptionExplore   TxOptions = 0x20
	// TxOptionMulticast never reaches the radio. It marks a multicast request
	// inside the gateway.
	TxOptionMulticast TxOptions = 0x40
)

// Has returns true if every bit in o is set
func (t TxOptions) Has(o TxOptions) bool {
	return t&o == o
}

// RxStatus are the receive status bits reported with an incoming frame
type RxStatus uint8

const (
	RxStatusRoutedBusy RxStatus = 0x01
	RxStatusLowPower   RxStatus = 0x02
	RxStatusBroadcast  RxStatus = 0x04
	RxStatusMulticast  RxStatus = 0x08
	RxStatusExplore    RxStatus = 0x10
)

// Has returns true if every bit in o is set
func (r RxStatus) Has(o RxStatus) bool {
	return r&o == o
}
