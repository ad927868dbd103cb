package types

import (
	"encoding/binary"
	"fmt"
)

// TransmitStatus is the completion code reported for a radio transmission
type TransmitStatus uint8

const (
	TransmitOK             TransmitStatus = 0x00 // Frame acknowledged
	TransmitNoAck          TransmitStatus = 0x01 // No acknowledge from destination
	TransmitFail           TransmitStatus = 0x02 // Transmission failed or was aborted
	TransmitRoutingNotIdle TransmitStatus = 0x03 // Routing engine busy
	TransmitNoRoute        TransmitStatus = 0x04 // No route to destination
	TransmitVerified       TransmitStatus = 0x05 // Delivery verified
	TransmitError          TransmitStatus = 0xFF // Frame could not be handed to the radio
)

// String returns string representation of TransmitStatus
func (s TransmitStatus) String() string {
	switch s {
	case TransmitOK:
		return "OK"
	case TransmitNoAck:
		return "NoAck"
	case TransmitFail:
		return "Fail"
	case TransmitRoutingNotIdle:
		return "RoutingNotIdle"
	case TransmitNoRoute:
		return "NoRoute"
	case TransmitVerified:
		return "Verified"
	case TransmitError:
		return "Error"
	default:
		return fmt.Sprintf("Status(0x%02X)", uint8(s))
	}
}

// OK returns true for a successful completion
func (s TransmitStatus) OK() bool {
	return s == TransmitOK
}

// TxStatusReport is the extended transmit status returned by the radio
// with a completion
type TxStatusReport struct {
	TransmitTicks    uint16  // Transmit time in 10 ms ticks
	Repeaters        uint8   // Number of repeaters used
	AckRSSI          int8    // RSSI of the acknowledge frame
	RepeaterRSSI     [4]int8 // RSSI per hop
	AckChannel       uint8
	TxChannel        uint8
	RouteSchemeState uint8
	LastRoute        [4]uint8
	RouteSpeed       uint8
	RouteTries       uint8
	LastFailedFrom   uint8
	LastFailedTo     uint8
}

// TxStatusReportSize is the encoded size of a TxStatusReport
const TxStatusReportSize = 20

// ParseTxStatusReport decodes the report bytes that trail a send-data callback
func ParseTxStatusReport(data []byte) (*TxStatusReport, error) {
	if len(data) < TxStatusReportSize {
		return nil, fmt.Errorf("tx status report too short: %d bytes", len(data))
	}
	r := &TxStatusReport{
		TransmitTicks: binary.BigEndian.Uint16(data[0:2]),
		Repeaters:     data[2],
		AckRSSI:       int8(data[3]),
	}
	for i := 0; i < 4; i++ {
		r.RepeaterRSSI[i] = int8(data[4+i])
	}
	r.AckChannel = data[8]
	r.TxChannel = data[9]
	r.RouteSchemeState = data[10]
	copy(r.LastRoute[:], data[11:15])
	r.RouteSpeed = data[15]
	r.RouteTries = data[16]
	r.LastFailedFrom = data[17]
	r.LastFailedTo = data[18]
	return r, nil
}

// Serialize encodes the report in radio wire order
func (r *TxStatusReport) Serialize() []byte {
	out := make([]byte, TxStatusReportSize)
	binary.BigEndian.PutUint16(out[0:2], r.TransmitTicks)
	out[2] = r.Repeaters
	out[3] = byte(r.AckRSSI)
	for i := 0; i < 4; i++ {
		out[4+i] = byte(r.RepeaterRSSI[i])
	}
	out[8] = r.AckChannel
	out[9] = r.TxChannel
	out[10] = r.RouteSchemeState
	copy(out[11:15], r.LastRoute[:])
	out[15] = r.RouteSpeed
	out[16] = r.RouteTries
	out[17] = r.LastFailedFrom
	out[18] = r.LastFailedTo
	return out
}

// SendCallback reports the outcome of a send. report is nil unless the
// radio produced one for a successful transmission.
type SendCallback func(status TransmitStatus, report *TxStatusReport)
