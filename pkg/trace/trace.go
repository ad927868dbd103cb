// Package trace records radio frames and their completions as a CBOR
// stream for offline inspection.
package trace

import (
	"time"
)

// Direction of a traced frame
type Direction uint8

const (
	DirectionTx Direction = iota
	DirectionTxDone
	DirectionRx
)

// String returns string representation of Direction
func (d Direction) String() string {
	switch d {
	case DirectionTx:
		return "TX"
	case DirectionTxDone:
		return "TX-DONE"
	case DirectionRx:
		return "RX"
	default:
		return "UNKNOWN"
	}
}

// Event is one traced frame. Integer keys keep the stream compact.
type Event struct {
	Timestamp   time.Time `cbor:"1,keyasint"`
	RunID       string    `cbor:"2,keyasint"`
	Direction   Direction `cbor:"3,keyasint"`
	Source      uint16    `cbor:"4,keyasint"`
	Destination uint16    `cbor:"5,keyasint"`
	Scheme      uint8     `cbor:"6,keyasint"`
	Status      uint8     `cbor:"7,keyasint,omitempty"`
	Ticks       uint16    `cbor:"8,keyasint,omitempty"`
	Payload     []byte    `cbor:"9,keyasint,omitempty"`
}

// Recorder receives trace events. Implementations must not block.
type Recorder interface {
	Record(ev Event)
}

// NoopRecorder discards all events
type NoopRecorder struct{}

// Record discards the event
func (NoopRecorder) Record(Event) {}

var _ Recorder = NoopRecorder{}
