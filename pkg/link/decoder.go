package link

import (
	"errors"
	"time"
)

// Unit is one element of the serial byte stream: a single control byte, a
// complete data frame, or a framed unit that failed validation.
type Unit struct {
	Control byte // ACK, NAK or CAN when Frame and Err are nil
	Frame   *Frame
	Err     error
}

// IsControl returns true for ACK, NAK and CAN units
func (u Unit) IsControl() bool {
	return u.Frame == nil && u.Err == nil
}

// Decoder reassembles serial units from arbitrarily split reads. A frame
// left incomplete for longer than the byte timeout is discarded.
type Decoder struct {
	buf         []byte
	last        time.Time
	byteTimeout time.Duration
	dropped     uint64
}

// NewDecoder creates a decoder. A zero byteTimeout keeps partial frames
// forever.
func NewDecoder(byteTimeout time.Duration) *Decoder {
	return &Decoder{byteTimeout: byteTimeout}
}

// Feed appends data received at now and returns every unit it completes
func (d *Decoder) Feed(now time.Time, data []byte) []Unit {
	if len(d.buf) > 0 && d.byteTimeout > 0 && now.Sub(d.last) > d.byteTimeout {
		d.dropped += uint64(len(d.buf))
		d.buf = d.buf[:0]
	}
	d.last = now
	d.buf = append(d.buf, data...)

	var units []Unit
	for len(d.buf) > 0 {
		switch d.buf[0] {
		case ACK, NAK, CAN:
			units = append(units, Unit{Control: d.buf[0]})
			d.buf = d.buf[1:]
			continue
		case SOF:
		default:
			d.dropped++
			d.buf = d.buf[1:]
			continue
		}

		frame, n, err := Parse(d.buf)
		switch {
		case err == nil:
			units = append(units, Unit{Frame: frame})
			d.buf = d.buf[n:]
		case errors.Is(err, ErrFrameTooShort):
			return units
		case errors.Is(err, ErrInvalidChecksum):
			units = append(units, Unit{Err: err})
			d.buf = d.buf[n:]
		default:
			d.dropped++
			d.buf = d.buf[1:]
		}
	}
	return units
}

// Pending returns the number of buffered bytes of an incomplete frame
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Dropped returns the number of bytes discarded as noise or stale
func (d *Decoder) Dropped() uint64 {
	return d.dropped
}

// Reset discards any partial frame
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}
