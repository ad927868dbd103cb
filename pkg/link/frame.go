package link

import (
	"bytes"
	"fmt"
)

// Frame represents a serial API data frame
type Frame struct {
	Type    FrameType // Request or response
	Command Command   // Function id
	Data    []byte    // Payload (without header and checksum)
}

// NewRequest creates a new request frame
func NewRequest(cmd Command, data []byte) *Frame {
	return &Frame{Type: TypeRequest, Command: cmd, Data: data}
}

// NewResponse creates a new response frame
func NewResponse(cmd Command, data []byte) *Frame {
	return &Frame{Type: TypeResponse, Command: cmd, Data: data}
}

// Serialize converts frame to wire format with checksum
func (f *Frame) Serialize() ([]byte, error) {
	dataLen := len(f.Data)
	if dataLen > MaxDataSize {
		return nil, ErrFrameTooLong
	}

	out := make([]byte, HeaderSize+dataLen+1)
	out[0] = SOF
	out[1] = byte(dataLen + minLength)
	out[2] = byte(f.Type)
	out[3] = byte(f.Command)
	copy(out[HeaderSize:], f.Data)
	out[len(out)-1] = Checksum(out[1 : len(out)-1])

	return out, nil
}

// Parse parses wire format data into a Frame. The second return value is
// the number of bytes the frame occupies in data.
func Parse(data []byte) (*Frame, int, error) {
	if len(data) < MinFrameSize {
		return nil, len(data), ErrFrameTooShort
	}

	if data[0] != SOF {
		return nil, 0, ErrInvalidSOF
	}

	length := int(data[1])
	if length < minLength {
		return nil, 0, ErrInvalidLength
	}

	expectedSize := length + 2
	if len(data) < expectedSize {
		return nil, 0, ErrFrameTooShort
	}

	if !VerifyChecksum(data[1:expectedSize]) {
		return nil, expectedSize, ErrInvalidChecksum
	}

	frame := &Frame{
		Type:    FrameType(data[2]),
		Command: Command(data[3]),
	}
	if dataLen := length - minLength; dataLen > 0 {
		frame.Data = make([]byte, dataLen)
		copy(frame.Data, data[HeaderSize:HeaderSize+dataLen])
	}

	return frame, expectedSize, nil
}

// String returns a string representation of the frame
func (f *Frame) String() string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("Frame{%s %s, ", f.Type, f.Command))
	buf.WriteString(fmt.Sprintf("DataLen=%d}", len(f.Data)))
	return buf.String()
}

// Clone creates a deep copy of the frame
func (f *Frame) Clone() *Frame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)

	return &Frame{
		Type:    f.Type,
		Command: f.Command,
		Data:    data,
	}
}
