package link

import (
	"errors"
	"fmt"
	"time"
)

// Serial API Link Constants

// Framing bytes
const (
	SOF byte = 0x01 // Start of data frame
	ACK byte = 0x06 // Frame accepted
	NAK byte = 0x15 // Frame rejected (checksum)
	CAN byte = 0x18 // Frame dropped (collision)
)

// Frame sizes
const (
	MinFrameSize = 5   // SOF + LEN + TYPE + CMD + checksum
	MaxFrameSize = 257 // SOF + LEN(0xFF) + 255
	HeaderSize   = 4   // SOF + LEN + TYPE + CMD
	MaxDataSize  = 252 // LEN counts TYPE, CMD and checksum
	minLength    = 3
)

// Timing defaults
const (
	DefaultAckTimeout  = 1500 * time.Millisecond
	DefaultByteTimeout = 1500 * time.Millisecond
	DefaultResTimeout  = 1600 * time.Millisecond
	DefaultMaxRetries  = 3
)

// FrameType distinguishes requests from responses
type FrameType uint8

const (
	TypeRequest  FrameType = 0x00
	TypeResponse FrameType = 0x01
)

// String returns string representation of FrameType
func (t FrameType) String() string {
	switch t {
	case TypeRequest:
		return "REQ"
	case TypeResponse:
		return "RES"
	default:
		return fmt.Sprintf("Type(0x%02X)", uint8(t))
	}
}

// Command is the serial API function id
type Command uint8

const (
	CmdApplicationCommandHandler       Command = 0x04
	CmdSendData                        Command = 0x13
	CmdSendDataAbort                   Command = 0x16
	CmdApplicationCommandHandlerBridge Command = 0xA8
	CmdSendDataBridge                  Command = 0xA9
)

// String returns string representation of Command
func (c Command) String() string {
	switch c {
	case CmdApplicationCommandHandler:
		return "ApplicationCommandHandler"
	case CmdSendData:
		return "SendData"
	case CmdSendDataAbort:
		return "SendDataAbort"
	case CmdApplicationCommandHandlerBridge:
		return "ApplicationCommandHandlerBridge"
	case CmdSendDataBridge:
		return "SendDataBridge"
	default:
		return fmt.Sprintf("Command(0x%02X)", uint8(c))
	}
}

// Link layer states
type LinkState int

const (
	LinkStateIdle    LinkState = iota // Idle, ready to send
	LinkStateWaitACK                  // Waiting for ACK
	LinkStateError                    // Last frame was never acknowledged
	LinkStateStopped                  // Link stopped
)

// String returns string representation of LinkState
func (s LinkState) String() string {
	switch s {
	case LinkStateIdle:
		return "Idle"
	case LinkStateWaitACK:
		return "WaitACK"
	case LinkStateError:
		return "Error"
	case LinkStateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Errors
var (
	ErrInvalidSOF         = errors.New("link: invalid start of frame")
	ErrInvalidLength      = errors.New("link: invalid frame length")
	ErrInvalidChecksum    = errors.New("link: invalid checksum")
	ErrFrameTooShort      = errors.New("link: frame too short")
	ErrFrameTooLong       = errors.New("link: frame too long")
	ErrTimeout            = errors.New("link: ack timeout")
	ErrMaxRetriesExceeded = errors.New("link: max retries exceeded")
	ErrInvalidState       = errors.New("link: invalid link state")
	ErrLinkStopped        = errors.New("link: stopped")
	ErrMalformed          = errors.New("link: malformed command payload")
)
