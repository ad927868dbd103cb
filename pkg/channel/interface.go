package channel

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotConnected   = errors.New("channel: no connection to the radio bridge")
	ErrTransportClose = errors.New("channel: transport closed")
)

// ConnectionStateListener is told when the link to the serial bridge comes
// and goes
type ConnectionStateListener interface {
	OnConnectionEstablished()
	OnConnectionLost()
}

// PhysicalChannel carries the raw serial API byte stream between the host
// and the radio module. TCP, UDP and QUIC bridges are provided; a local tty
// can be plugged in the same way.
type PhysicalChannel interface {
	// Read blocks until bytes arrive or ctx ends. A read may return part of
	// a frame or several frames; the Channel decoder reassembles them.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a frame or a single ACK/NAK byte. Safe for concurrent use.
	Write(ctx context.Context, data []byte) error

	// Close releases the transport and unblocks Read
	Close() error

	Statistics() TransportStats

	// SetConnectionStateListener installs l. Transports without a notion of
	// connection may ignore it.
	SetConnectionStateListener(l ConnectionStateListener)
}

// EndpointConfig locates the serial bridge and sets the transport timing
type EndpointConfig struct {
	Address        string        // host:port
	Server         bool          // Listen for the bridge instead of dialing it
	ReconnectDelay time.Duration // Pause between dial attempts
	ReadTimeout    time.Duration // Idle period after which a read is retried
	WriteTimeout   time.Duration
}

func (c EndpointConfig) withDefaults() EndpointConfig {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

// TransportStats counts traffic on one physical channel
type TransportStats struct {
	BytesSent     uint64
	BytesReceived uint64
	WriteErrors   uint64
	ReadErrors    uint64
	Connects      uint64 // Connections made, or new peers seen over UDP
	Disconnects   uint64
}

// ChannelState is the open/closed state of a Channel
type ChannelState int

const (
	ChannelStateOpen ChannelState = iota
	ChannelStateClosed
)

func (s ChannelState) String() string {
	if s == ChannelStateOpen {
		return "Open"
	}
	if s == ChannelStateClosed {
		return "Closed"
	}
	return "Unknown"
}
