package link

import "time"

// LinkLayer defines the interface for serial API link operations
type LinkLayer interface {
	// Data transmission, blocks until the frame is acknowledged
	Send(frame *Frame) error

	// Reception handling
	OnReceive(unit Unit)

	// State management
	GetState() LinkState
	IsOnline() bool

	// Configuration
	SetTimeout(duration time.Duration)
	SetRetries(count int)

	// Lifecycle
	Start() error
	Stop() error
}

// WriteFunc writes raw bytes to the physical medium
type WriteFunc func(data []byte) error

// FrameCallback is called for every valid frame received from the radio
type FrameCallback func(frame *Frame)

// StatusCallback is called when link layer state changes
type StatusCallback func(state LinkState, err error)

// LinkLayerConfig contains configuration for link layer
type LinkLayerConfig struct {
	AckTimeout     time.Duration  // Time to wait for ACK after a frame
	MaxRetries     int            // Retransmissions after NAK, CAN or timeout
	RetryDelay     time.Duration  // Pause before a retransmission
	Write          WriteFunc      // Physical writer
	FrameCallback  FrameCallback  // Callback for received frames
	StatusCallback StatusCallback // Callback for status changes
}

// DefaultLinkLayerConfig returns default configuration
func DefaultLinkLayerConfig() LinkLayerConfig {
	return LinkLayerConfig{
		AckTimeout: DefaultAckTimeout,
		MaxRetries: DefaultMaxRetries,
		RetryDelay: 100 * time.Millisecond,
	}
}
