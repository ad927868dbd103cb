package s0

import (
	"fmt"
	"time"
)

// Config configures the S0 transport
type Config struct {
	// Frame sizing
	MaxFrameSize   int // Largest encapsulated frame sent to a node
	MaxMessageSize int // Largest decrypted message accepted

	// Nonce handling
	NonceTableSize      int
	NonceTimeoutTicks   uint8
	NonceTick           time.Duration
	BlacklistSize       int
	MaxNoncesPerPeer    int
	NonceRequestTimeout time.Duration // Wait for a nonce report after nonce get
	SecureLearnTimeout  time.Duration // Same wait while secure learn is active

	// Sessions
	TxSessions int
	RxSessions int
	RxLifetime time.Duration
}

// DefaultConfig returns the standard S0 timings and table sizes
func DefaultConfig() Config {
	return Config{
		MaxFrameSize:        46,
		MaxMessageSize:      128,
		NonceTableSize:      15,
		NonceTimeoutTicks:   10,
		NonceTick:           time.Second,
		BlacklistSize:       10,
		MaxNoncesPerPeer:    3,
		NonceRequestTimeout: 500 * time.Millisecond,
		SecureLearnTimeout:  10 * time.Second,
		TxSessions:          2,
		RxSessions:          2,
		RxLifetime:          10 * time.Second,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.MaxFrameSize <= FrameOverhead {
		return fmt.Errorf("max frame size %d leaves no room for payload", c.MaxFrameSize)
	}
	if c.MaxMessageSize <= 0 || c.MaxMessageSize > 255 {
		return fmt.Errorf("max message size %d out of range", c.MaxMessageSize)
	}
	if c.NonceTableSize <= 0 || c.BlacklistSize <= 0 {
		return fmt.Errorf("nonce table and blacklist must not be empty")
	}
	if c.NonceTimeoutTicks == 0 || c.NonceTick <= 0 {
		return fmt.Errorf("nonce lifetime must be positive")
	}
	if c.TxSessions <= 0 || c.RxSessions <= 0 {
		return fmt.Errorf("session pools must not be empty")
	}
	if c.NonceRequestTimeout <= 0 || c.RxLifetime <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// fragmentPayload is the largest plaintext carried by one encapsulated frame
func (c Config) fragmentPayload() int {
	return c.MaxFrameSize - FrameOverhead
}
