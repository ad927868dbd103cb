package senddata

import (
	"fmt"
	"time"
)

// Config configures the send-data session layer
type Config struct {
	// Queues
	PoolSize int // Sessions per tier, application and low level

	// Sizing
	MaxSingleFrame int // Frames this long or longer need transport service
	MaxPayloadSize int // Largest payload accepted for encapsulation

	// Timing
	Watchdog      time.Duration // Missed radio callback guard
	TickUnit      time.Duration // Unit of the transmit ticks in a status report
	BackoffMargin time.Duration // Added to the transmit time after a get
}

// DefaultConfig returns the standard layer configuration
func DefaultConfig() Config {
	return Config{
		PoolSize:       8,
		MaxSingleFrame: 48,
		MaxPayloadSize: 1280,
		Watchdog:       65 * time.Second,
		TickUnit:       10 * time.Millisecond,
		BackoffMargin:  250 * time.Millisecond,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.PoolSize <= 0 || c.PoolSize > maxPoolSize {
		return fmt.Errorf("pool size %d out of range 1..%d", c.PoolSize, maxPoolSize)
	}
	if c.MaxSingleFrame <= 0 || c.MaxPayloadSize < c.MaxSingleFrame {
		return fmt.Errorf("invalid frame sizes: single %d, payload %d", c.MaxSingleFrame, c.MaxPayloadSize)
	}
	if c.Watchdog <= 0 {
		return fmt.Errorf("watchdog must be positive")
	}
	if c.TickUnit < 0 || c.BackoffMargin < 0 {
		return fmt.Errorf("backoff timing must not be negative")
	}
	return nil
}
