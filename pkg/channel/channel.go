package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"avaneesh/zgw-go/pkg/internal/logger"
	"avaneesh/zgw-go/pkg/link"
)

var (
	ErrChannelClosed = errors.New("channel is closed")
	ErrChannelOpen   = errors.New("channel is already open")
)

// Channel runs the serial API link over a physical transport and routes
// received frames to sessions by command
type Channel struct {
	id              string
	physicalChannel PhysicalChannel
	link            *link.SerialLink
	decoder         *link.Decoder
	router          *Router
	stats           *Statistics
	logger          logger.Logger

	// State
	state   ChannelState
	stateMu sync.RWMutex

	// Concurrency
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Write queue for serializing writes
	writeQueue chan *writeRequest
}

// writeRequest represents a write request
type writeRequest struct {
	data []byte
	resp chan error
}

// New creates a new channel with the default link timing
func New(id string, physical PhysicalChannel, log logger.Logger) *Channel {
	return NewWithLinkConfig(id, physical, link.DefaultLinkLayerConfig(), log)
}

// NewWithLinkConfig creates a new channel. The writer and frame callback of
// config are replaced by the channel's own.
func NewWithLinkConfig(id string, physical PhysicalChannel, config link.LinkLayerConfig, log logger.Logger) *Channel {
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Channel{
		id:              id,
		physicalChannel: physical,
		decoder:         link.NewDecoder(link.DefaultByteTimeout),
		router:          NewRouter(),
		stats:           NewStatistics(),
		logger:          log,
		state:           ChannelStateClosed,
		ctx:             ctx,
		cancel:          cancel,
		writeQueue:      make(chan *writeRequest, 100),
	}

	config.Write = c.Write
	config.FrameCallback = c.onFrame
	if config.StatusCallback == nil {
		config.StatusCallback = func(state link.LinkState, err error) {
			log.Warn("Channel %s link %s: %v", id, state, err)
		}
	}
	c.link = link.NewSerialLink(config)
	return c
}

// ID returns the channel ID
func (c *Channel) ID() string {
	return c.id
}

// Open opens the channel and starts processing
func (c *Channel) Open() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.state == ChannelStateOpen {
		return ErrChannelOpen
	}

	if err := c.link.Start(); err != nil {
		return err
	}

	c.state = ChannelStateOpen
	c.logger.Info("Channel %s opening", c.id)

	// Start read loop
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.readLoop()
	}()

	// Start write loop
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.writeLoop()
	}()

	c.logger.Info("Channel %s opened", c.id)
	return nil
}

// Close closes the channel
func (c *Channel) Close() error {
	c.stateMu.Lock()
	if c.state == ChannelStateClosed {
		c.stateMu.Unlock()
		return nil
	}
	c.state = ChannelStateClosed
	c.stateMu.Unlock()

	c.logger.Info("Channel %s closing", c.id)

	// Fail any frame waiting for ACK, then stop goroutines
	c.link.Stop()
	c.cancel()

	// Close physical channel
	if err := c.physicalChannel.Close(); err != nil {
		c.logger.Error("Error closing physical channel: %v", err)
	}

	// Wait for goroutines to finish
	c.wg.Wait()

	c.logger.Info("Channel %s closed", c.id)
	return nil
}

// readLoop continuously reads from physical channel
func (c *Channel) readLoop() {
	c.logger.Debug("Channel %s read loop started", c.id)
	defer c.logger.Debug("Channel %s read loop stopped", c.id)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		// Read from physical channel
		data, err := c.physicalChannel.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				// Context cancelled, normal shutdown
				return
			}
			c.logger.Error("Channel %s read error: %v", c.id, err)
			c.stats.BadLinkFrame()
			continue
		}

		// Reassemble serial units, the link answers frames with ACK or NAK
		for _, unit := range c.decoder.Feed(time.Now(), data) {
			if unit.Err != nil {
				c.logger.Warn("Channel %s frame error: %v", c.id, unit.Err)
				c.stats.ChecksumError()
			}
			c.link.OnReceive(unit)
		}
	}
}

// onFrame routes a frame the link accepted
func (c *Channel) onFrame(frame *link.Frame) {
	c.stats.LinkFrameRx()
	c.logger.Debug("Channel %s received frame: %s", c.id, frame)

	// Route to appropriate session
	if err := c.router.Route(frame); err != nil {
		c.stats.Unrouted()
		c.logger.Warn("Channel %s routing error: %v", c.id, err)
		return
	}
	c.stats.Routed()
}

// writeLoop processes write requests
func (c *Channel) writeLoop() {
	c.logger.Debug("Channel %s write loop started", c.id)
	defer c.logger.Debug("Channel %s write loop stopped", c.id)

	for {
		select {
		case <-c.ctx.Done():
			// Drain remaining requests with error
			for {
				select {
				case req := <-c.writeQueue:
					req.resp <- ErrChannelClosed
				default:
					return
				}
			}

		case req := <-c.writeQueue:
			// Write to physical channel
			err := c.physicalChannel.Write(c.ctx, req.data)
			if err != nil {
				c.logger.Error("Channel %s write error: %v", c.id, err)
			}
			req.resp <- err
		}
	}
}

// Send transmits a frame and waits for the radio to acknowledge it
func (c *Channel) Send(frame *link.Frame) error {
	if c.State() != ChannelStateOpen {
		return ErrChannelClosed
	}

	if err := c.link.Send(frame); err != nil {
		c.stats.BadLinkFrame()
		return fmt.Errorf("channel %s: send %s: %w", c.id, frame.Command, err)
	}
	c.stats.LinkFrameTx()
	return nil
}

// Write writes raw bytes to the physical channel (used by the link)
func (c *Channel) Write(data []byte) error {
	c.stateMu.RLock()
	if c.state != ChannelStateOpen {
		c.stateMu.RUnlock()
		return ErrChannelClosed
	}
	c.stateMu.RUnlock()

	req := &writeRequest{
		data: data,
		resp: make(chan error, 1),
	}

	select {
	case c.writeQueue <- req:
		return <-req.resp
	case <-c.ctx.Done():
		return ErrChannelClosed
	}
}

// AddSession adds a session to the channel
func (c *Channel) AddSession(session Session) error {
	if err := c.router.AddSession(session); err != nil {
		return err
	}

	c.stats.SetActiveSessions(uint64(c.router.GetSessionCount()))
	c.logger.Info("Channel %s: Added session %s for %v", c.id, session.Name(), session.Commands())
	return nil
}

// RemoveSession removes a session from the channel
func (c *Channel) RemoveSession(session Session) {
	c.router.RemoveSession(session)
	c.stats.SetActiveSessions(uint64(c.router.GetSessionCount()))
	c.logger.Info("Channel %s: Removed session %s", c.id, session.Name())
}

// SetConnectionStateListener forwards connection events of the physical channel
func (c *Channel) SetConnectionStateListener(listener ConnectionStateListener) {
	c.physicalChannel.SetConnectionStateListener(listener)
}

// GetStatistics returns channel statistics
func (c *Channel) GetStatistics() *Statistics {
	return c.stats
}

// GetLinkStatistics returns serial link statistics
func (c *Channel) GetLinkStatistics() link.LinkStats {
	return c.link.Statistics()
}

// GetPhysicalStatistics returns physical channel statistics
func (c *Channel) GetPhysicalStatistics() TransportStats {
	return c.physicalChannel.Statistics()
}

// State returns the current channel state
func (c *Channel) State() ChannelState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// String returns string representation of channel
func (c *Channel) String() string {
	return fmt.Sprintf("Channel{ID=%s, State=%s, Sessions=%d}",
		c.id, c.State(), c.router.GetSessionCount())
}
