package link

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// SerialLink implements the host side of the serial API handshake. Every
// data frame must be answered by ACK; NAK, CAN and silence cause a
// retransmission of the same frame.
type SerialLink struct {
	// Configuration
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration

	// State
	state     LinkState
	lastFrame []byte // For retransmission

	// Callbacks
	write          WriteFunc
	frameCallback  FrameCallback
	statusCallback StatusCallback

	// Control bytes from the receive path
	controlChan chan byte

	stats struct {
		framesTx   atomic.Uint64
		framesRx   atomic.Uint64
		retransmit atomic.Uint64
		naksSent   atomic.Uint64
		cans       atomic.Uint64
		ctrlErrors atomic.Uint64
	}

	// Synchronization
	sendMu sync.Mutex // One outstanding frame
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSerialLink creates a new serial link layer
func NewSerialLink(config LinkLayerConfig) *SerialLink {
	ctx, cancel := context.WithCancel(context.Background())

	if config.AckTimeout == 0 {
		config.AckTimeout = DefaultAckTimeout
	}

	return &SerialLink{
		timeout:        config.AckTimeout,
		maxRetries:     config.MaxRetries,
		retryDelay:     config.RetryDelay,
		state:          LinkStateStopped,
		write:          config.Write,
		frameCallback:  config.FrameCallback,
		statusCallback: config.StatusCallback,
		controlChan:    make(chan byte, 1),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start starts the link layer
func (s *SerialLink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != LinkStateStopped || s.ctx.Err() != nil {
		return ErrInvalidState
	}
	s.state = LinkStateIdle
	return nil
}

// Stop stops the link layer and fails any frame waiting for ACK
func (s *SerialLink) Stop() error {
	s.cancel()

	s.mu.Lock()
	s.state = LinkStateStopped
	s.mu.Unlock()
	return nil
}

// GetState returns current link state
func (s *SerialLink) GetState() LinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsOnline returns true if link is operational
func (s *SerialLink) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == LinkStateIdle || s.state == LinkStateWaitACK
}

// SetTimeout sets the ACK timeout
func (s *SerialLink) SetTimeout(duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = duration
}

// SetRetries sets the maximum number of retransmissions
func (s *SerialLink) SetRetries(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxRetries = count
}

// Send transmits a frame and waits for the radio to acknowledge it
func (s *SerialLink) Send(frame *Frame) error {
	data, err := frame.Serialize()
	if err != nil {
		return err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.state == LinkStateStopped {
		s.mu.Unlock()
		return ErrLinkStopped
	}
	s.state = LinkStateWaitACK
	timeout, maxRetries := s.timeout, s.maxRetries
	s.mu.Unlock()

	err = s.sendWithRetry(data, timeout, maxRetries)

	s.mu.Lock()
	if s.state != LinkStateStopped {
		if err == nil {
			s.state = LinkStateIdle
		} else {
			s.state = LinkStateError
			s.notifyStatus(LinkStateError, err)
		}
	}
	s.mu.Unlock()

	return err
}

// sendWithRetry sends a frame with retry logic
func (s *SerialLink) sendWithRetry(data []byte, timeout time.Duration, maxRetries int) error {
	s.lastFrame = data
	s.drainControl()

	for retry := 0; retry <= maxRetries; retry++ {
		if retry > 0 {
			s.stats.retransmit.Add(1)
			if s.retryDelay > 0 {
				select {
				case <-time.After(s.retryDelay):
				case <-s.ctx.Done():
					return ErrLinkStopped
				}
			}
		}

		if err := s.transmit(s.lastFrame); err != nil {
			return err
		}

		select {
		case b := <-s.controlChan:
			switch b {
			case ACK:
				s.stats.framesTx.Add(1)
				return nil
			case CAN:
				s.stats.cans.Add(1)
			}
			// NAK or CAN, retry with the same frame

		case <-time.After(timeout):

		case <-s.ctx.Done():
			return ErrLinkStopped
		}
	}

	return ErrMaxRetriesExceeded
}

// transmit writes bytes to the physical layer
func (s *SerialLink) transmit(data []byte) error {
	if s.write == nil {
		return fmt.Errorf("link: no writer configured")
	}
	return s.write(data)
}

// drainControl discards control bytes that arrived while nothing was waiting
func (s *SerialLink) drainControl() {
	for {
		select {
		case <-s.controlChan:
		default:
			return
		}
	}
}

// OnReceive handles one unit decoded from the byte stream. Valid frames are
// acknowledged before they are passed on; corrupt frames are answered with
// NAK.
func (s *SerialLink) OnReceive(unit Unit) {
	switch {
	case unit.Err != nil:
		s.stats.naksSent.Add(1)
		s.sendControl(NAK)

	case unit.Frame != nil:
		s.stats.framesRx.Add(1)
		s.sendControl(ACK)
		if s.frameCallback != nil {
			s.frameCallback(unit.Frame)
		}

	default:
		select {
		case s.controlChan <- unit.Control:
		default:
			// Nobody waiting, stale byte
		}
	}
}

// sendControl writes a single ACK or NAK. The radio retransmits an
// unanswered frame, so a failed write is only counted.
func (s *SerialLink) sendControl(b byte) {
	if err := s.transmit([]byte{b}); err != nil {
		s.stats.ctrlErrors.Add(1)
	}
}

// notifyStatus calls the status callback if set
func (s *SerialLink) notifyStatus(state LinkState, err error) {
	if s.statusCallback != nil {
		go s.statusCallback(state, err)
	}
}

// LinkStats is a snapshot of link counters
type LinkStats struct {
	FramesTx        uint64
	FramesRx        uint64
	Retransmissions uint64
	NAKsSent        uint64
	CANsReceived    uint64
	ControlErrors   uint64 // ACK or NAK writes that failed
}

// Statistics returns the link counters
func (s *SerialLink) Statistics() LinkStats {
	return LinkStats{
		FramesTx:        s.stats.framesTx.Load(),
		FramesRx:        s.stats.framesRx.Load(),
		Retransmissions: s.stats.retransmit.Load(),
		NAKsSent:        s.stats.naksSent.Load(),
		CANsReceived:    s.stats.cans.Load(),
		ControlErrors:   s.stats.ctrlErrors.Load(),
	}
}
