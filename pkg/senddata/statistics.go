package senddata

import "sync/atomic"

// Statistics tracks send-data layer counters
type Statistics struct {
	// Application level
	numSubmitted uint64
	numCompleted uint64
	numFailed    uint64
	numAborted   uint64
	numQueueFull uint64

	// Low level
	numFramesSent      uint64
	numDiscarded       uint64
	numWatchdogExpired uint64
	numDoubleCallbacks uint64
	lastTransmitTicks  uint64

	numBackoffs uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) submitted()      { atomic.AddUint64(&s.numSubmitted, 1) }
func (s *Statistics) completed()      { atomic.AddUint64(&s.numCompleted, 1) }
func (s *Statistics) failed()         { atomic.AddUint64(&s.numFailed, 1) }
func (s *Statistics) aborted()        { atomic.AddUint64(&s.numAborted, 1) }
func (s *Statistics) queueFull()      { atomic.AddUint64(&s.numQueueFull, 1) }
func (s *Statistics) frameSent()      { atomic.AddUint64(&s.numFramesSent, 1) }
func (s *Statistics) discarded()      { atomic.AddUint64(&s.numDiscarded, 1) }
func (s *Statistics) watchdog()       { atomic.AddUint64(&s.numWatchdogExpired, 1) }
func (s *Statistics) doubleCallback() { atomic.AddUint64(&s.numDoubleCallbacks, 1) }
func (s *Statistics) backoff()        { atomic.AddUint64(&s.numBackoffs, 1) }

func (s *Statistics) transmitTicks(ticks uint16) {
	atomic.StoreUint64(&s.lastTransmitTicks, uint64(ticks))
}

// GetSubmitted returns frames accepted by Submit
func (s *Statistics) GetSubmitted() uint64 {
	return atomic.LoadUint64(&s.numSubmitted)
}

// GetCompleted returns submissions completed with TransmitOK
func (s *Statistics) GetCompleted() uint64 {
	return atomic.LoadUint64(&s.numCompleted)
}

// GetFailed returns submissions completed with any other status
func (s *Statistics) GetFailed() uint64 {
	return atomic.LoadUint64(&s.numFailed)
}

// GetAborted returns abort requests that hit a live submission
func (s *Statistics) GetAborted() uint64 {
	return atomic.LoadUint64(&s.numAborted)
}

// GetQueueFull returns requests refused for lack of a session
func (s *Statistics) GetQueueFull() uint64 {
	return atomic.LoadUint64(&s.numQueueFull)
}

// GetFramesSent returns frames handed to the radio
func (s *Statistics) GetFramesSent() uint64 {
	return atomic.LoadUint64(&s.numFramesSent)
}

// GetDiscarded returns frames dropped past their discard deadline
func (s *Statistics) GetDiscarded() uint64 {
	return atomic.LoadUint64(&s.numDiscarded)
}

// GetWatchdogExpired returns transmissions failed by the watchdog
func (s *Statistics) GetWatchdogExpired() uint64 {
	return atomic.LoadUint64(&s.numWatchdogExpired)
}

// GetDoubleCallbacks returns ignored duplicate completions
func (s *Statistics) GetDoubleCallbacks() uint64 {
	return atomic.LoadUint64(&s.numDoubleCallbacks)
}

// GetBackoffs returns quiet intervals started after a get
func (s *Statistics) GetBackoffs() uint64 {
	return atomic.LoadUint64(&s.numBackoffs)
}

// GetLastTransmitTicks returns the transmit time of the last radio callback
func (s *Statistics) GetLastTransmitTicks() uint16 {
	return uint16(atomic.LoadUint64(&s.lastTransmitTicks))
}
