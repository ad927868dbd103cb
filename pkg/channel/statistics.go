package channel

import "sync/atomic"

// Statistics tracks channel-level statistics
type Statistics struct {
	// Link layer statistics
	numLinkFramesTx  uint64
	numLinkFramesRx  uint64
	numBadLinkFrames uint64
	numChecksumErrs  uint64

	// Routing statistics
	numRouted   uint64
	numUnrouted uint64

	// Session statistics
	numActiveSessions uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

// LinkFrameTx increments transmitted link frames
func (s *Statistics) LinkFrameTx() {
	atomic.AddUint64(&s.numLinkFramesTx, 1)
}

// LinkFrameRx increments received link frames
func (s *Statistics) LinkFrameRx() {
	atomic.AddUint64(&s.numLinkFramesRx, 1)
}

// BadLinkFrame increments bad link frames
func (s *Statistics) BadLinkFrame() {
	atomic.AddUint64(&s.numBadLinkFrames, 1)
}

// ChecksumError increments checksum errors
func (s *Statistics) ChecksumError() {
	atomic.AddUint64(&s.numChecksumErrs, 1)
}

// Routed increments frames delivered to a session
func (s *Statistics) Routed() {
	atomic.AddUint64(&s.numRouted, 1)
}

// Unrouted increments frames no session claimed
func (s *Statistics) Unrouted() {
	atomic.AddUint64(&s.numUnrouted, 1)
}

// SetActiveSessions sets the number of active sessions
func (s *Statistics) SetActiveSessions(count uint64) {
	atomic.StoreUint64(&s.numActiveSessions, count)
}

// GetLinkFramesTx returns transmitted link frames
func (s *Statistics) GetLinkFramesTx() uint64 {
	return atomic.LoadUint64(&s.numLinkFramesTx)
}

// GetLinkFramesRx returns received link frames
func (s *Statistics) GetLinkFramesRx() uint64 {
	return atomic.LoadUint64(&s.numLinkFramesRx)
}

// GetBadLinkFrames returns bad link frames
func (s *Statistics) GetBadLinkFrames() uint64 {
	return atomic.LoadUint64(&s.numBadLinkFrames)
}

// GetChecksumErrors returns checksum errors
func (s *Statistics) GetChecksumErrors() uint64 {
	return atomic.LoadUint64(&s.numChecksumErrs)
}

// GetRouted returns frames delivered to a session
func (s *Statistics) GetRouted() uint64 {
	return atomic.LoadUint64(&s.numRouted)
}

// GetUnrouted returns frames no session claimed
func (s *Statistics) GetUnrouted() uint64 {
	return atomic.LoadUint64(&s.numUnrouted)
}

// GetActiveSessions returns number of active sessions
func (s *Statistics) GetActiveSessions() uint64 {
	return atomic.LoadUint64(&s.numActiveSessions)
}

// Reset resets all statistics
func (s *Statistics) Reset() {
	atomic.StoreUint64(&s.numLinkFramesTx, 0)
	atomic.StoreUint64(&s.numLinkFramesRx, 0)
	atomic.StoreUint64(&s.numBadLinkFrames, 0)
	atomic.StoreUint64(&s.numChecksumErrs, 0)
	atomic.StoreUint64(&s.numRouted, 0)
	atomic.StoreUint64(&s.numUnrouted, 0)
}
