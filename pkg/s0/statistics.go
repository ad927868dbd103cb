package s0

import "sync/atomic"

// Statistics tracks S0 transport counters
type Statistics struct {
	numTxStarted        uint64
	numTxCompleted      uint64
	numTxFailed         uint64
	numTxTimeouts       uint64
	numRxDecrypted      uint64
	numRxRejected       uint64
	numAuthFailures     uint64
	numNoncesIssued     uint64
	numDuplicateNonces  uint64
	numNonceRateLimited uint64
	numSessionExhausted uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) txStarted()        { atomic.AddUint64(&s.numTxStarted, 1) }
func (s *Statistics) txCompleted()      { atomic.AddUint64(&s.numTxCompleted, 1) }
func (s *Statistics) txFailed()         { atomic.AddUint64(&s.numTxFailed, 1) }
func (s *Statistics) txTimeout()        { atomic.AddUint64(&s.numTxTimeouts, 1) }
func (s *Statistics) rxDecrypted()      { atomic.AddUint64(&s.numRxDecrypted, 1) }
func (s *Statistics) rxRejected()       { atomic.AddUint64(&s.numRxRejected, 1) }
func (s *Statistics) authFailure()      { atomic.AddUint64(&s.numAuthFailures, 1) }
func (s *Statistics) nonceIssued()      { atomic.AddUint64(&s.numNoncesIssued, 1) }
func (s *Statistics) duplicateNonce()   { atomic.AddUint64(&s.numDuplicateNonces, 1) }
func (s *Statistics) nonceRateLimited() { atomic.AddUint64(&s.numNonceRateLimited, 1) }
func (s *Statistics) sessionExhausted() { atomic.AddUint64(&s.numSessionExhausted, 1) }

// GetTxStarted returns the number of TX sessions started
func (s *Statistics) GetTxStarted() uint64 {
	return atomic.LoadUint64(&s.numTxStarted)
}

// GetTxCompleted returns the number of TX sessions completed
func (s *Statistics) GetTxCompleted() uint64 {
	return atomic.LoadUint64(&s.numTxCompleted)
}

// GetTxFailed returns the number of TX sessions failed
func (s *Statistics) GetTxFailed() uint64 {
	return atomic.LoadUint64(&s.numTxFailed)
}

// GetTxTimeouts returns the number of nonce waits that timed out
func (s *Statistics) GetTxTimeouts() uint64 {
	return atomic.LoadUint64(&s.numTxTimeouts)
}

// GetRxDecrypted returns the number of messages decrypted
func (s *Statistics) GetRxDecrypted() uint64 {
	return atomic.LoadUint64(&s.numRxDecrypted)
}

// GetRxRejected returns the number of frames rejected before or after authentication
func (s *Statistics) GetRxRejected() uint64 {
	return atomic.LoadUint64(&s.numRxRejected)
}

// GetAuthFailures returns the number of MAC mismatches
func (s *Statistics) GetAuthFailures() uint64 {
	return atomic.LoadUint64(&s.numAuthFailures)
}

// GetNoncesIssued returns the number of nonce reports queued
func (s *Statistics) GetNoncesIssued() uint64 {
	return atomic.LoadUint64(&s.numNoncesIssued)
}

// GetDuplicateNonces returns the number of blacklisted nonce reports dropped
func (s *Statistics) GetDuplicateNonces() uint64 {
	return atomic.LoadUint64(&s.numDuplicateNonces)
}

// GetNonceRateLimited returns the number of nonce gets refused
func (s *Statistics) GetNonceRateLimited() uint64 {
	return atomic.LoadUint64(&s.numNonceRateLimited)
}

// GetSessionExhausted returns the number of times a session pool was empty
func (s *Statistics) GetSessionExhausted() uint64 {
	return atomic.LoadUint64(&s.numSessionExhausted)
}
