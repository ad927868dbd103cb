package channel

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
)

// readChunkSize covers the largest serial frame
const readChunkSize = 512

// readChunk reads whatever bytes the stream has ready. Frame boundaries are
// recovered by the link decoder.
func readChunk(r io.Reader) ([]byte, error) {
	buf := make([]byte, readChunkSize)
	n, err := r.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return nil, err
}

// isTimeout reports a read deadline expiry
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// transportCounters are the byte and connection counters shared by the
// physical channels
type transportCounters struct {
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
	writeErrors   atomic.Uint64
	readErrors    atomic.Uint64
	connects      atomic.Uint64
	disconnects   atomic.Uint64
}

func (c *transportCounters) sent(n int) { c.bytesSent.Add(uint64(n)) }
func (c *transportCounters) received(n int) { c.bytesReceived.Add(uint64(n)) }
func (c *transportCounters) writeError() { c.writeErrors.Add(1) }
func (c *transportCounters) readError() { c.readErrors.Add(1) }
func (c *transportCounters) connected() { c.connects.Add(1) }
func (c *transportCounters) disconnected() { c.disconnects.Add(1) }

func (c *transportCounters) snapshot() TransportStats {
	return TransportStats{
		BytesSent:     c.bytesSent.Load(),
		BytesReceived: c.bytesReceived.Load(),
		WriteErrors:   c.writeErrors.Load(),
		ReadErrors:    c.readErrors.Load(),
		Connects:      c.connects.Load(),
		Disconnects:   c.disconnects.Load(),
	}
}

// stateNotifier holds the connection state listener of a physical channel
type stateNotifier struct {
	mu       sync.RWMutex
	listener ConnectionStateListener
}

func (n *stateNotifier) set(l ConnectionStateListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listener = l
}

func (n *stateNotifier) get() ConnectionStateListener {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.listener
}

func (n *stateNotifier) established() {
	if l := n.get(); l != nil {
		l.OnConnectionEstablished()
	}
}

func (n *stateNotifier) lost() {
	if l := n.get(); l != nil {
		l.OnConnectionLost()
	}
}
