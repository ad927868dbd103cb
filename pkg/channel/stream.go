package channel

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	dialTimeout      = 10 * time.Second
	acceptRetryDelay = 100 * time.Millisecond
)

// streamConn is one established byte stream to the bridge
type streamConn interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
}

// connSource yields connections to the bridge. A client source dials, a
// server source accepts.
type connSource interface {
	next(ctx context.Context) (streamConn, error)
	close() error
}

// streamChannel is the PhysicalChannel of the connection oriented
// transports. A supervisor goroutine keeps a connection in place: a client
// redials once the current connection drops, a server accepts the next
// bridge and replaces the current connection with it.
type streamChannel struct {
	src connSource
	cfg EndpointConfig

	mu      sync.Mutex
	conn    streamConn
	changed chan struct{} // closed whenever conn changes

	notifier stateNotifier
	counters transportCounters

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// newStreamChannel starts supervising src. first, when set, is a connection
// the caller already holds.
func newStreamChannel(src connSource, cfg EndpointConfig, first streamConn) *streamChannel {
	ctx, cancel := context.WithCancel(context.Background())
	s := &streamChannel{
		src:     src,
		cfg:     cfg,
		changed: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	if first != nil {
		s.install(first)
	}

	s.wg.Add(1)
	go s.supervise()
	return s
}

func (s *streamChannel) supervise() {
	defer s.wg.Done()

	delay := s.cfg.ReconnectDelay
	if s.cfg.Server {
		delay = acceptRetryDelay
	}

	for {
		// a client holds one connection at a time
		if !s.cfg.Server && !s.waitDropped() {
			return
		}

		conn, err := s.src.next(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if !s.pause(delay) {
				return
			}
			continue
		}
		s.install(conn)
	}
}

// waitDropped blocks while a connection is in place
func (s *streamChannel) waitDropped() bool {
	for {
		conn, changed := s.current()
		if conn == nil {
			return true
		}
		select {
		case <-changed:
		case <-s.ctx.Done():
			return false
		}
	}
}

func (s *streamChannel) pause(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// current returns the connection and a channel closed when it changes
func (s *streamChannel) current() (streamConn, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn, s.changed
}

func (s *streamChannel) signalLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// install makes conn the current connection, closing the one it replaces
func (s *streamChannel) install(conn streamConn) {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		conn.Close()
		return
	}
	old := s.conn
	s.conn = conn
	s.signalLocked()
	s.mu.Unlock()

	if old != nil {
		old.Close()
		s.counters.disconnected()
		s.notifier.lost()
	}
	s.counters.connected()
	s.notifier.established()
}

// drop discards conn unless it was already replaced
func (s *streamChannel) drop(conn streamConn) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.signalLocked()
	s.mu.Unlock()

	conn.Close()
	s.counters.disconnected()
	s.notifier.lost()
}

// await returns the current connection, waiting for one if needed
func (s *streamChannel) await(ctx context.Context) (streamConn, error) {
	for {
		if s.closed.Load() {
			return nil, ErrTransportClose
		}
		conn, changed := s.current()
		if conn != nil {
			return conn, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.ctx.Done():
			return nil, ErrTransportClose
		}
	}
}

// Read returns the next bytes from the bridge. It waits out reconnects.
func (s *streamChannel) Read(ctx context.Context) ([]byte, error) {
	for {
		conn, err := s.await(ctx)
		if err != nil {
			return nil, err
		}

		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
		chunk, err := readChunk(conn)
		stop()

		switch {
		case err == nil:
			s.counters.received(len(chunk))
			return chunk, nil
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case s.closed.Load():
			return nil, ErrTransportClose
		case isTimeout(err):
			// idle radio
			continue
		}

		s.counters.readError()
		s.drop(conn)
	}
}

// Write sends data on the current connection
func (s *streamChannel) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrTransportClose
	}

	conn, _ := s.current()
	if conn == nil {
		s.counters.writeError()
		return ErrNotConnected
	}

	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if _, err := conn.Write(data); err != nil {
		s.counters.writeError()
		s.drop(conn)
		return fmt.Errorf("channel: write to %s: %w", conn.RemoteAddr(), err)
	}
	s.counters.sent(len(data))
	return nil
}

// Connected reports whether a bridge connection is in place
func (s *streamChannel) Connected() bool {
	conn, _ := s.current()
	return conn != nil
}

// RemoteAddr returns the address of the connected bridge, or nil
func (s *streamChannel) RemoteAddr() net.Addr {
	if conn, _ := s.current(); conn != nil {
		return conn.RemoteAddr()
	}
	return nil
}

// Close stops reconnecting and closes the connection
func (s *streamChannel) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	err := s.src.close()
	if conn, _ := s.current(); conn != nil {
		s.drop(conn)
	}
	s.wg.Wait()
	return err
}

func (s *streamChannel) Statistics() TransportStats {
	return s.counters.snapshot()
}

func (s *streamChannel) SetConnectionStateListener(l ConnectionStateListener) {
	s.notifier.set(l)
}
