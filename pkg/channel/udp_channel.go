package channel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// maxDatagram bounds one serial API datagram
const maxDatagram = 1024

// UDPChannel exchanges serial API bytes with the bridge in datagrams. A
// client sends to the configured address. A server answers whichever peer
// sent the last datagram, so it cannot write before the bridge spoke first.
type UDPChannel struct {
	conn   *net.UDPConn
	server bool
	cfg    EndpointConfig

	mu   sync.RWMutex
	peer *net.UDPAddr

	notifier stateNotifier
	counters transportCounters
	closed   atomic.Bool
}

// NewUDPChannel binds the local socket. A server binds cfg.Address, a
// client binds an ephemeral port and targets cfg.Address.
func NewUDPChannel(cfg EndpointConfig) (*UDPChannel, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("channel: udp address is required")
	}
	cfg = cfg.withDefaults()

	addr, err := net.ResolveUDPAddr("udp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("channel: udp resolve %s: %w", cfg.Address, err)
	}

	uc := &UDPChannel{server: cfg.Server, cfg: cfg}
	if cfg.Server {
		uc.conn, err = net.ListenUDP("udp", addr)
	} else {
		uc.conn, err = net.ListenUDP("udp", nil)
		uc.peer = addr
	}
	if err != nil {
		return nil, fmt.Errorf("channel: udp bind for %s: %w", cfg.Address, err)
	}
	if !cfg.Server {
		uc.counters.connected()
	}
	return uc, nil
}

// Read returns the next non-empty datagram
func (uc *UDPChannel) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { uc.conn.SetReadDeadline(time.Now()) })
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		uc.conn.SetReadDeadline(time.Now().Add(uc.cfg.ReadTimeout))
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, from, err := uc.conn.ReadFromUDP(buf)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case uc.closed.Load():
			return nil, ErrTransportClose
		case isTimeout(err):
			continue
		default:
			uc.counters.readError()
			return nil, fmt.Errorf("channel: udp read: %w", err)
		}

		uc.notePeer(from)
		if n == 0 {
			continue
		}
		uc.counters.received(n)
		return buf[:n], nil
	}
}

func (uc *UDPChannel) notePeer(from *net.UDPAddr) {
	if !uc.server || from == nil {
		return
	}

	uc.mu.Lock()
	changed := uc.peer == nil || uc.peer.String() != from.String()
	uc.peer = from
	uc.mu.Unlock()

	if changed {
		uc.counters.connected()
		uc.notifier.established()
	}
}

// Write sends data as one datagram to the current peer
func (uc *UDPChannel) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if uc.closed.Load() {
		return ErrTransportClose
	}

	peer := uc.Peer()
	if peer == nil {
		uc.counters.writeError()
		return ErrNotConnected
	}

	uc.conn.SetWriteDeadline(time.Now().Add(uc.cfg.WriteTimeout))
	if _, err := uc.conn.WriteToUDP(data, peer); err != nil {
		uc.counters.writeError()
		return fmt.Errorf("channel: udp write to %s: %w", peer, err)
	}
	uc.counters.sent(len(data))
	return nil
}

// Peer returns the bridge address, or nil while a server has not heard
// from it
func (uc *UDPChannel) Peer() *net.UDPAddr {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.peer
}

// Addr returns the local socket address
func (uc *UDPChannel) Addr() net.Addr {
	return uc.conn.LocalAddr()
}

func (uc *UDPChannel) Close() error {
	if !uc.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := uc.conn.Close()
	uc.counters.disconnected()
	uc.notifier.lost()
	return err
}

func (uc *UDPChannel) Statistics() TransportStats {
	return uc.counters.snapshot()
}

func (uc *UDPChannel) SetConnectionStateListener(l ConnectionStateListener) {
	uc.notifier.set(l)
}
