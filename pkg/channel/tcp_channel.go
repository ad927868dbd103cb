package channel

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChannel reaches the serial bridge over TCP
type TCPChannel struct {
	*streamChannel
	listener net.Listener
}

// NewTCPChannel dials the bridge, or listens for it when cfg.Server is set.
// A client fails when the first dial fails and redials after later drops.
func NewTCPChannel(cfg EndpointConfig) (*TCPChannel, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("channel: tcp address is required")
	}
	cfg = cfg.withDefaults()

	if cfg.Server {
		ln, err := net.Listen("tcp", cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("channel: tcp listen on %s: %w", cfg.Address, err)
		}
		return &TCPChannel{
			streamChannel: newStreamChannel(tcpAcceptor{ln: ln}, cfg, nil),
			listener:      ln,
		}, nil
	}

	d := tcpDialer{address: cfg.Address}
	conn, err := d.next(context.Background())
	if err != nil {
		return nil, err
	}
	return &TCPChannel{streamChannel: newStreamChannel(d, cfg, conn)}, nil
}

// Addr returns the listening address of a server channel
func (tc *TCPChannel) Addr() net.Addr {
	if tc.listener == nil {
		return nil
	}
	return tc.listener.Addr()
}

type tcpDialer struct {
	address string
}

func (d tcpDialer) next(ctx context.Context) (streamConn, error) {
	dialer := net.Dialer{Timeout: dialTimeout, KeepAlive: 15 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", d.address)
	if err != nil {
		return nil, fmt.Errorf("channel: tcp dial %s: %w", d.address, err)
	}
	// serial frames are small and latency bound
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	return conn, nil
}

func (d tcpDialer) close() error { return nil }

type tcpAcceptor struct {
	ln net.Listener
}

func (a tcpAcceptor) next(context.Context) (streamConn, error) {
	conn, err := a.ln.Accept()
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (a tcpAcceptor) close() error { return a.ln.Close() }
