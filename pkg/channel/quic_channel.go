package channel

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// quicALPN is negotiated by both ends of a serial bridge connection
const quicALPN = "zgw-serial"

// QUICChannel reaches the serial bridge over a single bidirectional QUIC
// stream. The client opens the stream; a server sees it once the client
// has written to it.
type QUICChannel struct {
	*streamChannel
	listener *quic.Listener
}

// NewQUICChannel dials the bridge, or listens for it when cfg.Server is
// set. A nil tlsConf selects a self-signed certificate and skips peer
// verification.
func NewQUICChannel(cfg EndpointConfig, tlsConf *tls.Config) (*QUICChannel, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("channel: quic address is required")
	}
	cfg = cfg.withDefaults()

	if tlsConf == nil {
		var err error
		if tlsConf, err = selfSignedTLS(); err != nil {
			return nil, fmt.Errorf("channel: quic tls: %w", err)
		}
	}
	qconf := &quic.Config{
		KeepAlivePeriod: 10 * time.Second,
		MaxIdleTimeout:  2 * cfg.ReadTimeout,
	}

	if cfg.Server {
		ln, err := quic.ListenAddr(cfg.Address, tlsConf, qconf)
		if err != nil {
			return nil, fmt.Errorf("channel: quic listen on %s: %w", cfg.Address, err)
		}
		return &QUICChannel{
			streamChannel: newStreamChannel(quicAcceptor{ln: ln}, cfg, nil),
			listener:      ln,
		}, nil
	}

	d := quicDialer{address: cfg.Address, tls: tlsConf, conf: qconf}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	conn, err := d.next(ctx)
	if err != nil {
		return nil, err
	}
	return &QUICChannel{streamChannel: newStreamChannel(d, cfg, conn)}, nil
}

// Addr returns the listening address of a server channel
func (qc *QUICChannel) Addr() net.Addr {
	if qc.listener == nil {
		return nil
	}
	return qc.listener.Addr()
}

// quicConn is a stream together with the connection carrying it
type quicConn struct {
	*quic.Stream
	conn *quic.Conn
}

func (c quicConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close ends the connection, and with it the stream
func (c quicConn) Close() error {
	return c.conn.CloseWithError(0, "closed")
}

type quicDialer struct {
	address string
	tls     *tls.Config
	conf    *quic.Config
}

func (d quicDialer) next(ctx context.Context) (streamConn, error) {
	conn, err := quic.DialAddr(ctx, d.address, d.tls, d.conf)
	if err != nil {
		return nil, fmt.Errorf("channel: quic dial %s: %w", d.address, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "no stream")
		return nil, fmt.Errorf("channel: quic open stream to %s: %w", d.address, err)
	}
	return quicConn{Stream: stream, conn: conn}, nil
}

func (d quicDialer) close() error { return nil }

type quicAcceptor struct {
	ln *quic.Listener
}

func (a quicAcceptor) next(ctx context.Context) (streamConn, error) {
	conn, err := a.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		conn.CloseWithError(0, "no stream")
		return nil, err
	}
	return quicConn{Stream: stream, conn: conn}, nil
}

func (a quicAcceptor) close() error { return a.ln.Close() }

func selfSignedTLS() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(now.UnixNano()),
		Subject:      pkix.Name{CommonName: quicALPN},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		NextProtos:   []string{quicALPN},
		// bridges run with self-signed certificates
		InsecureSkipVerify: true,
	}, nil
}
