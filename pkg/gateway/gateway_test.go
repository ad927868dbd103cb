package gateway

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/zgw-go/pkg/channel"
	"avaneesh/zgw-go/pkg/cmdclass"
	"avaneesh/zgw-go/pkg/encap"
	"avaneesh/zgw-go/pkg/link"
	"avaneesh/zgw-go/pkg/trace"
	"avaneesh/zgw-go/pkg/types"
)

// radioModule plays the radio at the serial byte level. It acknowledges
// every frame the gateway writes and completes send requests with status.
type radioModule struct {
	rx     chan []byte
	mu     sync.Mutex
	status types.TransmitStatus
	frames []*link.Frame
}

func newRadioModule() *radioModule {
	return &radioModule{rx: make(chan []byte, 64)}
}

func (m *radioModule) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-m.rx:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *radioModule) Write(ctx context.Context, data []byte) error {
	if len(data) == 1 {
		return nil // Our frames being acknowledged
	}
	frame, _, err := link.Parse(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.frames = append(m.frames, frame)
	status := m.status
	m.mu.Unlock()

	m.rx <- []byte{link.ACK}
	if frame.Command != link.CmdSendData && frame.Command != link.CmdSendDataBridge {
		return nil
	}

	var funcID uint8
	if frame.Command == link.CmdSendData {
		req, err := link.ParseSendDataRequest(frame)
		if err != nil {
			return err
		}
		funcID = req.FuncID
	} else {
		req, err := link.ParseSendDataBridgeRequest(frame)
		if err != nil {
			return err
		}
		funcID = req.FuncID
	}

	m.push(link.NewResponse(frame.Command, []byte{0x01}))
	cb := &link.SendDataCallback{FuncID: funcID, Status: status}
	m.push(cb.Frame(frame.Command))
	return nil
}

func (m *radioModule) Close() error { return nil }
func (m *radioModule) Statistics() channel.TransportStats { return channel.TransportStats{} }
func (m *radioModule) SetConnectionStateListener(channel.ConnectionStateListener) {}

func (m *radioModule) push(f *link.Frame) {
	data, err := f.Serialize()
	if err != nil {
		panic(err)
	}
	m.rx <- data
}

// sent returns the SendData requests written by the gateway
func (m *radioModule) sent() []*link.SendDataRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*link.SendDataRequest
	for _, f := range m.frames {
		if f.Command != link.CmdSendData {
			continue
		}
		if req, err := link.ParseSendDataRequest(f); err == nil {
			out = append(out, req)
		}
	}
	return out
}

type received struct {
	rx      types.Params
	payload []byte
}

func startGateway(t *testing.T, cfg Config) (*Gateway, *radioModule, chan received) {
	t.Helper()
	m := newRadioModule()
	g, err := NewWithPhysical(cfg, m, nil)
	require.NoError(t, err)

	got := make(chan received, 8)
	g.OnReceive(func(rx types.Params, payload []byte) {
		got <- received{rx, payload}
	})
	require.NoError(t, g.Start())
	t.Cleanup(g.Shutdown)
	return g, m, got
}

func waitReceived(t *testing.T, ch chan received) received {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
		return received{}
	}
}

func TestGatewaySubmitPlain(t *testing.T) {
	g, m, _ := startGateway(t, DefaultConfig())

	done := make(chan types.TransmitStatus, 1)
	_, err := g.SendTo(5, []byte{0x20, 0x01, 0xFF}, func(status types.TransmitStatus, _ *types.TxStatusReport) {
		done <- status
	})
	require.NoError(t, err)

	select {
	case status := <-done:
		assert.Equal(t, types.TransmitOK, status)
	case <-time.After(2 * time.Second):
		t.Fatal("no send callback")
	}

	sent := m.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, types.NodeID(5), sent[0].Destination)
	assert.Equal(t, []byte{0x20, 0x01, 0xFF}, sent[0].Data)

	require.Eventually(t, g.IsIdle, time.Second, 5*time.Millisecond)
	stats := g.Statistics()
	assert.Equal(t, uint64(1), stats.SendData.GetCompleted())
	assert.Equal(t, uint64(1), stats.Radio.Completions)
}

func TestGatewayCallbackMayReenter(t *testing.T) {
	g, _, _ := startGateway(t, DefaultConfig())

	idle := make(chan bool, 1)
	_, err := g.SendTo(5, []byte{0x20, 0x01, 0x00}, func(types.TransmitStatus, *types.TxStatusReport) {
		_, err := g.MakeReplyParams(types.Params{Source: 5, Destination: 1})
		idle <- err == nil
	})
	require.NoError(t, err)

	select {
	case ok := <-idle:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("callback blocked")
	}
}

func TestGatewayReceivePlain(t *testing.T) {
	_, m, got := startGateway(t, DefaultConfig())

	cmd := &link.ApplicationCommand{Source: 7, RxStatus: types.RxStatusLowPower, Payload: []byte{0x20, 0x03, 0xFF}}
	m.push(cmd.Frame(false))

	r := waitReceived(t, got)
	assert.Equal(t, types.NodeID(7), r.rx.Source)
	assert.Equal(t, types.NodeID(1), r.rx.Destination)
	assert.Equal(t, types.SchemeNone, r.rx.Scheme)
	assert.Equal(t, types.RxStatusLowPower, r.rx.RxStatus)
	assert.Equal(t, []byte{0x20, 0x03, 0xFF}, r.payload)
}

func TestGatewayReceiveBridged(t *testing.T) {
	_, m, got := startGateway(t, DefaultConfig())

	cmd := &link.ApplicationCommand{Source: 7, Destination: 40, Payload: []byte{0x25, 0x02}}
	m.push(cmd.Frame(true))

	r := waitReceived(t, got)
	assert.Equal(t, types.NodeID(40), r.rx.Destination)
}

func TestGatewayUnwrapsEncapsulation(t *testing.T) {
	_, m, got := startGateway(t, DefaultConfig())

	inner := []byte{0x25, 0x03, 0x00}
	payload := encap.WrapCRC16(encap.WrapMultiChannel(2, 0, inner))
	m.push((&link.ApplicationCommand{Source: 9, Payload: payload}).Frame(false))

	r := waitReceived(t, got)
	assert.Equal(t, types.SchemeCRC16, r.rx.Scheme)
	assert.Equal(t, uint8(2), r.rx.SrcEndpoint)
	assert.Equal(t, uint8(0), r.rx.DstEndpoint)
	assert.Equal(t, inner, r.payload)

	// A corrupted CRC is dropped
	payload[len(payload)-1] ^= 0xFF
	m.push((&link.ApplicationCommand{Source: 9, Payload: payload}).Frame(false))
	select {
	case <-got:
		t.Fatal("corrupt frame delivered")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGatewayAnswersNonceGet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NetworkKey = "000102030405060708090a0b0c0d0e0f"
	g, m, got := startGateway(t, cfg)

	m.push((&link.ApplicationCommand{Source: 7, Payload: []byte{cmdclass.Security, cmdclass.SecurityNonceGet}}).Frame(false))

	require.Eventually(t, func() bool { return len(m.sent()) == 1 }, 2*time.Second, 5*time.Millisecond)
	report := m.sent()[0]
	assert.Equal(t, types.NodeID(7), report.Destination)
	require.Len(t, report.Data, 10)
	assert.Equal(t, cmdclass.Security, report.Data[0])
	assert.Equal(t, cmdclass.SecurityNonceReport, report.Data[1])

	require.Eventually(t, func() bool { return g.Statistics().S0.GetNoncesIssued() == 1 }, time.Second, 5*time.Millisecond)
	select {
	case <-got:
		t.Fatal("nonce get reached the application")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestGatewayIgnoresSecurityWithoutKey(t *testing.T) {
	g, m, got := startGateway(t, DefaultConfig())

	m.push((&link.ApplicationCommand{Source: 7, Payload: []byte{cmdclass.Security, cmdclass.SecurityNonceGet}}).Frame(false))
	require.Eventually(t, func() bool { return g.Statistics().Radio.Received == 1 }, time.Second, 5*time.Millisecond)

	select {
	case <-got:
		t.Fatal("security frame delivered without a key")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Empty(t, m.sent())
}

func TestGatewaySetNetworkKeyEnablesNonces(t *testing.T) {
	g, m, _ := startGateway(t, DefaultConfig())

	require.NoError(t, g.SetNetworkKey([16]byte{1, 2, 3}))
	m.push((&link.ApplicationCommand{Source: 7, Payload: []byte{cmdclass.Security, cmdclass.SecurityNonceGet}}).Frame(false))
	require.Eventually(t, func() bool { return len(m.sent()) == 1 }, 2*time.Second, 5*time.Millisecond)

	key, err := g.ResetNetworkKey()
	require.NoError(t, err)
	assert.NotEqual(t, [16]byte{}, key)
}

func TestGatewayMakeReplyParams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NetworkKey = "000102030405060708090a0b0c0d0e0f"
	cfg.Nodes = []NodeConfig{{ID: 7, Schemes: []string{"s0"}}}
	g, _, _ := startGateway(t, cfg)

	reply, err := g.MakeReplyParams(types.Params{Source: 7, Destination: 1, SrcEndpoint: 1, Scheme: types.SchemeS0})
	require.NoError(t, err)
	assert.Equal(t, types.NodeID(1), reply.Source)
	assert.Equal(t, types.NodeID(7), reply.Destination)
	assert.Equal(t, uint8(1), reply.DstEndpoint)
	assert.Equal(t, types.SchemeS0, reply.Scheme)
}

func TestGatewayLifecycle(t *testing.T) {
	g, err := NewWithPhysical(DefaultConfig(), newRadioModule(), nil)
	require.NoError(t, err)

	_, err = g.SendTo(5, []byte{0x20, 0x01, 0x00}, nil)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.False(t, g.IsIdle())

	require.NoError(t, g.Start())
	assert.Error(t, g.Start())
	assert.True(t, g.IsIdle())

	_, err = g.SendTo(5, nil, nil)
	assert.ErrorIs(t, err, ErrNotQueued)

	g.Shutdown()
	g.Shutdown()
	assert.ErrorIs(t, g.Abort(1), ErrNotRunning)
	assert.Error(t, g.Start())
}

func TestGatewayTrace(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceFile = filepath.Join(t.TempDir(), "frames.cbor")
	g, m, got := startGateway(t, cfg)

	done := make(chan struct{})
	_, err := g.SendTo(5, []byte{0x20, 0x01, 0xFF}, func(types.TransmitStatus, *types.TxStatusReport) { close(done) })
	require.NoError(t, err)
	<-done

	m.push((&link.ApplicationCommand{Source: 7, Payload: []byte{0x20, 0x03, 0x00}}).Frame(false))
	waitReceived(t, got)
	g.Shutdown()

	f, err := os.Open(cfg.TraceFile)
	require.NoError(t, err)
	defer f.Close()

	dec := trace.NewDecoder(f)
	seen := make(map[trace.Direction]int)
	var runID string
	for {
		ev, err := dec.Next()
		if err != nil {
			break
		}
		seen[ev.Direction]++
		if runID == "" {
			runID = ev.RunID
		}
		assert.Equal(t, runID, ev.RunID)
	}
	assert.Equal(t, 1, seen[trace.DirectionTx])
	assert.Equal(t, 1, seen[trace.DirectionTxDone])
	assert.Equal(t, 1, seen[trace.DirectionRx])
	assert.NotEmpty(t, runID)
}
