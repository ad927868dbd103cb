// Package gateway assembles the S0 frame delivery stack of a mesh IP
// gateway: the radio serial link, the send-data session layer and the S0
// transport, all driven by one event loop.
//
// Every exported method is safe for concurrent use. Send callbacks and the
// receive handler run on a dispatch goroutine of their own, so they may
// call back into the Gateway.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"avaneesh/zgw-go/pkg/channel"
	"avaneesh/zgw-go/pkg/cmdclass"
	"avaneesh/zgw-go/pkg/encap"
	"avaneesh/zgw-go/pkg/internal/logger"
	"avaneesh/zgw-go/pkg/internal/loop"
	"avaneesh/zgw-go/pkg/link"
	"avaneesh/zgw-go/pkg/radio"
	"avaneesh/zgw-go/pkg/s0"
	"avaneesh/zgw-go/pkg/senddata"
	"avaneesh/zgw-go/pkg/trace"
	"avaneesh/zgw-go/pkg/types"
)

var (
	ErrNotRunning = errors.New("gateway: not running")
	ErrNotQueued  = errors.New("gateway: frame not queued")
)

// callTimeout bounds the wait for the event loop
const callTimeout = 5 * time.Second

const (
	stateNew int32 = iota
	stateRunning
	stateStopped
)

// Handler receives application frames addressed to the gateway. rx carries
// the addressing and the scheme the frame arrived with.
type Handler func(rx types.Params, payload []byte)

// Gateway is the root object of the frame delivery stack
type Gateway struct {
	config Config
	logger logger.Logger
	nodes  *NodeTable

	loop     *loop.EventLoop
	dispatch *loop.EventLoop
	channel  *channel.Channel
	radio    *radio.Controller
	s0       *s0.Transport
	layer    *senddata.Layer

	recorder    trace.Recorder
	traceCloser io.Closer

	mu      sync.RWMutex
	handler Handler
	state   atomic.Int32
}

// New creates a gateway reaching the radio as described by cfg.Radio. The
// global log level and frame debugging are set from cfg.
func New(cfg Config) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	applyLogConfig(cfg)

	physical, err := cfg.Radio.Dial()
	if err != nil {
		return nil, err
	}
	g, err := NewWithPhysical(cfg, physical, logger.Component("gateway"))
	if err != nil {
		physical.Close()
		return nil, err
	}
	return g, nil
}

// NewWithPhysical creates a gateway on an existing physical channel
func NewWithPhysical(cfg Config, physical channel.PhysicalChannel, log logger.Logger) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	g := &Gateway{
		config:   cfg,
		logger:   log,
		nodes:    newNodeTableFromConfig(cfg),
		loop:     loop.NewEventLoop(cfg.EventQueue, log),
		dispatch: loop.NewEventLoop(cfg.EventQueue, log),
		recorder: trace.NoopRecorder{},
	}

	g.channel = channel.NewWithLinkConfig("radio", physical, cfg.linkConfig(), log)
	g.channel.SetConnectionStateListener(&connectionLogger{log: log})

	g.radio = radio.NewController(cfg.radioConfig(), g.channel, g.loop, log)
	g.radio.SetReceiveHandler(g.onApplicationCommand)
	if err := g.channel.AddSession(g.radio); err != nil {
		return nil, err
	}

	layer, err := senddata.NewLayer(cfg.sendDataConfig(), g.loop, g.radio, g.nodes, log)
	if err != nil {
		return nil, err
	}
	g.layer = layer

	transport, err := s0.NewTransport(cfg.s0Config(), g.loop, nil, layer, log)
	if err != nil {
		return nil, err
	}
	transport.SetNodeFilter(g.nodes)
	if key, ok, _ := cfg.Key(); ok {
		transport.SetNetworkKey(key)
	}
	g.s0 = transport
	layer.SetS0(transport)

	if cfg.TraceFile != "" {
		rec, err := trace.NewFileRecorder(cfg.TraceFile)
		if err != nil {
			return nil, err
		}
		g.recorder = rec
		g.traceCloser = rec
		layer.SetRecorder(rec)
		log.Info("Gateway: tracing frames to %s (run %s)", cfg.TraceFile, rec.RunID())
	}

	return g, nil
}

// Start opens the radio channel and starts processing
func (g *Gateway) Start() error {
	if !g.state.CompareAndSwap(stateNew, stateRunning) {
		return fmt.Errorf("gateway: already started")
	}

	g.loop.Start()
	g.dispatch.Start()

	if err := g.channel.Open(); err != nil {
		g.state.Store(stateStopped)
		g.loop.Stop()
		g.dispatch.Stop()
		g.closeTrace()
		return fmt.Errorf("failed to open radio channel: %w", err)
	}
	g.radio.Start()

	if err := g.call(g.s0.Init); err != nil {
		g.Shutdown()
		return err
	}

	g.logger.Info("Gateway: node %d started on %s %s", g.config.NodeID, g.config.Radio.Transport, g.config.Radio.Address)
	return nil
}

// Shutdown stops processing and closes the radio channel. Transmissions
// in flight are dropped without a callback.
func (g *Gateway) Shutdown() {
	if g.state.CompareAndSwap(stateNew, stateStopped) {
		g.closeTrace()
		return
	}
	if !g.state.CompareAndSwap(stateRunning, stateStopped) {
		return
	}
	g.logger.Info("Gateway: shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	err := g.loop.Call(ctx, func() {
		g.layer.Stop()
		g.s0.Stop()
	})
	cancel()
	if err != nil {
		g.logger.Warn("Gateway: stopping timers: %v", err)
	}

	if err := g.channel.Close(); err != nil {
		g.logger.Error("Error closing radio channel: %v", err)
	}
	g.radio.Stop()
	g.loop.Stop()
	g.dispatch.Stop()
	g.closeTrace()
}

func (g *Gateway) closeTrace() {
	if g.traceCloser == nil {
		return
	}
	if err := g.traceCloser.Close(); err != nil {
		g.logger.Warn("Gateway: closing trace: %v", err)
	}
	g.traceCloser = nil
}

// call runs fn on the event loop and waits for it
func (g *Gateway) call(fn func()) error {
	if g.state.Load() != stateRunning {
		return ErrNotRunning
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	if err := g.loop.Call(ctx, fn); err != nil {
		if errors.Is(err, loop.ErrLoopStopped) {
			return ErrNotRunning
		}
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

// Submit queues data for p.Destination. On success cb is called exactly
// once with the final status.
func (g *Gateway) Submit(p types.Params, data []byte, cb types.SendCallback) (senddata.Handle, error) {
	var h senddata.Handle
	err := g.call(func() {
		h = g.layer.Submit(p, data, g.deferred(cb))
	})
	if err != nil {
		return 0, err
	}
	if h == 0 {
		return 0, ErrNotQueued
	}
	return h, nil
}

// SendTo queues data from the gateway to dst with automatic scheme selection
func (g *Gateway) SendTo(dst types.NodeID, data []byte, cb types.SendCallback) (senddata.Handle, error) {
	return g.Submit(g.DefaultParams(dst), data, cb)
}

// DefaultParams returns params for a plain transmission from the gateway
func (g *Gateway) DefaultParams(dst types.NodeID) types.Params {
	return g.layer.DefaultParams(dst)
}

// Abort cancels a submission made with Submit
func (g *Gateway) Abort(h senddata.Handle) error {
	return g.call(func() { g.layer.Abort(h) })
}

// IsIdle returns true when no frame is queued or in flight. A stopped
// gateway is never idle.
func (g *Gateway) IsIdle() bool {
	var idle bool
	if err := g.call(func() { idle = g.layer.IsIdle() }); err != nil {
		return false
	}
	return idle
}

// MakeReplyParams builds params answering a frame received with rx
func (g *Gateway) MakeReplyParams(rx types.Params) (types.Params, error) {
	var reply types.Params
	err := g.call(func() { reply = g.layer.MakeReplyParams(rx) })
	return reply, err
}

// SetNetworkKey installs the S0 network key
func (g *Gateway) SetNetworkKey(key [16]byte) error {
	return g.call(func() { g.s0.SetNetworkKey(key) })
}

// ResetNetworkKey generates and installs a fresh S0 network key. The new
// key is returned for persistence.
func (g *Gateway) ResetNetworkKey() ([16]byte, error) {
	var (
		key  [16]byte
		kerr error
	)
	if err := g.call(func() { key, kerr = g.s0.ResetNetworkKey() }); err != nil {
		return key, err
	}
	return key, kerr
}

// SetSecureLearn switches S0 to the longer timeouts used while a node is
// being included
func (g *Gateway) SetSecureLearn(active bool) error {
	return g.call(func() { g.s0.SetSecureLearn(active) })
}

// OnReceive installs the handler for received application frames
func (g *Gateway) OnReceive(h Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handler = h
}

// Nodes returns the node capability table
func (g *Gateway) Nodes() *NodeTable {
	return g.nodes
}

// deferred moves a send callback from the event loop to the dispatch goroutine
func (g *Gateway) deferred(cb types.SendCallback) types.SendCallback {
	if cb == nil {
		return nil
	}
	return func(status types.TransmitStatus, report *types.TxStatusReport) {
		g.dispatch.Post(func() { cb(status, report) })
	}
}

// onApplicationCommand runs on the event loop for every received frame
func (g *Gateway) onApplicationCommand(cmd *link.ApplicationCommand) {
	rx := types.Params{
		Source:      cmd.Source,
		Destination: cmd.Destination,
		RxStatus:    cmd.RxStatus,
		Scheme:      types.SchemeNone,
	}
	if rx.Destination == 0 {
		rx.Destination = g.nodes.LocalNodeID()
	}
	g.layer.FrameRxNotify(rx)

	payload := cmd.Payload
	if len(payload) == 0 {
		return
	}

	switch payload[0] {
	case cmdclass.Security:
		msg, err := g.s0.HandleFrame(rx, payload)
		if err != nil {
			g.logger.Debug("Gateway: security frame from %d dropped: %v", rx.Source, err)
			return
		}
		if msg == nil {
			return
		}
		rx.Scheme = types.SchemeS0
		payload = msg

	case cmdclass.CRC16Encap:
		inner, err := encap.UnwrapCRC16(payload)
		if err != nil {
			g.logger.Warn("Gateway: CRC16 frame from %d dropped: %v", rx.Source, err)
			return
		}
		rx.Scheme = types.SchemeCRC16
		payload = inner
	}

	if len(payload) >= 2 && payload[0] == cmdclass.MultiChannel && payload[1] == cmdclass.MultiChannelCmdEncap {
		srcEP, dstEP, inner, err := encap.UnwrapMultiChannel(payload)
		if err != nil {
			g.logger.Warn("Gateway: multi channel frame from %d dropped: %v", rx.Source, err)
			return
		}
		rx.SrcEndpoint, rx.DstEndpoint = srcEP, dstEP
		payload = inner
	}

	g.recorder.Record(trace.Event{
		Timestamp:   g.loop.Now(),
		Direction:   trace.DirectionRx,
		Source:      uint16(rx.Source),
		Destination: uint16(rx.Destination),
		Scheme:      uint8(rx.Scheme),
		Payload:     payload,
	})
	g.logger.Debug("Gateway: received %s [%s]", rx, logger.HexString(payload))

	g.mu.RLock()
	h := g.handler
	g.mu.RUnlock()
	if h == nil {
		return
	}
	data := append([]byte(nil), payload...)
	g.dispatch.Post(func() { h(rx, data) })
}

// Stats is a snapshot of the stack counters
type Stats struct {
	Radio    radio.Stats
	Link     link.LinkStats
	SendData *senddata.Statistics
	S0       *s0.Statistics
	Channel  *channel.Statistics
}

// Statistics returns the counters of every layer
func (g *Gateway) Statistics() Stats {
	return Stats{
		Radio:    g.radio.Statistics(),
		Link:     g.channel.GetLinkStatistics(),
		SendData: g.layer.Statistics(),
		S0:       g.s0.Statistics(),
		Channel:  g.channel.GetStatistics(),
	}
}

// connectionLogger reports radio connection changes
type connectionLogger struct {
	log logger.Logger
}

func (c *connectionLogger) OnConnectionEstablished() {
	c.log.Info("Gateway: radio connection established")
}

func (c *connectionLogger) OnConnectionLost() {
	c.log.Warn("Gateway: radio connection lost")
}
