// Package senddata is the send-data session layer: it queues outbound
// frames fairly, selects the security scheme per destination, and drives
// the single radio transmission slot with watchdog and backoff timers.
package senddata

import (
	"fmt"
	"time"

	"avaneesh/zgw-go/pkg/cmdclass"
	"avaneesh/zgw-go/pkg/encap"
	"avaneesh/zgw-go/pkg/internal/logger"
	"avaneesh/zgw-go/pkg/internal/loop"
	"avaneesh/zgw-go/pkg/trace"
	"avaneesh/zgw-go/pkg/types"
)

var lrNop = []byte{cmdclass.NoOperationLR, 0}

// Layer is the send-data session layer. All methods must be called from the
// event loop.
type Layer struct {
	cfg    Config
	sched  loop.Scheduler
	radio  Transmitter
	caps   Capabilities
	s0     S0Sender
	s2     SecureSender
	ts     SecureSender
	rec    trace.Recorder
	logger logger.Logger
	stats  *Statistics

	// Application tier: one request at a time goes down to sendEndpoint
	app      *pool
	appQueue fifo
	current  *session

	// Low level tier: one radio transmission at a time
	ll        *pool
	llQueue   fifo
	currentLL *session
	llToken   uint32
	watchdog  loop.Timer

	backoff     loop.Timer
	backoffNode types.NodeID
}

// NewLayer creates a session layer transmitting through radio
func NewLayer(cfg Config, sched loop.Scheduler, radio Transmitter, caps Capabilities, log logger.Logger) (*Layer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid senddata config: %w", err)
	}
	if sched == nil || radio == nil || caps == nil {
		return nil, fmt.Errorf("senddata: scheduler, radio and capabilities are required")
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Layer{
		cfg:    cfg,
		sched:  sched,
		radio:  radio,
		caps:   caps,
		rec:    trace.NoopRecorder{},
		logger: log,
		stats:  NewStatistics(),
		app:    newPool(cfg.PoolSize),
		ll:     newPool(cfg.PoolSize),
	}, nil
}

// SetS0 installs the S0 transport
func (l *Layer) SetS0(s S0Sender) {
	l.s0 = s
}

// SetS2 installs the S2 transport. Frames selecting an S2 scheme fail
// while none is installed.
func (l *Layer) SetS2(s SecureSender) {
	l.s2 = s
}

// SetTransportService installs the fragmentation path for long frames
func (l *Layer) SetTransportService(s SecureSender) {
	l.ts = s
}

// SetRecorder installs a frame trace recorder
func (l *Layer) SetRecorder(r trace.Recorder) {
	if r == nil {
		r = trace.NoopRecorder{}
	}
	l.rec = r
}

// Statistics returns the layer counters
func (l *Layer) Statistics() *Statistics {
	return l.stats
}

// Submit queues data for p.Destination. cb is called exactly once with the
// final status. The returned handle can abort the request; zero means the
// request was not queued and cb will not be called. A zero source means
// the local node.
func (l *Layer) Submit(p types.Params, data []byte, cb types.SendCallback) Handle {
	if len(data) == 0 {
		l.logger.Error("SendData: refusing empty frame to %d", p.Destination)
		return 0
	}

	if p.Source == 0 {
		p.Source = l.caps.LocalNodeID()
	}

	s := l.app.alloc()
	if s == nil {
		l.logger.Warn("SendData: no more queue space")
		l.stats.queueFull()
		return 0
	}

	if len(data) >= 2 && data[0] == cmdclass.FirmwareUpdateMD && data[1] == cmdclass.FirmwareUpdateActivationSet {
		l.logger.Debug("SendData: firmware activation set to %d, replay state reset on ack", p.Destination)
		s.resetSPAN = true
	}
	if data[0] == cmdclass.NoOperation && p.Destination.IsLongRange() {
		l.logger.Debug("SendData: using long range NOP for node %d", p.Destination)
		data = lrNop
	}

	s.params = p
	s.data = append([]byte(nil), data...)
	s.cb = cb
	l.appQueue.push(s)
	l.stats.submitted()
	l.logger.Info("SendData: %d -> %d [%s]", p.Source, p.Destination, logger.HexString(s.data))

	l.sched.Post(l.sendNext)
	return s.handle()
}

// Abort cancels a submission. An active request is asked to stop and still
// completes through its callback; a queued one is removed and fails at
// once. Unknown or completed handles are ignored.
func (l *Layer) Abort(h Handle) {
	s := l.app.lookup(h)
	if s == nil {
		l.logger.Debug("SendData: abort of stale handle 0x%X", uint32(h))
		return
	}
	l.stats.aborted()

	if s == l.current {
		l.logger.Info("SendData: aborting active transmission to %d", s.params.Destination)
		l.radio.Abort()
		if l.s0 != nil {
			l.s0.AbortAll()
		}
		if l.s2 != nil {
			l.s2.Abort()
		}
		if l.ts != nil {
			l.ts.Abort()
		}
		return
	}

	if !l.appQueue.remove(s) {
		return
	}
	cb := s.cb
	l.app.free(s)
	l.stats.failed()
	if cb != nil {
		cb(types.TransmitFail, nil)
	}
}

// IsIdle returns true when nothing is queued or in flight on either tier
func (l *Layer) IsIdle() bool {
	return l.current == nil && l.currentLL == nil && len(l.appQueue) == 0 && len(l.llQueue) == 0
}

// FrameRxNotify is called for every received frame. A frame from the node
// we are backing off for ends the backoff early.
func (l *Layer) FrameRxNotify(rx types.Params) {
	if l.backoff != nil && rx.Source == l.backoffNode {
		l.logger.Debug("SendData: backoff for %d ended by received frame", rx.Source)
		l.stopBackoff()
		l.sched.Post(l.sendNext)
	}
}

// Stop cancels the layer timers. Queued frames are left in place.
func (l *Layer) Stop() {
	l.stopBackoff()
	l.stopWatchdog()
}

func (l *Layer) sendNext() {
	if l.current != nil || l.backoff != nil {
		return
	}
	s := l.appQueue.pop()
	if s == nil {
		return
	}
	l.current = s

	done := l.appDone(s)
	if !l.sendEndpoint(s.params, s.data, done) {
		done(types.TransmitError, nil)
	}
}

// appDone returns the completion of an application session
func (l *Layer) appDone(s *session) types.SendCallback {
	gen := s.gen
	return func(status types.TransmitStatus, report *types.TxStatusReport) {
		if l.current != s || s.gen != gen {
			l.logger.Error("SendData: double callback")
			l.stats.doubleCallback()
			return
		}
		l.current = nil
		dst := s.params.Destination

		if status.OK() && report != nil && len(s.data) >= 2 && cmdclass.IsGet(s.data[0], s.data[1]) {
			// room for the report
			interval := time.Duration(report.TransmitTicks)*l.cfg.TickUnit + l.cfg.BackoffMargin
			l.startBackoff(dst, interval)
		} else {
			l.sched.Post(l.sendNext)
		}

		if status.OK() && s.resetSPAN {
			if r, ok := l.s2.(SpanResetter); ok {
				r.ResetSPAN(dst)
			}
		}

		if status.OK() {
			l.stats.completed()
		} else {
			l.stats.failed()
		}

		cb := s.cb
		l.app.free(s)
		if cb != nil {
			cb(status, report)
		}
	}
}

func (l *Layer) startBackoff(node types.NodeID, d time.Duration) {
	l.stopBackoff()
	l.logger.Debug("SendData: starting %v backoff for %d", d, node)
	l.stats.backoff()
	l.backoffNode = node

	var t loop.Timer
	t = l.sched.AfterFunc(d, func() {
		if l.backoff != t {
			return
		}
		l.logger.Debug("SendData: backoff expired")
		l.backoff = nil
		l.sendNext()
	})
	l.backoff = t
}

func (l *Layer) stopBackoff() {
	if l.backoff != nil {
		l.backoff.Stop()
		l.backoff = nil
	}
}

// sendEndpoint adds the endpoint header, selects the scheme and hands the
// frame to the matching transport. Returns false if nothing was sent, in
// which case cb is not called.
func (l *Layer) sendEndpoint(p types.Params, data []byte, cb types.SendCallback) bool {
	if len(data) > l.cfg.MaxPayloadSize {
		return false
	}

	buf := data
	if p.SrcEndpoint != 0 || p.DstEndpoint != 0 {
		buf = encap.WrapMultiChannel(p.SrcEndpoint, p.DstEndpoint, data)
		if len(buf) > l.cfg.MaxPayloadSize {
			return false
		}
	}

	scheme, ok := l.selectScheme(p, data)
	if !ok {
		return false
	}
	l.logger.Debug("SendData: sending with scheme %s", scheme)
	p.Scheme = scheme

	switch scheme {
	case types.SchemeCRC16:
		if encap.ShouldWrapCRC16(buf, l.cfg.MaxSingleFrame) {
			buf = encap.WrapCRC16(buf)
		}
		return l.SendData(p, buf, cb)

	case types.SchemeNone:
		if p.IsMulticast() {
			l.logger.Warn("SendData: non-secure multicast is not supported")
			return false
		}
		return l.SendData(p, buf, cb)

	case types.SchemeS0:
		if p.IsMulticast() {
			l.logger.Warn("SendData: attempt to transmit multicast with S0")
			return false
		}
		if l.s0 == nil {
			l.logger.Error("SendData: no S0 transport")
			return false
		}
		if err := l.s0.Send(p, buf, cb); err != nil {
			l.logger.Warn("SendData: S0 send to %d: %v", p.Destination, err)
			return false
		}
		return true

	case types.SchemeS2Access, types.SchemeS2Authenticated, types.SchemeS2Unauthenticated:
		if l.s2 == nil {
			l.logger.Error("SendData: no S2 transport")
			return false
		}
		return l.s2.SendData(p, buf, cb)
	}
	return false
}

// SendData queues data for the radio without any encapsulation. It is the
// path security transports send their frames through. Returns false when
// the low level queue is full; cb is then never called.
func (l *Layer) SendData(p types.Params, data []byte, cb types.SendCallback) bool {
	s := l.ll.alloc()
	if s == nil {
		l.logger.Warn("SendData: no more low level queue space")
		l.stats.queueFull()
		return false
	}

	s.params = p
	s.data = append([]byte(nil), data...)
	s.cb = cb
	l.llQueue.push(s)

	if p.DiscardAfter > 0 {
		l.logger.Debug("SendData: starting %v discard timer for frame to %d", p.DiscardAfter, p.Destination)
		gen := s.gen
		s.discard = l.sched.AfterFunc(p.DiscardAfter, func() {
			l.discardExpired(s, gen)
		})
	}

	l.sched.Post(l.sendNextLL)
	return true
}

func (l *Layer) discardExpired(s *session, gen uint32) {
	if !s.inUse || s.gen != gen || !l.llQueue.remove(s) {
		return
	}
	s.discard = nil
	l.logger.Error("SendData: discarding frame to %d, maximum delay exceeded", s.params.Destination)
	l.stats.discarded()

	cb := s.cb
	l.ll.free(s)
	if cb != nil {
		cb(types.TransmitFail, nil)
	}
}

func (l *Layer) sendNextLL() {
	if l.currentLL != nil {
		return
	}
	s := l.llQueue.pop()
	if s == nil {
		return
	}
	if s.discard != nil {
		s.discard.Stop()
		s.discard = nil
	}
	l.currentLL = s
	l.llToken++
	token := l.llToken

	done := func(status types.TransmitStatus, report *types.TxStatusReport) {
		l.llDone(s, token, status, report)
	}

	p := s.params
	l.rec.Record(trace.Event{
		Timestamp:   l.sched.Now(),
		Direction:   trace.DirectionTx,
		Source:      uint16(p.Source),
		Destination: uint16(p.Destination),
		Scheme:      uint8(p.Scheme),
		Payload:     s.data,
	})
	logger.DumpFrame(l.logger, "SendData TX", s.data)

	var ok bool
	local := l.caps.LocalNodeID()
	switch {
	case len(s.data) >= l.cfg.MaxSingleFrame:
		if l.ts != nil && l.caps.SupportsCommandClass(p.Destination, cmdclass.TransportService) {
			ok = l.ts.SendData(p, s.data, done)
		} else {
			l.logger.Warn("SendData: frame is too long for node %d", p.Destination)
		}
	case p.Source != 0 && p.Source != local:
		ok = l.radio.SendDataBridge(p.Source, p.Destination, s.data, p.TxOptions, done)
	default:
		ok = l.radio.SendData(p.Destination, s.data, p.TxOptions, done)
	}

	if !ok {
		l.logger.Error("SendData: radio refused frame to %d", p.Destination)
		l.llDone(s, token, types.TransmitFail, nil)
		return
	}

	l.stats.frameSent()
	l.watchdog = l.sched.AfterFunc(l.cfg.Watchdog, func() {
		if l.currentLL != s || l.llToken != token {
			return
		}
		l.logger.Error("SendData: missed radio callback for %d", p.Destination)
		l.stats.watchdog()
		l.watchdog = nil
		if c, ok := l.radio.(Canceler); ok {
			c.CancelPending()
		}
		l.llDone(s, token, types.TransmitFail, nil)
	})
}

// llDone completes the active low level transmission
func (l *Layer) llDone(s *session, token uint32, status types.TransmitStatus, report *types.TxStatusReport) {
	if l.currentLL != s || l.llToken != token {
		l.logger.Error("SendData: double callback from radio")
		l.stats.doubleCallback()
		return
	}
	l.stopWatchdog()
	l.currentLL = nil

	ev := trace.Event{
		Timestamp:   l.sched.Now(),
		Direction:   trace.DirectionTxDone,
		Source:      uint16(s.params.Source),
		Destination: uint16(s.params.Destination),
		Scheme:      uint8(s.params.Scheme),
		Status:      uint8(status),
	}
	if report != nil {
		ev.Ticks = report.TransmitTicks
		l.stats.transmitTicks(report.TransmitTicks)
	}
	l.rec.Record(ev)

	cb := s.cb
	l.ll.free(s)
	if cb != nil {
		cb(status, report)
	}
	l.sched.Post(l.sendNextLL)
}

func (l *Layer) stopWatchdog() {
	if l.watchdog != nil {
		l.watchdog.Stop()
		l.watchdog = nil
	}
}
