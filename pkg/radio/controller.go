// Package radio drives the mesh radio module through its serial API.
//
// The Controller turns send requests into SendData / SendDataBridge frames,
// tracks them by callback id and reports each completion exactly once on the
// event loop. Frames the radio receives from the mesh are handed to a
// receive handler, also on the loop.
package radio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"avaneesh/zgw-go/pkg/internal/logger"
	"avaneesh/zgw-go/pkg/internal/loop"
	"avaneesh/zgw-go/pkg/link"
	"avaneesh/zgw-go/pkg/types"
)

var (
	ErrControllerStopped = errors.New("radio: controller is stopped")
	ErrNoResponse        = errors.New("radio: no response from module")
)

// FrameSender delivers a frame to the radio module and waits for its ACK
type FrameSender interface {
	Send(frame *link.Frame) error
}

// ReceiveHandler is called on the loop for every frame received from the mesh
type ReceiveHandler func(cmd *link.ApplicationCommand)

// Config configures a Controller
type Config struct {
	ResponseTimeout time.Duration // Wait for the RES frame of a request
	QueueDepth      int           // Requests waiting for the serial port
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		ResponseTimeout: link.DefaultResTimeout,
		QueueDepth:      16,
	}
}

// job is one request for the serial port. funcID zero means the request
// has no response.
type job struct {
	frame  *link.Frame
	funcID uint8
}

// Controller implements senddata.Transmitter over the serial API
type Controller struct {
	port   FrameSender
	sched  loop.Scheduler
	logger logger.Logger
	config Config

	jobs      chan job
	responses chan *link.Frame

	mu      sync.Mutex
	txnr    uint8
	pending map[uint8]types.SendCallback // By callback id
	receive ReceiveHandler

	stats struct {
		requests    atomic.Uint64
		completions atomic.Uint64
		refused     atomic.Uint64
		unknown     atomic.Uint64
		received    atomic.Uint64
		aborts      atomic.Uint64
		cancelled   atomic.Uint64
	}

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewController creates a controller writing to port. Callbacks and
// received frames are posted to sched.
func NewController(config Config, port FrameSender, sched loop.Scheduler, log logger.Logger) *Controller {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if config.ResponseTimeout <= 0 {
		config.ResponseTimeout = link.DefaultResTimeout
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = 16
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		port:      port,
		sched:     sched,
		logger:    log,
		config:    config,
		jobs:      make(chan job, config.QueueDepth),
		responses: make(chan *link.Frame, 1),
		pending:   make(map[uint8]types.SendCallback),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetReceiveHandler installs the handler for received application frames
func (c *Controller) SetReceiveHandler(h ReceiveHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receive = h
}

// Start launches the serial worker
func (c *Controller) Start() {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.worker()
	}()
}

// Stop terminates the worker. Transmissions still waiting for a callback
// are dropped without one.
func (c *Controller) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	if n := len(c.pending); n > 0 {
		c.logger.Warn("Radio stopped with %d transmissions pending", n)
	}
	c.pending = make(map[uint8]types.SendCallback)
	c.mu.Unlock()
}

// SendData implements senddata.Transmitter
func (c *Controller) SendData(dst types.NodeID, data []byte, opts types.TxOptions, cb types.SendCallback) bool {
	return c.submit(func(funcID uint8) (*link.Frame, error) {
		req := &link.SendDataRequest{
			Destination: dst,
			Data:        data,
			TxOptions:   opts &^ types.TxOptionMulticast,
			FuncID:      funcID,
		}
		return req.Frame()
	}, cb)
}

// SendDataBridge implements senddata.Transmitter
func (c *Controller) SendDataBridge(src, dst types.NodeID, data []byte, opts types.TxOptions, cb types.SendCallback) bool {
	return c.submit(func(funcID uint8) (*link.Frame, error) {
		req := &link.SendDataBridgeRequest{
			Source:      src,
			Destination: dst,
			Data:        data,
			TxOptions:   opts &^ types.TxOptionMulticast,
			FuncID:      funcID,
		}
		return req.Frame()
	}, cb)
}

func (c *Controller) submit(build func(funcID uint8) (*link.Frame, error), cb types.SendCallback) bool {
	if !c.running.Load() {
		c.stats.refused.Add(1)
		return false
	}

	c.mu.Lock()
	funcID := link.FuncID(c.txnr)
	c.txnr++
	frame, err := build(funcID)
	if err != nil {
		c.mu.Unlock()
		c.stats.refused.Add(1)
		c.logger.Warn("Radio refused request: %v", err)
		return false
	}
	if _, stale := c.pending[funcID]; stale {
		c.stats.cancelled.Add(1)
		c.logger.Warn("Radio funcID %d reused, dropping its lost callback", funcID)
	}
	c.pending[funcID] = cb
	c.mu.Unlock()

	select {
	case c.jobs <- job{frame: frame, funcID: funcID}:
		c.stats.requests.Add(1)
		return true
	default:
		c.mu.Lock()
		delete(c.pending, funcID)
		c.mu.Unlock()
		c.stats.refused.Add(1)
		c.logger.Warn("Radio queue full, refusing %s", frame.Command)
		return false
	}
}

// Abort implements senddata.Transmitter
func (c *Controller) Abort() {
	if !c.running.Load() {
		return
	}
	select {
	case c.jobs <- job{frame: link.NewSendDataAbort()}:
		c.stats.aborts.Add(1)
	default:
		c.logger.Warn("Radio queue full, abort dropped")
	}
}

// CancelPending forgets every transmission still waiting for its callback.
// A result arriving later for one of them is counted as unknown and dropped.
func (c *Controller) CancelPending() {
	c.mu.Lock()
	n := len(c.pending)
	clear(c.pending)
	c.mu.Unlock()

	if n > 0 {
		c.stats.cancelled.Add(uint64(n))
		c.logger.Debug("Radio cancelled %d pending transmissions", n)
	}
}

// worker writes queued requests one at a time and waits for each response
func (c *Controller) worker() {
	c.logger.Debug("Radio worker started")
	defer c.logger.Debug("Radio worker stopped")

	for {
		select {
		case <-c.ctx.Done():
			return
		case j := <-c.jobs:
			c.execute(j)
		}
	}
}

func (c *Controller) execute(j job) {
	// Drop a response left over from an earlier timed out request
	select {
	case <-c.responses:
	default:
	}

	if err := c.port.Send(j.frame); err != nil {
		c.logger.Error("Radio write of %s failed: %v", j.frame.Command, err)
		c.complete(j.funcID, types.TransmitFail, nil)
		return
	}
	if j.funcID == 0 {
		return
	}

	accepted, err := c.awaitResponse(j.frame.Command)
	if err != nil {
		c.logger.Warn("Radio %s funcID %d: %v", j.frame.Command, j.funcID, err)
		c.complete(j.funcID, types.TransmitFail, nil)
		return
	}
	if !accepted {
		c.logger.Warn("Radio rejected %s funcID %d", j.frame.Command, j.funcID)
		c.complete(j.funcID, types.TransmitFail, nil)
	}
}

func (c *Controller) awaitResponse(cmd link.Command) (bool, error) {
	timer := time.NewTimer(c.config.ResponseTimeout)
	defer timer.Stop()

	for {
		select {
		case res := <-c.responses:
			if res.Command != cmd {
				continue
			}
			return link.ParseResponse(res)
		case <-timer.C:
			return false, ErrNoResponse
		case <-c.ctx.Done():
			return false, ErrControllerStopped
		}
	}
}

// complete reports a transmission result once. Later results for the same
// callback id are counted and dropped.
func (c *Controller) complete(funcID uint8, status types.TransmitStatus, report *types.TxStatusReport) {
	if funcID == 0 {
		return
	}

	c.mu.Lock()
	cb, ok := c.pending[funcID]
	delete(c.pending, funcID)
	c.mu.Unlock()

	if !ok {
		c.stats.unknown.Add(1)
		c.logger.Debug("Radio callback for unknown funcID %d", funcID)
		return
	}

	c.stats.completions.Add(1)
	if cb != nil {
		c.sched.Post(func() { cb(status, report) })
	}
}

// Name implements channel.Session
func (c *Controller) Name() string {
	return "radio"
}

// Commands implements channel.Session
func (c *Controller) Commands() []link.Command {
	return []link.Command{
		link.CmdSendData,
		link.CmdSendDataBridge,
		link.CmdApplicationCommandHandler,
		link.CmdApplicationCommandHandlerBridge,
	}
}

// OnReceive implements channel.Session. It runs on the channel's read
// goroutine and must not block.
func (c *Controller) OnReceive(frame *link.Frame) error {
	switch frame.Command {
	case link.CmdSendData, link.CmdSendDataBridge:
		if frame.Type == link.TypeResponse {
			select {
			case c.responses <- frame:
			default:
				c.logger.Warn("Radio dropped unexpected %s response", frame.Command)
			}
			return nil
		}
		cb, err := link.ParseSendDataCallback(frame)
		if err != nil {
			return err
		}
		c.complete(cb.FuncID, cb.Status, cb.Report)
		return nil

	case link.CmdApplicationCommandHandler:
		cmd, err := link.ParseApplicationCommand(frame)
		if err != nil {
			return err
		}
		c.deliver(cmd)
		return nil

	case link.CmdApplicationCommandHandlerBridge:
		cmd, err := link.ParseApplicationCommandBridge(frame)
		if err != nil {
			return err
		}
		c.deliver(cmd)
		return nil
	}
	return nil
}

func (c *Controller) deliver(cmd *link.ApplicationCommand) {
	c.stats.received.Add(1)
	logger.DumpFrame(c.logger, "radio rx", cmd.Payload)

	c.mu.Lock()
	h := c.receive
	c.mu.Unlock()
	if h == nil {
		return
	}
	c.sched.Post(func() { h(cmd) })
}

// Stats is a snapshot of controller counters
type Stats struct {
	Requests    uint64 // Requests accepted
	Completions uint64 // Results reported
	Refused     uint64 // Requests refused at submission
	Unknown     uint64 // Callbacks with no pending transmission
	Received    uint64 // Application frames received
	Aborts      uint64
	Cancelled   uint64 // Transmissions given up before their callback
}

// Statistics returns the controller counters
func (c *Controller) Statistics() Stats {
	return Stats{
		Requests:    c.stats.requests.Load(),
		Completions: c.stats.completions.Load(),
		Refused:     c.stats.refused.Load(),
		Unknown:     c.stats.unknown.Load(),
		Received:    c.stats.received.Load(),
		Aborts:      c.stats.aborts.Load(),
		Cancelled:   c.stats.cancelled.Load(),
	}
}

// Pending returns the number of transmissions waiting for a result
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
