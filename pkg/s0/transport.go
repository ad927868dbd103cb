// Package s0 implements the Security Scheme 0 transport: nonce exchange,
// AES-128 OFB encryption with CBC-MAC authentication, and two-fragment
// segmentation of encapsulated messages.
package s0

import (
	"errors"
	"fmt"

	"avaneesh/zgw-go/pkg/cmdclass"
	"avaneesh/zgw-go/pkg/internal/logger"
	"avaneesh/zgw-go/pkg/internal/loop"
	"avaneesh/zgw-go/pkg/types"
)

var (
	ErrInvalidParams    = errors.New("s0: invalid parameters")
	ErrNoNetworkKey     = errors.New("s0: no network key")
	ErrSessionBusy      = errors.New("s0: tx session already active for node pair")
	ErrNoTxSession      = errors.New("s0: no tx session available")
	ErrNoRxSession      = errors.New("s0: no rx session available")
	ErrNonceNotFound    = errors.New("s0: nonce not found")
	ErrFrameTooShort    = errors.New("s0: frame too short")
	ErrMessageTooLong   = errors.New("s0: message too long")
	ErrAuthFailed       = errors.New("s0: authentication failed")
	ErrSequenceMismatch = errors.New("s0: sequence mismatch")
	ErrRandom           = errors.New("s0: random source failed")
	ErrNotSecurity      = errors.New("s0: not a security frame")
	ErrKnownBad         = errors.New("s0: frame from known bad node")
	ErrRateLimited      = errors.New("s0: too many outstanding nonces")
)

// LinkSender hands a frame to the low-level send queue. It returns false if
// the frame could not be queued, in which case cb is never called.
type LinkSender interface {
	SendData(p types.Params, data []byte, cb types.SendCallback) bool
}

// NodeFilter reports nodes that failed secure inclusion
type NodeFilter interface {
	KnownBad(node types.NodeID) bool
}

// Transport is the S0 engine. All methods must be called from the event loop.
type Transport struct {
	cfg    Config
	sched  loop.Scheduler
	prim   Primitives
	link   LinkSender
	filter NodeFilter
	logger logger.Logger
	stats  *Statistics

	keys        KeySet
	hasKey      bool
	secureLearn bool

	nonces    *nonceTable
	blacklist *nonceBlacklist
	tx        []txSession
	rx        []rxSession
	seq       uint8

	nonceTimer loop.Timer
}

// NewTransport creates an S0 transport sending through link
func NewTransport(cfg Config, sched loop.Scheduler, prim Primitives, link LinkSender, log logger.Logger) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid s0 config: %w", err)
	}
	if sched == nil || link == nil {
		return nil, fmt.Errorf("%w: scheduler and link sender are required", ErrInvalidParams)
	}
	if prim == nil {
		prim = NewSoftwarePrimitives()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Transport{
		cfg:       cfg,
		sched:     sched,
		prim:      prim,
		link:      link,
		logger:    log,
		stats:     NewStatistics(),
		nonces:    newNonceTable(cfg.NonceTableSize, cfg.NonceTimeoutTicks),
		blacklist: newNonceBlacklist(cfg.BlacklistSize),
		tx:        make([]txSession, cfg.TxSessions),
		rx:        make([]rxSession, cfg.RxSessions),
	}, nil
}

// SetNodeFilter installs the known-bad node lookup used on receive
func (t *Transport) SetNodeFilter(f NodeFilter) {
	t.filter = f
}

// SetNetworkKey derives and installs the keys for netKey
func (t *Transport) SetNetworkKey(netKey [16]byte) {
	t.keys = DeriveKeySet(t.prim, netKey)
	t.hasKey = true
	if t.keys.zeroNetworkKey {
		t.logger.Warn("S0: network key set to all zero key")
	} else {
		t.logger.Info("S0: network key set")
	}
}

// ResetNetworkKey generates a fresh random network key, installs it and
// returns it so the caller can persist it
func (t *Transport) ResetNetworkKey() ([16]byte, error) {
	var key [16]byte
	for i := 0; i < 2; i++ {
		half, err := t.prim.Random8()
		if err != nil {
			t.logger.Error("S0: failed to generate random network key: %v", err)
			return key, err
		}
		copy(key[i*8:], half[:])
	}
	t.logger.Info("S0: reinitializing network key")
	t.SetNetworkKey(key)
	return key, nil
}

// SetSecureLearn switches the longer nonce wait used during secure inclusion
func (t *Transport) SetSecureLearn(active bool) {
	t.secureLearn = active
}

// Init resets TX and RX sessions and the blacklist, then starts the nonce
// aging tick. The nonce table survives so a peer holding one of our nonces
// across a restart can still use it until it times out.
func (t *Transport) Init() {
	t.logger.Debug("S0: initializing")
	for i := range t.rx {
		t.rx[i] = rxSession{state: rxDone}
	}
	for i := range t.tx {
		t.tx[i].stopTimer()
		t.tx[i] = txSession{gen: t.tx[i].gen + 1}
	}
	t.blacklist.reset()
	t.startNonceTick()
}

// Stop halts the nonce aging tick
func (t *Transport) Stop() {
	if t.nonceTimer != nil {
		t.nonceTimer.Stop()
		t.nonceTimer = nil
	}
}

func (t *Transport) startNonceTick() {
	t.Stop()
	t.nonceTimer = t.sched.AfterFunc(t.cfg.NonceTick, func() {
		t.nonces.tick()
		t.startNonceTick()
	})
}

// RegisterNonce handles a nonce report sent by src to dst. A fresh nonce
// advances the TX session from dst to src.
func (t *Transport) RegisterNonce(src, dst types.NodeID, nonce Nonce) {
	if t.blacklist.contains(src, dst, nonce) {
		t.logger.Warn("S0: ignoring duplicate nonce src %d dst %d", src, dst)
		t.stats.duplicateNonce()
		return
	}

	s := t.txSessionFor(dst, src)
	if s == nil {
		t.logger.Warn("S0: nonce report but not for me src %d dst %d", src, dst)
		return
	}

	if !t.nonces.register(src, dst, false, nonce) {
		t.logger.Error("S0: nonce table is full")
	}
	t.blacklist.add(src, dst, nonce)

	switch {
	case s.state == TxNonceGetSent || s.state == TxNonceGet:
		t.setTxState(s, TxEncMsg)
	case s.state == TxEncMsgSent || (s.state == TxEncMsg && len(s.data) > 0):
		t.setTxState(s, TxEncMsg2)
	}
}

// HasThreeNonces reports whether src already issued the maximum number of
// outstanding nonces to dst
func (t *Transport) HasThreeNonces(src, dst types.NodeID) bool {
	return t.nonces.count(src, dst) >= t.cfg.MaxNoncesPerPeer
}

// SendNonce answers a nonce get received with rx. The new nonce is
// registered only once the report has been queued.
func (t *Transport) SendNonce(rx types.Params) error {
	if t.HasThreeNonces(rx.Destination, rx.Source) {
		t.logger.Warn("S0: three nonces for %d->%d in table, discarding nonce get from %d",
			rx.Destination, rx.Source, rx.Source)
		t.stats.nonceRateLimited()
		return ErrRateLimited
	}

	var nonce Nonce
	for {
		r, err := t.prim.Random8()
		if err != nil {
			return err
		}
		nonce = r
		if _, clash := t.nonces.get(rx.Destination, rx.Source, nonce[0], false); !clash {
			break
		}
	}

	report := make([]byte, 0, 2+NonceSize)
	report = append(report, cmdclass.Security, cmdclass.SecurityNonceReport)
	report = append(report, nonce[:]...)

	reply := rx.Reply()
	if !t.link.SendData(reply, report, nil) {
		t.logger.Warn("S0: unable to queue nonce report to %d", reply.Destination)
		return fmt.Errorf("s0: nonce report to %d not queued", reply.Destination)
	}
	if !t.nonces.register(rx.Destination, rx.Source, false, nonce) {
		t.logger.Error("S0: nonce table is full")
	}
	t.stats.nonceIssued()
	return nil
}

// HandleFrame processes a received security command class frame. Decrypted
// messages are returned with their scheme set to S0; control frames are
// consumed and return a nil message.
func (t *Transport) HandleFrame(rx types.Params, frame []byte) ([]byte, error) {
	if len(frame) < 2 || frame[0] != cmdclass.Security {
		return nil, ErrNotSecurity
	}
	if !t.hasKey && !t.secureLearn {
		return nil, ErrNoNetworkKey
	}

	switch frame[1] {
	case cmdclass.SecurityNonceGet:
		if rx.Scheme == types.SchemeNone {
			return nil, t.SendNonce(rx)
		}

	case cmdclass.SecurityNonceReport:
		if rx.Scheme == types.SchemeNone && len(frame) >= 2+NonceSize {
			var n Nonce
			copy(n[:], frame[2:2+NonceSize])
			t.RegisterNonce(rx.Source, rx.Destination, n)
		}

	case cmdclass.SecurityMessageEncap, cmdclass.SecurityMessageEncapNonceGet:
		if !t.secureLearn && t.filter != nil &&
			(t.filter.KnownBad(rx.Destination) || t.filter.KnownBad(rx.Source)) {
			t.logger.Warn("S0: dropping security frame from known bad node %d", rx.Source)
			return nil, ErrKnownBad
		}

		msg, err := t.Decrypt(rx.Source, rx.Destination, frame)
		if frame[1] == cmdclass.SecurityMessageEncapNonceGet {
			if nerr := t.SendNonce(rx); nerr != nil {
				t.logger.Debug("S0: nonce for encap nonce get not sent: %v", nerr)
			}
		}
		return msg, err
	}
	return nil, nil
}

// Statistics returns the transport counters
func (t *Transport) Statistics() *Statistics {
	return t.stats
}

// OutstandingNonces returns the number of live nonce table entries
func (t *Transport) OutstandingNonces() int {
	return t.nonces.live()
}

func logFrame(l logger.Logger, prefix string, data []byte) {
	logger.DumpFrame(l, prefix, data)
}
