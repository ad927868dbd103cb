package s0

import (
	"fmt"
	"time"

	"avaneesh/zgw-go/pkg/cmdclass"
	"avaneesh/zgw-go/pkg/internal/loop"
	"avaneesh/zgw-go/pkg/types"
)

// TxState is the state of an outgoing S0 session
type TxState int

const (
	TxIdle TxState = iota
	TxNonceGet
	TxNonceGetSent
	TxEncMsg
	TxEncMsgSent
	TxEncMsg2
	TxEncMsg2Sent
	TxDone
	TxFail
)

// String returns string representation of TxState
func (s TxState) String() string {
	switch s {
	case TxIdle:
		return "Idle"
	case TxNonceGet:
		return "NonceGet"
	case TxNonceGetSent:
		return "NonceGetSent"
	case TxEncMsg:
		return "EncMsg"
	case TxEncMsgSent:
		return "EncMsgSent"
	case TxEncMsg2:
		return "EncMsg2"
	case TxEncMsg2Sent:
		return "EncMsg2Sent"
	case TxDone:
		return "Done"
	case TxFail:
		return "Fail"
	default:
		return "Unknown"
	}
}

var nonceGetFrame = []byte{cmdclass.Security, cmdclass.SecurityNonceGet}

// txSession carries one message to one destination. The slot is free while
// params.Destination is zero.
type txSession struct {
	params  types.Params
	data    []byte // not yet encrypted
	state   TxState
	seq     uint8
	entered time.Time
	timer   loop.Timer
	cb      types.SendCallback
	status  types.TransmitStatus
	report  *types.TxStatusReport
	gen     uint32 // bumped on every allocation, guards late radio callbacks
}

func (s *txSession) free() bool {
	return s.params.Destination == 0
}

func (s *txSession) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (t *Transport) txSessionFor(src, dst types.NodeID) *txSession {
	for i := range t.tx {
		s := &t.tx[i]
		if !s.free() && s.params.Source == src && s.params.Destination == dst {
			return s
		}
	}
	return nil
}

// Send starts an encrypted transmission of data to p.Destination. cb is
// called exactly once unless an error is returned.
func (t *Transport) Send(p types.Params, data []byte, cb types.SendCallback) error {
	if p.Destination == 0 {
		return fmt.Errorf("%w: no destination", ErrInvalidParams)
	}
	if len(data) == 0 || len(data) > 2*t.cfg.fragmentPayload() {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLong, len(data))
	}
	if !t.hasKey {
		return ErrNoNetworkKey
	}
	if t.txSessionFor(p.Source, p.Destination) != nil {
		t.logger.Error("S0: already have one tx session from node %d to %d", p.Source, p.Destination)
		return ErrSessionBusy
	}

	var s *txSession
	for i := range t.tx {
		if t.tx[i].free() {
			s = &t.tx[i]
			break
		}
	}
	if s == nil {
		t.logger.Error("S0: no more tx sessions available")
		t.stats.sessionExhausted()
		return ErrNoTxSession
	}

	payload := make([]byte, len(data))
	copy(payload, data)

	t.seq++
	*s = txSession{
		params: p,
		data:   payload,
		seq:    t.seq,
		cb:     cb,
		gen:    s.gen + 1,
	}

	t.logger.Debug("S0: new tx session %d -> %d (%d bytes)", p.Source, p.Destination, len(data))
	t.stats.txStarted()
	t.setTxState(s, TxNonceGet)
	return nil
}

// radioCallback wraps a per-state completion so a callback that arrives for
// a recycled slot, or in the wrong state, is ignored
func (t *Transport) radioCallback(s *txSession, want TxState, next TxState) types.SendCallback {
	gen := s.gen
	return func(status types.TransmitStatus, report *types.TxStatusReport) {
		if s.gen != gen || s.state != want {
			t.logger.Debug("S0: ignoring late %s callback", want)
			return
		}
		s.status = status
		if status.OK() && report != nil && want != TxNonceGet {
			r := *report
			s.report = &r
		}
		if status.OK() {
			t.setTxState(s, next)
		} else {
			t.setTxState(s, TxFail)
		}
	}
}

func (t *Transport) armTxTimer(s *txSession, d time.Duration) {
	s.stopTimer()
	gen := s.gen
	s.timer = t.sched.AfterFunc(d, func() {
		if s.gen != gen || s.free() {
			return
		}
		t.logger.Error("S0: transmit timeout %d -> %d in %s", s.params.Source, s.params.Destination, s.state)
		t.stats.txTimeout()
		s.timer = nil
		s.status = types.TransmitFail
		t.setTxState(s, TxFail)
	})
}

func (t *Transport) failTx(s *txSession) {
	s.status = types.TransmitFail
	t.setTxState(s, TxFail)
}

// setTxState enters state and runs its entry action
func (t *Transport) setTxState(s *txSession, state TxState) {
	s.state = state
	s.entered = t.sched.Now()
	t.logger.Debug("S0: session %d -> %d state %s", s.params.Source, s.params.Destination, state)

	switch state {
	case TxNonceGet:
		if !t.link.SendData(s.params, nonceGetFrame, t.radioCallback(s, TxNonceGet, TxNonceGetSent)) {
			t.failTx(s)
			return
		}
		if t.secureLearn {
			t.armTxTimer(s, t.cfg.SecureLearnTimeout)
		}

	case TxNonceGetSent:
		if !t.secureLearn {
			t.armTxTimer(s, t.cfg.NonceRequestTimeout+t.sched.Now().Sub(s.entered))
		}

	case TxEncMsg, TxEncMsg2:
		s.stopTimer()
		second := state == TxEncMsg2
		frame, err := t.encryptFragment(s, second)
		if err != nil {
			t.logger.Error("S0: encrypt %d -> %d: %v", s.params.Source, s.params.Destination, err)
			t.failTx(s)
			return
		}
		next := TxEncMsgSent
		if second {
			next = TxEncMsg2Sent
		}
		logFrame(t.logger, "S0 TX", frame)
		if !t.link.SendData(s.params, frame, t.radioCallback(s, state, next)) {
			t.failTx(s)
		}

	case TxEncMsgSent:
		if len(s.data) == 0 {
			t.setTxState(s, TxDone)
			return
		}
		t.armTxTimer(s, t.cfg.NonceRequestTimeout+t.sched.Now().Sub(s.entered))

	case TxEncMsg2Sent:
		t.setTxState(s, TxDone)

	case TxDone, TxFail:
		cb := s.cb
		report := s.report
		status := s.status
		if state == TxDone {
			status = types.TransmitOK
			t.stats.txCompleted()
		} else {
			report = nil
			t.stats.txFailed()
		}
		s.stopTimer()
		s.params = types.Params{}
		s.data = nil
		s.cb = nil
		s.report = nil
		if cb != nil {
			cb(status, report)
		}
	}
}

// encryptFragment consumes the next fragment of s.data and returns its
// encapsulated frame
func (t *Transport) encryptFragment(s *txSession, secondPass bool) ([]byte, error) {
	src, dst := s.params.Source, s.params.Destination

	n := len(s.data)
	more := false
	if n+FrameOverhead > t.cfg.MaxFrameSize {
		n = t.cfg.fragmentPayload()
		more = true
	}

	var iv [16]byte
	for {
		half, err := t.prim.Random8()
		if err != nil {
			return nil, err
		}
		copy(iv[:IVHalfSize], half[:])
		if _, clash := t.nonces.get(dst, src, iv[0], false); !clash {
			break
		}
	}

	receiver, ok := t.nonces.get(dst, src, 0, true)
	if !ok {
		return nil, fmt.Errorf("%w: %d -> %d", ErrNonceNotFound, dst, src)
	}
	t.nonces.clear(dst, src)
	copy(iv[IVHalfSize:], receiver[:])

	var own Nonce
	copy(own[:], iv[:IVHalfSize])
	if !t.nonces.register(src, dst, true, own) {
		t.logger.Error("S0: nonce table is full")
	}

	plain := make([]byte, n+1)
	plain[0] = fragmentFlags(s.seq, secondPass, more)
	copy(plain[1:], s.data[:n])

	authKey, encKey := t.keys.forPayload(s.data)
	sh := cmdclass.SecurityMessageEncap
	if more {
		sh = cmdclass.SecurityMessageEncapNonceGet
	}

	frame := seal(t.prim, authKey, encKey, iv, sh, src, dst, plain)
	s.data = s.data[n:]
	return frame, nil
}

// AbortAll fails every active TX session through the normal completion path
func (t *Transport) AbortAll() {
	t.logger.Debug("S0: aborting all tx sessions")
	for i := range t.tx {
		s := &t.tx[i]
		if !s.free() {
			t.failTx(s)
		}
	}
}

// TxSessionState returns the state of the session from src to dst, or TxIdle
func (t *Transport) TxSessionState(src, dst types.NodeID) TxState {
	if s := t.txSessionFor(src, dst); s != nil {
		return s.state
	}
	return TxIdle
}
