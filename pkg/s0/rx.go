package s0

import (
	"fmt"
	"time"

	"avaneesh/zgw-go/pkg/cmdclass"
	"avaneesh/zgw-go/pkg/types"
)

type rxState int

const (
	rxInit rxState = iota
	rxFirstFragment
	rxDone
)

// rxSession reassembles a two-fragment message from src to dst. A session
// is free once done or past its expiry; nothing reclaims it eagerly.
type rxSession struct {
	src     types.NodeID
	dst     types.NodeID
	state   rxState
	seq     uint8
	msg     []byte
	expires time.Time
}

func (s *rxSession) free(now time.Time) bool {
	return s.state == rxDone || s.expires.Before(now)
}

func (t *Transport) rxSessionFor(src, dst types.NodeID) *rxSession {
	now := t.sched.Now()
	for i := range t.rx {
		s := &t.rx[i]
		if !s.free(now) && s.src == src && s.dst == dst {
			return s
		}
	}
	return nil
}

func (t *Transport) newRxSession(src, dst types.NodeID) *rxSession {
	now := t.sched.Now()
	for i := range t.rx {
		s := &t.rx[i]
		if s.free(now) {
			*s = rxSession{
				src:     src,
				dst:     dst,
				state:   rxInit,
				expires: now.Add(t.cfg.RxLifetime),
			}
			return s
		}
	}
	return nil
}

// Decrypt authenticates and decrypts an encapsulated frame sent by src to
// dst. It returns (nil, nil) when the frame is the first of two fragments
// and the message is not yet complete.
func (t *Transport) Decrypt(src, dst types.NodeID, frame []byte) ([]byte, error) {
	n := len(frame)
	if n < MinFrameSize {
		t.logger.Error("S0: encrypted message is too short")
		t.stats.rxRejected()
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, n)
	}
	if n-FrameOverhead > t.cfg.MaxMessageSize {
		t.logger.Error("S0: encrypted message is too long")
		t.stats.rxRejected()
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLong, n)
	}

	ri := nonceID(frame)
	receiver, ok := t.nonces.get(dst, src, ri, false)
	if !ok {
		t.logger.Warn("S0: nonce for %d -> %d not found", dst, src)
		t.stats.rxRejected()
		return nil, fmt.Errorf("%w: %d -> %d id 0x%02X", ErrNonceNotFound, dst, src, ri)
	}
	t.nonces.clear(dst, src)

	s := t.rxSessionFor(src, dst)
	if s == nil {
		s = t.newRxSession(src, dst)
		if s == nil {
			t.logger.Warn("S0: no more rx sessions available")
			t.stats.sessionExhausted()
			return nil, ErrNoRxSession
		}
	}

	dataLen := n - FrameOverhead
	if s.state != rxInit && len(s.msg)+dataLen > t.cfg.MaxMessageSize {
		t.logger.Error("S0: combined data for encrypted message is too long")
		t.stats.rxRejected()
		return nil, ErrMessageTooLong
	}

	plain, err := open(t.prim, t.keys.Auth, t.keys.Enc, receiver, src, dst, frame)
	if err != nil {
		t.logger.Error("S0: unable to verify auth tag from %d", src)
		t.stats.authFailure()
		return nil, err
	}
	logFrame(t.logger, "S0 RX", plain)

	flags := plain[0]
	payload := plain[1:]

	if flags&cmdclass.SecurityFlagSequenced == 0 {
		s.state = rxDone
		t.stats.rxDecrypted()
		return payload, nil
	}

	if flags&cmdclass.SecurityFlagSecondFrame == 0 {
		s.seq = flags & cmdclass.SecuritySequenceMask
		s.msg = append(s.msg[:0], payload...)
		s.state = rxFirstFragment
		return nil, nil
	}

	if s.state != rxFirstFragment || flags&cmdclass.SecuritySequenceMask != s.seq {
		t.logger.Error("S0: rx session in state %d, seq %d expected %d", s.state, flags&cmdclass.SecuritySequenceMask, s.seq)
		t.stats.rxRejected()
		return nil, ErrSequenceMismatch
	}

	out := make([]byte, 0, len(s.msg)+len(payload))
	out = append(out, s.msg...)
	out = append(out, payload...)
	s.state = rxDone
	s.msg = nil
	t.stats.rxDecrypted()
	return out, nil
}
