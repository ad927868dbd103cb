package senddata

import (
	"errors"

	"avaneesh/zgw-go/pkg/internal/loop"
	"avaneesh/zgw-go/pkg/types"
)

const maxPoolSize = 0xFF

var errDoubleFree = errors.New("senddata: session already free")

// Handle identifies a submitted frame for Abort. The low byte is the
// 1-based slot, the rest is the slot generation. Zero is never issued.
type Handle uint32

func makeHandle(idx int, gen uint32) Handle {
	return Handle(gen<<8 | uint32(idx+1))
}

func (h Handle) slot() int {
	return int(h&0xFF) - 1
}

func (h Handle) gen() uint32 {
	return uint32(h) >> 8
}

// session is one queued frame. It sits in exactly one FIFO, or is the
// active session of its tier, while in use.
type session struct {
	idx   int
	gen   uint32
	inUse bool

	params    types.Params
	data      []byte
	cb        types.SendCallback
	resetSPAN bool
	discard   loop.Timer
}

func (s *session) handle() Handle {
	return makeHandle(s.idx, s.gen)
}

// pool is a fixed-capacity slot map of sessions
type pool struct {
	slots []session
	used  int
}

func newPool(size int) *pool {
	p := &pool{slots: make([]session, size)}
	for i := range p.slots {
		p.slots[i].idx = i
	}
	return p
}

// alloc returns a cleared session, or nil when the pool is exhausted
func (p *pool) alloc() *session {
	for i := range p.slots {
		s := &p.slots[i]
		if !s.inUse {
			// generation wraps within the 24 bits a handle carries
			gen := (s.gen + 1) & 0xFFFFFF
			if gen == 0 {
				gen = 1
			}
			*s = session{idx: i, gen: gen, inUse: true}
			p.used++
			return s
		}
	}
	return nil
}

// free releases s. The generation is kept so stale handles stay stale.
func (p *pool) free(s *session) error {
	if !s.inUse {
		return errDoubleFree
	}
	if s.discard != nil {
		s.discard.Stop()
	}
	*s = session{idx: s.idx, gen: s.gen}
	p.used--
	return nil
}

// lookup resolves h to its live session
func (p *pool) lookup(h Handle) *session {
	i := h.slot()
	if h == 0 || i < 0 || i >= len(p.slots) {
		return nil
	}
	s := &p.slots[i]
	if !s.inUse || s.gen != h.gen() {
		return nil
	}
	return s
}

func (p *pool) available() int {
	return len(p.slots) - p.used
}

// fifo is an ordered list of sessions
type fifo []*session

func (f *fifo) push(s *session) {
	*f = append(*f, s)
}

func (f *fifo) head() *session {
	if len(*f) == 0 {
		return nil
	}
	return (*f)[0]
}

func (f *fifo) pop() *session {
	s := f.head()
	if s != nil {
		(*f)[0] = nil
		*f = (*f)[1:]
	}
	return s
}

// remove deletes s and reports whether it was queued
func (f *fifo) remove(s *session) bool {
	for i, e := range *f {
		if e == s {
			copy((*f)[i:], (*f)[i+1:])
			(*f)[len(*f)-1] = nil
			*f = (*f)[:len(*f)-1]
			return true
		}
	}
	return false
}

func (f *fifo) contains(s *session) bool {
	for _, e := range *f {
		if e == s {
			return true
		}
	}
	return false
}
