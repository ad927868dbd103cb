package s0

import "avaneesh/zgw-go/pkg/types"

// NonceSize is the size of a receiver nonce
const NonceSize = 8

// Nonce is an 8-byte S0 receiver nonce. The first byte is the nonce
// identifier carried in the encapsulated frame.
type Nonce [NonceSize]byte

// nonceEntry records a nonce issued by src to dst. An entry is live while
// ticks is non-zero.
type nonceEntry struct {
	src   types.NodeID
	dst   types.NodeID
	ticks uint8
	reply bool // our own IV half, kept so the peer may answer with it
	value Nonce
}

func (e *nonceEntry) live() bool {
	return e.ticks > 0
}

func (e *nonceEntry) matches(src, dst types.NodeID) bool {
	return e.live() && e.src == src && e.dst == dst
}

// nonceTable is the bounded store of outstanding nonces
type nonceTable struct {
	entries []nonceEntry
	timeout uint8
}

func newNonceTable(size int, timeoutTicks uint8) *nonceTable {
	return &nonceTable{
		entries: make([]nonceEntry, size),
		timeout: timeoutTicks,
	}
}

// register stores a nonce issued by src to dst. A reply nonce overwrites the
// live reply nonce of the same pair. Returns false when the table is full.
func (t *nonceTable) register(src, dst types.NodeID, reply bool, value Nonce) bool {
	if reply {
		for i := range t.entries {
			e := &t.entries[i]
			if e.reply && e.matches(src, dst) {
				e.value = value
				e.ticks = t.timeout
				return true
			}
		}
	}

	for i := range t.entries {
		e := &t.entries[i]
		if !e.live() {
			*e = nonceEntry{src: src, dst: dst, ticks: t.timeout, reply: reply, value: value}
			return true
		}
	}
	return false
}

// get returns the first live nonce issued by src to dst whose identifier is
// ri, or any live nonce for the pair when anyNonce is set
func (t *nonceTable) get(src, dst types.NodeID, ri byte, anyNonce bool) (Nonce, bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.matches(src, dst) && (anyNonce || e.value[0] == ri) {
			return e.value, true
		}
	}
	return Nonce{}, false
}

// clear invalidates every nonce issued by src to dst
func (t *nonceTable) clear(src, dst types.NodeID) {
	for i := range t.entries {
		if t.entries[i].matches(src, dst) {
			t.entries[i].ticks = 0
		}
	}
}

// count returns the number of live nonces issued by src to dst
func (t *nonceTable) count(src, dst types.NodeID) int {
	n := 0
	for i := range t.entries {
		if t.entries[i].matches(src, dst) {
			n++
		}
	}
	return n
}

// tick ages every live entry by one tick
func (t *nonceTable) tick() {
	for i := range t.entries {
		if t.entries[i].ticks > 0 {
			t.entries[i].ticks--
		}
	}
}

// live returns the number of live entries
func (t *nonceTable) live() int {
	n := 0
	for i := range t.entries {
		if t.entries[i].live() {
			n++
		}
	}
	return n
}

type blacklistEntry struct {
	src   types.NodeID
	dst   types.NodeID
	value Nonce
	inUse bool
}

// nonceBlacklist remembers the last external nonces consumed, so a replayed
// nonce report cannot advance a TX session
type nonceBlacklist struct {
	entries []blacklistEntry
	next    int
}

func newNonceBlacklist(size int) *nonceBlacklist {
	return &nonceBlacklist{entries: make([]blacklistEntry, size)}
}

func (b *nonceBlacklist) contains(src, dst types.NodeID, value Nonce) bool {
	for i := range b.entries {
		e := &b.entries[i]
		if e.inUse && e.value == value && e.src == src && e.dst == dst {
			return true
		}
	}
	return false
}

func (b *nonceBlacklist) add(src, dst types.NodeID, value Nonce) {
	b.entries[b.next] = blacklistEntry{src: src, dst: dst, value: value, inUse: true}
	b.next = (b.next + 1) % len(b.entries)
}

func (b *nonceBlacklist) reset() {
	for i := range b.entries {
		b.entries[i] = blacklistEntry{}
	}
	b.next = 0
}
