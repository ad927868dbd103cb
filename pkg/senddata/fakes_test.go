package senddata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"avaneesh/zgw-go/pkg/internal/loop"
	"avaneesh/zgw-go/pkg/types"
)

type radioCall struct {
	src    types.NodeID
	dst    types.NodeID
	data   []byte
	opts   types.TxOptions
	cb     types.SendCallback
	bridge bool
}

type fakeRadio struct {
	calls     []radioCall
	aborts    int
	cancelled int
	refuse    bool
}

func (r *fakeRadio) SendData(dst types.NodeID, data []byte, opts types.TxOptions, cb types.SendCallback) bool {
	if r.refuse {
		return false
	}
	r.calls = append(r.calls, radioCall{dst: dst, data: append([]byte(nil), data...), opts: opts, cb: cb})
	return true
}

func (r *fakeRadio) SendDataBridge(src, dst types.NodeID, data []byte, opts types.TxOptions, cb types.SendCallback) bool {
	if r.refuse {
		return false
	}
	r.calls = append(r.calls, radioCall{src: src, dst: dst, data: append([]byte(nil), data...), opts: opts, cb: cb, bridge: true})
	return true
}

func (r *fakeRadio) Abort() {
	r.aborts++
}

func (r *fakeRadio) CancelPending() {
	r.cancelled++
}

func (r *fakeRadio) last(t *testing.T) radioCall {
	t.Helper()
	require.NotEmpty(t, r.calls, "radio saw no frame")
	return r.calls[len(r.calls)-1]
}

// complete finishes the most recent radio transmission
func (r *fakeRadio) complete(t *testing.T, status types.TransmitStatus, ticks uint16) {
	t.Helper()
	r.last(t).cb(status, &types.TxStatusReport{TransmitTicks: ticks})
}

type fakeCaps struct {
	local   types.NodeID
	masks   map[types.NodeID]types.SchemeMask
	classes map[types.NodeID][]uint8
}

func newFakeCaps(local types.NodeID) *fakeCaps {
	return &fakeCaps{
		local:   local,
		masks:   map[types.NodeID]types.SchemeMask{},
		classes: map[types.NodeID][]uint8{},
	}
}

func (c *fakeCaps) LocalNodeID() types.NodeID { return c.local }

func (c *fakeCaps) SchemeMask(n types.NodeID) types.SchemeMask { return c.masks[n] }

func (c *fakeCaps) SupportsCommandClass(n types.NodeID, class uint8) bool {
	for _, cc := range c.classes[n] {
		if cc == class {
			return true
		}
	}
	return false
}

type fakeSecure struct {
	calls  []radioCall
	aborts int
	resets []types.NodeID
}

func (f *fakeSecure) SendData(p types.Params, data []byte, cb types.SendCallback) bool {
	f.calls = append(f.calls, radioCall{src: p.Source, dst: p.Destination, data: append([]byte(nil), data...), cb: cb})
	return true
}

func (f *fakeSecure) Abort() {
	f.aborts++
}

func (f *fakeSecure) ResetSPAN(n types.NodeID) {
	f.resets = append(f.resets, n)
}

type result struct {
	status types.TransmitStatus
	report *types.TxStatusReport
}

type recorder struct {
	calls []result
}

func (r *recorder) cb(status types.TransmitStatus, report *types.TxStatusReport) {
	r.calls = append(r.calls, result{status, report})
}

type harness struct {
	sched *loop.Manual
	radio *fakeRadio
	caps  *fakeCaps
	layer *Layer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sched: loop.NewManual(time.Unix(0, 0)),
		radio: &fakeRadio{},
		caps:  newFakeCaps(1),
	}
	l, err := NewLayer(DefaultConfig(), h.sched, h.radio, h.caps, nil)
	require.NoError(t, err)
	h.layer = l
	return h
}

func (h *harness) params(dst types.NodeID) types.Params {
	return h.layer.DefaultParams(dst)
}
