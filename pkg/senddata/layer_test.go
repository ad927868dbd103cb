package senddata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/zgw-go/pkg/cmdclass"
	"avaneesh/zgw-go/pkg/encap"
	"avaneesh/zgw-go/pkg/types"
)

var basicSet = []byte{cmdclass.Basic, 0x01, 0xFF}

func TestSubmitPlainFrame(t *testing.T) {
	h := newHarness(t)
	var rec recorder

	handle := h.layer.Submit(h.params(2), basicSet, rec.cb)
	require.NotZero(t, handle)
	assert.False(t, h.layer.IsIdle())
	assert.Empty(t, h.radio.calls, "nothing is sent before the loop runs")

	h.sched.Drain()
	call := h.radio.last(t)
	assert.Equal(t, types.NodeID(2), call.dst)
	assert.Equal(t, basicSet, call.data)
	assert.False(t, call.bridge)
	assert.True(t, call.opts.Has(types.TxOptionAck|types.TxOptionAutoRoute|types.TxOptionExplore))

	h.radio.complete(t, types.TransmitOK, 4)
	h.sched.Drain()

	require.Len(t, rec.calls, 1)
	assert.Equal(t, types.TransmitOK, rec.calls[0].status)
	assert.Equal(t, uint16(4), rec.calls[0].report.TransmitTicks)
	assert.True(t, h.layer.IsIdle())
	assert.Equal(t, uint64(1), h.layer.Statistics().GetCompleted())
	assert.Equal(t, uint16(4), h.layer.Statistics().GetLastTransmitTicks())
}

func TestSubmitRejectsEmptyFrame(t *testing.T) {
	h := newHarness(t)
	assert.Zero(t, h.layer.Submit(h.params(2), nil, nil))
}

func TestSubmitCopiesPayload(t *testing.T) {
	h := newHarness(t)
	data := []byte{cmdclass.Basic, 0x01, 0x00}
	h.layer.Submit(h.params(2), data, nil)
	data[2] = 0xFF

	h.sched.Drain()
	assert.Equal(t, []byte{cmdclass.Basic, 0x01, 0x00}, h.radio.last(t).data)
}

func TestSingleFlightFIFO(t *testing.T) {
	h := newHarness(t)
	var rec recorder

	for i := 0; i < 3; i++ {
		h.layer.Submit(h.params(types.NodeID(2+i)), basicSet, rec.cb)
	}
	h.sched.Drain()
	require.Len(t, h.radio.calls, 1)
	assert.Equal(t, types.NodeID(2), h.radio.calls[0].dst)

	for i := 0; i < 3; i++ {
		h.radio.complete(t, types.TransmitOK, 1)
		h.sched.Drain()
	}
	require.Len(t, h.radio.calls, 3)
	assert.Equal(t, types.NodeID(3), h.radio.calls[1].dst)
	assert.Equal(t, types.NodeID(4), h.radio.calls[2].dst)
	assert.Len(t, rec.calls, 3)
	assert.True(t, h.layer.IsIdle())
}

func TestPoolExhaustion(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 8; i++ {
		require.NotZero(t, h.layer.Submit(h.params(2), basicSet, nil))
	}
	assert.Zero(t, h.layer.Submit(h.params(2), basicSet, nil))
	assert.Equal(t, uint64(1), h.layer.Statistics().GetQueueFull())
}

func TestLowLevelPoolExhaustion(t *testing.T) {
	h := newHarness(t)
	p := h.params(2)

	for i := 0; i < 8; i++ {
		require.True(t, h.layer.SendData(p, basicSet, nil))
	}
	assert.False(t, h.layer.SendData(p, basicSet, nil))
}

func TestCRC16Encapsulation(t *testing.T) {
	h := newHarness(t)
	h.caps.classes[2] = []uint8{cmdclass.CRC16Encap}

	h.layer.Submit(h.params(2), basicSet, nil)
	h.sched.Drain()

	sent := h.radio.last(t).data
	assert.Equal(t, encap.WrapCRC16(basicSet), sent)
	assert.Equal(t, []byte{cmdclass.CRC16Encap, cmdclass.CRC16CmdEncap}, sent[:2])
	assert.True(t, encap.VerifyCRC16(sent))
}

func TestMultiChannelEncapsulation(t *testing.T) {
	h := newHarness(t)
	p := h.params(2)
	p.DstEndpoint = 3

	h.layer.Submit(p, basicSet, nil)
	h.sched.Drain()

	want := append([]byte{cmdclass.MultiChannel, cmdclass.MultiChannelCmdEncap, 0, 3}, basicSet...)
	assert.Equal(t, want, h.radio.last(t).data)
}

func TestExplicitUnsupportedSchemeIsRefused(t *testing.T) {
	h := newHarness(t)
	var rec recorder

	p := h.params(2)
	p.Scheme = types.SchemeS0
	h.layer.Submit(p, basicSet, rec.cb)
	h.sched.Drain()

	assert.Empty(t, h.radio.calls)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, types.TransmitError, rec.calls[0].status)
	assert.True(t, h.layer.IsIdle())
}

func TestMulticastWithoutSchemeIsRefused(t *testing.T) {
	h := newHarness(t)
	var rec recorder

	p := h.params(2)
	p.TxOptions |= types.TxOptionMulticast
	h.layer.Submit(p, basicSet, rec.cb)
	h.sched.Drain()

	assert.Empty(t, h.radio.calls)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, types.TransmitError, rec.calls[0].status)
}

func TestS2WithoutTransportFails(t *testing.T) {
	h := newHarness(t)
	h.caps.masks[1] = types.NodeFlagS2Access
	h.caps.masks[2] = types.NodeFlagS2Access
	var rec recorder

	h.layer.Submit(h.params(2), basicSet, rec.cb)
	h.sched.Drain()
	require.Len(t, rec.calls, 1)
	assert.Equal(t, types.TransmitError, rec.calls[0].status)

	s2 := &fakeSecure{}
	h.layer.SetS2(s2)
	h.layer.Submit(h.params(2), basicSet, rec.cb)
	h.sched.Drain()
	require.Len(t, s2.calls, 1)
	assert.Equal(t, basicSet, s2.calls[0].data)

	s2.calls[0].cb(types.TransmitOK, nil)
	h.sched.Drain()
	require.Len(t, rec.calls, 2)
	assert.Equal(t, types.TransmitOK, rec.calls[1].status)
}

func TestLongRangeNop(t *testing.T) {
	h := newHarness(t)

	h.layer.Submit(h.params(300), []byte{cmdclass.NoOperation}, nil)
	h.sched.Drain()
	assert.Equal(t, []byte{cmdclass.NoOperationLR, 0x00}, h.radio.last(t).data)

	h.radio.complete(t, types.TransmitOK, 1)
	h.sched.Drain()

	h.layer.Submit(h.params(20), []byte{cmdclass.NoOperation}, nil)
	h.sched.Drain()
	assert.Equal(t, []byte{cmdclass.NoOperation}, h.radio.last(t).data)
}

func TestFirmwareActivationResetsSPAN(t *testing.T) {
	h := newHarness(t)
	s2 := &fakeSecure{}
	h.layer.SetS2(s2)
	activation := []byte{cmdclass.FirmwareUpdateMD, cmdclass.FirmwareUpdateActivationSet, 0x00}

	h.layer.Submit(h.params(7), activation, nil)
	h.sched.Drain()
	h.radio.complete(t, types.TransmitNoAck, 1)
	h.sched.Drain()
	assert.Empty(t, s2.resets, "no reset without an ack")

	h.layer.Submit(h.params(7), activation, nil)
	h.sched.Drain()
	h.radio.complete(t, types.TransmitOK, 1)
	h.sched.Drain()
	assert.Equal(t, []types.NodeID{7}, s2.resets)
}

func TestBridgeDispatch(t *testing.T) {
	h := newHarness(t)
	p := h.params(2)
	p.Source = 5

	h.layer.Submit(p, basicSet, nil)
	h.sched.Drain()

	call := h.radio.last(t)
	assert.True(t, call.bridge)
	assert.Equal(t, types.NodeID(5), call.src)
	assert.Equal(t, types.NodeID(2), call.dst)
}

func TestLongFrameNeedsTransportService(t *testing.T) {
	h := newHarness(t)
	var rec recorder
	long := make([]byte, 60)
	long[0] = cmdclass.Configuration

	h.layer.Submit(h.params(2), long, rec.cb)
	h.sched.Drain()
	assert.Empty(t, h.radio.calls)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, types.TransmitFail, rec.calls[0].status)

	ts := &fakeSecure{}
	h.layer.SetTransportService(ts)
	h.caps.classes[2] = []uint8{cmdclass.TransportService}

	h.layer.Submit(h.params(2), long, rec.cb)
	h.sched.Drain()
	require.Len(t, ts.calls, 1)
	assert.Equal(t, long, ts.calls[0].data)

	ts.calls[0].cb(types.TransmitOK, nil)
	h.sched.Drain()
	require.Len(t, rec.calls, 2)
	assert.Equal(t, types.TransmitOK, rec.calls[1].status)
}

func TestRadioRefusal(t *testing.T) {
	h := newHarness(t)
	h.radio.refuse = true
	var rec recorder

	h.layer.Submit(h.params(2), basicSet, rec.cb)
	h.sched.Drain()
	require.Len(t, rec.calls, 1)
	assert.Equal(t, types.TransmitFail, rec.calls[0].status)
	assert.True(t, h.layer.IsIdle())
}

func TestBackoffAfterGet(t *testing.T) {
	h := newHarness(t)
	get := []byte{cmdclass.Basic, 0x02}

	h.layer.Submit(h.params(2), get, nil)
	h.layer.Submit(h.params(3), basicSet, nil)
	h.sched.Drain()
	h.radio.complete(t, types.TransmitOK, 10)
	h.sched.Drain()

	// 10 ticks * 10 ms + 250 ms
	h.sched.Advance(349 * time.Millisecond)
	assert.Len(t, h.radio.calls, 1)
	h.sched.Advance(time.Millisecond)
	require.Len(t, h.radio.calls, 2)
	assert.Equal(t, types.NodeID(3), h.radio.calls[1].dst)
	assert.Equal(t, uint64(1), h.layer.Statistics().GetBackoffs())
}

func TestBackoffEndedByReceivedFrame(t *testing.T) {
	h := newHarness(t)
	get := []byte{cmdclass.Basic, 0x02}

	h.layer.Submit(h.params(2), get, nil)
	h.layer.Submit(h.params(3), basicSet, nil)
	h.sched.Drain()
	h.radio.complete(t, types.TransmitOK, 100)
	h.sched.Drain()

	h.layer.FrameRxNotify(types.Params{Source: 3, Destination: 1})
	h.sched.Drain()
	assert.Len(t, h.radio.calls, 1, "frame from another node keeps the backoff")

	h.layer.FrameRxNotify(types.Params{Source: 2, Destination: 1})
	h.sched.Drain()
	assert.Len(t, h.radio.calls, 2)
}

func TestNoBackoffAfterFailedGet(t *testing.T) {
	h := newHarness(t)

	h.layer.Submit(h.params(2), []byte{cmdclass.Basic, 0x02}, nil)
	h.layer.Submit(h.params(3), basicSet, nil)
	h.sched.Drain()
	h.radio.complete(t, types.TransmitNoAck, 100)
	h.sched.Drain()
	assert.Len(t, h.radio.calls, 2)
}

func TestWatchdog(t *testing.T) {
	h := newHarness(t)
	var rec recorder

	h.layer.Submit(h.params(2), basicSet, rec.cb)
	h.sched.Drain()
	late := h.radio.last(t).cb

	h.sched.Advance(64 * time.Second)
	assert.Empty(t, rec.calls)
	assert.Zero(t, h.radio.cancelled)
	h.sched.Advance(time.Second)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, types.TransmitFail, rec.calls[0].status)
	assert.Equal(t, uint64(1), h.layer.Statistics().GetWatchdogExpired())
	assert.Equal(t, 1, h.radio.cancelled, "radio forgets the lost transmission")

	late(types.TransmitOK, nil)
	h.sched.Drain()
	assert.Len(t, rec.calls, 1, "late radio callback is ignored")
	assert.Equal(t, uint64(1), h.layer.Statistics().GetDoubleCallbacks())
	assert.True(t, h.layer.IsIdle())
}

func TestDiscardTimer(t *testing.T) {
	h := newHarness(t)
	var first, second recorder

	p := h.params(2)
	require.True(t, h.layer.SendData(p, basicSet, first.cb))
	p.DiscardAfter = time.Second
	require.True(t, h.layer.SendData(p, basicSet, second.cb))
	h.sched.Drain()
	require.Len(t, h.radio.calls, 1)

	h.sched.Advance(time.Second)
	require.Len(t, second.calls, 1)
	assert.Equal(t, types.TransmitFail, second.calls[0].status)
	assert.Nil(t, second.calls[0].report)
	assert.Equal(t, uint64(1), h.layer.Statistics().GetDiscarded())

	h.radio.complete(t, types.TransmitOK, 1)
	h.sched.Drain()
	assert.Len(t, h.radio.calls, 1)
	assert.Len(t, first.calls, 1)
	assert.True(t, h.layer.IsIdle())
}

func TestDiscardTimerStoppedOnDispatch(t *testing.T) {
	h := newHarness(t)
	var rec recorder

	p := h.params(2)
	p.DiscardAfter = time.Second
	require.True(t, h.layer.SendData(p, basicSet, rec.cb))
	h.sched.Drain()

	h.sched.Advance(2 * time.Second)
	assert.Empty(t, rec.calls)
	h.radio.complete(t, types.TransmitOK, 1)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, types.TransmitOK, rec.calls[0].status)
}

func TestAbortQueued(t *testing.T) {
	h := newHarness(t)
	var first, second recorder

	h.layer.Submit(h.params(2), basicSet, first.cb)
	h2 := h.layer.Submit(h.params(3), basicSet, second.cb)
	h.sched.Drain()

	h.layer.Abort(h2)
	require.Len(t, second.calls, 1)
	assert.Equal(t, types.TransmitFail, second.calls[0].status)
	assert.Zero(t, h.radio.aborts)

	h.layer.Abort(h2)
	assert.Len(t, second.calls, 1)

	h.radio.complete(t, types.TransmitOK, 1)
	h.sched.Drain()
	assert.Len(t, h.radio.calls, 1)
	assert.True(t, h.layer.IsIdle())
}

func TestAbortActive(t *testing.T) {
	h := newHarness(t)
	s2 := &fakeSecure{}
	h.layer.SetS2(s2)
	var rec recorder

	handle := h.layer.Submit(h.params(2), basicSet, rec.cb)
	h.sched.Drain()

	h.layer.Abort(handle)
	assert.Equal(t, 1, h.radio.aborts)
	assert.Equal(t, 1, s2.aborts)
	assert.Empty(t, rec.calls, "active abort completes through the radio callback")

	h.radio.complete(t, types.TransmitFail, 0)
	h.sched.Drain()
	require.Len(t, rec.calls, 1)
	assert.Equal(t, types.TransmitFail, rec.calls[0].status)

	h.layer.Abort(handle)
	assert.Equal(t, 1, h.radio.aborts)
}

func TestAbortStaleHandles(t *testing.T) {
	h := newHarness(t)

	h.layer.Abort(0)
	h.layer.Abort(0xFFFF)

	old := h.layer.Submit(h.params(2), basicSet, nil)
	h.sched.Drain()
	h.radio.complete(t, types.TransmitOK, 1)
	h.sched.Drain()

	// the slot is reused by a new submission
	fresh := h.layer.Submit(h.params(2), basicSet, nil)
	assert.NotEqual(t, old, fresh)
	assert.Equal(t, old.slot(), fresh.slot())
	h.sched.Drain()

	h.layer.Abort(old)
	assert.Zero(t, h.radio.aborts)
	assert.Zero(t, h.layer.Statistics().GetAborted())
}

func TestMakeReplyParams(t *testing.T) {
	h := newHarness(t)
	h.caps.masks[1] = types.NodeFlagS0
	h.caps.masks[2] = types.NodeFlagS0

	rx := types.Params{Source: 2, Destination: 1, SrcEndpoint: 1, RxStatus: types.RxStatusLowPower, Scheme: types.SchemeS0}
	reply := h.layer.MakeReplyParams(rx)
	assert.Equal(t, types.NodeID(1), reply.Source)
	assert.Equal(t, types.NodeID(2), reply.Destination)
	assert.Equal(t, uint8(1), reply.DstEndpoint)
	assert.Equal(t, types.SchemeS0, reply.Scheme)
	assert.True(t, reply.TxOptions.Has(types.TxOptionLowPower))
	assert.Zero(t, reply.DiscardAfter)

	rx.Scheme = types.SchemeNone
	assert.Equal(t, types.SchemeNone, h.layer.MakeReplyParams(rx).Scheme)
}

func TestDefaultParams(t *testing.T) {
	h := newHarness(t)
	p := h.layer.DefaultParams(9)
	assert.Equal(t, types.NodeID(1), p.Source)
	assert.Equal(t, types.NodeID(9), p.Destination)
	assert.Equal(t, types.SchemeAuto, p.Scheme)
	assert.Zero(t, p.DiscardAfter)
}
